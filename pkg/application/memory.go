package application

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/foreverif/laf/pkg/domain"
)

// MemoryRegistry holds applications in memory
type MemoryRegistry struct {
	mu    sync.RWMutex
	apps  map[string]*domain.Application
	seeds map[string]map[string][]domain.Document
}

// SeedFile is the YAML layout accepted by LoadFile
type SeedFile struct {
	Apps []SeedApplication `yaml:"apps"`
}

// SeedApplication is one application entry of a seed file, with optional documents
// to preload into its database.
type SeedApplication struct {
	domain.Application `yaml:",inline"`
	Collections        map[string][]domain.Document `yaml:"collections"`
}

// NewMemoryRegistry creates a registry holding apps
func NewMemoryRegistry(apps ...*domain.Application) *MemoryRegistry {
	r := &MemoryRegistry{
		apps:  make(map[string]*domain.Application),
		seeds: make(map[string]map[string][]domain.Document),
	}
	for _, app := range apps {
		r.apps[app.AppID] = app
	}
	return r
}

// LoadFile creates a registry from a YAML seed file
func LoadFile(path string) (*MemoryRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read applications file", goerr.V("path", path))
	}
	return Parse(data)
}

// Parse creates a registry from YAML seed data
func Parse(data []byte) (*MemoryRegistry, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse applications file")
	}

	r := NewMemoryRegistry()
	for i := range file.Apps {
		seed := file.Apps[i]
		if seed.AppID == "" {
			return nil, goerr.New("application without appid", goerr.V("index", i))
		}
		app := seed.Application
		if err := r.Register(&app); err != nil {
			return nil, err
		}
		if len(seed.Collections) > 0 {
			r.seeds[app.AppID] = seed.Collections
		}
	}
	return r, nil
}

// Register adds an application; an existing appid is rejected
func (r *MemoryRegistry) Register(app *domain.Application) error {
	if app == nil || app.AppID == "" {
		return goerr.New("application must have an appid")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.apps[app.AppID]; exists {
		return goerr.New("application already registered", goerr.V("appid", app.AppID))
	}
	r.apps[app.AppID] = app
	return nil
}

// GetApplicationByAppid returns a copy of the application, or nil when unknown
func (r *MemoryRegistry) GetApplicationByAppid(ctx context.Context, appid string) (*domain.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.apps[appid]
	if !ok {
		return nil, nil
	}
	clone := *app
	clone.Collaborators = append([]domain.Collaborator(nil), app.Collaborators...)
	return &clone, nil
}

// AppIDs returns the sorted appids of all registered applications
func (r *MemoryRegistry) AppIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.apps))
	for id := range r.apps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Seeds returns the documents a seed file declared for an application
func (r *MemoryRegistry) Seeds(appid string) map[string][]domain.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seeds[appid]
}
