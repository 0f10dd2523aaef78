package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/foreverif/laf/pkg/domain"
	"github.com/foreverif/laf/pkg/indexing"
)

// Engine is an in-memory application database: named collections of documents plus
// their secondary indexes. It implements domain.DbAccessor.
type Engine struct {
	mu          sync.RWMutex
	name        string
	collections map[string]*Collection
	info        map[string]*CollectionInfo
	indexEngine *indexing.IndexEngine
	idCounters  map[string]int64
}

// NewEngine creates an empty database called name
func NewEngine(name string) *Engine {
	return &Engine{
		name:        name,
		collections: make(map[string]*Collection),
		info:        make(map[string]*CollectionInfo),
		indexEngine: indexing.NewIndexEngine(),
		idCounters:  make(map[string]int64),
	}
}

// Name returns the database name
func (e *Engine) Name() string {
	return e.name
}

// Collection returns an accessor bound to one collection. The collection is created
// on first write.
func (e *Engine) Collection(name string) domain.CollectionAccessor {
	return &collectionAccessor{engine: e, name: name}
}

// Release implements domain.DbAccessor. Engines live as long as their pool.
func (e *Engine) Release() {}

type collectionAccessor struct {
	engine *Engine
	name   string
}

func (a *collectionAccessor) CreateIndex(ctx context.Context, spec domain.IndexSpec, opts domain.IndexOptions) (interface{}, error) {
	return a.engine.CreateIndex(ctx, a.name, spec, opts)
}

// getOrCreateCollection must be called with e.mu held for writing
func (e *Engine) getOrCreateCollection(collName string) *Collection {
	if coll, ok := e.collections[collName]; ok {
		return coll
	}
	coll := domain.NewCollection(collName)
	e.collections[collName] = coll
	e.info[collName] = &CollectionInfo{
		Name:         collName,
		State:        CollectionStateDirty,
		LastModified: time.Now(),
	}
	return coll
}

// markDirty must be called with e.mu held for writing
func (e *Engine) markDirty(collName string) {
	info := e.info[collName]
	info.State = CollectionStateDirty
	info.DocumentCount = int64(len(e.collections[collName].Documents))
	info.LastModified = time.Now()
}

// CollectionNames returns the sorted names of all collections
func (e *Engine) CollectionNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.collections))
	for name := range e.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns a snapshot of a collection's metadata
func (e *Engine) Info(collName string) (CollectionInfo, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	info, ok := e.info[collName]
	if !ok {
		return CollectionInfo{}, false
	}
	return *info, true
}

// Dirty reports whether any collection changed since the last save or load
func (e *Engine) Dirty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, info := range e.info {
		if info.State == CollectionStateDirty {
			return true
		}
	}
	return false
}

// markClean must be called with e.mu held
func (e *Engine) markClean() {
	for _, info := range e.info {
		info.State = CollectionStateLoaded
	}
}
