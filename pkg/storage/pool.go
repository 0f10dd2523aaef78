package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sirupsen/logrus"

	"github.com/foreverif/laf/pkg/domain"
)

// Pool owns one in-memory Engine per application database and implements
// domain.DbAccessorProvider.
type Pool struct {
	mu      sync.RWMutex
	engines map[string]*Engine

	dataDir      string
	saveInterval time.Duration
	logger       logrus.FieldLogger

	backgroundWg sync.WaitGroup
	stopChan     chan struct{}
	stopOnce     sync.Once
}

// NewPool creates an empty pool
func NewPool(options ...PoolOption) *Pool {
	p := &Pool{
		engines:  make(map[string]*Engine),
		logger:   logrus.StandardLogger(),
		stopChan: make(chan struct{}),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// GetApplicationDbAccessor returns the database of app, creating it on first use
func (p *Pool) GetApplicationDbAccessor(ctx context.Context, app *domain.Application) (domain.DbAccessor, error) {
	if app == nil {
		return nil, goerr.New("application is nil")
	}
	return p.Engine(app.DatabaseName()), nil
}

// Engine returns the database called name, creating it on first use
func (p *Pool) Engine(name string) *Engine {
	p.mu.RLock()
	engine, ok := p.engines[name]
	p.mu.RUnlock()
	if ok {
		return engine
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check in case another goroutine created it
	if engine, ok := p.engines[name]; ok {
		return engine
	}
	engine = NewEngine(name)
	p.engines[name] = engine
	return engine
}

// Names returns the sorted database names held by the pool
func (p *Pool) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.engines))
	for name := range p.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Pool) pathOf(name string) string {
	return filepath.Join(p.dataDir, name+FileExtension)
}

// LoadAll loads every persisted database found in the data directory
func (p *Pool) LoadAll() error {
	if p.dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(p.dataDir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create data directory", goerr.V("dir", p.dataDir))
	}
	files, err := filepath.Glob(filepath.Join(p.dataDir, "*"+FileExtension))
	if err != nil {
		return goerr.Wrap(err, "failed to list data directory", goerr.V("dir", p.dataDir))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, file := range files {
		engine, err := LoadFromFile(file)
		if err != nil {
			return goerr.Wrap(err, "failed to load database", goerr.V("file", file))
		}
		if engine.Name() == "" {
			engine.name = strings.TrimSuffix(filepath.Base(file), FileExtension)
		}
		p.engines[engine.Name()] = engine
		p.logger.WithFields(logrus.Fields{"db": engine.Name(), "file": file}).Info("loaded database")
	}
	return nil
}

// SaveAll persists every dirty database to the data directory
func (p *Pool) SaveAll() error {
	if p.dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(p.dataDir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create data directory", goerr.V("dir", p.dataDir))
	}

	p.mu.RLock()
	engines := make([]*Engine, 0, len(p.engines))
	for _, engine := range p.engines {
		engines = append(engines, engine)
	}
	p.mu.RUnlock()

	for _, engine := range engines {
		if !engine.Dirty() {
			continue
		}
		path := p.pathOf(engine.Name())
		if err := engine.SaveToFile(path); err != nil {
			return goerr.Wrap(err, "failed to save database", goerr.V("db", engine.Name()))
		}
		p.logger.WithFields(logrus.Fields{"db": engine.Name(), "file": path}).Debug("saved database")
	}
	return nil
}

// LogInventory logs every collection of every database with its document count,
// state and indexes
func (p *Pool) LogInventory() {
	for _, name := range p.Names() {
		engine := p.Engine(name)
		for _, collName := range engine.CollectionNames() {
			info, ok := engine.Info(collName)
			if !ok {
				continue
			}
			indexes, err := engine.GetIndexes(collName)
			if err != nil {
				p.logger.WithError(err).WithField("db", name).Warn("failed to list indexes")
				continue
			}
			p.logger.WithFields(logrus.Fields{
				"db":         name,
				"collection": collName,
				"documents":  info.DocumentCount,
				"dirty":      info.State == CollectionStateDirty,
				"indexes":    indexes,
			}).Info("collection ready")
		}
	}
}

// StartBackgroundWorkers starts the periodic save worker when an interval and data dir are set
func (p *Pool) StartBackgroundWorkers() {
	if p.saveInterval <= 0 || p.dataDir == "" {
		return
	}

	p.backgroundWg.Add(1)
	go func() {
		defer p.backgroundWg.Done()
		ticker := time.NewTicker(p.saveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := p.SaveAll(); err != nil {
					p.logger.WithError(err).Error("background save failed")
				}
			case <-p.stopChan:
				return
			}
		}
	}()
}

// StopBackgroundWorkers stops background workers
func (p *Pool) StopBackgroundWorkers() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.backgroundWg.Wait()
}
