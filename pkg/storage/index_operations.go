package storage

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/foreverif/laf/pkg/domain"
	"github.com/foreverif/laf/pkg/indexing"
)

// CreateIndex builds an index on a collection and returns its name. The collection is
// created if needed. Re-creating an identical index is a no-op that returns the same name.
func (e *Engine) CreateIndex(ctx context.Context, collName string, spec domain.IndexSpec, opts domain.IndexOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", goerr.Wrap(err, "create index cancelled", goerr.V("collection", collName))
	}
	if collName == "" {
		return "", goerr.New("collection name cannot be empty")
	}
	if spec.Len() == 0 {
		return "", goerr.New("index key spec is empty", goerr.V("collection", collName))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	name := spec.Name()
	if existing, ok := e.indexEngine.GetIndex(collName, name); ok {
		if existing.SameOptions(spec, opts) {
			return name, nil
		}
		return "", goerr.New("Index with name: "+name+" already exists with different options",
			goerr.V("code", "IndexOptionsConflict"),
			goerr.V("collection", collName))
	}

	collection := e.getOrCreateCollection(collName)
	idx := indexing.NewIndex(spec, opts)
	if err := idx.BuildIndex(collection); err != nil {
		return "", e.qualify(collName, err)
	}
	if err := e.indexEngine.CreateIndex(collName, idx); err != nil {
		return "", err
	}
	e.markDirty(collName)
	return name, nil
}

// GetIndexes returns the index names of a collection, _id_ first
func (e *Engine) GetIndexes(collName string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.collections[collName]; !ok {
		return nil, goerr.New("collection does not exist", goerr.V("collection", collName))
	}
	return append([]string{idIndexName}, e.indexEngine.GetIndexes(collName)...), nil
}
