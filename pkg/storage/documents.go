package storage

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/m-mizutani/goerr/v2"

	"github.com/foreverif/laf/pkg/indexing"
)

const idIndexName = "_id_"

// Insert stores a copy of doc and returns its _id. A missing _id is generated.
func (e *Engine) Insert(collName string, doc Document) (string, error) {
	if collName == "" {
		return "", goerr.New("collection name cannot be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	collection := e.getOrCreateCollection(collName)

	stored := make(Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}

	var docID string
	if id, ok := stored["_id"]; ok && id != nil {
		docID = fmt.Sprint(id)
		if _, exists := collection.Documents[docID]; exists {
			return "", &indexing.DuplicateKeyError{
				Collection: e.name + "." + collName,
				Index:      idIndexName,
				Key:        fmt.Sprintf("{ _id: %#v }", id),
			}
		}
	} else {
		docID = e.nextID(collName, collection)
		stored["_id"] = docID
	}

	if err := e.indexEngine.CheckDocument(collName, docID, stored); err != nil {
		return "", e.qualify(collName, err)
	}
	e.indexEngine.AddDocument(collName, docID, stored)

	collection.Documents[docID] = stored
	e.markDirty(collName)
	return docID, nil
}

// qualify prefixes the collection of a duplicate key error with the database name
func (e *Engine) qualify(collName string, err error) error {
	var dupErr *indexing.DuplicateKeyError
	if errors.As(err, &dupErr) {
		dupErr.Collection = e.name + "." + collName
	}
	return err
}

// nextID must be called with e.mu held for writing
func (e *Engine) nextID(collName string, collection *Collection) string {
	for {
		e.idCounters[collName]++
		id := strconv.FormatInt(e.idCounters[collName], 10)
		if _, taken := collection.Documents[id]; !taken {
			return id
		}
	}
}

// Count returns the number of documents in a collection
func (e *Engine) Count(collName string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if collection, ok := e.collections[collName]; ok {
		return len(collection.Documents)
	}
	return 0
}
