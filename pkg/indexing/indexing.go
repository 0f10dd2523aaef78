package indexing

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/foreverif/laf/pkg/domain"
)

// IndexEngine keeps the indexes of every collection in one database
type IndexEngine struct {
	indexes map[string]map[string]*Index // Collection name -> index name -> index
}

// NewIndexEngine creates a new index engine
func NewIndexEngine() *IndexEngine {
	return &IndexEngine{
		indexes: make(map[string]map[string]*Index),
	}
}

// Index stores a mapping from an encoded tuple of field values to document IDs.
type Index struct {
	Name       string
	Spec       domain.IndexSpec
	Unique     bool
	Background bool
	Inverted   map[string][]string
}

// Definition is the persisted form of an index
type Definition struct {
	Name       string            `msgpack:"name"`
	Keys       []domain.IndexKey `msgpack:"keys"`
	Unique     bool              `msgpack:"unique"`
	Background bool              `msgpack:"background"`
}

// DuplicateKeyError reports a unique index violation
type DuplicateKeyError struct {
	Collection string
	Index      string
	Key        string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("E11000 duplicate key error collection: %s index: %s dup key: %s", e.Collection, e.Index, e.Key)
}

// NewIndex creates an index for spec.
func NewIndex(spec domain.IndexSpec, opts domain.IndexOptions) *Index {
	return &Index{
		Name:       spec.Name(),
		Spec:       spec,
		Unique:     opts.Unique,
		Background: opts.Background,
		Inverted:   make(map[string][]string),
	}
}

// SameOptions reports whether idx was created from spec and opts
func (idx *Index) SameOptions(spec domain.IndexSpec, opts domain.IndexOptions) bool {
	return idx.Spec.Equal(spec) && idx.Unique == opts.Unique
}

// Definition returns the persisted form of idx
func (idx *Index) Definition() Definition {
	return Definition{
		Name:       idx.Name,
		Keys:       idx.Spec.Keys(),
		Unique:     idx.Unique,
		Background: idx.Background,
	}
}

// BuildIndex indexes all documents of a collection. Documents are visited in ID order
// so the reported duplicate is deterministic.
func (idx *Index) BuildIndex(collection *domain.Collection) error {
	idx.Inverted = make(map[string][]string)

	ids := make([]string, 0, len(collection.Documents))
	for id := range collection.Documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, docID := range ids {
		if err := idx.Add(collection.Name, docID, collection.Documents[docID]); err != nil {
			return err
		}
	}
	return nil
}

// Check returns a DuplicateKeyError if adding doc would violate a unique index.
func (idx *Index) Check(collName, docID string, doc domain.Document) error {
	if !idx.Unique {
		return nil
	}
	key, err := idx.keyOf(doc)
	if err != nil {
		return err
	}
	for _, id := range idx.Inverted[key] {
		if id != docID {
			return &DuplicateKeyError{Collection: collName, Index: idx.Name, Key: idx.describe(doc)}
		}
	}
	return nil
}

// Add indexes doc under docID.
func (idx *Index) Add(collName, docID string, doc domain.Document) error {
	if err := idx.Check(collName, docID, doc); err != nil {
		return err
	}
	key, err := idx.keyOf(doc)
	if err != nil {
		return err
	}
	idx.Inverted[key] = append(idx.Inverted[key], docID)
	return nil
}

func (idx *Index) keyOf(doc domain.Document) (string, error) {
	keys := idx.Spec.Keys()
	values := make([]interface{}, len(keys))
	for i, k := range keys {
		values[i] = lookup(doc, k.Field)
	}
	return encodeTuple(values)
}

func (idx *Index) describe(doc domain.Document) string {
	parts := make([]string, 0, idx.Spec.Len())
	for _, k := range idx.Spec.Keys() {
		parts = append(parts, fmt.Sprintf("%s: %#v", k.Field, lookup(doc, k.Field)))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

// lookup resolves a dotted field path; missing fields index as null.
func lookup(doc domain.Document, path string) interface{} {
	var current interface{} = map[string]interface{}(doc)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			if d, isDoc := current.(domain.Document); isDoc {
				m = d
			} else {
				return nil
			}
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

func encodeTuple(values []interface{}) (string, error) {
	normalized := make([]interface{}, len(values))
	for i, v := range values {
		normalized[i] = normalize(v)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(normalized); err != nil {
		return "", goerr.Wrap(err, "failed to encode index key")
	}
	return buf.String(), nil
}

// normalize makes numerically equal values encode identically.
func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}

// CreateIndex registers idx on a collection
func (ie *IndexEngine) CreateIndex(collectionName string, idx *Index) error {
	if ie.indexes[collectionName] == nil {
		ie.indexes[collectionName] = make(map[string]*Index)
	}
	if _, exists := ie.indexes[collectionName][idx.Name]; exists {
		return goerr.New("index already exists", goerr.V("index", idx.Name), goerr.V("collection", collectionName))
	}
	ie.indexes[collectionName][idx.Name] = idx
	return nil
}

// GetIndex returns an index of a collection by name
func (ie *IndexEngine) GetIndex(collectionName, indexName string) (*Index, bool) {
	if collectionIndexes, exists := ie.indexes[collectionName]; exists {
		if index, exists := collectionIndexes[indexName]; exists {
			return index, true
		}
	}
	return nil, false
}

// GetIndexes returns the sorted index names of a collection
func (ie *IndexEngine) GetIndexes(collectionName string) []string {
	names := make([]string, 0, len(ie.indexes[collectionName]))
	for name := range ie.indexes[collectionName] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckDocument validates doc against every unique index of a collection
func (ie *IndexEngine) CheckDocument(collectionName, docID string, doc domain.Document) error {
	for _, name := range ie.GetIndexes(collectionName) {
		if err := ie.indexes[collectionName][name].Check(collectionName, docID, doc); err != nil {
			return err
		}
	}
	return nil
}

// AddDocument indexes doc under docID in every index of a collection.
// Callers run CheckDocument first; Add cannot fail afterwards.
func (ie *IndexEngine) AddDocument(collectionName, docID string, doc domain.Document) {
	for _, index := range ie.indexes[collectionName] {
		_ = index.Add(collectionName, docID, doc)
	}
}

// ExportIndexes returns the definitions of every index, per collection
func (ie *IndexEngine) ExportIndexes() map[string][]Definition {
	out := make(map[string][]Definition, len(ie.indexes))
	for collName := range ie.indexes {
		for _, name := range ie.GetIndexes(collName) {
			out[collName] = append(out[collName], ie.indexes[collName][name].Definition())
		}
	}
	return out
}

// ImportIndexes rebuilds indexes from definitions against the loaded collections
func (ie *IndexEngine) ImportIndexes(defs map[string][]Definition, collections map[string]*domain.Collection) error {
	for collName, list := range defs {
		collection, ok := collections[collName]
		if !ok {
			collection = domain.NewCollection(collName)
		}
		for _, def := range list {
			spec, err := domain.NewIndexSpec(def.Keys...)
			if err != nil {
				return goerr.Wrap(err, "invalid persisted index", goerr.V("index", def.Name), goerr.V("collection", collName))
			}
			idx := NewIndex(spec, domain.IndexOptions{Unique: def.Unique, Background: def.Background})
			idx.Name = def.Name
			if err := idx.BuildIndex(collection); err != nil {
				return err
			}
			if err := ie.CreateIndex(collName, idx); err != nil {
				return err
			}
		}
	}
	return nil
}
