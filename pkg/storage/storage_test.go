package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foreverif/laf/pkg/domain"
)

func mustSpec(t *testing.T, raw string) domain.IndexSpec {
	t.Helper()
	spec, err := domain.ParseIndexSpec([]byte(raw))
	require.NoError(t, err)
	return spec
}

// storedDoc returns the document kept under id
func storedDoc(t *testing.T, engine *Engine, collName, id string) Document {
	t.Helper()
	engine.mu.RLock()
	defer engine.mu.RUnlock()
	collection, ok := engine.collections[collName]
	require.True(t, ok, "collection %s", collName)
	doc, ok := collection.Documents[id]
	require.True(t, ok, "document %s", id)
	return doc
}

func TestEngine_Insert(t *testing.T) {
	engine := NewEngine("db_a1")

	id, err := engine.Insert("users", Document{"name": "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	id, err = engine.Insert("users", Document{"_id": "custom", "name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "custom", id)

	_, err = engine.Insert("users", Document{"_id": "custom"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E11000 duplicate key error collection: db_a1.users index: _id_")

	doc := storedDoc(t, engine, "users", "1")
	assert.Equal(t, "Alice", doc["name"])
	assert.Equal(t, "1", doc["_id"])
	assert.Equal(t, 2, engine.Count("users"))

	_, err = engine.Insert("", Document{})
	assert.Error(t, err)
}

func TestEngine_InsertCopiesDocument(t *testing.T) {
	engine := NewEngine("db")
	doc := Document{"name": "Alice"}
	id, err := engine.Insert("users", doc)
	require.NoError(t, err)

	doc["name"] = "mutated"
	stored := storedDoc(t, engine, "users", id)
	assert.Equal(t, "Alice", stored["name"])
	_, hasID := doc["_id"]
	assert.False(t, hasID)
}

func TestEngine_CreateIndex(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine("db_a1")
	for _, email := range []string{"a@x.io", "b@x.io"} {
		_, err := engine.Insert("users", Document{"email": email})
		require.NoError(t, err)
	}

	name, err := engine.CreateIndex(ctx, "users", mustSpec(t, `{"email":1}`), domain.IndexOptions{Unique: true, Background: true})
	require.NoError(t, err)
	assert.Equal(t, "email_1", name)

	// identical re-creation is idempotent
	name, err = engine.CreateIndex(ctx, "users", mustSpec(t, `{"email":1}`), domain.IndexOptions{Unique: true, Background: true})
	require.NoError(t, err)
	assert.Equal(t, "email_1", name)

	// same name, different options
	_, err = engine.CreateIndex(ctx, "users", mustSpec(t, `{"email":1}`), domain.IndexOptions{Background: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists with different options")

	indexes, err := engine.GetIndexes("users")
	require.NoError(t, err)
	assert.Equal(t, []string{"_id_", "email_1"}, indexes)

	// unique index now rejects duplicates on insert
	_, err = engine.Insert("users", Document{"email": "a@x.io"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index: email_1")
	_, err = engine.Insert("users", Document{"email": "c@x.io"})
	assert.NoError(t, err)
	assert.Equal(t, 3, engine.Count("users"))
}

func TestEngine_CreateIndexImplicitCollection(t *testing.T) {
	engine := NewEngine("db")
	name, err := engine.CreateIndex(context.Background(), "orders", mustSpec(t, `{"createdAt":-1}`), domain.IndexOptions{Background: true})
	require.NoError(t, err)
	assert.Equal(t, "createdAt_-1", name)
	assert.Equal(t, []string{"orders"}, engine.CollectionNames())

	info, ok := engine.Info("orders")
	require.True(t, ok)
	assert.Equal(t, int64(0), info.DocumentCount)
	assert.Equal(t, CollectionStateDirty, info.State)

	_, ok = engine.Info("missing")
	assert.False(t, ok)
}

func TestEngine_CreateUniqueIndexOverDuplicates(t *testing.T) {
	engine := NewEngine("db_a1")
	for i := 0; i < 2; i++ {
		_, err := engine.Insert("users", Document{"email": "same@x.io"})
		require.NoError(t, err)
	}

	_, err := engine.CreateIndex(context.Background(), "users", mustSpec(t, `{"email":1}`), domain.IndexOptions{Unique: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E11000 duplicate key error collection: db_a1.users index: email_1")

	indexes, err := engine.GetIndexes("users")
	require.NoError(t, err)
	assert.Equal(t, []string{"_id_"}, indexes)
}

func TestEngine_CreateIndexCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine("db")
	_, err := engine.CreateIndex(ctx, "users", mustSpec(t, `{"email":1}`), domain.IndexOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_CollectionAccessor(t *testing.T) {
	engine := NewEngine("db")
	var accessor domain.DbAccessor = engine

	result, err := accessor.Collection("users").CreateIndex(context.Background(), mustSpec(t, `{"a":1,"b":-1}`), domain.IndexOptions{Background: true})
	require.NoError(t, err)
	assert.Equal(t, "a_1_b_-1", result)
}

func TestEngine_GetIndexesMissingCollection(t *testing.T) {
	engine := NewEngine("db")
	_, err := engine.GetIndexes("missing")
	assert.Error(t, err)
}
