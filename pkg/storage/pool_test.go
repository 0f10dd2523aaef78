package storage

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foreverif/laf/pkg/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestPool_GetApplicationDbAccessor(t *testing.T) {
	pool := NewPool(WithLogger(quietLogger()))
	ctx := context.Background()

	app := &domain.Application{AppID: "A1", Config: domain.ApplicationConfig{DBName: "db_a1"}}
	accessor, err := pool.GetApplicationDbAccessor(ctx, app)
	require.NoError(t, err)

	again, err := pool.GetApplicationDbAccessor(ctx, app)
	require.NoError(t, err)
	assert.Same(t, accessor, again)

	other, err := pool.GetApplicationDbAccessor(ctx, &domain.Application{AppID: "B2"})
	require.NoError(t, err)
	assert.NotSame(t, accessor, other)
	assert.Equal(t, []string{"B2", "db_a1"}, pool.Names())

	_, err = pool.GetApplicationDbAccessor(ctx, nil)
	assert.Error(t, err)
}

func TestPool_SaveAllLoadAll(t *testing.T) {
	dir := t.TempDir()
	pool := NewPool(WithDataDir(dir), WithLogger(quietLogger()))

	_, err := pool.Engine("db_a1").Insert("users", Document{"email": "a@x.io"})
	require.NoError(t, err)
	_, err = pool.Engine("db_a1").CreateIndex(context.Background(), "users", mustSpec(t, `{"email":1}`), domain.IndexOptions{Unique: true})
	require.NoError(t, err)
	pool.Engine("untouched")

	require.NoError(t, pool.SaveAll())
	assert.FileExists(t, pool.pathOf("db_a1"))
	assert.NoFileExists(t, pool.pathOf("untouched"))

	restored := NewPool(WithDataDir(dir), WithLogger(quietLogger()))
	require.NoError(t, restored.LoadAll())
	assert.Equal(t, []string{"db_a1"}, restored.Names())
	assert.Equal(t, 1, restored.Engine("db_a1").Count("users"))

	indexes, err := restored.Engine("db_a1").GetIndexes("users")
	require.NoError(t, err)
	assert.Equal(t, []string{"_id_", "email_1"}, indexes)
}

func TestPool_NoDataDir(t *testing.T) {
	pool := NewPool(WithLogger(quietLogger()))
	pool.Engine("db")
	assert.NoError(t, pool.SaveAll())
	assert.NoError(t, pool.LoadAll())
}

func TestPool_BackgroundSave(t *testing.T) {
	dir := t.TempDir()
	pool := NewPool(WithDataDir(dir), WithBackgroundSave(10*time.Millisecond), WithLogger(quietLogger()))
	_, err := pool.Engine("db").Insert("users", Document{"name": "Alice"})
	require.NoError(t, err)

	pool.StartBackgroundWorkers()
	assert.Eventually(t, func() bool {
		return !pool.Engine("db").Dirty()
	}, time.Second, 10*time.Millisecond)

	pool.StopBackgroundWorkers()
	pool.StopBackgroundWorkers()
	assert.FileExists(t, pool.pathOf("db"))
}

func TestPool_LogInventory(t *testing.T) {
	logger, hook := test.NewNullLogger()
	pool := NewPool(WithLogger(logger))

	_, err := pool.Engine("db_a1").Insert("users", Document{"email": "a@x.io"})
	require.NoError(t, err)
	_, err = pool.Engine("db_a1").CreateIndex(context.Background(), "users", mustSpec(t, `{"email":1}`), domain.IndexOptions{Unique: true})
	require.NoError(t, err)
	pool.Engine("empty")

	pool.LogInventory()

	entries := hook.AllEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "collection ready", entries[0].Message)
	assert.Equal(t, "db_a1", entries[0].Data["db"])
	assert.Equal(t, "users", entries[0].Data["collection"])
	assert.Equal(t, int64(1), entries[0].Data["documents"])
	assert.Equal(t, true, entries[0].Data["dirty"])
	assert.Equal(t, []string{"_id_", "email_1"}, entries[0].Data["indexes"])
}
