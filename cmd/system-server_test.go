package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/foreverif/laf/pkg/config"
	"github.com/foreverif/laf/pkg/domain"
	"github.com/foreverif/laf/pkg/storage"
)

const testApps = `
apps:
  - appid: A1
    created_by: u1
    config:
      db_name: db_a1
    collections:
      users:
        - email: a@x.io
`

func TestNewRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	assert.Equal(t, "laf-system-server", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("env-file"))
	assert.NotNil(t, cmd.Flags().Lookup("address"))
}

func TestNewMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	appsFile := filepath.Join(dir, "apps.yaml")
	require.NoError(t, os.WriteFile(appsFile, []byte(testApps), 0o644))
	dataDir := filepath.Join(dir, "data")

	cfg, err := config.FromEnvironment(map[string]string{
		"APPS_FILE": appsFile,
		"DATA_DIR":  dataDir,
		"LOG_LEVEL": "error",
	})
	require.NoError(t, err)

	ctx := context.Background()
	b, err := newMemoryBackend(ctx, cfg, testLogger(t))
	require.NoError(t, err)

	app, err := b.apps.GetApplicationByAppid(ctx, "A1")
	require.NoError(t, err)
	require.NotNil(t, app)

	accessor, err := b.accessors.GetApplicationDbAccessor(ctx, app)
	require.NoError(t, err)
	engine, ok := accessor.(*storage.Engine)
	require.True(t, ok)
	assert.Equal(t, 1, engine.Count("users"))

	spec, err := domain.ParseIndexSpec([]byte(`{"email":1}`))
	require.NoError(t, err)
	_, err = accessor.Collection("users").CreateIndex(ctx, spec, domain.IndexOptions{Unique: true, Background: true})
	require.NoError(t, err)

	require.NoError(t, b.close(ctx))
	assert.FileExists(t, filepath.Join(dataDir, "db_a1"+storage.FileExtension))

	// A restart restores the index and does not seed twice
	b, err = newMemoryBackend(ctx, cfg, testLogger(t))
	require.NoError(t, err)
	accessor, err = b.accessors.GetApplicationDbAccessor(ctx, app)
	require.NoError(t, err)
	engine = accessor.(*storage.Engine)
	assert.Equal(t, 1, engine.Count("users"))

	indexes, err := engine.GetIndexes("users")
	require.NoError(t, err)
	assert.Contains(t, indexes, "email_1")
	require.NoError(t, b.close(ctx))
}

func TestNewMemoryBackend_MissingAppsFile(t *testing.T) {
	cfg, err := config.FromEnvironment(map[string]string{
		"APPS_FILE": filepath.Join(t.TempDir(), "missing.yaml"),
	})
	require.NoError(t, err)

	_, err = newMemoryBackend(context.Background(), cfg, testLogger(t))
	assert.Error(t, err)
}

func testLogger(t *testing.T) *logrus.Logger {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return logger
}

func lazyClient(t *testing.T) *mongo.Client {
	t.Helper()
	// Connect does not dial; operations fail fast once the client is disconnected
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI("mongodb://127.0.0.1:1"))
	require.NoError(t, err)
	return client
}

func TestDisconnectAll(t *testing.T) {
	ctx := context.Background()

	t.Run("separate clients", func(t *testing.T) {
		sysClient, appClient := lazyClient(t), lazyClient(t)
		require.NoError(t, disconnectAll(ctx, sysClient, appClient))

		assert.ErrorIs(t, sysClient.Ping(ctx, nil), mongo.ErrClientDisconnected)
		assert.ErrorIs(t, appClient.Ping(ctx, nil), mongo.ErrClientDisconnected)
	})

	t.Run("shared client", func(t *testing.T) {
		client := lazyClient(t)
		require.NoError(t, disconnectAll(ctx, client, client))
		assert.ErrorIs(t, client.Ping(ctx, nil), mongo.ErrClientDisconnected)
	})
}
