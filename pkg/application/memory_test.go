package application

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foreverif/laf/pkg/domain"
	"github.com/foreverif/laf/pkg/storage"
)

const seedYAML = `
apps:
  - appid: A1
    name: shop
    created_by: u1
    status: running
    config:
      db_name: db_a1
    collaborators:
      - uid: u2
        roles: [developer]
      - uid: u3
        roles: [guest]
    collections:
      users:
        - email: a@x.io
        - email: b@x.io
  - appid: B2
    name: blog
    created_by: u9
`

func TestParse(t *testing.T) {
	r, err := Parse([]byte(seedYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "B2"}, r.AppIDs())

	app, err := r.GetApplicationByAppid(context.Background(), "A1")
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.Equal(t, "shop", app.Name)
	assert.Equal(t, "u1", app.CreatedBy)
	assert.Equal(t, "db_a1", app.Config.DBName)
	require.Len(t, app.Collaborators, 2)
	assert.Equal(t, []string{"developer"}, app.Collaborators[0].Roles)

	seeds := r.Seeds("A1")
	require.Len(t, seeds["users"], 2)
	assert.Equal(t, "a@x.io", seeds["users"][0]["email"])
	assert.Nil(t, r.Seeds("B2"))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("apps: [{name: nameless}]"))
	assert.Error(t, err)

	_, err = Parse([]byte("apps:\n  - appid: A1\n  - appid: A1\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("apps: {"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, r.AppIDs(), 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMemoryRegistry_GetApplicationByAppid(t *testing.T) {
	r := NewMemoryRegistry(&domain.Application{
		AppID:         "A1",
		Collaborators: []domain.Collaborator{{UID: "u2", Roles: []string{"admin"}}},
	})

	app, err := r.GetApplicationByAppid(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, app)

	app, err = r.GetApplicationByAppid(context.Background(), "A1")
	require.NoError(t, err)
	require.NotNil(t, app)

	// callers get a copy
	app.Collaborators[0] = domain.Collaborator{UID: "intruder"}
	again, err := r.GetApplicationByAppid(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, "u2", again.Collaborators[0].UID)

	assert.Error(t, r.Register(&domain.Application{AppID: "A1"}))
	assert.Error(t, r.Register(&domain.Application{}))
	assert.NoError(t, r.Register(&domain.Application{AppID: "C3"}))
}

func TestApplySeeds(t *testing.T) {
	r, err := Parse([]byte(seedYAML))
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	pool := storage.NewPool(storage.WithLogger(logger))
	provider := func(app *domain.Application) DocumentInserter {
		return pool.Engine(app.DatabaseName())
	}

	require.NoError(t, ApplySeeds(context.Background(), r, provider, logger))
	assert.Equal(t, 2, pool.Engine("db_a1").Count("users"))

	// collections that already hold documents are left alone
	require.NoError(t, ApplySeeds(context.Background(), r, provider, logger))
	assert.Equal(t, 2, pool.Engine("db_a1").Count("users"))
}
