package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foreverif/laf/pkg/domain"
)

func TestHeader_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, FlagUncompressed))

	header, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, MagicBytes, string(header.Magic[:]))
	assert.Equal(t, uint8(FormatVersion), header.Version)
	assert.Equal(t, FlagUncompressed, header.Flags)

	_, err = ReadHeader(bytes.NewReader([]byte("GODB\x01\x00\x00\x00")))
	assert.Error(t, err)

	_, err = ReadHeader(bytes.NewReader([]byte("LAFM\x09\x00\x00\x00")))
	assert.Error(t, err)
}

func TestEngine_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db_a1"+FileExtension)

	engine := NewEngine("db_a1")
	for i := 0; i < 50; i++ {
		_, err := engine.Insert("users", Document{"email": string(rune('a'+i%26)) + "@x.io", "seq": i, "tags": []interface{}{"x", "y"}})
		require.NoError(t, err)
	}
	_, err := engine.CreateIndex(ctx, "users", mustSpec(t, `{"seq":1}`), domain.IndexOptions{Unique: true, Background: true})
	require.NoError(t, err)
	_, err = engine.CreateIndex(ctx, "empty", mustSpec(t, `{"a":-1}`), domain.IndexOptions{})
	require.NoError(t, err)
	assert.True(t, engine.Dirty())

	require.NoError(t, engine.SaveToFile(path))
	assert.False(t, engine.Dirty())
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "db_a1", loaded.Name())
	assert.Equal(t, 50, loaded.Count("users"))
	assert.Equal(t, []string{"empty", "users"}, loaded.CollectionNames())

	indexes, err := loaded.GetIndexes("users")
	require.NoError(t, err)
	assert.Equal(t, []string{"_id_", "seq_1"}, indexes)

	// the rebuilt unique index is enforced
	_, err = loaded.Insert("users", Document{"seq": 7})
	assert.Error(t, err)
	_, err = loaded.Insert("users", Document{"seq": 50})
	assert.NoError(t, err)

	info, ok := loaded.Info("users")
	require.True(t, ok)
	assert.Equal(t, int64(51), info.DocumentCount)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "missing.lafdb")
	_, err := LoadFromFile(missing)
	require.Error(t, err)
	assert.Equal(t, missing, goerr.Values(err)["file"])

	bad := filepath.Join(dir, "bad.lafdb")
	require.NoError(t, os.WriteFile(bad, []byte("not a database"), 0o644))
	_, err = LoadFromFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid file header")
	assert.Equal(t, bad, goerr.Values(err)["file"])
}
