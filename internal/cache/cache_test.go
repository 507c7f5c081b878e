package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/campusconnect/internal/log"
)

func exercise(t *testing.T, c Cache) {
	t.Helper()

	_, ok := c.Get(TenantKey)
	assert.False(t, ok)

	c.Set(TenantKey, "stanford")
	got, ok := c.Get(TenantKey)
	require.True(t, ok)
	assert.Equal(t, "stanford", got)

	c.Set(TenantKey, "mit")
	got, _ = c.Get(TenantKey)
	assert.Equal(t, "mit", got)

	c.Remove(TenantKey)
	_, ok = c.Get(TenantKey)
	assert.False(t, ok)

	c.Remove("never-set")
}

func TestMemoryCache(t *testing.T) {
	exercise(t, NewMemoryCache())
}

func TestFileCache(t *testing.T) {
	c, err := OpenFile(filepath.Join(t.TempDir(), "cache.json"), log.Nop())
	require.NoError(t, err)
	exercise(t, c)
}

func TestFileCachePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.json")

	first, err := OpenFile(path, log.Nop())
	require.NoError(t, err)
	first.Set(TenantKey, "iitb")

	second, err := OpenFile(path, log.Nop())
	require.NoError(t, err)
	got, ok := second.Get(TenantKey)
	require.True(t, ok)
	assert.Equal(t, "iitb", got)

	second.Remove(TenantKey)
	third, err := OpenFile(path, log.Nop())
	require.NoError(t, err)
	_, ok = third.Get(TenantKey)
	assert.False(t, ok)
}

func TestFileCacheDiscardsTamperedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	c, err := OpenFile(path, log.Nop())
	require.NoError(t, err)
	c.Set(TenantKey, "mit")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(data), `"mit"`, `"harvard"`, 1)), 0o600))

	var buf bytes.Buffer
	logger := log.New(log.Config{Level: log.LevelWarn, Format: log.FormatJSON, Output: log.NewOutput(&buf)})
	reopened, err := OpenFile(path, logger)
	require.NoError(t, err)

	_, ok := reopened.Get(TenantKey)
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "CACHE-001")
}

func TestFileCacheDiscardsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	c, err := OpenFile(path, log.Nop())
	require.NoError(t, err)
	_, ok := c.Get(TenantKey)
	assert.False(t, ok)

	c.Set(TenantKey, "bits")
	reopened, err := OpenFile(path, log.Nop())
	require.NoError(t, err)
	got, _ := reopened.Get(TenantKey)
	assert.Equal(t, "bits", got)
}
