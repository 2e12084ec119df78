package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSessionFile(t *testing.T, root, run string, mtime time.Time) string {
	t.Helper()
	dir := filepath.Join(root, run)
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, SessionFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"`+run+`","status":"running","metrics":[]}`), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestDiscover_NewestFirst(t *testing.T) {
	root := t.TempDir()
	now := time.Now()

	old := writeSessionFile(t, root, "old", now.Add(-time.Hour))
	newest := writeSessionFile(t, root, "newest", now)
	mid := writeSessionFile(t, root, "mid", now.Add(-time.Minute))

	// Not session directories.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".forge.lock"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.json"), []byte("{}"), 0644))

	paths, err := Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{newest, mid, old}, paths)
}

func TestDiscover_MissingRoot(t *testing.T) {
	paths, err := Discover(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	path := writeSessionFile(t, root, "run-a", time.Now())

	tests := []struct {
		name string
		ref  string
		ok   bool
	}{
		{"file path", path, true},
		{"run dir", filepath.Dir(path), true},
		{"run name", "run-a", true},
		{"unknown", "run-b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(root, tt.ref)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, path, got)
			}
		})
	}
}

func TestCache_ReusesAndRefreshes(t *testing.T) {
	root := t.TempDir()
	path := writeSessionFile(t, root, "run", time.Now().Add(-time.Minute))

	c := NewCache()
	first, ok := c.Get(path)
	require.True(t, ok)
	assert.Equal(t, "run", first.ID)

	again, ok := c.Get(path)
	require.True(t, ok)
	assert.Same(t, first, again, "unchanged file should be served from cache")

	require.NoError(t, os.WriteFile(path, []byte(`{"id":"changed","status":"completed","metrics":[]}`), 0644))
	fresh, ok := c.Get(path)
	require.True(t, ok)
	assert.Equal(t, "changed", fresh.ID)
	assert.Equal(t, 1, c.Len())
}

func TestCache_FallsBackToLastGood(t *testing.T) {
	root := t.TempDir()
	path := writeSessionFile(t, root, "run", time.Now().Add(-time.Minute))

	c := NewCache()
	_, ok := c.Get(path)
	require.True(t, ok)

	require.NoError(t, os.WriteFile(path, []byte(`{"id":`), 0644))
	got, ok := c.Get(path)
	require.True(t, ok)
	assert.Equal(t, "run", got.ID)

	c.Forget(path)
	_, ok = c.Get(path)
	assert.False(t, ok)
}
