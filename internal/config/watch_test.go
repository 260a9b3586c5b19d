package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan string, 4)
	err := Watch(ctx, path, 10*time.Millisecond, func(c *Config) { updates <- c.Log.Level })
	require.NoError(t, err)
	assert.Equal(t, "info", <-updates)

	// An invalid revision is skipped.
	replaceFile(t, path, "log:\n  level: loud\n", time.Now().Add(time.Second))
	replaceFile(t, path, "log:\n  level: debug\n", time.Now().Add(2*time.Second))

	select {
	case lvl := <-updates:
		assert.Equal(t, "debug", lvl)
	case <-time.After(2 * time.Second):
		t.Fatal("no update")
	}
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), time.Second, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// replaceFile swaps in new content atomically with the given mtime.
func replaceFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Chtimes(tmp, mtime, mtime))
	require.NoError(t, os.Rename(tmp, path))
}
