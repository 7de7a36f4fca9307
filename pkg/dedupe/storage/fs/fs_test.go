package fs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileforge/dedupe/pkg/dedupe"
)

func newBackend(t *testing.T) (dedupe.BlobStore, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := New(Config{BaseDir: dir})
	require.NoError(t, err)
	return backend, dir
}

func TestPutAndOpen(t *testing.T) {
	backend, _ := newBackend(t)
	ctx := context.Background()
	payload := []byte("stored on disk")

	require.NoError(t, backend.Put(ctx, "abcdef123.txt", bytes.NewReader(payload)))

	rc, err := backend.Open(ctx, "abcdef123.txt")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestPutShardsKeyIntoSubdirectories(t *testing.T) {
	backend, dir := newBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, "abcdef123.txt", bytes.NewReader([]byte("x"))))

	_, err := os.Stat(filepath.Join(dir, "ab", "cd", "abcdef123.txt"))
	assert.NoError(t, err)
}

func TestExists(t *testing.T) {
	backend, _ := newBackend(t)
	ctx := context.Background()

	ok, err := backend.Exists(ctx, "missing.bin")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, backend.Put(ctx, "present.bin", bytes.NewReader([]byte("x"))))

	ok, err = backend.Exists(ctx, "present.bin")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenMissingKey(t *testing.T) {
	backend, _ := newBackend(t)

	_, err := backend.Open(context.Background(), "nope.bin")
	assert.Error(t, err)
}

func TestDeleteRemovesBlobAndEmptyDirs(t *testing.T) {
	backend, dir := newBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, "abcdef123.txt", bytes.NewReader([]byte("x"))))
	require.NoError(t, backend.Delete(ctx, "abcdef123.txt"))

	ok, err := backend.Exists(ctx, "abcdef123.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	// Shard directories are reclaimed once empty.
	_, err = os.Stat(filepath.Join(dir, "ab"))
	assert.True(t, os.IsNotExist(err))
}

func TestPutOverwritesExistingKey(t *testing.T) {
	backend, _ := newBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, "key123456.bin", bytes.NewReader([]byte("old"))))
	require.NoError(t, backend.Put(ctx, "key123456.bin", bytes.NewReader([]byte("new"))))

	rc, err := backend.Open(ctx, "key123456.bin")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}
