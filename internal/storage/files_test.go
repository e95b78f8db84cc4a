package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReleaseRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))

	store := NewLocalStore(dir, zap.NewNop().Sugar())
	require.NoError(t, store.Release(context.Background(), []string{"/uploads/a.jpg"}))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReleaseIgnoresMissingFiles(t *testing.T) {
	store := NewLocalStore(t.TempDir(), zap.NewNop().Sugar())
	assert.NoError(t, store.Release(context.Background(), []string{"gone.jpg"}))
}

func TestReleaseStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewLocalStore(t.TempDir(), zap.NewNop().Sugar())
	assert.Error(t, store.Release(ctx, []string{"a.jpg"}))
}
