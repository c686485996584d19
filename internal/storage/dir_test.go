package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirStorage(t *testing.T) {
	root := t.TempDir()
	store, err := NewDirStorage(root)
	require.NoError(t, err)
	ctx := context.Background()

	path := "snapshots/drive/1.jsonl"
	require.NoError(t, store.Save(ctx, path, strings.NewReader("{}\n")))

	data, err := os.ReadFile(filepath.Join(root, path))
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
	assert.Equal(t, "file://"+filepath.Join(root, path), store.URL(path))

	require.NoError(t, store.Save(ctx, path, strings.NewReader("[]\n")))
	data, err = os.ReadFile(filepath.Join(root, path))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))

	require.NoError(t, store.Delete(ctx, path))
	require.NoError(t, store.Delete(ctx, path), "deleting a missing object is not an error")
	_, err = os.Stat(filepath.Join(root, path))
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, store.Save(ctx, "../escape", strings.NewReader("x")))
}
