package utils

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStorePut(t *testing.T) {
	root := t.TempDir()
	store := NewDiskStore(root, "/uploads/")

	url, err := store.Put(context.Background(), "profile/abc.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/profile/abc.png", url)

	got, err := os.ReadFile(filepath.Join(root, "profile", "abc.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(got))
}

func TestDiskStoreKeepsKeysInsideRoot(t *testing.T) {
	root := t.TempDir()
	store := NewDiskStore(root, "/uploads")

	_, err := store.Put(context.Background(), "../../escape.txt", []byte("x"), "text/plain")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "escape.txt"))
	assert.NoError(t, err)

	_, err = store.Put(context.Background(), "", nil, "")
	assert.Error(t, err)
}
