package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const UploadDir = "uploads"

// EnsureUploadDir creates the uploads directory if it doesn't exist
func EnsureUploadDir() error {
	return os.MkdirAll(UploadDir, os.ModePerm)
}

// DiskStore writes objects under a local directory served at PublicPrefix.
// Used when R2 is not configured.
type DiskStore struct {
	Root         string
	PublicPrefix string
}

func NewDiskStore(root, publicPrefix string) *DiskStore {
	return &DiskStore{Root: root, PublicPrefix: strings.TrimRight(publicPrefix, "/")}
}

func (d *DiskStore) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	destPath := filepath.Join(d.Root, clean)

	// Ensure the directory for the destination file exists
	if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
		return "", err
	}
	if err := os.WriteFile(destPath, body, 0o644); err != nil {
		return "", err
	}
	return d.PublicPrefix + filepath.ToSlash(clean), nil
}

// cleanKey roots key at "/" so it cannot climb out of the store directory.
func cleanKey(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return clean, nil
}
