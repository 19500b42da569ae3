package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var _ BlobStore = (*FilesystemStore)(nil)

// FilesystemStore persists assets on the local filesystem and builds public
// URLs from a base URL, assuming the root directory is served under it.
type FilesystemStore struct {
	root    string
	baseURL string
}

// NewFilesystemStore initialises a filesystem-backed store rooted at dir.
// baseURL is the externally visible prefix, e.g. "http://host:8000/media".
func NewFilesystemStore(dir, baseURL string) (*FilesystemStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("blob store: root directory is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("blob store: base URL is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob store: ensure root directory: %w", err)
	}
	return &FilesystemStore{root: dir, baseURL: baseURL}, nil
}

// Put writes data under name inside the store root and returns its public URL.
// Writes go through a temporary file and a rename so a crashed upload never
// leaves a partial object at the final name.
func (s *FilesystemStore) Put(_ context.Context, name string, data []byte, _ string) (string, error) {
	if s == nil {
		return "", errors.New("blob store: store not initialised")
	}

	name = sanitizeObjectName(name)
	if name == "" {
		return "", errors.New("blob store: object name is required")
	}
	if len(data) == 0 {
		return "", errors.New("blob store: refusing to store empty object")
	}

	finalPath := filepath.Join(s.root, name)
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("blob store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("blob store: write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("blob store: close object: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("blob store: finalise object: %w", err)
	}

	return s.baseURL + "/" + name, nil
}

// Root returns the directory assets are written to, for static serving.
func (s *FilesystemStore) Root() string {
	return s.root
}

// sanitizeObjectName strips path separators and traversal fragments so an
// object name can never escape the store root.
func sanitizeObjectName(name string) string {
	name = strings.TrimSpace(name)
	name = filepath.Base(filepath.ToSlash(name))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return ""
	}
	return name
}
