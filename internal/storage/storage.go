// Package storage defines the Provider interface for media object storage
// and a local filesystem implementation.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Provider abstracts object storage operations for media payloads.
type Provider interface {
	// Put writes data to storage under the given key.
	Put(ctx context.Context, key string, reader io.Reader) error
	// Open returns a reader for the given storage key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
	// AccessPath returns the consumer-accessible reference for a key,
	// e.g. a public URL path.
	AccessPath(key string) string
}

// Local stores objects as flat files under a root directory.
type Local struct {
	root    string
	baseURL string
}

// NewLocal creates the root directory if needed and returns a Local provider.
// baseURL is the public prefix prepended by AccessPath.
func NewLocal(root, baseURL string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) path(key string) string {
	// Keys are flat filenames; strip any path components.
	return filepath.Join(l.root, filepath.Base(key))
}

func (l *Local) Put(_ context.Context, key string, reader io.Reader) error {
	file, err := os.Create(l.path(key))
	if err != nil {
		return fmt.Errorf("create media file: %w", err)
	}
	defer file.Close()
	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("write media file: %w", err)
	}
	return nil
}

func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, error) {
	file, err := os.Open(l.path(key))
	if err != nil {
		return nil, fmt.Errorf("open media file: %w", err)
	}
	return file, nil
}

func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(l.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *Local) Delete(_ context.Context, key string) error {
	if err := os.Remove(l.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete media file: %w", err)
	}
	return nil
}

func (l *Local) AccessPath(key string) string {
	return l.baseURL + "/" + filepath.Base(key)
}
