package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned by Get when no artifact exists under the key.
var ErrNotFound = errors.New("storage: not found")

// Storage keeps index artifacts addressed by slash-separated keys.
type Storage interface {
	// Put stores data under key, replacing any previous artifact.
	Put(ctx context.Context, key string, data io.Reader) error

	// Get opens the artifact stored under key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the artifact under key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// Type represents the storage backend type
type Type string

const (
	TypeLocal Type = "local"
	TypeS3    Type = "s3"
)

// Config holds configuration for storage
type Config struct {
	Type         Type
	LocalPath    string // For local storage
	S3Bucket     string // For S3 storage
	S3Region     string // For S3 storage
	S3Prefix     string // For S3 storage
	AWSAccessKey string
	AWSSecretKey string
}

// New creates the backend selected by cfg.Type.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case TypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	case TypeS3:
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("storage: unsupported type %q", cfg.Type)
	}
}

// cleanKey normalizes key and rejects keys escaping the storage root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return k, nil
}
