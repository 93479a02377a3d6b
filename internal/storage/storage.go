// Package storage persists rendered artifacts, uploaded originals and logos.
package storage

import (
	"context"
	"errors"
	"fmt"

	"contractor-backend/internal/config"
)

// ErrObjectNotFound is returned by Get when no object exists under the key
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectStore is a flat key/value blob store
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}

// New builds the store selected by storage.driver
func New(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	switch cfg.Storage.Driver {
	case "s3", "r2":
		return NewS3Store(ctx, S3Options{
			Bucket:    cfg.Storage.Bucket,
			Endpoint:  cfg.Storage.Endpoint,
			Region:    cfg.Storage.Region,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
		})
	case "local", "":
		return NewLocalStore(cfg.Storage.LocalDir)
	}
	return nil, fmt.Errorf("storage: unknown driver %q", cfg.Storage.Driver)
}
