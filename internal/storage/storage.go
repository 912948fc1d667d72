package storage

import (
	"context"
	"io"
	"time"
)

// Package storage contains the object-store abstraction blobs are committed
// to. Implementations must rely on streaming I/O only; staging to local disk
// is the coordinator's job, not the store's.

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is a reusable, S3-compatible object storage client interface.
// Blobs are keyed by their content hash, so Stat before Put makes commits
// idempotent: re-committing an already stored hash is a no-op.
type Storage interface {
	// Put uploads an object under the given key using the provided reader and options.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Stat reports whether the object exists and returns its info when it does.
	Stat(ctx context.Context, key string) (ObjectInfo, bool, error)
	// Delete removes an object by key.
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-limited URL that can be used to download the object without credentials.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// BlobKey returns the storage key for a content hash.
func BlobKey(hash string) string {
	return "blobs/" + hash
}
