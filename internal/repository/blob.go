package repository

import (
	"context"

	"blobgate/internal/model"
)

// BlobRepository is the durable ledger of committed blobs and their owners,
// using SQL queries only. No business logic here — strictly persistence.
//
// Ownership is many-to-many: any number of identities may own the same
// content-addressed blob, and recording a new owner never displaces existing
// ones.
type BlobRepository interface {
	// CreateBlob inserts the ledger record for a hash, or returns the existing
	// record when the hash is already known (commits are idempotent).
	CreateBlob(ctx context.Context, blob *model.Blob) (*model.Blob, error)

	// FindByHash returns the blob record for a content hash.
	FindByHash(ctx context.Context, hash string) (*model.Blob, error)

	// HasOwner reports whether the identity already owns the blob.
	HasOwner(ctx context.Context, hash, pubkey string) (bool, error)

	// AddOwner records ownership of a blob for an identity. Recording the same
	// (hash, pubkey) pair twice is a no-op.
	AddOwner(ctx context.Context, hash, pubkey string) error

	// Owners returns every identity owning the blob.
	Owners(ctx context.Context, hash string) ([]string, error)

	// ListByOwner returns a paginated list of blobs owned by an identity,
	// newest first, with the total count.
	ListByOwner(ctx context.Context, pubkey string, pq PageQuery) (*PageResult[model.Blob], error)
}
