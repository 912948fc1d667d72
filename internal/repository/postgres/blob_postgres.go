package postgres

import (
	"context"
	"database/sql"
	"errors"

	"blobgate/internal/model"
	"blobgate/internal/repository"
)

// BlobPostgres is a PostgreSQL implementation of repository.BlobRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type BlobPostgres struct {
	db *sql.DB
}

// NewBlobPostgres creates a new BlobPostgres repository.
func NewBlobPostgres(db *sql.DB) *BlobPostgres {
	return &BlobPostgres{db: db}
}

var _ repository.BlobRepository = (*BlobPostgres)(nil)

// IsNoRowsError reports whether the error is the driver's no-rows sentinel.
func IsNoRowsError(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// CreateBlob upserts the ledger record for a hash and returns the stored row.
// The DO UPDATE on conflict is a no-op write that makes RETURNING yield the
// existing record, so re-committing a known hash is idempotent.
func (r *BlobPostgres) CreateBlob(ctx context.Context, blob *model.Blob) (*model.Blob, error) {
	const q = `
		INSERT INTO blobs (hash, size, content_type, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hash) DO UPDATE SET hash = EXCLUDED.hash
		RETURNING hash, size, content_type, created_at
	`
	row := r.db.QueryRowContext(ctx, q,
		blob.Hash,
		blob.Size,
		blob.ContentType,
		blob.CreatedAt,
	)
	var out model.Blob
	if err := row.Scan(
		&out.Hash,
		&out.Size,
		&out.ContentType,
		&out.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByHash fetches a single blob record by its content hash.
func (r *BlobPostgres) FindByHash(ctx context.Context, hash string) (*model.Blob, error) {
	const q = `
		SELECT hash, size, content_type, created_at
		FROM blobs
		WHERE hash = $1
	`
	row := r.db.QueryRowContext(ctx, q, hash)
	var b model.Blob
	if err := row.Scan(
		&b.Hash,
		&b.Size,
		&b.ContentType,
		&b.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

// HasOwner reports whether an ownership row exists for (hash, pubkey).
func (r *BlobPostgres) HasOwner(ctx context.Context, hash, pubkey string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM blob_owners WHERE hash = $1 AND pubkey = $2)`
	var has bool
	if err := r.db.QueryRowContext(ctx, q, hash, pubkey).Scan(&has); err != nil {
		return false, err
	}
	return has, nil
}

// AddOwner records ownership; duplicate records are ignored.
func (r *BlobPostgres) AddOwner(ctx context.Context, hash, pubkey string) error {
	const q = `
		INSERT INTO blob_owners (hash, pubkey)
		VALUES ($1, $2)
		ON CONFLICT (hash, pubkey) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, q, hash, pubkey)
	return err
}

// Owners returns all identities owning the blob.
func (r *BlobPostgres) Owners(ctx context.Context, hash string) ([]string, error) {
	const q = `SELECT pubkey FROM blob_owners WHERE hash = $1 ORDER BY pubkey`
	rows, err := r.db.QueryContext(ctx, q, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owners := make([]string, 0)
	for rows.Next() {
		var pk string
		if err := rows.Scan(&pk); err != nil {
			return nil, err
		}
		owners = append(owners, pk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return owners, nil
}

// ListByOwner returns blobs owned by an identity using LIMIT/OFFSET pagination
// and a total count.
func (r *BlobPostgres) ListByOwner(ctx context.Context, pubkey string, pq repository.PageQuery) (*repository.PageResult[model.Blob], error) {
	const qCount = `SELECT COUNT(*) FROM blob_owners WHERE pubkey = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, pubkey).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT b.hash, b.size, b.content_type, b.created_at
		FROM blobs b
		JOIN blob_owners o ON o.hash = b.hash
		WHERE o.pubkey = $1
		ORDER BY b.created_at DESC, b.hash DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, qList, pubkey, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Blob, 0)
	for rows.Next() {
		var b model.Blob
		if err := rows.Scan(
			&b.Hash,
			&b.Size,
			&b.ContentType,
			&b.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Blob]{
		Items: items,
		Total: total,
	}, nil
}
