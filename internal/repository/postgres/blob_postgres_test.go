package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"blobgate/internal/model"
	"blobgate/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestBlobPostgres_CreateBlob(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewBlobPostgres(db)
	ctx := context.Background()

	now := time.Now().UTC()
	blob := &model.Blob{
		Hash:        "abc123",
		Size:        123,
		ContentType: "text/plain",
		CreatedAt:   now,
	}

	rows := sqlmock.NewRows([]string{"hash", "size", "content_type", "created_at"}).
		AddRow(blob.Hash, blob.Size, blob.ContentType, blob.CreatedAt)

	mock.ExpectQuery("INSERT INTO blobs").
		WithArgs(blob.Hash, blob.Size, blob.ContentType, blob.CreatedAt).
		WillReturnRows(rows)

	result, err := repo.CreateBlob(ctx, blob)

	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, blob.Hash, result.Hash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlobPostgres_CreateBlob_ExistingHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewBlobPostgres(db)
	ctx := context.Background()

	// The upsert returns the pre-existing row, not the attempted insert.
	earlier := time.Now().UTC().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"hash", "size", "content_type", "created_at"}).
		AddRow("abc123", int64(99), "image/png", earlier)

	mock.ExpectQuery("INSERT INTO blobs").
		WillReturnRows(rows)

	result, err := repo.CreateBlob(ctx, &model.Blob{Hash: "abc123", Size: 99, ContentType: "image/png", CreatedAt: time.Now()})

	assert.NoError(t, err)
	assert.Equal(t, earlier, result.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlobPostgres_FindByHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewBlobPostgres(db)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"hash", "size", "content_type", "created_at"}).
			AddRow("abc123", int64(100), "text/plain", time.Now())

		mock.ExpectQuery("SELECT (.+) FROM blobs WHERE hash = ?").
			WithArgs("abc123").
			WillReturnRows(rows)

		blob, err := repo.FindByHash(ctx, "abc123")

		assert.NoError(t, err)
		assert.NotNil(t, blob)
		assert.Equal(t, "abc123", blob.Hash)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM blobs WHERE hash = ?").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		blob, err := repo.FindByHash(ctx, "missing")

		assert.Error(t, err)
		assert.True(t, IsNoRowsError(err))
		assert.Nil(t, blob)
	})
}

func TestBlobPostgres_Owners(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewBlobPostgres(db)
	ctx := context.Background()

	t.Run("has owner", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("abc123", "pk-a").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		has, err := repo.HasOwner(ctx, "abc123", "pk-a")

		assert.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("add owner", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO blob_owners").
			WithArgs("abc123", "pk-b").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.AddOwner(ctx, "abc123", "pk-b"))
	})

	t.Run("list owners", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"pubkey"}).AddRow("pk-a").AddRow("pk-b")
		mock.ExpectQuery("SELECT pubkey FROM blob_owners").
			WithArgs("abc123").
			WillReturnRows(rows)

		owners, err := repo.Owners(ctx, "abc123")

		assert.NoError(t, err)
		assert.Equal(t, []string{"pk-a", "pk-b"}, owners)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlobPostgres_ListByOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewBlobPostgres(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM blob_owners").
		WithArgs("pk-a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows := sqlmock.NewRows([]string{"hash", "size", "content_type", "created_at"}).
		AddRow("abc123", int64(100), "text/plain", time.Now())

	mock.ExpectQuery("SELECT (.+) FROM blobs b").
		WithArgs("pk-a", 10, 0).
		WillReturnRows(rows)

	res, err := repo.ListByOwner(ctx, "pk-a", repository.PageQuery{Limit: 10, Offset: 0})

	assert.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Len(t, res.Items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
