package mocks

import (
	"context"

	"blobgate/internal/model"
	"blobgate/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockBlobRepository struct {
	mock.Mock
}

func (m *MockBlobRepository) CreateBlob(ctx context.Context, blob *model.Blob) (*model.Blob, error) {
	args := m.Called(ctx, blob)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Blob), args.Error(1)
}

func (m *MockBlobRepository) FindByHash(ctx context.Context, hash string) (*model.Blob, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Blob), args.Error(1)
}

func (m *MockBlobRepository) HasOwner(ctx context.Context, hash, pubkey string) (bool, error) {
	args := m.Called(ctx, hash, pubkey)
	return args.Bool(0), args.Error(1)
}

func (m *MockBlobRepository) AddOwner(ctx context.Context, hash, pubkey string) error {
	args := m.Called(ctx, hash, pubkey)
	return args.Error(0)
}

func (m *MockBlobRepository) Owners(ctx context.Context, hash string) ([]string, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockBlobRepository) ListByOwner(ctx context.Context, pubkey string, pq repository.PageQuery) (*repository.PageResult[model.Blob], error) {
	args := m.Called(ctx, pubkey, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Blob]), args.Error(1)
}
