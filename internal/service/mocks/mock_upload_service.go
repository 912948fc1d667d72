package mocks

import (
	"context"
	"io"

	"blobgate/internal/model"
	"blobgate/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockUploadService struct {
	mock.Mock
}

func (m *MockUploadService) Admit(ctx context.Context, req service.AdmitRequest) (*service.Admission, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Admission), args.Error(1)
}

func (m *MockUploadService) Upload(ctx context.Context, adm *service.Admission, body io.Reader) (*model.BlobDescriptor, error) {
	args := m.Called(ctx, adm, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BlobDescriptor), args.Error(1)
}

func (m *MockUploadService) GetBlob(ctx context.Context, hash string) (io.ReadCloser, *model.Blob, error) {
	args := m.Called(ctx, hash)
	var rc io.ReadCloser
	if args.Get(0) != nil {
		rc = args.Get(0).(io.ReadCloser)
	}
	var blob *model.Blob
	if args.Get(1) != nil {
		blob = args.Get(1).(*model.Blob)
	}
	return rc, blob, args.Error(2)
}

func (m *MockUploadService) ListByOwner(ctx context.Context, pubkey string, limit, offset int) (*service.BlobListResult, error) {
	args := m.Called(ctx, pubkey, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BlobListResult), args.Error(1)
}
