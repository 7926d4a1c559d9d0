package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"medbill/internal/port"
)

// MockBatchParser is a mock implementation of port.BatchParser.
type MockBatchParser struct {
	mock.Mock
}

func (m *MockBatchParser) Submit(ctx context.Context, files []port.FileInput) (*port.Batch, error) {
	args := m.Called(ctx, files)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.Batch), args.Error(1)
}

func (m *MockBatchParser) Poll(ctx context.Context, batch *port.Batch) (map[string]port.FileStatus, error) {
	args := m.Called(ctx, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]port.FileStatus), args.Error(1)
}

func (m *MockBatchParser) Fetch(ctx context.Context, status port.FileStatus) ([]byte, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
