package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"medbill/internal/domain"
	"medbill/internal/port"
)

// MockPipeline is a mock implementation of service.Pipeline.
type MockPipeline struct {
	mock.Mock
}

func (m *MockPipeline) Convert(ctx context.Context, files []port.FileInput) []domain.ConvertResult {
	args := m.Called(ctx, files)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.ConvertResult)
}

func (m *MockPipeline) ConvertOne(ctx context.Context, file port.FileInput) domain.ConvertResult {
	args := m.Called(ctx, file)
	return args.Get(0).(domain.ConvertResult)
}

func (m *MockPipeline) ParseArchive(ctx context.Context, file port.FileInput) (string, error) {
	args := m.Called(ctx, file)
	return args.String(0), args.Error(1)
}
