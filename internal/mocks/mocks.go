// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/store"
)

// -- Store Mock --

// MockStore mocks the run persistence used by the engine and the report command.
type MockStore struct {
	mock.Mock
}

// PersistRun provides a mock function for writing a run.
func (m *MockStore) PersistRun(ctx context.Context, result *schemas.RunResult) error {
	return m.Called(ctx, result).Error(0)
}

// GetRun provides a mock function for reading a run header.
func (m *MockStore) GetRun(ctx context.Context, runID string) (store.RunSummary, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return store.RunSummary{}, args.Error(1)
	}
	return args.Get(0).(store.RunSummary), args.Error(1)
}

// GetArtifacts provides a mock function for reading stored artifacts.
func (m *MockStore) GetArtifacts(ctx context.Context, runID string) ([]schemas.Artifact, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Artifact), args.Error(1)
}
