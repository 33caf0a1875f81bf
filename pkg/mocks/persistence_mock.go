package mocks

import (
	"context"
	"encoding/json"

	"github.com/dukex/decision-editor/pkg/models"
	"github.com/dukex/decision-editor/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockBackend is a mock implementation of persistence.Backend interface.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Put(ctx context.Context, c persistence.Collection, id string, record any) error {
	args := m.Called(ctx, c, id, record)

	return args.Error(0)
}

func (m *MockBackend) Get(ctx context.Context, c persistence.Collection, id string) (json.RawMessage, error) {
	args := m.Called(ctx, c, id)

	raw, _ := args.Get(0).(json.RawMessage)

	return raw, args.Error(1)
}

func (m *MockBackend) List(ctx context.Context, c persistence.Collection) ([]json.RawMessage, error) {
	args := m.Called(ctx, c)

	records, _ := args.Get(0).([]json.RawMessage)

	return records, args.Error(1)
}

func (m *MockBackend) Delete(ctx context.Context, c persistence.Collection, id string) error {
	args := m.Called(ctx, c, id)

	return args.Error(0)
}

func (m *MockBackend) Info() models.StorageInfo {
	args := m.Called()

	info, _ := args.Get(0).(models.StorageInfo)

	return info
}

func (m *MockBackend) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockBackend) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
