package registry

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
)

// MockStatusFetcher mocks the interfaces.RegistryStatusFetcher interface.
type MockStatusFetcher struct {
	mock.Mock
}

// FetchStatus mocks the FetchStatus method.
func (m *MockStatusFetcher) FetchStatus(ctx context.Context, registeree interfaces.WalletAddress) (interfaces.RegistryStatusSnapshot, error) {
	args := m.Called(ctx, registeree)
	return args.Get(0).(interfaces.RegistryStatusSnapshot), args.Error(1)
}

// MockBlockReader mocks the interfaces.BlockNumberReader interface.
type MockBlockReader struct {
	mock.Mock
}

// BlockNumber mocks the BlockNumber method.
func (m *MockBlockReader) BlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}
