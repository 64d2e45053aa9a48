package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/rollkit/ephemeral-counter/bridge"
)

var _ bridge.Bridge = &MockBridge{}

// MockBridge is a mock for the bridge.Bridge interface
type MockBridge struct {
	mock.Mock
}

func (m *MockBridge) Delegate(ctx context.Context, accounts bridge.DelegateAccounts, seeds [][]byte, config bridge.DelegateConfig) error {
	args := m.Called(accounts, seeds, config)
	return args.Error(0)
}

func (m *MockBridge) Commit(ctx context.Context, req bridge.CommitRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *MockBridge) CommitAndUndelegate(ctx context.Context, req bridge.CommitRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *MockBridge) Undelegate(ctx context.Context, req bridge.UndelegateRequest) error {
	args := m.Called(req)
	return args.Error(0)
}
