package mocks

import (
	"context"
	"sync"

	"github.com/copyleftdev/brokerlogin/internal/authtypes"
)

// MockExecutor records runs and returns a scripted ledger. When Block is
// set, Execute waits until Release is called or the context ends.
type MockExecutor struct {
	mu       sync.Mutex
	ledger   authtypes.RunLedger
	err      error
	block    chan struct{}
	started  chan struct{}
	executed [][]authtypes.Account
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		ledger:  authtypes.NewRunLedger(),
		started: make(chan struct{}, 16),
	}
}

func (m *MockExecutor) SetResult(ledger authtypes.RunLedger, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger = ledger
	m.err = err
}

// Block makes subsequent runs wait for Release.
func (m *MockExecutor) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = make(chan struct{})
}

func (m *MockExecutor) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.block != nil {
		close(m.block)
		m.block = nil
	}
}

// Started receives once per Execute call, after it begins.
func (m *MockExecutor) Started() <-chan struct{} {
	return m.started
}

func (m *MockExecutor) Execute(ctx context.Context, accounts []authtypes.Account) (authtypes.RunLedger, error) {
	m.mu.Lock()
	m.executed = append(m.executed, accounts)
	block := m.block
	ledger, err := m.ledger, m.err
	m.mu.Unlock()

	m.started <- struct{}{}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return authtypes.NewRunLedger(), ctx.Err()
		}
	}
	return ledger, err
}

func (m *MockExecutor) Executions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.executed)
}
