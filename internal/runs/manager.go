package runs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/copyleftdev/brokerlogin/internal/authtypes"
)

// Executor performs one full batch run.
type Executor interface {
	Execute(ctx context.Context, accounts []authtypes.Account) (authtypes.RunLedger, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, accounts []authtypes.Account) (authtypes.RunLedger, error)

func (f ExecutorFunc) Execute(ctx context.Context, accounts []authtypes.Account) (authtypes.RunLedger, error) {
	return f(ctx, accounts)
}

// Manager starts runs in the background and keeps their status in memory.
// At most one run is active at a time; the host surface cannot be shared.
type Manager struct {
	executor Executor
	accounts []authtypes.Account
	timeout  time.Duration
	logger   *zap.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu   sync.RWMutex
	runs map[uuid.UUID]*authtypes.Run
}

// NewManager creates a manager that runs accounts through executor. A
// positive timeout bounds each run.
func NewManager(executor Executor, accounts []authtypes.Account, timeout time.Duration, logger *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		executor:   executor,
		accounts:   accounts,
		timeout:    timeout,
		logger:     logger.Named("runs"),
		sem:        semaphore.NewWeighted(1),
		baseCtx:    ctx,
		baseCancel: cancel,
		runs:       make(map[uuid.UUID]*authtypes.Run),
	}
}

// Submit starts a run unless one is already active, in which case it
// returns ErrRunBusy.
func (m *Manager) Submit() (*authtypes.Run, error) {
	if m.baseCtx.Err() != nil {
		return nil, fmt.Errorf("run manager is shut down: %w", m.baseCtx.Err())
	}

	// The slot is taken and released under mu, so a free slot is never
	// observed next to a run still shown as active.
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sem.TryAcquire(1) {
		return nil, authtypes.ErrRunBusy
	}

	now := time.Now().UTC()
	run := &authtypes.Run{
		ID:        uuid.New(),
		Status:    authtypes.RunPending,
		Accounts:  len(m.accounts),
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.runs[run.ID] = run
	snapshot := copyRun(run)

	m.wg.Add(1)
	go m.execute(run)

	m.logger.Info("Run submitted", zap.String("runID", run.ID.String()))
	return snapshot, nil
}

// Get returns a copy of the run.
func (m *Manager) Get(id uuid.UUID) (*authtypes.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", authtypes.ErrRunNotFound, id)
	}
	return copyRun(run), nil
}

func (m *Manager) execute(run *authtypes.Run) {
	defer m.wg.Done()

	ctx := m.baseCtx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	logger := m.logger.With(zap.String("runID", run.ID.String()))
	m.update(run, func(r *authtypes.Run) { r.UpdateStatus(authtypes.RunRunning) })
	logger.Info("Run started", zap.Int("accounts", len(m.accounts)))

	ledger, err := m.executor.Execute(ctx, m.accounts)

	m.update(run, func(r *authtypes.Run) {
		defer m.sem.Release(1)
		r.Ledger = &ledger
		switch {
		case err == nil && m.baseCtx.Err() != nil:
			r.UpdateStatus(authtypes.RunCancelled)
		case err == nil:
			r.UpdateStatus(authtypes.RunCompleted)
		case errors.Is(err, context.Canceled) && m.baseCtx.Err() != nil:
			r.Error = err.Error()
			r.UpdateStatus(authtypes.RunCancelled)
		default:
			r.Error = err.Error()
			r.UpdateStatus(authtypes.RunFailed)
		}
	})

	if err != nil {
		logger.Error("Run failed", zap.Error(err))
		return
	}
	logger.Info("Run finished",
		zap.Int("succeeded", len(ledger.Succeeded)),
		zap.Int("failed", len(ledger.Failed)))
}

func (m *Manager) update(run *authtypes.Run, fn func(*authtypes.Run)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(run)
}

// Shutdown cancels active runs and waits for them to return.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.baseCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Run manager shut down")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for active run: %w", ctx.Err())
	}
}

func copyRun(r *authtypes.Run) *authtypes.Run {
	c := *r
	if r.Ledger != nil {
		l := *r.Ledger
		l.Succeeded = slices.Clone(r.Ledger.Succeeded)
		l.Failed = slices.Clone(r.Ledger.Failed)
		l.Outcomes = slices.Clone(r.Ledger.Outcomes)
		c.Ledger = &l
	}
	return &c
}
