package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/brokerlogin/internal/auth"
	"github.com/copyleftdev/brokerlogin/internal/authtypes"
	"github.com/copyleftdev/brokerlogin/internal/browser"
	"github.com/copyleftdev/brokerlogin/internal/config"
	"github.com/copyleftdev/brokerlogin/internal/notify"
)

// Runner executes one complete run: open the host, prepare it, run the
// batch.
type Runner struct {
	launcher        browser.Launcher
	host            *HostFlow
	batch           *BatchRunner
	notifier        notify.Notifier
	title           string
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

// NewRunner wires the engine from configuration.
func NewRunner(cfg *config.Config, launcher browser.Launcher, notifier notify.Notifier, logger *zap.Logger) (*Runner, error) {
	roles, err := DefaultRoles().WithOverrides(cfg.Selectors)
	if err != nil {
		return nil, err
	}

	resolver := NewResolver(logger)
	filler := NewFieldFiller(resolver, logger)
	attempt := NewLoginAttempt(roles, filler, cfg.Timing, cfg.Batch.CompletionMarkers, logger)
	session := NewAccountSession(attempt, cfg.Timing, logger)

	shutdown := cfg.Browser.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 10 * time.Second
	}

	return &Runner{
		launcher:        launcher,
		host:            NewHostFlow(cfg.Host, roles, filler, cfg.Timing, logger),
		batch:           NewBatchRunner(resolver, session, notifier, roles, cfg.Batch, cfg.Timing, logger),
		notifier:        notifier,
		title:           cfg.Batch.Title,
		shutdownTimeout: shutdown,
		logger:          logger.Named("runner"),
	}, nil
}

// Execute validates accounts before touching the browser, then runs the
// batch. ConfigError and FatalError are the only errors returned; account
// failures are in the ledger.
func (r *Runner) Execute(ctx context.Context, accounts []authtypes.Account) (authtypes.RunLedger, error) {
	limit := r.batch.limit()
	if err := authtypes.ValidateAccounts(accounts, limit); err != nil {
		return authtypes.NewRunLedger(), err
	}
	if err := auth.CheckSecrets(authtypes.Processable(accounts, limit)); err != nil {
		return authtypes.NewRunLedger(), err
	}

	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.shutdownTimeout)
		defer cancel()
		if err := r.launcher.Shutdown(sctx); err != nil {
			r.logger.Warn("Browser shutdown failed", zap.Error(err))
		}
	}()

	host, err := r.launcher.OpenSurface(ctx)
	if err != nil {
		return r.fatal(ctx, &authtypes.FatalError{Stage: "launch browser", Err: err})
	}

	if err := r.host.Prepare(ctx, host); err != nil {
		var fe *authtypes.FatalError
		if errors.As(err, &fe) {
			return r.fatal(ctx, fe)
		}
		return r.fatal(ctx, &authtypes.FatalError{Stage: "prepare host", Err: err})
	}

	ledger := r.batch.Run(ctx, accounts, host)
	r.logger.Info("Run finished",
		zap.Int("succeeded", len(ledger.Succeeded)),
		zap.Int("failed", len(ledger.Failed)))
	return ledger, nil
}

func (r *Runner) fatal(ctx context.Context, err *authtypes.FatalError) (authtypes.RunLedger, error) {
	r.logger.Error("Run aborted", zap.String("stage", err.Stage), zap.Error(err.Err))
	notify.BestEffort(context.WithoutCancel(ctx), r.notifier, r.logger, fmt.Sprintf("%s: fatal error. Check logs.", r.title))
	return authtypes.NewRunLedger(), err
}
