package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/copyleftdev/brokerlogin/internal/authtypes"
	"github.com/copyleftdev/brokerlogin/internal/browser"
	"github.com/copyleftdev/brokerlogin/internal/config"
	"github.com/copyleftdev/brokerlogin/internal/notify"
)

// DefaultMaxAccounts matches the broker's per-user session limit.
const DefaultMaxAccounts = config.DefaultMaxAccounts

// BatchRunner pairs accounts with the host's login triggers, one at a time.
type BatchRunner struct {
	resolver *Resolver
	session  *AccountSession
	notifier notify.Notifier
	roles    RoleTable
	cfg      config.BatchConfig
	timing   config.TimingConfig
	logger   *zap.Logger
}

func NewBatchRunner(resolver *Resolver, session *AccountSession, notifier notify.Notifier, roles RoleTable, cfg config.BatchConfig, timing config.TimingConfig, logger *zap.Logger) *BatchRunner {
	return &BatchRunner{
		resolver: resolver,
		session:  session,
		notifier: notifier,
		roles:    roles,
		cfg:      cfg,
		timing:   timing,
		logger:   logger.Named("batch"),
	}
}

func (b *BatchRunner) policy() authtypes.SuccessPolicy {
	return authtypes.SuccessPolicy{TimedOutIsSuccess: b.cfg.TimedOutIsSuccess}
}

func (b *BatchRunner) limit() int {
	return b.cfg.Limit()
}

// Run processes min(accounts, triggers, limit) accounts and notifies once.
// A cancelled context stops before the next account; the ledger so far is
// still reported.
func (b *BatchRunner) Run(ctx context.Context, accounts []authtypes.Account, host browser.Surface) authtypes.RunLedger {
	ledger := authtypes.NewRunLedger()

	trigger, count := b.discoverTriggers(ctx, host)
	n := min(len(accounts), count, b.limit())
	b.logger.Info("Starting batch",
		zap.Int("accounts", len(accounts)),
		zap.Int("triggers", count),
		zap.Int("processing", n))

	if n == 0 {
		reason := "no Login buttons found on host page"
		if len(accounts) == 0 {
			reason = "no accounts to process"
		}
		notify.BestEffort(context.WithoutCancel(ctx), b.notifier, b.logger,
			fmt.Sprintf("%s: %s.", b.cfg.Title, reason))
		return ledger
	}

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			b.logger.Warn("Batch interrupted", zap.Int("processed", i), zap.Error(ctx.Err()))
			break
		}
		if i > 0 {
			if err := pause(ctx, b.timing.AccountPacing); err != nil {
				b.logger.Warn("Batch interrupted", zap.Int("processed", i), zap.Error(err))
				break
			}
		}

		acc := accounts[i]
		b.logger.Info("Processing account", zap.Int("index", i+1), zap.Int("of", n), zap.String("account", acc.ID()))

		var outcome authtypes.LoginOutcome
		els, err := host.Query(ctx, trigger)
		switch {
		case err != nil:
			outcome = authtypes.FailedOutcome(acc.ID(), &authtypes.AttemptError{AccountID: acc.ID(), Step: "trigger", Err: err})
		case i >= len(els):
			outcome = authtypes.FailedOutcome(acc.ID(), &authtypes.AttemptError{
				AccountID: acc.ID(),
				Step:      "trigger",
				Err:       fmt.Errorf("login trigger %d no longer present", i+1),
			})
		default:
			outcome = b.session.Run(ctx, host, els[i], acc)
		}

		ledger.Record(outcome, b.policy())
		b.logger.Info("Account processed",
			zap.String("account", acc.ID()),
			zap.String("status", string(outcome.Status)),
			zap.Bool("succeeded", outcome.Succeeded(b.policy())))
	}

	// The summary goes out even when the run context was cancelled.
	notify.BestEffort(context.WithoutCancel(ctx), b.notifier, b.logger, ledger.Summary(b.cfg.Title))
	return ledger
}

// discoverTriggers finds the login triggers, trying link-styled variants
// only when the primary heuristic finds none.
func (b *BatchRunner) discoverTriggers(ctx context.Context, host browser.Surface) (browser.Locator, int) {
	for _, role := range []Role{RoleLoginTrigger, RoleLoginTriggerAlt} {
		loc, els := b.resolver.FirstPresent(ctx, host, b.roles[role])
		if len(els) > 0 {
			b.logger.Debug("Login triggers found", zap.String("role", string(role)), zap.Stringer("locator", loc), zap.Int("count", len(els)))
			return loc, len(els)
		}
	}
	return browser.Locator{}, 0
}
