package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/copyleftdev/brokerlogin/internal/authtypes"
	"github.com/copyleftdev/brokerlogin/internal/browser"
	"github.com/copyleftdev/brokerlogin/internal/config"
	"github.com/copyleftdev/brokerlogin/internal/dom"
)

const (
	snapshotLimit = 4000
	closeTimeout  = 5 * time.Second
)

// AccountSession activates one trigger, picks the surface it opened (or the
// host), runs a LoginAttempt on it and closes what it opened.
type AccountSession struct {
	attempt *LoginAttempt
	timing  config.TimingConfig
	logger  *zap.Logger
}

func NewAccountSession(attempt *LoginAttempt, timing config.TimingConfig, logger *zap.Logger) *AccountSession {
	return &AccountSession{attempt: attempt, timing: timing, logger: logger.Named("session")}
}

// Run always returns an outcome. Attempt errors and panics become a failed
// outcome for this account only.
func (s *AccountSession) Run(ctx context.Context, host browser.Surface, trigger browser.Element, acc authtypes.Account) (out authtypes.LoginOutcome) {
	start := time.Now()
	logger := s.logger.With(zap.String("account", acc.ID()))

	var surface browser.Surface
	owned := false

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Session panicked", zap.Any("panic", r), zap.Stack("stack"))
			out = authtypes.FailedOutcome(acc.ID(), &authtypes.AttemptError{
				AccountID: acc.ID(),
				Step:      "session",
				Err:       fmt.Errorf("panic: %v", r),
			})
		}
		if owned {
			s.release(surface, logger)
		}
		out.Duration = time.Since(start)
	}()

	surface, owned = s.activate(ctx, host, trigger, logger)

	if err := surface.WaitForLoad(ctx, browser.DOMContentLoaded, s.timing.LoadTimeout); err != nil {
		logger.Debug("Surface not loaded in time, attempting anyway", zap.Error(err))
	}
	if err := pause(ctx, s.timing.SurfaceSettle); err != nil {
		return authtypes.FailedOutcome(acc.ID(), &authtypes.AttemptError{AccountID: acc.ID(), Step: "settle", Err: err})
	}
	logger.Info("Attempting login",
		zap.String("surface", surface.ID()),
		zap.Bool("newSurface", owned))

	res, err := s.attempt.Run(ctx, surface, acc)
	if err != nil {
		logger.Error("Login attempt failed", zap.Error(err))
		s.snapshot(surface, logger)
		out = authtypes.FailedOutcome(acc.ID(), err)
		out.Skipped = roleNames(res.Skipped)
		return out
	}

	out = authtypes.LoginOutcome{
		AccountID: acc.ID(),
		Status:    authtypes.OutcomeTimedOut,
		Skipped:   roleNames(res.Skipped),
		Address:   res.Address,
	}
	if res.State == authtypes.StateConfirmed {
		out.Status = authtypes.OutcomeConfirmed
	}
	logger.Info("Login attempt finished", zap.String("status", string(out.Status)))
	return out
}

// activate clicks the trigger while watching for a new surface. If the
// click itself errors it is retried once without watching, and the host
// surface is used.
func (s *AccountSession) activate(ctx context.Context, host browser.Surface, trigger browser.Element, logger *zap.Logger) (browser.Surface, bool) {
	opened, err := host.ExpectNewSurface(ctx, s.timing.NewSurfaceGrace, func(ctx context.Context) error {
		return host.Click(ctx, trigger)
	})
	if err != nil {
		logger.Warn("Trigger activation failed, retrying on host surface", zap.Error(err))
		if err := host.Click(ctx, trigger); err != nil {
			logger.Warn("Trigger retry failed", zap.Error(err))
		}
		return host, false
	}
	if opened == nil {
		logger.Debug("No new surface appeared, using host surface")
		return host, false
	}
	return opened, true
}

func (s *AccountSession) release(surface browser.Surface, logger *zap.Logger) {
	if surface == nil || surface.IsClosed() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := surface.Close(ctx); err != nil {
		logger.Warn("Failed to close surface", zap.String("surface", surface.ID()), zap.Error(err))
	}
}

func (s *AccountSession) snapshot(surface browser.Surface, logger *zap.Logger) {
	if !logger.Core().Enabled(zapcore.DebugLevel) || surface.IsClosed() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	html, err := surface.HTML(ctx)
	if err != nil {
		logger.Debug("Could not capture page for diagnostics", zap.Error(err))
		return
	}
	simplified, err := dom.SimplifyDOM(html, snapshotLimit)
	if err != nil {
		logger.Debug("Could not simplify page for diagnostics", zap.Error(err))
		return
	}
	logger.Debug("Page at failure", zap.String("dom", simplified))
}

func roleNames(roles []Role) []string {
	if len(roles) == 0 {
		return nil
	}
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
