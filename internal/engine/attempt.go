package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/brokerlogin/internal/auth"
	"github.com/copyleftdev/brokerlogin/internal/authtypes"
	"github.com/copyleftdev/brokerlogin/internal/browser"
	"github.com/copyleftdev/brokerlogin/internal/config"
)

// AttemptResult is the terminal state of one attempt plus what it skipped.
type AttemptResult struct {
	State   authtypes.AttemptState
	Skipped []Role
	Address string
}

// LoginAttempt fills the broker form, submits it, and polls for completion.
type LoginAttempt struct {
	roles   RoleTable
	filler  *FieldFiller
	timing  config.TimingConfig
	markers []string
	logger  *zap.Logger
}

func NewLoginAttempt(roles RoleTable, filler *FieldFiller, timing config.TimingConfig, markers []string, logger *zap.Logger) *LoginAttempt {
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			lowered = append(lowered, m)
		}
	}
	return &LoginAttempt{
		roles:   roles,
		filler:  filler,
		timing:  timing,
		markers: lowered,
		logger:  logger.Named("attempt"),
	}
}

type attemptRun struct {
	acc     authtypes.Account
	state   authtypes.AttemptState
	skipped []Role
	logger  *zap.Logger
}

func (r *attemptRun) advance(next authtypes.AttemptState) {
	r.logger.Debug("Attempt state changed",
		zap.String("from", string(r.state)),
		zap.String("to", string(next)))
	r.state = next
}

func (r *attemptRun) fail(step string, err error) error {
	return &authtypes.AttemptError{AccountID: r.acc.ID(), Step: step, Err: err}
}

// Run drives one attempt to Confirmed or TimedOut. Errors returned are
// AttemptErrors; resolution misses are reported in Skipped instead.
func (a *LoginAttempt) Run(ctx context.Context, s browser.Surface, acc authtypes.Account) (AttemptResult, error) {
	run := &attemptRun{
		acc:    acc,
		state:  authtypes.StateStart,
		logger: a.logger.With(zap.String("account", acc.ID()), zap.String("surface", s.ID())),
	}

	if err := pause(ctx, a.timing.SettleBeforeFill); err != nil {
		return run.result(""), run.fail("settle", err)
	}
	if err := a.fillFields(ctx, s, run); err != nil {
		return run.result(""), err
	}
	run.advance(authtypes.StateFieldsFilled)

	if err := a.submit(ctx, s, run); err != nil {
		return run.result(""), err
	}
	run.advance(authtypes.StateSubmitted)

	addr, confirmed, err := a.awaitCompletion(ctx, s, run)
	if err != nil {
		return run.result(addr), err
	}
	if confirmed {
		run.advance(authtypes.StateConfirmed)
	} else {
		run.advance(authtypes.StateTimedOut)
	}
	return run.result(addr), nil
}

func (r *attemptRun) result(addr string) AttemptResult {
	return AttemptResult{State: r.state, Skipped: r.skipped, Address: addr}
}

func (a *LoginAttempt) fillFields(ctx context.Context, s browser.Surface, run *attemptRun) error {
	type field struct {
		role     Role
		fallback SelectorSpec
		value    string
	}
	fields := []field{
		{role: RoleUsername, fallback: a.roles[RoleUsernameFallback], value: run.acc.ID()},
		{role: RolePassword, value: run.acc.Password},
	}
	if run.acc.HasOTP() {
		code, _, err := auth.OneTimeCode(run.acc)
		if err != nil {
			return run.fail("otp", err)
		}
		fields = append(fields, field{role: RoleOTP, value: code})
	}

	for i, f := range fields {
		if i > 0 {
			if err := pause(ctx, a.timing.FieldPause); err != nil {
				return run.fail(string(f.role), err)
			}
		}
		ok, err := a.filler.Fill(ctx, s, a.roles[f.role], f.fallback, f.value)
		if err != nil {
			return run.fail(string(f.role), err)
		}
		if !ok {
			run.logger.Warn("Field not found, continuing", zap.String("role", string(f.role)))
			run.skipped = append(run.skipped, f.role)
			continue
		}
		run.logger.Debug("Field filled", zap.String("role", string(f.role)))
	}
	return nil
}

// submit uses exactly one mechanism: the submit control if one resolves,
// otherwise Enter.
func (a *LoginAttempt) submit(ctx context.Context, s browser.Surface, run *attemptRun) error {
	if el, ok := a.filler.resolver.Resolve(ctx, s, a.roles[RoleSubmit]); ok {
		if err := s.Click(ctx, el); err != nil {
			return run.fail("submit", err)
		}
		run.logger.Debug("Submit clicked", zap.Stringer("locator", el.Locator))
		return nil
	}

	run.skipped = append(run.skipped, RoleSubmit)
	run.logger.Info("No submit control found, pressing Enter")
	if err := s.PressKey(ctx, browser.KeyEnter); err != nil {
		return run.fail("submit", err)
	}
	return nil
}

// awaitCompletion polls the surface address. A marker in the address or a
// surface closed by the remote side both confirm.
func (a *LoginAttempt) awaitCompletion(ctx context.Context, s browser.Surface, run *attemptRun) (string, bool, error) {
	var last string
	for i := 0; i < a.timing.PollAttempts; i++ {
		if s.IsClosed() {
			run.logger.Info("Surface closed after submit")
			return last, true, nil
		}
		addr, err := s.CurrentAddress(ctx)
		switch {
		case errors.Is(err, browser.ErrSurfaceClosed):
			run.logger.Info("Surface closed after submit")
			return last, true, nil
		case err != nil:
			if ctx.Err() != nil {
				return last, false, run.fail("poll", ctx.Err())
			}
			run.logger.Debug("Address read failed", zap.Int("tick", i), zap.Error(err))
		default:
			last = addr
			if a.hasMarker(addr) {
				run.logger.Info("Completion marker reached", zap.String("address", addr))
				return addr, true, nil
			}
		}
		if err := pause(ctx, a.timing.PollInterval); err != nil {
			return last, false, run.fail("poll", err)
		}
	}
	run.logger.Warn("No completion signal before poll budget ran out",
		zap.Duration("budget", time.Duration(a.timing.PollAttempts)*a.timing.PollInterval),
		zap.String("address", last))
	return last, false, nil
}

func (a *LoginAttempt) hasMarker(addr string) bool {
	addr = strings.ToLower(addr)
	for _, m := range a.markers {
		if strings.Contains(addr, m) {
			return true
		}
	}
	return false
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
