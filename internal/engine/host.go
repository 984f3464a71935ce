package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/brokerlogin/internal/authtypes"
	"github.com/copyleftdev/brokerlogin/internal/browser"
	"github.com/copyleftdev/brokerlogin/internal/config"
)

var errNotFound = errors.New("element not found")

// HostFlow brings the host surface to the page listing broker login
// triggers.
type HostFlow struct {
	cfg    config.HostConfig
	roles  RoleTable
	filler *FieldFiller
	timing config.TimingConfig
	logger *zap.Logger
}

func NewHostFlow(cfg config.HostConfig, roles RoleTable, filler *FieldFiller, timing config.TimingConfig, logger *zap.Logger) *HostFlow {
	return &HostFlow{cfg: cfg, roles: roles, filler: filler, timing: timing, logger: logger.Named("host")}
}

// Prepare navigates, logs in to the host when possible, walks the menu and
// opens the broker page. Only an unreachable host or a missing broker page
// are fatal; both are returned as FatalError.
func (h *HostFlow) Prepare(ctx context.Context, s browser.Surface) error {
	h.logger.Info("Opening host", zap.String("url", h.cfg.URL))
	if err := s.Navigate(ctx, h.cfg.URL); err != nil {
		return &authtypes.FatalError{Stage: "open host", Err: err}
	}
	h.settle(ctx, s)

	if err := h.login(ctx, s); err != nil {
		if ctx.Err() != nil {
			return &authtypes.FatalError{Stage: "host login", Err: ctx.Err()}
		}
		h.logger.Warn("Could not complete host login, continuing", zap.Error(err))
	}

	for _, step := range h.cfg.Navigation {
		if err := h.clickWhenVisible(ctx, s, SelectorSpec{{Text: step}}, h.timing.HostStepTimeout); err != nil {
			if ctx.Err() != nil {
				return &authtypes.FatalError{Stage: "navigate " + step, Err: ctx.Err()}
			}
			h.logger.Warn("Could not open menu entry", zap.String("entry", step), zap.Error(err))
			continue
		}
		h.settle(ctx, s)
	}

	if h.cfg.BrokerMarker == "" {
		return nil
	}
	if err := h.clickWhenVisible(ctx, s, SelectorSpec{{Text: h.cfg.BrokerMarker}}, h.timing.BrokerMarkerTimeout); err != nil {
		return &authtypes.FatalError{Stage: "broker page", Err: fmt.Errorf("%s not shown: %w", h.cfg.BrokerMarker, err)}
	}
	h.settle(ctx, s)
	return nil
}

func (h *HostFlow) login(ctx context.Context, s browser.Surface) error {
	if h.cfg.Phone == "" && h.cfg.Password == "" {
		h.logger.Debug("No host credentials configured, skipping host login")
		return nil
	}

	el, ok := h.filler.resolver.Resolve(ctx, s, h.roles[RoleHostLogin])
	if !ok {
		return fmt.Errorf("login control: %w", errNotFound)
	}
	if err := s.Click(ctx, el); err != nil {
		return fmt.Errorf("click login control: %w", err)
	}
	h.settle(ctx, s)

	if ok, err := h.filler.Fill(ctx, s, h.roles[RoleHostPhone], nil, h.cfg.Phone); err != nil {
		return err
	} else if !ok {
		h.logger.Warn("Host phone field not found")
	}
	if err := pause(ctx, h.timing.FieldPause); err != nil {
		return err
	}
	if ok, err := h.filler.Fill(ctx, s, h.roles[RoleHostPassword], nil, h.cfg.Password); err != nil {
		return err
	} else if !ok {
		h.logger.Warn("Host password field not found")
	}

	submit, ok := h.filler.resolver.Resolve(ctx, s, h.roles[RoleHostSubmit])
	if !ok {
		return fmt.Errorf("host submit: %w", errNotFound)
	}
	if err := s.Click(ctx, submit); err != nil {
		return fmt.Errorf("click host submit: %w", err)
	}
	h.settle(ctx, s)
	h.logger.Info("Host login submitted")
	return nil
}

// clickWhenVisible polls until candidates resolve, then clicks.
func (h *HostFlow) clickWhenVisible(ctx context.Context, s browser.Surface, candidates SelectorSpec, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if el, ok := h.filler.resolver.Resolve(ctx, s, candidates); ok {
			return s.Click(ctx, el)
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%s: %w", candidates[0], errNotFound)
		}
		if err := pause(ctx, h.timing.PollInterval); err != nil {
			return err
		}
	}
}

func (h *HostFlow) settle(ctx context.Context, s browser.Surface) {
	if err := s.WaitForLoad(ctx, browser.Load, h.timing.LoadTimeout); err != nil {
		h.logger.Debug("Host page not fully loaded", zap.Error(err))
	}
	_ = pause(ctx, h.timing.HostSettle)
}
