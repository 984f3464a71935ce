package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/copyleftdev/brokerlogin/internal/browser"
)

// Resolver runs selector cascades against a surface.
type Resolver struct {
	logger *zap.Logger
}

func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger.Named("cascade")}
}

// Resolve returns the first match of the first candidate whose first match
// is visible. Later candidates are not evaluated once one resolves. Query
// and visibility errors skip the candidate. A miss is reported through ok,
// never as an error.
func (r *Resolver) Resolve(ctx context.Context, s browser.Surface, candidates SelectorSpec) (browser.Element, bool) {
	for _, loc := range candidates {
		if ctx.Err() != nil {
			return browser.Element{}, false
		}
		els, err := s.Query(ctx, loc)
		if err != nil {
			r.logger.Debug("Candidate query failed", zap.Stringer("locator", loc), zap.Error(err))
			continue
		}
		if len(els) == 0 {
			continue
		}
		visible, err := s.IsVisible(ctx, els[0])
		if err != nil {
			r.logger.Debug("Visibility check failed", zap.Stringer("locator", loc), zap.Error(err))
			continue
		}
		if visible {
			return els[0], true
		}
	}
	return browser.Element{}, false
}

// FirstPresent returns the candidate with at least one match, together with
// every match for it. Visibility is not considered.
func (r *Resolver) FirstPresent(ctx context.Context, s browser.Surface, candidates SelectorSpec) (browser.Locator, []browser.Element) {
	for _, loc := range candidates {
		els, err := s.Query(ctx, loc)
		if err != nil {
			r.logger.Debug("Candidate query failed", zap.Stringer("locator", loc), zap.Error(err))
			continue
		}
		if len(els) > 0 {
			return loc, els
		}
	}
	return browser.Locator{}, nil
}
