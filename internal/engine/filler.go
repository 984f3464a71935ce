package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/copyleftdev/brokerlogin/internal/browser"
)

// FieldFiller writes values into fields found by cascade.
type FieldFiller struct {
	resolver *Resolver
	logger   *zap.Logger
}

func NewFieldFiller(resolver *Resolver, logger *zap.Logger) *FieldFiller {
	return &FieldFiller{resolver: resolver, logger: logger.Named("filler")}
}

// Fill resolves candidates and writes value. When nothing resolves and a
// fallback is given, the first fallback match is filled regardless of
// visibility. Only the username field passes a fallback; secrets must not
// land in an unlabeled input. A miss returns false with a nil error; a
// failed write on a resolved element is an error.
func (f *FieldFiller) Fill(ctx context.Context, s browser.Surface, candidates, fallback SelectorSpec, value string) (bool, error) {
	el, ok := f.resolver.Resolve(ctx, s, candidates)
	if !ok && len(fallback) > 0 {
		var els []browser.Element
		_, els = f.resolver.FirstPresent(ctx, s, fallback)
		if len(els) > 0 {
			el, ok = els[0], true
			f.logger.Debug("Using broad fallback field", zap.Stringer("locator", el.Locator))
		}
	}
	if !ok {
		return false, nil
	}
	if err := s.Fill(ctx, el, value); err != nil {
		return false, fmt.Errorf("fill %s: %w", el.Locator, err)
	}
	return true, nil
}
