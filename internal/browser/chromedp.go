package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/copyleftdev/brokerlogin/internal/config"
	"github.com/copyleftdev/brokerlogin/internal/dom"
	"github.com/copyleftdev/brokerlogin/internal/observability"
)

// Compile-time checks.
var (
	_ Launcher = (*Manager)(nil)
	_ Surface  = (*Tab)(nil)
)

const readyStatePoll = 100 * time.Millisecond

// Manager owns the Chrome process. Tabs are opened from its allocator.
type Manager struct {
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	cfg             *config.BrowserConfig
	logger          *zap.Logger

	mu   sync.Mutex
	tabs []*Tab
}

func NewManager(cfg *config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
		chromedp.IgnoreCertErrors,
	)

	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecutablePath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	allocatorCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Manager{
		allocatorCtx:    allocatorCtx,
		allocatorCancel: cancel,
		cfg:             cfg,
		logger:          logger.Named("browser"),
	}, nil
}

// OpenSurface starts the browser if needed and returns its first tab.
func (m *Manager) OpenSurface(ctx context.Context) (Surface, error) {
	tabCtx, cancel := chromedp.NewContext(
		m.allocatorCtx,
		chromedp.WithLogf(observability.Printf(m.logger)),
		chromedp.WithErrorf(observability.Printf(m.logger)),
	)

	// The first Run allocates the browser, and a deadline on its context
	// would stop Chrome when it expires.
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return m.track(tabCtx, cancel)
}

func (m *Manager) track(tabCtx context.Context, cancel context.CancelFunc) (*Tab, error) {
	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		cancel()
		return nil, fmt.Errorf("browser context has no target")
	}

	tab := &Tab{
		ctx:     tabCtx,
		cancel:  cancel,
		id:      c.Target.TargetID,
		timeout: m.cfg.ActionTimeout,
		owner:   m,
		logger:  m.logger.With(zap.String("surface", c.Target.TargetID.String())),
	}

	chromedp.ListenBrowser(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*target.EventTargetDestroyed); ok && e.TargetID == tab.id {
			tab.closed.Store(true)
		}
	})

	m.mu.Lock()
	m.tabs = append(m.tabs, tab)
	m.mu.Unlock()
	return tab, nil
}

// Shutdown closes every tab and stops Chrome.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser")

	m.mu.Lock()
	tabs := m.tabs
	m.tabs = nil
	m.mu.Unlock()

	for _, tab := range tabs {
		tab.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.allocatorCancel()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tab is a Surface backed by one Chrome target.
type Tab struct {
	ctx     context.Context
	cancel  context.CancelFunc
	id      target.ID
	timeout time.Duration
	owner   *Manager
	logger  *zap.Logger
	closed  atomic.Bool
}

// run executes actions on the tab, bounded by the action timeout and by ctx.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	if t.closed.Load() {
		return ErrSurfaceClosed
	}
	runCtx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (t *Tab) ID() string { return t.id.String() }

func (t *Tab) Navigate(ctx context.Context, url string) error {
	if err := t.run(ctx, dom.NavigateAction(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (t *Tab) Query(ctx context.Context, loc Locator) ([]Element, error) {
	var count int
	if err := t.run(ctx, dom.CountAction(loc.CSS, loc.Text, &count)); err != nil {
		return nil, fmt.Errorf("query %s: %w", loc, err)
	}
	els := make([]Element, count)
	for i := range els {
		els[i] = Element{Locator: loc, Index: i}
	}
	return els, nil
}

func (t *Tab) IsVisible(ctx context.Context, el Element) (bool, error) {
	var visible bool
	if err := t.run(ctx, dom.VisibleAction(elementExpr(el), &visible)); err != nil {
		return false, err
	}
	return visible, nil
}

func (t *Tab) Fill(ctx context.Context, el Element, value string) error {
	return t.run(ctx, dom.FillAction(elementExpr(el), value))
}

func (t *Tab) Click(ctx context.Context, el Element) error {
	return t.run(ctx, dom.ClickAction(elementExpr(el)))
}

func (t *Tab) PressKey(ctx context.Context, key Key) error {
	switch key {
	case KeyEnter:
		return t.run(ctx, chromedp.KeyEvent(kb.Enter))
	default:
		return t.run(ctx, chromedp.KeyEvent(string(key)))
	}
}

func (t *Tab) CurrentAddress(ctx context.Context) (string, error) {
	var url string
	if err := t.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// WaitForLoad polls document.readyState until the milestone is reached.
func (t *Tab) WaitForLoad(ctx context.Context, milestone LoadMilestone, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyStatePoll)
	defer ticker.Stop()

	for {
		var state string
		if err := t.run(waitCtx, dom.ReadyStateAction(&state)); err == nil && reached(milestone, state) {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("waiting for %s: %w", milestone, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func reached(milestone LoadMilestone, readyState string) bool {
	switch milestone {
	case Load:
		return readyState == "complete"
	default:
		return readyState == "interactive" || readyState == "complete"
	}
}

func (t *Tab) ExpectNewSurface(ctx context.Context, timeout time.Duration, action func(context.Context) error) (Surface, error) {
	if t.closed.Load() {
		return nil, ErrSurfaceClosed
	}

	waitCtx, cancelWait := context.WithCancel(t.ctx)
	defer cancelWait()
	opened := chromedp.WaitNewTarget(waitCtx, func(info *target.Info) bool {
		return info.Type == "page" && info.OpenerID == t.id
	})

	if err := action(ctx); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case id := <-opened:
		tabCtx, cancel := chromedp.NewContext(t.ctx, chromedp.WithTargetID(id))
		if err := chromedp.Run(tabCtx); err != nil {
			cancel()
			return nil, fmt.Errorf("attach to new surface %s: %w", id, err)
		}
		tab, err := t.owner.track(tabCtx, cancel)
		if err != nil {
			return nil, err
		}
		t.logger.Debug("New surface opened", zap.String("new_surface", tab.ID()))
		return tab, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Tab) HTML(ctx context.Context) (string, error) {
	var html string
	if err := t.run(ctx, dom.GetFullHTMLAction(&html)); err != nil {
		return "", err
	}
	return html, nil
}

func (t *Tab) IsClosed() bool {
	if t.closed.Load() {
		return true
	}
	return t.ctx.Err() != nil
}

// Close closes the tab. Closing an already closed tab is a no-op.
func (t *Tab) Close(ctx context.Context) error {
	if t.IsClosed() {
		t.cancel()
		return nil
	}
	err := t.run(ctx, page.Close())
	t.closed.Store(true)
	t.cancel()
	if err != nil {
		return fmt.Errorf("close surface %s: %w", t.ID(), err)
	}
	return nil
}

func elementExpr(el Element) string {
	return dom.ElementExpr(el.Locator.CSS, el.Locator.Text, el.Index)
}
