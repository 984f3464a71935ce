package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/copyleftdev/brokerlogin/internal/browser"
)

// Compile-time checks.
var (
	_ browser.Surface  = (*MockSurface)(nil)
	_ browser.Launcher = (*MockLauncher)(nil)
)

// MockElement is one scripted match on a MockSurface.
type MockElement struct {
	Visible  bool
	Value    string
	FillErr  error
	ClickErr error
	// OnClick runs after a successful click, with the surface unlocked.
	OnClick func()
}

// FillCall records one Fill.
type FillCall struct {
	Locator browser.Locator
	Index   int
	Value   string
}

// MockSurface implements browser.Surface with scripted elements.
type MockSurface struct {
	mu sync.Mutex

	id        string
	elements  map[browser.Locator][]*MockElement
	queryErrs map[browser.Locator]error
	opens     map[browser.Element]*MockSurface
	pending   *MockSurface

	addresses      []string
	closeAfterPoll int
	addressReads   int
	closed         bool

	navigateErr error
	loadErr     error
	keyErr      error
	closeErr    error
	html        string

	queries     []browser.Locator
	fills       []FillCall
	clicks      []browser.Element
	attempts    []browser.Element
	keys        []browser.Key
	navigations []string
	closeCalls  int
}

// NewMockSurface creates an empty surface whose address is "about:blank".
func NewMockSurface(id string) *MockSurface {
	return &MockSurface{
		id:        id,
		elements:  make(map[browser.Locator][]*MockElement),
		queryErrs: make(map[browser.Locator]error),
		opens:     make(map[browser.Element]*MockSurface),
		addresses: []string{"about:blank"},
		html:      "<html><body></body></html>",
	}
}

// AddElement appends a match for loc and returns it for further scripting.
func (m *MockSurface) AddElement(loc browser.Locator, visible bool) *MockElement {
	m.mu.Lock()
	defer m.mu.Unlock()
	el := &MockElement{Visible: visible}
	m.elements[loc] = append(m.elements[loc], el)
	return el
}

// RemoveElements drops every match for loc.
func (m *MockSurface) RemoveElements(loc browser.Locator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.elements, loc)
}

// SetQueryError makes queries for loc fail.
func (m *MockSurface) SetQueryError(loc browser.Locator, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryErrs[loc] = err
}

// OpenOnClick makes clicking the index-th match of loc open next.
func (m *MockSurface) OpenOnClick(loc browser.Locator, index int, next *MockSurface) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens[browser.Element{Locator: loc, Index: index}] = next
}

// SetAddresses scripts CurrentAddress: one value per read, the last one
// repeating.
func (m *MockSurface) SetAddresses(addresses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses = addresses
	m.addressReads = 0
}

// CloseAfterAddressReads marks the surface closed by the remote side once
// CurrentAddress has been read n times.
func (m *MockSurface) CloseAfterAddressReads(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeAfterPoll = n
}

func (m *MockSurface) SetNavigateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.navigateErr = err
}

func (m *MockSurface) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

func (m *MockSurface) SetKeyError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyErr = err
}

func (m *MockSurface) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

func (m *MockSurface) SetHTML(html string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.html = html
}

func (m *MockSurface) ID() string { return m.id }

func (m *MockSurface) Navigate(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.navigations = append(m.navigations, url)
	if m.navigateErr != nil {
		return m.navigateErr
	}
	m.addresses = []string{url}
	m.addressReads = 0
	return nil
}

func (m *MockSurface) Query(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, loc)
	if m.closed {
		return nil, browser.ErrSurfaceClosed
	}
	if err := m.queryErrs[loc]; err != nil {
		return nil, err
	}
	els := make([]browser.Element, len(m.elements[loc]))
	for i := range els {
		els[i] = browser.Element{Locator: loc, Index: i}
	}
	return els, nil
}

func (m *MockSurface) lookup(el browser.Element) (*MockElement, error) {
	if m.closed {
		return nil, browser.ErrSurfaceClosed
	}
	matches := m.elements[el.Locator]
	if el.Index < 0 || el.Index >= len(matches) {
		return nil, fmt.Errorf("element %s[%d] is stale", el.Locator, el.Index)
	}
	return matches[el.Index], nil
}

func (m *MockSurface) IsVisible(ctx context.Context, el browser.Element) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	me, err := m.lookup(el)
	if err != nil {
		return false, err
	}
	return me.Visible, nil
}

func (m *MockSurface) Fill(ctx context.Context, el browser.Element, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	me, err := m.lookup(el)
	if err != nil {
		return err
	}
	if me.FillErr != nil {
		return me.FillErr
	}
	me.Value = value
	m.fills = append(m.fills, FillCall{Locator: el.Locator, Index: el.Index, Value: value})
	return nil
}

func (m *MockSurface) Click(ctx context.Context, el browser.Element) error {
	m.mu.Lock()
	m.attempts = append(m.attempts, el)
	me, err := m.lookup(el)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if me.ClickErr != nil {
		m.mu.Unlock()
		return me.ClickErr
	}
	m.clicks = append(m.clicks, el)
	if next, ok := m.opens[el]; ok {
		m.pending = next
	}
	onClick := me.OnClick
	m.mu.Unlock()

	if onClick != nil {
		onClick()
	}
	return nil
}

func (m *MockSurface) PressKey(ctx context.Context, key browser.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keyErr != nil {
		return m.keyErr
	}
	m.keys = append(m.keys, key)
	return nil
}

func (m *MockSurface) CurrentAddress(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", browser.ErrSurfaceClosed
	}
	i := m.addressReads
	if i >= len(m.addresses) {
		i = len(m.addresses) - 1
	}
	m.addressReads++
	if m.closeAfterPoll > 0 && m.addressReads >= m.closeAfterPoll {
		m.closed = true
	}
	if i < 0 {
		return "", errors.New("no address")
	}
	return m.addresses[i], nil
}

func (m *MockSurface) WaitForLoad(ctx context.Context, milestone browser.LoadMilestone, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadErr
}

func (m *MockSurface) ExpectNewSurface(ctx context.Context, timeout time.Duration, action func(context.Context) error) (browser.Surface, error) {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()

	if err := action(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.pending
	m.pending = nil
	if next == nil {
		return nil, nil
	}
	return next, nil
}

func (m *MockSurface) HTML(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.html, nil
}

func (m *MockSurface) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockSurface) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	if m.closeErr != nil {
		return m.closeErr
	}
	m.closed = true
	return nil
}

// Queries returns every locator queried, in order.
func (m *MockSurface) Queries() []browser.Locator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]browser.Locator(nil), m.queries...)
}

// Queried reports whether loc was ever queried.
func (m *MockSurface) Queried(loc browser.Locator) bool {
	for _, q := range m.Queries() {
		if q == loc {
			return true
		}
	}
	return false
}

func (m *MockSurface) Fills() []FillCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FillCall(nil), m.fills...)
}

func (m *MockSurface) Clicks() []browser.Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]browser.Element(nil), m.clicks...)
}

// ClickAttempts returns every Click call, failed ones included.
func (m *MockSurface) ClickAttempts() []browser.Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]browser.Element(nil), m.attempts...)
}

func (m *MockSurface) Keys() []browser.Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]browser.Key(nil), m.keys...)
}

func (m *MockSurface) Navigations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.navigations...)
}

func (m *MockSurface) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// MockLauncher hands out a fixed host surface.
type MockLauncher struct {
	mu             sync.Mutex
	Host           *MockSurface
	OpenErr        error
	opened         int
	shutdownCalled bool
}

func NewMockLauncher(host *MockSurface) *MockLauncher {
	return &MockLauncher{Host: host}
}

func (l *MockLauncher) OpenSurface(ctx context.Context) (browser.Surface, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.OpenErr != nil {
		return nil, l.OpenErr
	}
	l.opened++
	return l.Host, nil
}

func (l *MockLauncher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shutdownCalled = true
	return nil
}

func (l *MockLauncher) Opened() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opened
}

func (l *MockLauncher) WasShutdownCalled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shutdownCalled
}
