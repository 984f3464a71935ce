package browser

import (
	"context"
	"errors"
	"time"
)

// ErrSurfaceClosed is returned by operations on a closed surface.
var ErrSurfaceClosed = errors.New("surface is closed")

// Element is a handle to the Index-th match of Locator on a surface. It is
// re-evaluated on every use, so it goes stale when the DOM changes.
type Element struct {
	Locator Locator
	Index   int
}

// LoadMilestone names a page-load state a surface can wait for.
type LoadMilestone string

const (
	DOMContentLoaded LoadMilestone = "domcontentloaded"
	Load             LoadMilestone = "load"
)

// Key is a keyboard key accepted by PressKey.
type Key string

const KeyEnter Key = "Enter"

// Surface is one browsing tab. It is the capability the login engine
// drives; the engine never talks to the browser any other way.
type Surface interface {
	ID() string
	Navigate(ctx context.Context, url string) error
	// Query returns one Element per current match, in document order.
	Query(ctx context.Context, loc Locator) ([]Element, error)
	IsVisible(ctx context.Context, el Element) (bool, error)
	Fill(ctx context.Context, el Element, value string) error
	Click(ctx context.Context, el Element) error
	PressKey(ctx context.Context, key Key) error
	CurrentAddress(ctx context.Context) (string, error)
	WaitForLoad(ctx context.Context, milestone LoadMilestone, timeout time.Duration) error
	// ExpectNewSurface runs action and waits up to timeout for it to open a
	// new surface. It returns a nil Surface and nil error when none appears.
	ExpectNewSurface(ctx context.Context, timeout time.Duration, action func(context.Context) error) (Surface, error)
	HTML(ctx context.Context) (string, error)
	IsClosed() bool
	Close(ctx context.Context) error
}

// Launcher opens the host surface a run starts from.
type Launcher interface {
	OpenSurface(ctx context.Context) (Surface, error)
	Shutdown(ctx context.Context) error
}
