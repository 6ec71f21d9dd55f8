// File: internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Session is a handle to one remote browser instance. It is owned exclusively
// by the Pool; processors borrow it for the duration of a single target.
type Session struct {
	ID        string
	Endpoint  string
	CreatedAt time.Time

	// useCount is mutated only under the pool's mutex.
	useCount int

	allocCtx    context.Context
	allocCancel context.CancelFunc

	// closeRemote tears down the upstream instance (provider close call).
	closeRemote func(ctx context.Context) error
}

// UseCount reports how many times this session has been handed out.
func (s *Session) UseCount() int { return s.useCount }

// Age reports time since provisioning.
func (s *Session) Age() time.Duration { return time.Since(s.CreatedAt) }

// NewPage opens a fresh tab in this session and returns the driver surface
// for it. The caller must Close the page when done with the target.
func (s *Session) NewPage(ctx context.Context) (*ChromePage, error) {
	if s.allocCtx == nil || s.allocCtx.Err() != nil {
		return nil, fmt.Errorf("session %s is no longer connected", s.ID)
	}
	tabCtx, tabCancel := chromedp.NewContext(s.allocCtx)

	page := newChromePage(tabCtx, tabCancel)

	// Materialize the tab and enable network events for idle tracking. The
	// init derives from tabCtx to target the new tab; the caller's ctx still
	// bounds it through the stop hook.
	initCtx, cancel := context.WithTimeout(tabCtx, 20*time.Second)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(initCtx, network.Enable()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab in session %s: %w", s.ID, err)
	}
	page.trackNetwork()
	return page, nil
}

// close tears down the local allocator and the remote instance.
func (s *Session) close(ctx context.Context) error {
	if s.allocCancel != nil {
		s.allocCancel()
	}
	if s.closeRemote != nil {
		return s.closeRemote(ctx)
	}
	return nil
}

// Provider provisions and tears down browser instances. The pool treats it
// purely as a factory + teardown pair; connection details are opaque.
type Provider interface {
	Create(ctx context.Context) (*Session, error)
	Close(ctx context.Context, s *Session) error
}
