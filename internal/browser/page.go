// File: internal/browser/page.go
package browser

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// ChromePage drives one tab over CDP. It implements schemas.Page; the probe
// engine and submission strategist never touch chromedp directly.
type ChromePage struct {
	tabCtx    context.Context
	tabCancel context.CancelFunc

	// Network-idle bookkeeping, fed by CDP events.
	inflight     atomic.Int64
	lastActivity atomic.Int64 // unix nanos
}

func newChromePage(tabCtx context.Context, tabCancel context.CancelFunc) *ChromePage {
	p := &ChromePage{tabCtx: tabCtx, tabCancel: tabCancel}
	p.touch()
	return p
}

// trackNetwork subscribes to request lifecycle events for idle detection.
// network.Enable must already have run on the tab.
func (p *ChromePage) trackNetwork() {
	chromedp.ListenTarget(p.tabCtx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			p.inflight.Add(1)
			p.touch()
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			// Guard against events for requests issued before tracking began.
			if p.inflight.Add(-1) < 0 {
				p.inflight.Store(0)
			}
			p.touch()
		}
	})
}

func (p *ChromePage) touch() {
	p.lastActivity.Store(time.Now().UnixNano())
}

// run executes chromedp actions on this tab, honoring the caller's deadline
// and cancellation without tearing the tab down.
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := p.tabCtx
	var cancelDeadline context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	runCtx, cancel := context.WithCancel(runCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Surface the caller's context error over chromedp's wrapped one.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads the URL and reports the main document's HTTP status.
func (p *ChromePage) Navigate(ctx context.Context, url string) (int, error) {
	var status int64
	err := p.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		resp, err := chromedp.RunResponse(c, chromedp.Navigate(url))
		if err != nil {
			return err
		}
		if resp != nil {
			status = resp.Status
		}
		return nil
	}))
	if err != nil {
		return 0, err
	}
	if status == 0 {
		// Same-document or cached navigations carry no response.
		status = 200
	}
	return int(status), nil
}

// Evaluate runs script in page context. A nil out discards the result.
func (p *ChromePage) Evaluate(ctx context.Context, script string, out any) error {
	return p.run(ctx, chromedp.Evaluate(script, out))
}

// Click dispatches a trusted click on the first match.
func (p *ChromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// SetValue clears the element and sets its value property directly.
func (p *ChromePage) SetValue(ctx context.Context, selector, value string) error {
	return p.run(ctx,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	)
}

// Value reads the element's current value back.
func (p *ChromePage) Value(ctx context.Context, selector string) (string, error) {
	var v string
	if err := p.run(ctx, chromedp.Value(selector, &v, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return v, nil
}

// Type focuses the element and sends one keystroke per rune.
func (p *ChromePage) Type(ctx context.Context, selector, text string, keyDelay time.Duration) error {
	if err := p.run(ctx, chromedp.Focus(selector, chromedp.ByQuery)); err != nil {
		return err
	}
	for _, r := range text {
		if err := p.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return err
		}
		if keyDelay > 0 {
			select {
			case <-time.After(keyDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Press sends a named key to the element. Only keys the submission chain
// needs are mapped; anything else is sent as-is.
func (p *ChromePage) Press(ctx context.Context, selector, key string) error {
	keys := key
	switch key {
	case "Enter":
		keys = kb.Enter
	case "Escape":
		keys = kb.Escape
	case "Tab":
		keys = kb.Tab
	}
	return p.run(ctx, chromedp.SendKeys(selector, keys, chromedp.ByQuery))
}

// IsVisible reports whether the first match occupies layout space.
func (p *ChromePage) IsVisible(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		const st = window.getComputedStyle(el);
		if (st.display === 'none' || st.visibility === 'hidden' || st.opacity === '0') return false;
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	})()`, strconv.Quote(selector))
	var visible bool
	if err := p.Evaluate(ctx, script, &visible); err != nil {
		return false, err
	}
	return visible, nil
}

// ScrollTo scrolls the viewport to the given fraction of page height.
func (p *ChromePage) ScrollTo(ctx context.Context, fraction float64) error {
	script := fmt.Sprintf(
		`window.scrollTo(0, Math.floor((document.body ? document.body.scrollHeight : 0) * %f)); true`,
		fraction,
	)
	var ok bool
	return p.Evaluate(ctx, script, &ok)
}

// WaitNetworkIdle blocks until no request activity for idle, bounded by max.
// A page that polls forever degrades to the max bound, never to a hang.
func (p *ChromePage) WaitNetworkIdle(ctx context.Context, idle, max time.Duration) error {
	deadline := time.Now().Add(max)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			quiet := time.Since(time.Unix(0, p.lastActivity.Load()))
			if p.inflight.Load() == 0 && quiet >= idle {
				return nil
			}
			if time.Now().After(deadline) {
				return nil
			}
		}
	}
}

// Content returns the page's visible text.
func (p *ChromePage) Content(ctx context.Context) (string, error) {
	var text string
	err := p.Evaluate(ctx, `document.body ? document.body.innerText : ''`, &text)
	return text, err
}

// URL returns the current location.
func (p *ChromePage) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Close tears the tab down.
func (p *ChromePage) Close() {
	p.tabCancel()
}
