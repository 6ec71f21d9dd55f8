// File: internal/schemas/interfaces.go
// Shared capability surfaces. The probe engine and submission strategist are
// written purely against Page; the chromedp implementation lives in
// internal/browser and fakes live in the consumers' tests.
package schemas

import (
	"context"
	"time"
)

// Page is the minimal driver surface needed to probe and submit a loaded page.
// Selectors are CSS. Every call respects ctx cancellation and deadlines.
type Page interface {
	// Navigate loads the URL and returns the main document's HTTP status.
	Navigate(ctx context.Context, url string) (int, error)
	// Evaluate runs script in page context and unmarshals the result into out.
	// Pass a nil out to discard the result.
	Evaluate(ctx context.Context, script string, out any) error
	// Click dispatches a trusted click on the first match.
	Click(ctx context.Context, selector string) error
	// SetValue clears the element and sets its value directly.
	SetValue(ctx context.Context, selector, value string) error
	// Value reads the element's current value back.
	Value(ctx context.Context, selector string) (string, error)
	// Type focuses the element and sends one keystroke per rune with the
	// given inter-key delay.
	Type(ctx context.Context, selector, text string, keyDelay time.Duration) error
	// Press sends a named key (e.g. "Enter") to the element.
	Press(ctx context.Context, selector, key string) error
	// IsVisible reports whether the first match occupies layout space.
	IsVisible(ctx context.Context, selector string) (bool, error)
	// ScrollTo scrolls the viewport to the given fraction of page height.
	ScrollTo(ctx context.Context, fraction float64) error
	// WaitNetworkIdle blocks until no network activity for idle, bounded by max.
	WaitNetworkIdle(ctx context.Context, idle, max time.Duration) error
	// Content returns the page's visible text.
	Content(ctx context.Context) (string, error)
	// URL returns the current location.
	URL(ctx context.Context) (string, error)
}

// CandidateCategory tags how an input candidate was matched, in priority order.
type CandidateCategory string

const (
	CategoryEmailType   CandidateCategory = "email_type"
	CategoryNameMatch   CandidateCategory = "name_match"
	CategoryPlaceholder CandidateCategory = "placeholder_match"
	CategoryPopupScoped CandidateCategory = "popup_scoped"
	CategoryFooter      CandidateCategory = "footer_scoped"
	CategoryNewsletter  CandidateCategory = "newsletter_scoped"
)

// categoryPriority is the flat dispatch table for candidate ordering.
var categoryPriority = map[CandidateCategory]int{
	CategoryEmailType:   0,
	CategoryNameMatch:   1,
	CategoryPlaceholder: 2,
	CategoryPopupScoped: 3,
	CategoryFooter:      4,
	CategoryNewsletter:  5,
}

// Priority returns the category's rank; lower is tried first.
func (c CandidateCategory) Priority() int {
	if p, ok := categoryPriority[c]; ok {
		return p
	}
	return len(categoryPriority)
}

// InputCandidate describes one discovered input element. Produced fresh each
// probe phase; never persisted beyond the probe run for one target.
type InputCandidate struct {
	Selector     string            `json:"selector"`
	Category     CandidateCategory `json:"category"`
	Visible      bool              `json:"visible"`
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Placeholder  string            `json:"placeholder"`
	InForm       bool              `json:"inForm"`
	FormSelector string            `json:"formSelector"`
	InPopup      bool              `json:"inPopup"`
	InFooter     bool              `json:"inFooter"`
}
