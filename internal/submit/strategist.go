// File: internal/submit/strategist.go
package submit

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/optinreach/internal/config"
	"github.com/xkilldash9x/optinreach/internal/schemas"
)

var errFillUnverified = errors.New("fill chain exhausted without a verified value")

// Result is the strategist's verdict for one page.
type Result struct {
	Success bool
	Method  schemas.Method
	// Unconfirmed marks a submission that produced no recognizable
	// confirmation keyword. Many sites acknowledge nothing client-side, so
	// this is still a success.
	Unconfirmed bool
	Reason      schemas.Reason
}

// Strategist fills and submits a discovered email-capture surface using an
// ordered fallback chain of interaction tactics.
type Strategist struct {
	cfg    config.SubmitConfig
	logger *zap.Logger
}

// NewStrategist builds a strategist.
func NewStrategist(cfg config.SubmitConfig, logger *zap.Logger) *Strategist {
	return &Strategist{cfg: cfg, logger: logger.Named("strategist")}
}

// Submit walks the candidates in priority order (popup-scoped first, since
// popups overlay and intercept focus), fills the first one that verifies,
// then locates and fires a submit control.
func (s *Strategist) Submit(ctx context.Context, page schemas.Page, candidates []schemas.InputCandidate, address string) Result {
	if len(candidates) == 0 {
		return Result{Reason: schemas.ReasonNoEmailInputFound}
	}
	ordered := orderCandidates(candidates)

	filled, method, sawError := s.fillFirst(ctx, page, ordered, address)
	if filled == nil {
		// Nothing fillable. If everything was invisible, dismiss overlays
		// and give visibility one more chance.
		if s.dismissOverlays(ctx, page) {
			filled, method, sawError = s.fillFirst(ctx, page, ordered, address)
		}
	}
	if filled == nil {
		if ctx.Err() != nil {
			return Result{Reason: schemas.ReasonFormSubmissionError}
		}
		if sawError {
			return Result{Reason: schemas.ReasonFormSubmissionError}
		}
		return Result{Reason: schemas.ReasonNoEmailInputFound}
	}

	return s.submitFilled(ctx, page, *filled, method)
}

// orderCandidates puts popup-scoped candidates ahead of everything else,
// keeping category priority within each group.
func orderCandidates(cands []schemas.InputCandidate) []schemas.InputCandidate {
	out := make([]schemas.InputCandidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].InPopup != out[j].InPopup {
			return out[i].InPopup
		}
		return out[i].Category.Priority() < out[j].Category.Priority()
	})
	return out
}

// fillFirst attempts the fill chain on each candidate until one verifies.
// Returns the filled candidate, the method that worked, and whether any
// attempt errored (as opposed to every candidate being invisible).
func (s *Strategist) fillFirst(ctx context.Context, page schemas.Page, cands []schemas.InputCandidate, address string) (*schemas.InputCandidate, schemas.Method, bool) {
	sawError := false
	for i := range cands {
		c := cands[i]
		visible, err := page.IsVisible(ctx, c.Selector)
		if err != nil || !visible {
			continue
		}
		method, err := s.fill(ctx, page, c, address)
		if err != nil {
			sawError = true
			s.logger.Debug("Fill chain exhausted for candidate",
				zap.String("selector", c.Selector), zap.Error(err))
			continue
		}
		return &cands[i], method, sawError
	}
	return nil, "", sawError
}

// fill runs the layered chain on one candidate: direct interaction, then
// script-injected value, then character-by-character typing. Each layer is
// verified by reading the value back.
func (s *Strategist) fill(ctx context.Context, page schemas.Page, c schemas.InputCandidate, address string) (schemas.Method, error) {
	// 1. Direct interaction: click to focus, clear, set, read back.
	if err := page.Click(ctx, c.Selector); err != nil {
		s.logger.Debug("Direct click on input failed", zap.String("selector", c.Selector), zap.Error(err))
	}
	if err := page.SetValue(ctx, c.Selector, address); err == nil {
		if s.verify(ctx, page, c.Selector, address) {
			return schemas.MethodDirectClick, nil
		}
	}

	// 2. Script-injected value with synthetic events.
	var injected bool
	if err := page.Evaluate(ctx, injectValueScript(c.Selector, address), &injected); err == nil && injected {
		if s.verify(ctx, page, c.Selector, address) {
			return schemas.MethodScriptInjected, nil
		}
	}

	// 3. Keystrokes, last resort.
	if err := page.SetValue(ctx, c.Selector, ""); err != nil {
		return "", err
	}
	if err := page.Type(ctx, c.Selector, address, s.cfg.KeyDelay); err != nil {
		return "", err
	}
	if s.verify(ctx, page, c.Selector, address) {
		return schemas.MethodKeystrokeTyped, nil
	}
	return "", errFillUnverified
}

func (s *Strategist) verify(ctx context.Context, page schemas.Page, selector, want string) bool {
	got, err := page.Value(ctx, selector)
	return err == nil && got == want
}

// submitFilled locates a submit control and fires it, falling back from
// forced click to script click to an Enter keypress on the input.
func (s *Strategist) submitFilled(ctx context.Context, page schemas.Page, c schemas.InputCandidate, method schemas.Method) Result {
	var buttonSel string
	if err := page.Evaluate(ctx, findSubmitScript(c.FormSelector), &buttonSel); err != nil {
		s.logger.Debug("Submit control search failed", zap.Error(err))
		buttonSel = ""
	}

	submitted := false
	usedEnter := false
	if buttonSel != "" {
		if err := page.Click(ctx, buttonSel); err == nil {
			submitted = true
		} else {
			s.logger.Debug("Forced click failed, trying script click",
				zap.String("selector", buttonSel), zap.Error(err))
			var clicked bool
			if err := page.Evaluate(ctx, scriptClickScript(buttonSel), &clicked); err == nil && clicked {
				submitted = true
			}
		}
	}
	if !submitted {
		if err := page.Press(ctx, c.Selector, "Enter"); err != nil {
			if buttonSel == "" {
				return Result{Reason: schemas.ReasonNoSubmitButtonFound}
			}
			return Result{Reason: schemas.ReasonFormSubmissionError}
		}
		usedEnter = true
	}
	if usedEnter {
		method = schemas.MethodEnterKey
	}

	// Let the submission land before classifying.
	select {
	case <-time.After(s.cfg.PostSubmitWait):
	case <-ctx.Done():
	}

	confirmed := s.confirmed(ctx, page)
	return Result{Success: true, Method: method, Unconfirmed: !confirmed}
}

// confirmed heuristically scans page text and URL for confirmation keywords.
func (s *Strategist) confirmed(ctx context.Context, page schemas.Page) bool {
	var haystack strings.Builder
	if text, err := page.Content(ctx); err == nil {
		haystack.WriteString(strings.ToLower(text))
	}
	if loc, err := page.URL(ctx); err == nil {
		haystack.WriteString(" ")
		haystack.WriteString(strings.ToLower(loc))
	}
	hs := haystack.String()
	for _, kw := range s.cfg.SuccessKeywords {
		if kw != "" && strings.Contains(hs, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// dismissOverlays sends Escape and clicks close-button heuristics; returns
// whether anything was plausibly dismissed.
func (s *Strategist) dismissOverlays(ctx context.Context, page schemas.Page) bool {
	dismissed := false
	if err := page.Press(ctx, "body", "Escape"); err == nil {
		dismissed = true
	}
	var clicked int
	if err := page.Evaluate(ctx, dismissOverlaysScript, &clicked); err == nil && clicked > 0 {
		dismissed = true
	}
	return dismissed
}
