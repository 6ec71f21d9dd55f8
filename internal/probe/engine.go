// File: internal/probe/engine.go
package probe

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/optinreach/internal/config"
	"github.com/xkilldash9x/optinreach/internal/schemas"
)

// PhaseReport captures what one detection phase observed.
type PhaseReport struct {
	Phase          string
	FormCount      int
	CandidateCount int
	Candidates     []schemas.InputCandidate
	NewForms       int
	NewEmailInputs int
	Elapsed        time.Duration
}

// Result is the probe's overall verdict for one page. Later phases supersede
// earlier ones because their candidates reflect more fully rendered content,
// so Candidates comes from the last phase that found anything; the counts are
// the maxima across all executed phases.
type Result struct {
	Reports           []PhaseReport
	MaxFormCount      int
	MaxCandidateCount int
	Candidates        []schemas.InputCandidate
}

// Empty reports whether the probe exhausted all phases with zero candidates.
func (r Result) Empty() bool { return r.MaxCandidateCount == 0 }

// scanResult mirrors the scan script's return shape.
type scanResult struct {
	FormCount  int                      `json:"formCount"`
	Candidates []schemas.InputCandidate `json:"candidates"`
}

// mutationCounts mirrors the observer script's return shape.
type mutationCounts struct {
	Forms       int `json:"forms"`
	EmailInputs int `json:"emailInputs"`
}

// Engine runs the multi-phase detection protocol against one loaded page.
// It has no knowledge of concurrency; one engine instance serves one page at
// a time.
type Engine struct {
	cfg    config.ProbeConfig
	logger *zap.Logger
}

// NewEngine builds a probe engine.
func NewEngine(cfg config.ProbeConfig, logger *zap.Logger) *Engine {
	if len(cfg.Phases) == 0 {
		cfg.Phases = config.DefaultPhases()
	}
	return &Engine{cfg: cfg, logger: logger.Named("probe")}
}

// Run executes the phases in order. A single synchronous scan misses content
// that mounts after scroll-triggered lazy loading or delayed scripts, so each
// phase waits, optionally scrolls, waits for network quiet, then rescans.
func (e *Engine) Run(ctx context.Context, page schemas.Page) (Result, error) {
	var result Result

	// Install the mutation observer once at probe start. Failure is not
	// fatal; the counters are advisory.
	var installed bool
	if err := page.Evaluate(ctx, installObserverScript, &installed); err != nil {
		e.logger.Debug("Mutation observer install failed", zap.Error(err))
	}

	var prevMut mutationCounts
	for _, phase := range e.cfg.Phases {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		phaseStart := time.Now()

		// 1. Let asynchronous script execution settle.
		if err := sleep(ctx, phase.SettleWait); err != nil {
			return result, err
		}

		// 2. Incremental scroll to trigger lazy-loaded content, then back up.
		if phase.ScrollSteps > 0 {
			if err := e.scroll(ctx, page, phase.ScrollSteps); err != nil {
				return result, err
			}
		}

		// 3. Don't scan a half-rendered page.
		if err := page.WaitNetworkIdle(ctx, e.cfg.IdleWindow, e.cfg.IdleMaxWait); err != nil {
			return result, err
		}

		// 4. Scan the current DOM.
		var scan scanResult
		if err := page.Evaluate(ctx, scanScript, &scan); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			e.logger.Debug("Phase scan failed", zap.String("phase", phase.Name), zap.Error(err))
			continue
		}

		// 5. Fold in mutation deltas since the previous phase.
		var mut mutationCounts
		if err := page.Evaluate(ctx, readObserverScript, &mut); err != nil {
			mut = prevMut
		}

		report := PhaseReport{
			Phase:          phase.Name,
			FormCount:      scan.FormCount,
			CandidateCount: len(scan.Candidates),
			Candidates:     scan.Candidates,
			NewForms:       mut.Forms - prevMut.Forms,
			NewEmailInputs: mut.EmailInputs - prevMut.EmailInputs,
			Elapsed:        time.Since(phaseStart),
		}
		prevMut = mut
		result.Reports = append(result.Reports, report)

		if report.FormCount > result.MaxFormCount {
			result.MaxFormCount = report.FormCount
		}
		if report.CandidateCount > result.MaxCandidateCount {
			result.MaxCandidateCount = report.CandidateCount
		}
		if report.CandidateCount > 0 {
			result.Candidates = scan.Candidates
		}

		e.logger.Debug("Phase complete",
			zap.String("phase", phase.Name),
			zap.Int("forms", report.FormCount),
			zap.Int("candidates", report.CandidateCount),
			zap.Int("new_forms", report.NewForms),
			zap.Duration("elapsed", report.Elapsed))

		if e.cfg.StopWhenFound && report.CandidateCount > 0 {
			break
		}
	}

	sortCandidates(result.Candidates)
	return result, nil
}

// scroll walks the page top to bottom in steps, pausing after each step so
// lazy-loaded content can mount, then returns to the top.
func (e *Engine) scroll(ctx context.Context, page schemas.Page, steps int) error {
	for i := 1; i <= steps; i++ {
		if err := page.ScrollTo(ctx, float64(i)/float64(steps)); err != nil {
			return err
		}
		if err := sleep(ctx, e.cfg.ScrollPause); err != nil {
			return err
		}
	}
	return page.ScrollTo(ctx, 0)
}

// sortCandidates orders by category priority, visible candidates first within
// a category.
func sortCandidates(cands []schemas.InputCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		pi, pj := cands[i].Category.Priority(), cands[j].Category.Priority()
		if pi != pj {
			return pi < pj
		}
		return cands[i].Visible && !cands[j].Visible
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
