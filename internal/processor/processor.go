// File: internal/processor/processor.go
// Composes the probe engine and submission strategist around one target:
// navigate, probe, submit, classify. Owns a borrowed session for the duration
// of a single target and never lets an error escape unclassified.
package processor

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/optinreach/internal/browser"
	"github.com/xkilldash9x/optinreach/internal/config"
	"github.com/xkilldash9x/optinreach/internal/probe"
	"github.com/xkilldash9x/optinreach/internal/schemas"
	"github.com/xkilldash9x/optinreach/internal/submit"
)

// Processor drives one target end to end.
type Processor struct {
	cfg        config.BrowserConfig
	markers    []string
	engine     *probe.Engine
	strategist *submit.Strategist
	logger     *zap.Logger
}

// New builds a processor.
func New(cfg *config.Config, logger *zap.Logger) *Processor {
	return &Processor{
		cfg:        cfg.Browser,
		markers:    cfg.Submit.CaptchaMarkers,
		engine:     probe.NewEngine(cfg.Probe, logger),
		strategist: submit.NewStrategist(cfg.Submit, logger),
		logger:     logger.Named("processor"),
	}
}

// Process borrows the given session, opens a tab, and runs the pipeline.
func (p *Processor) Process(ctx context.Context, sess *browser.Session, tgt string, address string, attempt int) schemas.SubmissionOutcome {
	start := time.Now()
	page, err := sess.NewPage(ctx)
	if err != nil {
		p.logger.Warn("Failed to open page", zap.String("target", tgt), zap.Error(err))
		return schemas.Failure(tgt, attempt, schemas.ReasonSessionError, time.Since(start))
	}
	defer page.Close()
	return p.ProcessPage(ctx, page, tgt, address, attempt)
}

// ProcessPage runs the pipeline on an already-open page. Split out so the
// pipeline is testable against a fake driver.
func (p *Processor) ProcessPage(ctx context.Context, page schemas.Page, tgt string, address string, attempt int) (out schemas.SubmissionOutcome) {
	start := time.Now()
	log := p.logger.With(zap.String("target", tgt), zap.Int("attempt", attempt))

	// Nothing propagates out of the pipeline as a panic; it becomes a
	// classified outcome like every other failure.
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic during target processing",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			out = schemas.Failure(tgt, attempt, schemas.ReasonFatalError, time.Since(start))
		}
	}()

	// -- Navigate --
	navCtx, cancelNav := context.WithTimeout(ctx, p.cfg.NavigationTimeout)
	status, err := page.Navigate(navCtx, tgt)
	cancelNav()
	if err != nil {
		reason := schemas.ReasonNetworkError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = schemas.ReasonNavigationTimeout
		}
		log.Debug("Navigation failed", zap.Error(err))
		return schemas.Failure(tgt, attempt, reason, time.Since(start))
	}
	if status >= 400 {
		log.Debug("Navigation returned error status", zap.Int("status", status))
		return schemas.Failure(tgt, attempt, schemas.ReasonNavigationError, time.Since(start))
	}

	// -- CAPTCHA gate --
	if p.captchaPresent(ctx, page) {
		log.Debug("CAPTCHA marker detected")
		return schemas.Failure(tgt, attempt, schemas.ReasonCaptchaDetected, time.Since(start))
	}

	// -- Probe --
	probeRes, err := p.engine.Run(ctx, page)
	if err != nil {
		log.Debug("Probe aborted", zap.Error(err))
		return schemas.Failure(tgt, attempt, schemas.ReasonProcessingError, time.Since(start))
	}
	if probeRes.Empty() {
		return schemas.Failure(tgt, attempt, schemas.ReasonNoEmailInputFound, time.Since(start))
	}
	log.Debug("Probe found candidates",
		zap.Int("max_candidates", probeRes.MaxCandidateCount),
		zap.Int("max_forms", probeRes.MaxFormCount),
		zap.Int("phases_run", len(probeRes.Reports)))

	// -- Submit --
	subRes := p.strategist.Submit(ctx, page, probeRes.Candidates, address)
	if !subRes.Success {
		return schemas.Failure(tgt, attempt, subRes.Reason, time.Since(start))
	}

	log.Info("Submitted email-capture form",
		zap.String("method", string(subRes.Method)),
		zap.Bool("unconfirmed", subRes.Unconfirmed),
		zap.Duration("elapsed", time.Since(start)))
	return schemas.SubmissionOutcome{
		Target:      tgt,
		Success:     true,
		Method:      subRes.Method,
		Unconfirmed: subRes.Unconfirmed,
		Attempt:     attempt,
		Elapsed:     time.Since(start),
	}
}

// captchaPresent scans the loaded document for known CAPTCHA markers. The
// markup is checked rather than the visible text because CAPTCHA widgets
// announce themselves through iframe sources and class names.
func (p *Processor) captchaPresent(ctx context.Context, page schemas.Page) bool {
	if len(p.markers) == 0 {
		return false
	}
	var markup string
	if err := page.Evaluate(ctx, `document.documentElement.outerHTML`, &markup); err != nil {
		return false
	}
	lower := strings.ToLower(markup)
	for _, marker := range p.markers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
