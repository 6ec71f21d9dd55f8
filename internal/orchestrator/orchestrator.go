// File: internal/orchestrator/orchestrator.go
// Description: Drives the probe+submit pipeline across the target list in
// batches, under a concurrency ceiling, with bounded retries and run-wide
// statistics. Dependencies are injected via interfaces for testability.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/optinreach/internal/browser"
	"github.com/xkilldash9x/optinreach/internal/config"
	"github.com/xkilldash9x/optinreach/internal/ledger"
	"github.com/xkilldash9x/optinreach/internal/schemas"
	"github.com/xkilldash9x/optinreach/internal/targets"
)

// TargetProcessor runs one attempt against one target using a borrowed session.
type TargetProcessor interface {
	Process(ctx context.Context, sess *browser.Session, target, address string, attempt int) schemas.SubmissionOutcome
}

// SessionPool is the slice of the pool the orchestrator needs.
type SessionPool interface {
	Acquire(ctx context.Context) (*browser.Session, error)
	Release(s *browser.Session)
	Discard(s *browser.Session)
}

// Sink receives outcome records and progress snapshots.
type Sink interface {
	Append(rec ledger.Record)
	WriteSnapshot(p schemas.Progress)
}

// Notifier delivers fire-and-forget status messages.
type Notifier interface {
	Send(ctx context.Context, text string)
}

// Orchestrator manages the run lifecycle.
type Orchestrator struct {
	cfg      config.RunConfig
	pool     SessionPool
	proc     TargetProcessor
	sink     Sink
	notifier Notifier
	logger   *zap.Logger
	progress *schemas.ProgressState
}

// New creates an Orchestrator with its dependencies injected.
func New(
	cfg config.RunConfig,
	pool SessionPool,
	proc TargetProcessor,
	sink Sink,
	notifier Notifier,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if pool == nil || proc == nil || sink == nil || notifier == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:      cfg,
		pool:     pool,
		proc:     proc,
		sink:     sink,
		notifier: notifier,
		logger:   logger.Named("orchestrator"),
		progress: schemas.NewProgressState(),
	}, nil
}

// Run processes the full target list. Credentials rotate round-robin across
// targets. A cancelled context drains: in-flight targets finish, no new ones
// are admitted, and the final snapshot is flushed.
func (o *Orchestrator) Run(ctx context.Context, tgts []targets.Target, rotation *targets.Rotation) (schemas.Progress, error) {
	if len(tgts) == 0 {
		return schemas.Progress{}, fmt.Errorf("target list is empty")
	}
	if rotation == nil || rotation.Size() == 0 {
		return schemas.Progress{}, fmt.Errorf("credential rotation is empty")
	}

	runID := uuid.New().String()
	log := o.logger.With(zap.String("run_id", runID))
	log.Info("Starting run",
		zap.Int("targets", len(tgts)),
		zap.Int("credentials", rotation.Size()),
		zap.Int("concurrency", o.cfg.Concurrency),
		zap.Int("batch_size", o.cfg.BatchSize),
		zap.Int("max_retries", o.cfg.MaxRetries))

	sem := semaphore.NewWeighted(int64(o.cfg.Concurrency))
	batches := partition(tgts, o.cfg.BatchSize)

	for bi, batch := range batches {
		if ctx.Err() != nil {
			log.Warn("Run interrupted; draining", zap.Int("batches_remaining", len(batches)-bi))
			break
		}
		batchID := uuid.New().String()
		blog := log.With(zap.String("batch_id", batchID), zap.Int("batch", bi+1), zap.Int("batches", len(batches)))
		blog.Info("Starting batch", zap.Int("targets", len(batch)))

		o.runBatch(ctx, sem, batch, rotation, batchID)

		snap := o.progress.Snapshot()
		o.sink.WriteSnapshot(snap)
		o.notifier.Send(ctx, fmt.Sprintf(
			"batch %d/%d done: %d processed, %d ok, %d failed (%.1f%%)",
			bi+1, len(batches), snap.Processed, snap.Successful, snap.Failed, snap.SuccessRate))
		blog.Info("Batch complete",
			zap.Int("processed", snap.Processed),
			zap.Float64("success_rate", snap.SuccessRate))
	}

	final := o.progress.Snapshot()
	o.sink.WriteSnapshot(final)
	o.notifier.Send(ctx, fmt.Sprintf(
		"run complete: %d processed, %d ok, %d failed (%.1f%%) in %.0fs",
		final.Processed, final.Successful, final.Failed, final.SuccessRate, final.ElapsedSecs))
	log.Info("Run finished",
		zap.Int("processed", final.Processed),
		zap.Int("successful", final.Successful),
		zap.Int("failed", final.Failed))

	if err := ctx.Err(); err != nil {
		return final, err
	}
	return final, nil
}

// runBatch admits targets under the semaphore and waits for the whole batch.
func (o *Orchestrator) runBatch(ctx context.Context, sem *semaphore.Weighted, batch []targets.Target, rotation *targets.Rotation, batchID string) {
	var wg sync.WaitGroup
	for _, tgt := range batch {
		// Drain: stop admitting once the run is interrupted.
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		cred := rotation.Next()
		wg.Add(1)
		go func(tgt targets.Target, cred targets.Credential) {
			defer wg.Done()
			defer sem.Release(1)
			out := o.processWithRetry(ctx, tgt, cred, batchID)
			o.progress.Record(out)
			o.sink.Append(ledger.FromOutcome(out, batchID))
		}(tgt, cred)
	}
	wg.Wait()
}

// processWithRetry is an explicit bounded loop: a target is attempted at most
// MaxRetries+1 times, only while the failure reason stays retryable. The
// delay between attempts grows linearly.
func (o *Orchestrator) processWithRetry(ctx context.Context, tgt targets.Target, cred targets.Credential, batchID string) schemas.SubmissionOutcome {
	var out schemas.SubmissionOutcome
	maxAttempts := o.cfg.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out = o.processOnce(ctx, tgt, cred, attempt)
		if out.Success || !out.Reason.Retryable() || attempt == maxAttempts || ctx.Err() != nil {
			return out
		}
		o.logger.Debug("Retrying target",
			zap.String("target", tgt.URL),
			zap.String("reason", string(out.Reason)),
			zap.Int("attempt", attempt),
			zap.String("batch_id", batchID))
		select {
		case <-time.After(o.cfg.RetryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return out
		}
	}
	return out
}

// processOnce borrows a session for exactly one attempt. The deferred hand
// back runs on every exit path, including panics below the processor's own
// recovery.
func (o *Orchestrator) processOnce(ctx context.Context, tgt targets.Target, cred targets.Credential, attempt int) (out schemas.SubmissionOutcome) {
	start := time.Now()
	sess, err := o.pool.Acquire(ctx)
	if err != nil {
		o.logger.Warn("Session acquisition failed", zap.String("target", tgt.URL), zap.Error(err))
		return schemas.Failure(tgt.URL, attempt, schemas.ReasonSessionError, time.Since(start))
	}
	defer func() {
		if r := recover(); r != nil {
			o.pool.Discard(sess)
			out = schemas.Failure(tgt.URL, attempt, schemas.ReasonFatalError, time.Since(start))
			return
		}
		// A session implicated in its own failure cannot be trusted again.
		if out.Reason == schemas.ReasonSessionError || out.Reason == schemas.ReasonFatalError {
			o.pool.Discard(sess)
		} else {
			o.pool.Release(sess)
		}
	}()

	out = o.proc.Process(ctx, sess, tgt.NavURL(), cred.Address, attempt)
	return out
}

// Progress exposes a live snapshot for external polling.
func (o *Orchestrator) Progress() schemas.Progress {
	return o.progress.Snapshot()
}

func partition(tgts []targets.Target, size int) [][]targets.Target {
	if size <= 0 {
		return [][]targets.Target{tgts}
	}
	var out [][]targets.Target
	for start := 0; start < len(tgts); start += size {
		end := start + size
		if end > len(tgts) {
			end = len(tgts)
		}
		out = append(out, tgts[start:end])
	}
	return out
}
