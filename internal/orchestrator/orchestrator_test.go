// File: internal/orchestrator/orchestrator_test.go
package orchestrator_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/optinreach/internal/browser"
	"github.com/xkilldash9x/optinreach/internal/config"
	"github.com/xkilldash9x/optinreach/internal/ledger"
	"github.com/xkilldash9x/optinreach/internal/orchestrator"
	"github.com/xkilldash9x/optinreach/internal/schemas"
	"github.com/xkilldash9x/optinreach/internal/targets"
)

type fakePool struct {
	mu        sync.Mutex
	acquired  int
	released  int
	discarded int
}

func (f *fakePool) Acquire(ctx context.Context) (*browser.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired++
	return &browser.Session{ID: "fake"}, nil
}

func (f *fakePool) Release(s *browser.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
}

func (f *fakePool) Discard(s *browser.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded++
}

func (f *fakePool) stats() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired, f.released, f.discarded
}

// fakeProcessor returns scripted outcomes per target and tracks attempt
// counts and peak concurrency.
type fakeProcessor struct {
	mu       sync.Mutex
	outcomes map[string][]schemas.SubmissionOutcome
	attempts map[string]int
	inflight atomic.Int64
	peak     atomic.Int64
	delay    time.Duration
	panicOn  string
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		outcomes: map[string][]schemas.SubmissionOutcome{},
		attempts: map[string]int{},
	}
}

func (f *fakeProcessor) Process(ctx context.Context, sess *browser.Session, target, address string, attempt int) schemas.SubmissionOutcome {
	cur := f.inflight.Add(1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	defer f.inflight.Add(-1)

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.attempts[target]++
	n := f.attempts[target]
	script := f.outcomes[target]
	f.mu.Unlock()

	if target == f.panicOn {
		panic("processor wiring fault")
	}
	if len(script) > 0 {
		idx := n - 1
		if idx >= len(script) {
			idx = len(script) - 1
		}
		out := script[idx]
		out.Target = target
		out.Attempt = attempt
		return out
	}
	return schemas.SubmissionOutcome{
		Target:  target,
		Success: true,
		Method:  schemas.MethodDirectClick,
		Attempt: attempt,
	}
}

func (f *fakeProcessor) attemptCount(target string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[target]
}

type fakeSink struct {
	mu        sync.Mutex
	records   []ledger.Record
	snapshots []schemas.Progress
}

func (f *fakeSink) Append(rec ledger.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
}

func (f *fakeSink) WriteSnapshot(p schemas.Progress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, p)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Send(ctx context.Context, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
}

func makeTargets(urls ...string) []targets.Target {
	out := make([]targets.Target, 0, len(urls))
	for _, u := range urls {
		out = append(out, targets.Target{URL: u})
	}
	return out
}

func mustRotation(t *testing.T) *targets.Rotation {
	t.Helper()
	rot, err := targets.NewRotation([]targets.Credential{{Address: "a@x.com"}, {Address: "b@x.com"}})
	require.NoError(t, err)
	return rot
}

type fixture struct {
	pool     *fakePool
	proc     *fakeProcessor
	sink     *fakeSink
	notifier *fakeNotifier
	orch     *orchestrator.Orchestrator
}

func newFixture(t *testing.T, mutate func(*config.RunConfig)) *fixture {
	t.Helper()
	cfg := config.RunConfig{
		Concurrency: 4,
		BatchSize:   10,
		MaxRetries:  2,
		RetryDelay:  time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f := &fixture{
		pool:     &fakePool{},
		proc:     newFakeProcessor(),
		sink:     &fakeSink{},
		notifier: &fakeNotifier{},
	}
	orch, err := orchestrator.New(cfg, f.pool, f.proc, f.sink, f.notifier, zaptest.NewLogger(t))
	require.NoError(t, err)
	f.orch = orch
	return f
}

func failed(reason schemas.Reason) schemas.SubmissionOutcome {
	return schemas.SubmissionOutcome{Reason: reason}
}

func TestRun_ProcessedEqualsSuccessPlusFailed(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, nil)
	f.proc.outcomes["https://b.com"] = []schemas.SubmissionOutcome{failed(schemas.ReasonCaptchaDetected)}

	final, err := f.orch.Run(context.Background(),
		makeTargets("https://a.com", "https://b.com", "https://c.com"), mustRotation(t))
	require.NoError(t, err)

	assert.Equal(t, 3, final.Processed)
	assert.Equal(t, final.Processed, final.Successful+final.Failed)
	assert.Equal(t, 2, final.Successful)
	assert.Equal(t, 1, final.Failed)
	assert.Equal(t, 1, final.Reasons[schemas.ReasonCaptchaDetected])

	// One ledger record per terminal outcome, all tagged with a batch.
	require.Len(t, f.sink.records, 3)
	for _, rec := range f.sink.records {
		assert.NotEmpty(t, rec.Batch)
	}
	// Per-batch snapshot plus the final one.
	assert.Len(t, f.sink.snapshots, 2)
	assert.Len(t, f.notifier.messages, 2)
}

func TestRun_RetryBudgetExhausted(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, nil)
	f.proc.outcomes["https://flaky.com"] = []schemas.SubmissionOutcome{
		failed(schemas.ReasonNavigationTimeout),
		failed(schemas.ReasonNavigationTimeout),
		failed(schemas.ReasonNavigationTimeout),
		failed(schemas.ReasonNavigationTimeout),
	}

	final, err := f.orch.Run(context.Background(), makeTargets("https://flaky.com"), mustRotation(t))
	require.NoError(t, err)

	// MaxRetries=2 means one initial attempt plus two retries, no more.
	assert.Equal(t, 3, f.proc.attemptCount("https://flaky.com"))
	assert.Equal(t, 1, final.Processed)
	assert.Equal(t, 1, final.Failed)
	require.Len(t, f.sink.records, 1)
	assert.Equal(t, schemas.ReasonNavigationTimeout, f.sink.records[0].Reason)
}

func TestRun_RetryThenSucceed(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, nil)
	f.proc.outcomes["https://flaky.com"] = []schemas.SubmissionOutcome{
		failed(schemas.ReasonNetworkError),
		{Success: true, Method: schemas.MethodDirectClick},
	}

	final, err := f.orch.Run(context.Background(), makeTargets("https://flaky.com"), mustRotation(t))
	require.NoError(t, err)

	assert.Equal(t, 2, f.proc.attemptCount("https://flaky.com"))
	assert.Equal(t, 1, final.Successful)
	assert.Zero(t, final.Failed)
}

func TestRun_TerminalReasonIsNotRetried(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, nil)
	f.proc.outcomes["https://walled.com"] = []schemas.SubmissionOutcome{
		failed(schemas.ReasonCaptchaDetected),
	}

	_, err := f.orch.Run(context.Background(), makeTargets("https://walled.com"), mustRotation(t))
	require.NoError(t, err)

	assert.Equal(t, 1, f.proc.attemptCount("https://walled.com"))
}

func TestRun_SessionAccountingBalances(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, nil)
	f.proc.outcomes["https://b.com"] = []schemas.SubmissionOutcome{
		failed(schemas.ReasonSessionError),
		{Success: true},
	}

	_, err := f.orch.Run(context.Background(),
		makeTargets("https://a.com", "https://b.com"), mustRotation(t))
	require.NoError(t, err)

	acquired, released, discarded := f.pool.stats()
	// Every borrow is handed back exactly once; the session-level failure
	// went back via Discard.
	assert.Equal(t, acquired, released+discarded)
	assert.Equal(t, 1, discarded)
}

func TestRun_ProcessorPanicDiscardsSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, func(cfg *config.RunConfig) { cfg.MaxRetries = 0 })
	f.proc.panicOn = "https://broken.com"

	final, err := f.orch.Run(context.Background(),
		makeTargets("https://broken.com", "https://fine.com"), mustRotation(t))
	require.NoError(t, err)

	assert.Equal(t, 2, final.Processed)
	assert.Equal(t, 1, final.Failed)
	assert.Equal(t, 1, final.Reasons[schemas.ReasonFatalError])

	acquired, released, discarded := f.pool.stats()
	assert.Equal(t, acquired, released+discarded)
	assert.Equal(t, 1, discarded)
}

func TestRun_ConcurrencyCeiling(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, func(cfg *config.RunConfig) { cfg.Concurrency = 2 })
	f.proc.delay = 10 * time.Millisecond

	urls := []string{"https://1.com", "https://2.com", "https://3.com", "https://4.com", "https://5.com", "https://6.com"}
	_, err := f.orch.Run(context.Background(), makeTargets(urls...), mustRotation(t))
	require.NoError(t, err)

	assert.LessOrEqual(t, f.proc.peak.Load(), int64(2))
}

func TestRun_BatchPartitioning(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, func(cfg *config.RunConfig) { cfg.BatchSize = 2 })

	urls := []string{"https://1.com", "https://2.com", "https://3.com", "https://4.com", "https://5.com"}
	final, err := f.orch.Run(context.Background(), makeTargets(urls...), mustRotation(t))
	require.NoError(t, err)

	assert.Equal(t, 5, final.Processed)
	// Three batches of at most two, each snapshotted, plus the final flush.
	assert.Len(t, f.sink.snapshots, 4)

	// Records from the same batch share an ID; three distinct IDs total.
	batches := map[string]int{}
	for _, rec := range f.sink.records {
		batches[rec.Batch]++
	}
	assert.Len(t, batches, 3)
}

func TestRun_CancelledContextDrains(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	final, err := f.orch.Run(ctx, makeTargets("https://a.com", "https://b.com"), mustRotation(t))
	assert.ErrorIs(t, err, context.Canceled)

	// Nothing was admitted, but the snapshot still flushed.
	assert.Zero(t, final.Processed)
	assert.NotEmpty(t, f.sink.snapshots)
}

func TestRun_EmptyInputsRejected(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.orch.Run(context.Background(), nil, mustRotation(t))
	assert.Error(t, err)

	_, err = f.orch.Run(context.Background(), makeTargets("https://a.com"), nil)
	assert.Error(t, err)
}

func TestNew_RejectsNilDependencies(t *testing.T) {
	_, err := orchestrator.New(config.RunConfig{}, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}
