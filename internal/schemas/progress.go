// File: internal/schemas/progress.go
package schemas

import (
	"sync"
	"time"
)

// Progress is a point-in-time copy of the run-wide counters, suitable for
// serialization into the snapshot file.
type Progress struct {
	Timestamp   time.Time      `json:"timestamp"`
	Processed   int            `json:"processed"`
	Successful  int            `json:"successful"`
	Failed      int            `json:"failed"`
	SuccessRate float64        `json:"success_rate"`
	Reasons     map[Reason]int `json:"reasons"`
	ElapsedSecs float64        `json:"elapsed_seconds"`
}

// ProgressState accumulates run-wide counters. All mutation goes through
// Record so that processed == successful + failed holds at every observation
// point, even under concurrent workers.
type ProgressState struct {
	mu      sync.Mutex
	started time.Time
	success int
	failed  int
	reasons map[Reason]int
}

// NewProgressState starts the elapsed clock.
func NewProgressState() *ProgressState {
	return &ProgressState{
		started: time.Now(),
		reasons: make(map[Reason]int),
	}
}

// Record folds one terminal outcome into the counters.
func (p *ProgressState) Record(out SubmissionOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if out.Success {
		p.success++
		return
	}
	p.failed++
	p.reasons[out.Reason]++
}

// Snapshot returns a consistent copy of the counters.
func (p *ProgressState) Snapshot() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()

	processed := p.success + p.failed
	rate := 0.0
	if processed > 0 {
		rate = float64(p.success) / float64(processed) * 100.0
	}
	reasons := make(map[Reason]int, len(p.reasons))
	for k, v := range p.reasons {
		reasons[k] = v
	}
	return Progress{
		Timestamp:   time.Now(),
		Processed:   processed,
		Successful:  p.success,
		Failed:      p.failed,
		SuccessRate: rate,
		Reasons:     reasons,
		ElapsedSecs: time.Since(p.started).Seconds(),
	}
}
