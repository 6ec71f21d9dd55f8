// File: internal/ledger/ledger.go
// Two file sinks: an append-only JSONL record per completed target and a
// periodically rewritten progress snapshot. Both writes are best-effort; a
// sink failure is logged but never aborts the run.
package ledger

import (
	"fmt"
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/optinreach/internal/config"
	"github.com/xkilldash9x/optinreach/internal/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is one outcome line in the JSONL log.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Target    string         `json:"target"`
	Success   bool           `json:"success"`
	Reason    schemas.Reason `json:"reason,omitempty"`
	Method    schemas.Method `json:"method,omitempty"`
	ElapsedMs int64          `json:"elapsed_ms"`
	Batch     string         `json:"batch"`
}

// FromOutcome builds a record from a terminal outcome.
func FromOutcome(out schemas.SubmissionOutcome, batchID string) Record {
	return Record{
		Timestamp: time.Now(),
		Target:    out.Target,
		Success:   out.Success,
		Reason:    out.Reason,
		Method:    out.Method,
		ElapsedMs: out.Elapsed.Milliseconds(),
		Batch:     batchID,
	}
}

// Ledger owns the two sinks.
type Ledger struct {
	snapshotPath string
	logger       *zap.Logger

	mu       sync.Mutex
	outcomes *os.File
}

// New opens (or creates) the outcome log for appending.
func New(cfg config.LedgerConfig, logger *zap.Logger) (*Ledger, error) {
	f, err := os.OpenFile(cfg.OutcomesFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open outcome log: %w", err)
	}
	return &Ledger{
		snapshotPath: cfg.SnapshotFile,
		logger:       logger.Named("ledger"),
		outcomes:     f,
	}, nil
}

// Append writes one outcome line. Best-effort.
func (l *Ledger) Append(rec Record) {
	line, err := json.Marshal(rec)
	if err != nil {
		l.logger.Warn("Failed to marshal outcome record", zap.Error(err))
		return
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.outcomes == nil {
		return
	}
	if _, err := l.outcomes.Write(line); err != nil {
		l.logger.Warn("Failed to append outcome record", zap.Error(err))
	}
}

// WriteSnapshot overwrites the progress snapshot file. Best-effort.
func (l *Ledger) WriteSnapshot(p schemas.Progress) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		l.logger.Warn("Failed to marshal progress snapshot", zap.Error(err))
		return
	}
	if err := os.WriteFile(l.snapshotPath, data, 0o644); err != nil {
		l.logger.Warn("Failed to write progress snapshot", zap.Error(err))
	}
}

// Close flushes and closes the outcome log.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.outcomes == nil {
		return nil
	}
	err := l.outcomes.Close()
	l.outcomes = nil
	return err
}
