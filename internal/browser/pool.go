// File: internal/browser/pool.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/optinreach/internal/config"
)

// Pool manages a bounded set of reusable browser sessions. Provisioning is
// globally serialized behind a minimum inter-creation interval so bursty
// acquisition cannot trip the upstream service's throttling.
type Pool struct {
	provider Provider
	logger   *zap.Logger

	reuseCap    int
	maxIdle     int
	maxAttempts int
	backoffBase time.Duration

	limiter *rate.Limiter

	mu     sync.Mutex
	idle   []*Session
	closed bool
}

// NewPool builds a pool over the given provider.
func NewPool(cfg config.PoolConfig, provider Provider, logger *zap.Logger) *Pool {
	interval := cfg.MinCreateInterval
	if interval <= 0 {
		interval = time.Second
	}
	backoff := cfg.ProvisionBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Pool{
		provider:    provider,
		logger:      logger.Named("session_pool"),
		reuseCap:    cfg.ReuseCap,
		maxIdle:     cfg.MaxIdle,
		maxAttempts: cfg.ProvisionAttempts,
		backoffBase: backoff,
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Acquire returns a session ready for use, reusing an idle one if available
// or provisioning a new one. The returned session's use count is already
// incremented for this borrow.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("session pool is shut down")
	}
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		s.useCount++
		p.mu.Unlock()
		p.logger.Debug("Reusing session",
			zap.String("session_id", s.ID),
			zap.Int("use_count", s.useCount))
		return s, nil
	}
	p.mu.Unlock()

	s, err := p.provision(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	s.useCount++
	p.mu.Unlock()
	return s, nil
}

// provision creates a session under the rate limiter, retrying with
// exponential backoff up to the configured attempt count.
func (p *Pool) provision(ctx context.Context) (*Session, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		// Serializes creation globally; blocks until the minimum
		// inter-creation delay has elapsed.
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		s, err := p.provider.Create(ctx)
		if err == nil {
			p.logger.Debug("Provisioned session", zap.String("session_id", s.ID), zap.Int("attempt", attempt))
			return s, nil
		}
		lastErr = err
		p.logger.Warn("Session provisioning failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.maxAttempts),
			zap.Error(err))

		if attempt < p.maxAttempts {
			delay := p.backoffBase << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("session provisioning exhausted %d attempts: %w", p.maxAttempts, lastErr)
}

// Release returns a session to the idle set if its use count is below the
// reuse cap and capacity remains; otherwise the session is closed.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	retire := p.closed || s.useCount >= p.reuseCap || len(p.idle) >= p.maxIdle
	if !retire {
		p.idle = append(p.idle, s)
	}
	p.mu.Unlock()

	if retire {
		p.closeSession(s)
	}
}

// Discard closes a session without returning it to the pool. Used when the
// borrower saw a session-level failure and the instance cannot be trusted.
func (p *Pool) Discard(s *Session) {
	if s == nil {
		return
	}
	p.closeSession(s)
}

func (p *Pool) closeSession(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := p.provider.Close(ctx, s); err != nil {
		p.logger.Warn("Failed to close session", zap.String("session_id", s.ID), zap.Error(err))
	}
}

// Shutdown closes every idle session and rejects further acquisitions.
// Outstanding sessions are closed by their borrowers via Release/Discard.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, s := range idle {
		p.closeSession(s)
	}
	p.logger.Info("Session pool shut down", zap.Int("idle_closed", len(idle)))
}
