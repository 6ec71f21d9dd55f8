// File: internal/browser/pool_test.go
package browser_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/optinreach/internal/browser"
	"github.com/xkilldash9x/optinreach/internal/config"
)

// fakeProvider counts sessions and records creation timestamps so tests can
// observe provisioning pressure.
type fakeProvider struct {
	mu        sync.Mutex
	created   int
	closed    []string
	createdAt []time.Time
	createErr error
}

func (f *fakeProvider) Create(ctx context.Context) (*browser.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	f.createdAt = append(f.createdAt, time.Now())
	return &browser.Session{ID: fmt.Sprintf("s-%d", f.created), CreatedAt: time.Now()}, nil
}

func (f *fakeProvider) Close(ctx context.Context, s *browser.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, s.ID)
	return nil
}

func (f *fakeProvider) stats() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, len(f.closed)
}

func newTestPool(t *testing.T, provider browser.Provider, mutate func(*config.PoolConfig)) *browser.Pool {
	t.Helper()
	cfg := config.PoolConfig{
		MaxIdle:           4,
		ReuseCap:          3,
		MinCreateInterval: time.Millisecond,
		ProvisionAttempts: 3,
		ProvisionBackoff:  time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return browser.NewPool(cfg, provider, zaptest.NewLogger(t))
}

func TestPool_ReusesReleasedSession(t *testing.T) {
	provider := &fakeProvider{}
	pool := newTestPool(t, provider, nil)
	defer pool.Shutdown()

	s1, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(s1)

	s2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(s2)

	assert.Equal(t, s1.ID, s2.ID)
	created, _ := provider.stats()
	assert.Equal(t, 1, created)
}

func TestPool_ReuseCapRetiresSession(t *testing.T) {
	provider := &fakeProvider{}
	pool := newTestPool(t, provider, func(cfg *config.PoolConfig) { cfg.ReuseCap = 2 })
	defer pool.Shutdown()

	ctx := context.Background()

	// Two borrows exhaust the cap; the release after the second must close
	// the session instead of pooling it.
	s, err := pool.Acquire(ctx)
	require.NoError(t, err)
	pool.Release(s)
	s, err = pool.Acquire(ctx)
	require.NoError(t, err)
	pool.Release(s)

	created, closed := provider.stats()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, closed)

	// The next acquire has nothing idle to hand out.
	s2, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, s2.ID)
	pool.Release(s2)
}

func TestPool_MinCreateIntervalSpacing(t *testing.T) {
	const interval = 40 * time.Millisecond
	provider := &fakeProvider{}
	pool := newTestPool(t, provider, func(cfg *config.PoolConfig) {
		cfg.MinCreateInterval = interval
	})
	defer pool.Shutdown()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := pool.Acquire(ctx)
		require.NoError(t, err)
	}

	provider.mu.Lock()
	stamps := append([]time.Time(nil), provider.createdAt...)
	provider.mu.Unlock()
	require.Len(t, stamps, 3)

	// The first creation may be immediate; every subsequent one must wait
	// out the minimum interval.
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.GreaterOrEqual(t, gap, interval-5*time.Millisecond,
			"creation %d followed too quickly", i)
	}
}

func TestPool_ProvisioningExhaustsAttempts(t *testing.T) {
	provider := &fakeProvider{createErr: fmt.Errorf("upstream capacity exceeded")}
	pool := newTestPool(t, provider, nil)
	defer pool.Shutdown()

	start := time.Now()
	_, err := pool.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Contains(t, err.Error(), "upstream capacity exceeded")
	// Two backoff waits (1ms and 2ms) occurred between the three attempts.
	assert.GreaterOrEqual(t, time.Since(start), 3*time.Millisecond)
}

func TestPool_AcquireHonorsCancellation(t *testing.T) {
	provider := &fakeProvider{createErr: fmt.Errorf("still failing")}
	pool := newTestPool(t, provider, func(cfg *config.PoolConfig) {
		cfg.ProvisionBackoff = time.Minute
	})
	defer pool.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_DiscardNeverPools(t *testing.T) {
	provider := &fakeProvider{}
	pool := newTestPool(t, provider, nil)
	defer pool.Shutdown()

	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Discard(s)

	_, closed := provider.stats()
	assert.Equal(t, 1, closed)

	s2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, s2.ID)
	pool.Release(s2)
}

func TestPool_ShutdownClosesIdleAndRejectsAcquire(t *testing.T) {
	provider := &fakeProvider{}
	pool := newTestPool(t, provider, nil)

	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(s)

	pool.Shutdown()

	_, closed := provider.stats()
	assert.Equal(t, 1, closed)

	_, err = pool.Acquire(context.Background())
	assert.Error(t, err)
}

func TestPool_ReleaseAfterShutdownCloses(t *testing.T) {
	provider := &fakeProvider{}
	pool := newTestPool(t, provider, nil)

	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	pool.Shutdown()
	pool.Release(s)

	_, closed := provider.stats()
	assert.Equal(t, 1, closed)
}
