package rategovernor

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestGovernor(t *testing.T, cfg Config) (*Governor, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, cfg, nil), mr
}

func TestAcquireRelease_GrantsWithinBurst(t *testing.T) {
	g, _ := newTestGovernor(t, Config{GlobalConcurrency: 4, DefaultRPS: 10})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lease, err := g.Acquire(ctx, "https://example.com", 0)
	require.NoError(t, err)
	require.NotNil(t, lease)
	lease.Release()
}

func TestAcquire_GlobalConcurrencyLimitsSlots(t *testing.T) {
	g, _ := newTestGovernor(t, Config{GlobalConcurrency: 1, DefaultRPS: 100})

	ctx := context.Background()
	lease1, err := g.Acquire(ctx, "https://example.com", 0)
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(shortCtx, "https://example.com", 0)
	require.Error(t, err)

	lease1.Release()
}

func TestAcquire_CrawlDelayOverridesRPS(t *testing.T) {
	g, _ := newTestGovernor(t, Config{GlobalConcurrency: 4, DefaultRPS: 1000})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	lease, err := g.Acquire(ctx, "https://slow.example.com", 2*time.Second)
	require.NoError(t, err)
	lease.Release()

	start := time.Now()
	lease2, err := g.Acquire(ctx, "https://slow.example.com", 2*time.Second)
	require.NoError(t, err)
	lease2.Release()
	require.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestAcquire_ContextCancelDuringTokenWait(t *testing.T) {
	g, _ := newTestGovernor(t, Config{GlobalConcurrency: 4, DefaultRPS: 0.1})

	ctx := context.Background()
	lease, err := g.Acquire(ctx, "https://origin-x.example.com", 0)
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(shortCtx, "https://origin-x.example.com", 0)
	require.Error(t, err)

	lease.Release()
}
