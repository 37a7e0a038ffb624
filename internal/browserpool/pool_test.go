package browserpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNew_EphemeralPoolLaunchesConcurrencyInstances(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Concurrency = 3
	logger := zaptest.NewLogger(t)

	pool, err := New(cfg, logger)
	require.NoError(t, err)
	defer pool.Shutdown()

	stats := pool.Stats()
	assert.Equal(t, 3, stats.TotalInstances)
	assert.Equal(t, 3, stats.AvailableInstances)
}

func TestAcquireRelease_Ephemeral(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Concurrency = 2
	logger := zaptest.NewLogger(t)

	pool, err := New(cfg, logger)
	require.NoError(t, err)
	defer pool.Shutdown()

	lease, err := pool.Acquire(context.Background(), "", "req-1")
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, StatusRendering, lease.Context().GetStatus())
	assert.Equal(t, 1, pool.Stats().AvailableInstances)

	lease.Release()
	assert.Equal(t, StatusIdle, lease.Context().GetStatus())
	assert.Equal(t, 2, pool.Stats().AvailableInstances)
}

func TestAcquire_ConcurrencyCapsOutstandingLeases(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Concurrency = 1
	logger := zaptest.NewLogger(t)

	pool, err := New(cfg, logger)
	require.NoError(t, err)
	defer pool.Shutdown()

	lease, err := pool.Acquire(context.Background(), "", "req-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, err = pool.Acquire(ctx, "", "req-2")
	assert.Error(t, err)

	lease.Release()
}

func TestAcquire_PersistentSessionReusesOriginContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Concurrency = 2
	cfg.PersistSession = true
	cfg.StorageStateDir = t.TempDir()
	logger := zaptest.NewLogger(t)

	pool, err := New(cfg, logger)
	require.NoError(t, err)
	defer pool.Shutdown()

	l1, err := pool.Acquire(context.Background(), "https://example.com", "req-1")
	require.NoError(t, err)
	id1 := l1.Context().ID
	l1.Release()

	l2, err := pool.Acquire(context.Background(), "https://example.com", "req-2")
	require.NoError(t, err)
	assert.Equal(t, id1, l2.Context().ID)
	l2.Release()

	l3, err := pool.Acquire(context.Background(), "https://other.example.com", "req-3")
	require.NoError(t, err)
	assert.NotEqual(t, id1, l3.Context().ID)
	l3.Release()
}
