package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/edgecomet/atlascrawl/internal/checkpoint"
	"github.com/edgecomet/atlascrawl/internal/config"
	"github.com/edgecomet/atlascrawl/internal/frontier"
	"github.com/edgecomet/atlascrawl/internal/normalize"
	"github.com/edgecomet/atlascrawl/internal/urlfilter"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

func newMinimalScheduler(t *testing.T) *Scheduler {
	t.Helper()
	logger := zaptest.NewLogger(t)
	fr := frontier.New(normalize.New(normalize.ParamKeep), frontier.Config{MaxDepth: -1, MaxPages: 2})
	cfg := &config.CrawlConfig{RenderMode: types.RenderModeRaw, Limits: config.LimitsConfig{Concurrency: 2}}
	return New(cfg, Deps{
		Frontier:  fr,
		URLFilter: urlfilter.New(nil, []string{"https://example.com/blocked/*"}),
		Logger:    logger,
	})
}

func TestStatus_StringValues(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "running", StatusRunning.String())
	assert.Equal(t, "paused", StatusPaused.String())
	assert.Equal(t, "finalizing", StatusFinalizing.String())
	assert.Equal(t, "canceling", StatusCanceling.String())
	assert.Equal(t, "done", StatusDone.String())
	assert.Equal(t, "failed", StatusFailed.String())
}

func TestNew_DefaultsNilEventEmitterToNoop(t *testing.T) {
	s := newMinimalScheduler(t)
	assert.NotNil(t, s.deps.EventEmitter)
	assert.Equal(t, StatusIdle, s.Status())
}

func TestSeed_AdmitsAllowedURLsAndRejectsDenied(t *testing.T) {
	s := newMinimalScheduler(t)
	s.Seed([]string{
		"https://example.com/",
		"https://example.com/blocked/page",
	})

	snap := s.deps.Frontier.Snapshot()
	assert.Equal(t, 1, snap.Admitted, "the denied URL should never reach the frontier")
}

func TestSeed_SetsCappedWhenMaxPagesExceeded(t *testing.T) {
	s := newMinimalScheduler(t)
	s.Seed([]string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	})

	s.mu.Lock()
	capped := s.capped
	s.mu.Unlock()
	assert.True(t, capped, "third seed should be rejected by the 2-page cap")
}

func TestCancel_TransitionsRunningToCanceling(t *testing.T) {
	s := newMinimalScheduler(t)
	s.mu.Lock()
	s.status = StatusRunning
	s.mu.Unlock()

	s.Cancel()

	assert.Equal(t, StatusCanceling, s.Status())
	assert.Equal(t, types.CompletionManual, s.CompletionReason())
}

func TestCancel_NoOpWhenIdle(t *testing.T) {
	s := newMinimalScheduler(t)
	s.Cancel()
	assert.Equal(t, StatusIdle, s.Status())
}

func TestCompletionReason_PrecedenceOrder(t *testing.T) {
	s := newMinimalScheduler(t)

	s.mu.Lock()
	s.manualCancel = true
	s.capped = true
	s.errorBudgetHit = true
	s.mu.Unlock()
	assert.Equal(t, types.CompletionErrorBudget, s.CompletionReason())

	s.mu.Lock()
	s.errorBudgetHit = false
	s.mu.Unlock()
	assert.Equal(t, types.CompletionCapped, s.CompletionReason())

	s.mu.Lock()
	s.capped = false
	s.mu.Unlock()
	assert.Equal(t, types.CompletionManual, s.CompletionReason())

	s.mu.Lock()
	s.manualCancel = false
	s.mu.Unlock()
	assert.Equal(t, types.CompletionFinished, s.CompletionReason())
}

func TestCompletionReason_FailureAlwaysWins(t *testing.T) {
	s := newMinimalScheduler(t)
	s.mu.Lock()
	s.errorBudgetHit = true
	s.failureErr = assert.AnError
	s.mu.Unlock()

	assert.Equal(t, types.CompletionFailed, s.CompletionReason())
}

func TestSaveCheckpointAndResume_RoundTrips(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cp := checkpoint.New(t.TempDir(), 1, logger)

	fr := frontier.New(normalize.New(normalize.ParamKeep), frontier.Config{MaxDepth: -1})
	cfg := &config.CrawlConfig{RenderMode: types.RenderModeRaw}
	s := New(cfg, Deps{Frontier: fr, URLFilter: urlfilter.New(nil, nil), Checkpointer: cp, Logger: logger})

	s.Seed([]string{"https://example.com/"})
	s.recordCompletion()
	s.recordError()

	require.NoError(t, s.saveCheckpoint())

	state, found, err := cp.Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, state.PagesCompleted)
	assert.Equal(t, 1, state.ErrorsCount)

	fr2 := frontier.New(normalize.New(normalize.ParamKeep), frontier.Config{MaxDepth: -1})
	s2 := New(cfg, Deps{Frontier: fr2, URLFilter: urlfilter.New(nil, nil), Logger: logger})
	s2.Resume(state)

	pages, errs, _, _, _ := s2.Counters()
	assert.Equal(t, 1, pages)
	assert.Equal(t, 1, errs)
}

func TestWarn_AppendsToCounters(t *testing.T) {
	s := newMinimalScheduler(t)
	s.warn("something degraded")
	_, _, _, _, warnings := s.Counters()
	require.Len(t, warnings, 1)
	assert.Equal(t, "something degraded", warnings[0])
}
