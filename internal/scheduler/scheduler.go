// Package scheduler implements the Scheduler (spec §4.15): the top-level
// orchestrator that drives the Frontier through the Rate Governor, Robots
// Evaluator, Fetcher/Renderer, Extractors, Dataset Writers, Blob Store,
// and Checkpointer, and resolves the crawl's completion reason. Grounded
// on the teacher's internal/edge/orchestrator.RenderOrchestrator —
// constructor-injected dependencies, a per-item pipeline method, and
// structured event emission at each pipeline stage — generalized from
// "render one HTTP request" to "crawl one page to completion."
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/atlascrawl/internal/blobstore"
	"github.com/edgecomet/atlascrawl/internal/browserpool"
	"github.com/edgecomet/atlascrawl/internal/checkpoint"
	"github.com/edgecomet/atlascrawl/internal/config"
	"github.com/edgecomet/atlascrawl/internal/dataset"
	atlasfetch "github.com/edgecomet/atlascrawl/internal/fetch"
	"github.com/edgecomet/atlascrawl/internal/frontier"
	"github.com/edgecomet/atlascrawl/internal/normalize"
	"github.com/edgecomet/atlascrawl/internal/rategovernor"
	"github.com/edgecomet/atlascrawl/internal/render"
	"github.com/edgecomet/atlascrawl/internal/robots"
	"github.com/edgecomet/atlascrawl/internal/schema"
	"github.com/edgecomet/atlascrawl/internal/scheduler/eventlog"
	"github.com/edgecomet/atlascrawl/internal/urlfilter"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

// Status is the Scheduler's coarse-grained run state (spec §4.15: Idle ->
// Running -> (Paused)* -> {Finalizing -> Done} | {Canceling -> Done|Failed}
// | Failed).
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusPaused
	StatusFinalizing
	StatusCanceling
	StatusDone
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusFinalizing:
		return "finalizing"
	case StatusCanceling:
		return "canceling"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Deps bundles every collaborator the Scheduler drives. All fields are
// required except EventEmitter, which defaults to a no-op.
type Deps struct {
	Frontier       *frontier.Frontier
	Normalizer     *normalize.Normalizer
	URLFilter      *urlfilter.Filter
	RateGovernor   *rategovernor.Governor
	Robots         *robots.Evaluator
	Fetcher        *atlasfetch.Fetcher
	BrowserPool    *browserpool.Pool
	Renderer       *render.Renderer
	BlobStore      *blobstore.Store
	SchemaRegistry *schema.Registry
	Datasets       *dataset.Manager
	Checkpointer   *checkpoint.Checkpointer
	EventEmitter   eventlog.Emitter
	Logger         *zap.Logger
}

// Scheduler is the crawl run's single top-level orchestrator.
type Scheduler struct {
	cfg  *config.CrawlConfig
	deps Deps

	mu             sync.Mutex
	status         Status
	pagesCompleted int
	errorsCount    int
	startedAt      time.Time
	finishedAt     time.Time
	capped         bool   // maxPages reached
	errorBudgetHit bool   // maxErrors reached
	failureErr     error  // set on unrecoverable failure
	manualCancel   bool   // Cancel() called by operator
	warnings       []string
}

// New builds a Scheduler. Deps fields left nil use a no-op where one
// exists (EventEmitter only); every other nil dependency is a caller bug
// since a crawl cannot proceed without it.
func New(cfg *config.CrawlConfig, deps Deps) *Scheduler {
	if deps.EventEmitter == nil {
		deps.EventEmitter = eventlog.NoopEmitter{}
	}
	return &Scheduler{cfg: cfg, deps: deps, status: StatusIdle}
}

// Status returns the Scheduler's current run state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Cancel requests a graceful stop: in-flight pages finish, no new pages are
// admitted, and the run proceeds to Finalizing as if the frontier had
// drained (spec §4.15's Canceling state).
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusRunning || s.status == StatusPaused {
		s.status = StatusCanceling
		s.manualCancel = true
	}
}

// Seed admits the configured seed URLs at depth 0 before Run starts
// pulling workers. Called once, before Run.
func (s *Scheduler) Seed(seeds []string) {
	for _, raw := range seeds {
		s.admit(raw, 0, "")
	}
}

// admit attempts to enqueue rawURL at depth and returns the page_id
// assigned to it — either freshly admitted or, for a URL already seen,
// the page_id recorded on first admission — or "" if the URL never
// entered the frontier (filtered, over depth, or never admitted due to
// an error). The returned page_id lets callers (persistEdgesAndAssets)
// backfill an edge's target_page_id even when the target was already
// in the frontier from an earlier page.
func (s *Scheduler) admit(rawURL string, depth int, discoveredFrom string) string {
	if !s.deps.URLFilter.Allowed(rawURL) {
		return ""
	}
	result, err := s.deps.Frontier.Admit(rawURL, depth, discoveredFrom)
	if err != nil {
		s.deps.Logger.Debug("admission rejected", zap.String("url", rawURL), zap.Error(err))
		return ""
	}
	if result.Capped {
		s.mu.Lock()
		s.capped = true
		s.mu.Unlock()
	}
	s.deps.EventEmitter.Emit(eventlog.KindAdmission, result.PageID, rawURL, map[string]interface{}{
		"admitted": result.Admitted,
		"depth":    depth,
		"capped":   result.Capped,
	})
	return result.PageID
}

// Run drives the crawl to completion: pulls pages off the Frontier with up
// to cfg.Limits.Concurrency workers, processes each through the page
// pipeline, and returns once the frontier drains, the operator cancels, or
// the error budget is exhausted. It does not build the manifest or write
// the archive — see the manifest and archive packages, invoked by the
// caller (cmd/atlas-crawl) once Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.status = StatusRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	concurrency := s.cfg.Limits.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(runCtx, cancelRun)
		}()
	}
	wg.Wait()

	s.mu.Lock()
	s.finishedAt = time.Now()
	if s.failureErr != nil {
		s.status = StatusFailed
	} else {
		s.status = StatusFinalizing
	}
	s.mu.Unlock()

	s.deps.EventEmitter.Emit(eventlog.KindShutdownReason, "", "", map[string]interface{}{
		"reason": string(s.CompletionReason()),
	})

	if s.deps.Checkpointer != nil {
		_ = s.saveCheckpoint()
	}

	if s.failureErr != nil {
		return s.failureErr
	}
	s.mu.Lock()
	s.status = StatusDone
	s.mu.Unlock()
	return nil
}

// worker repeatedly pops a page off the Frontier and processes it until the
// frontier is empty, the run is canceled, or ctx is done.
func (s *Scheduler) worker(ctx context.Context, cancelRun context.CancelFunc) {
	for {
		if ctx.Err() != nil {
			return
		}
		if s.Status() == StatusCanceling {
			return
		}

		entry, ok := s.deps.Frontier.Pop()
		if !ok {
			return
		}

		s.processPage(ctx, entry)

		s.mu.Lock()
		hitBudget := s.cfg.MaxErrors > 0 && s.errorsCount > s.cfg.MaxErrors
		if hitBudget {
			s.errorBudgetHit = true
		}
		s.mu.Unlock()
		if hitBudget {
			cancelRun()
			return
		}

		if s.deps.Checkpointer != nil && s.deps.Checkpointer.OnPageCompleted() {
			_ = s.saveCheckpoint()
		}
	}
}

func (s *Scheduler) saveCheckpoint() error {
	s.mu.Lock()
	state := checkpoint.State{
		StartedAt:      s.startedAt,
		SavedAt:        time.Now(),
		Frontier:       s.deps.Frontier.Snapshot(),
		PagesCompleted: s.pagesCompleted,
		ErrorsCount:    s.errorsCount,
	}
	s.mu.Unlock()

	if err := s.deps.Checkpointer.Save(state); err != nil {
		s.deps.Logger.Warn("checkpoint save failed", zap.Error(err))
		return err
	}
	s.deps.EventEmitter.Emit(eventlog.KindCheckpointWritten, "", "", map[string]interface{}{
		"pages_completed": state.PagesCompleted,
	})
	return nil
}

// Resume restores Frontier state from a prior checkpoint before Run is
// called, matching the teacher's pattern of a separate construction-time
// restore step rather than folding resume logic into Run itself.
func (s *Scheduler) Resume(state checkpoint.State) {
	s.deps.Frontier.Restore(state.Frontier)
	s.mu.Lock()
	s.startedAt = state.StartedAt
	s.pagesCompleted = state.PagesCompleted
	s.errorsCount = state.ErrorsCount
	s.mu.Unlock()
}

// CompletionReason resolves the terminal state per spec §4.15/§8's
// precedence (error_budget > capped > manual > finished, failed always
// wins).
func (s *Scheduler) CompletionReason() types.CompletionReason {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failureErr != nil {
		return types.CompletionFailed
	}
	var candidates []types.CompletionReason
	if s.errorBudgetHit {
		candidates = append(candidates, types.CompletionErrorBudget)
	}
	if s.capped {
		candidates = append(candidates, types.CompletionCapped)
	}
	if s.manualCancel {
		candidates = append(candidates, types.CompletionManual)
	}
	return types.ResolveCompletionReason(candidates...)
}

// Counters reports running totals for the manifest builder.
func (s *Scheduler) Counters() (pages, errs int, startedAt, finishedAt time.Time, warnings []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagesCompleted, s.errorsCount, s.startedAt, s.finishedAt, append([]string(nil), s.warnings...)
}

func (s *Scheduler) recordError() {
	s.mu.Lock()
	s.errorsCount++
	s.mu.Unlock()
}

func (s *Scheduler) recordCompletion() {
	s.mu.Lock()
	s.pagesCompleted++
	s.mu.Unlock()
}

func (s *Scheduler) warn(msg string) {
	s.mu.Lock()
	s.warnings = append(s.warnings, msg)
	s.mu.Unlock()
}
