// Package checkpoint implements the Checkpointer (spec §4.12): durable,
// resumable in-progress crawl state. Grounded on the teacher's
// internal/edge/cache.FilesystemCache atomic temp-file-then-rename write
// pattern, generalized from a single HTML body write to a periodic
// whole-state snapshot.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/atlascrawl/internal/frontier"
)

const fileName = "checkpoint.json"

// State is everything the scheduler needs to resume a crawl in progress
// (spec §4.12: frontier snapshot including page_ids, visited set,
// counters, and crawl start time). Per-origin rate state is not part of
// this payload: the Rate Governor's token buckets already live in Redis,
// which survives a process restart on its own.
type State struct {
	CrawlID        string             `json:"crawl_id"`
	StartedAt      time.Time          `json:"started_at"`
	SavedAt        time.Time          `json:"saved_at"`
	Frontier       frontier.Snapshot  `json:"frontier"`
	PagesCompleted int                `json:"pages_completed"`
	ErrorsCount    int                `json:"errors_count"`
}

// Checkpointer periodically (every IntervalPages completed pages) and on
// graceful shutdown persists State to stagingDir/checkpoint.json.
type Checkpointer struct {
	path          string
	intervalPages int
	logger        *zap.Logger

	mu             sync.Mutex
	pagesSinceSave int
}

// New returns a Checkpointer rooted at stagingDir. intervalPages<=0 falls
// back to the spec default of 500.
func New(stagingDir string, intervalPages int, logger *zap.Logger) *Checkpointer {
	if intervalPages <= 0 {
		intervalPages = 500
	}
	return &Checkpointer{
		path:          filepath.Join(stagingDir, fileName),
		intervalPages: intervalPages,
		logger:        logger,
	}
}

// OnPageCompleted records one more completed page and reports whether an
// interval checkpoint is now due (the caller calls Save if so).
func (c *Checkpointer) OnPageCompleted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pagesSinceSave++
	if c.pagesSinceSave >= c.intervalPages {
		c.pagesSinceSave = 0
		return true
	}
	return false
}

// Save atomically writes state to disk (write-then-rename, spec §4.12).
func (c *Checkpointer) Save(state State) error {
	state.SavedAt = time.Now().UTC()

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal state: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("checkpoint: write temp: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("checkpoint: rename: %w", err)
	}

	c.logger.Info("checkpoint written",
		zap.String("crawl_id", state.CrawlID),
		zap.Int("pages_completed", state.PagesCompleted))
	return nil
}

// Load reads a previously written checkpoint, reporting found=false (not
// an error) when no checkpoint exists yet.
func (c *Checkpointer) Load() (state State, found bool, err error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("checkpoint: read %s: %w", c.path, err)
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, false, fmt.Errorf("checkpoint: parse %s: %w", c.path, err)
	}
	return state, true, nil
}
