// Package frontier implements the Frontier (spec §4.4): an ordered,
// de-duplicated set of URLs awaiting a visit, admitted breadth-first by
// depth and FIFO within a depth, with checkpoint snapshot/restore support.
// De-dup sharding is grounded on the teacher's xxhash-keyed maps (general
// fast-lookup idiom), kept distinct from the spec-mandated SHA-1 url_key
// used for the externally visible identifier.
package frontier

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/edgecomet/atlascrawl/internal/normalize"
)

// Entry is one pending URL popped for processing.
type Entry struct {
	PageID         string
	URL            string
	NormalizedURL  string
	URLKey         string
	Depth          int
	DiscoveredFrom string
}

// AdmitResult reports whether a URL was newly admitted or deduplicated.
type AdmitResult struct {
	Admitted bool
	PageID   string
	// Capped is true when the admission was rejected because maxPages was
	// reached, distinct from a plain depth or duplicate rejection.
	Capped bool
}

// Frontier is a single logical FIFO-by-depth queue. Admission is serialized
// by a single mutex per spec §5 ("Admission is serialized... No two workers
// can be assigned the same url_key"); the visited set itself is keyed by
// xxhash(url_key) rather than the 16-char url_key string, trading an
// 8-byte fixed-width map key for the string-keyed alternative.
type Frontier struct {
	mu sync.Mutex

	normalizer *normalize.Normalizer
	maxDepth   int
	maxPages   int

	queues   [][]Entry        // one FIFO per depth, depth-indexed by growth
	visited  map[uint64]string // xxhash(url_key) -> page_id
	admitted int
	headIdx  map[int]int
}

// Config configures a Frontier.
type Config struct {
	MaxDepth int // -1 = unlimited
	MaxPages int // 0 = unlimited
}

// New builds an empty Frontier.
func New(normalizer *normalize.Normalizer, cfg Config) *Frontier {
	return &Frontier{
		normalizer: normalizer,
		maxDepth:   cfg.MaxDepth,
		maxPages:   cfg.MaxPages,
		visited:    make(map[uint64]string),
		headIdx:    make(map[int]int),
	}
}

// Admit normalizes rawURL and inserts it at the given depth if it is new
// and within maxDepth/maxPages. Re-admission of a known url_key returns the
// existing page_id (spec invariant 7: page_id is never reused across URLs).
func (f *Frontier) Admit(rawURL string, depth int, discoveredFrom string) (AdmitResult, error) {
	result, err := f.normalizer.Normalize(rawURL)
	if err != nil {
		return AdmitResult{}, err
	}

	shardKey := xxhash.Sum64String(result.URLKey)

	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.visited[shardKey]; ok {
		return AdmitResult{Admitted: false, PageID: existing}, nil
	}

	if f.maxDepth >= 0 && depth > f.maxDepth {
		return AdmitResult{Admitted: false}, nil
	}

	if f.maxPages > 0 && f.admitted >= f.maxPages {
		return AdmitResult{Admitted: false, Capped: true}, nil
	}

	pageID := uuid.Must(uuid.NewV7()).String()
	f.visited[shardKey] = pageID
	f.admitted++

	entry := Entry{
		PageID:         pageID,
		URL:            rawURL,
		NormalizedURL:  result.NormalizedURL,
		URLKey:         result.URLKey,
		Depth:          depth,
		DiscoveredFrom: discoveredFrom,
	}
	f.enqueue(entry)

	return AdmitResult{Admitted: true, PageID: pageID}, nil
}

func (f *Frontier) enqueue(e Entry) {
	for len(f.queues) <= e.Depth {
		f.queues = append(f.queues, nil)
	}
	f.queues[e.Depth] = append(f.queues[e.Depth], e)
}

// Pop removes and returns the next entry in breadth-first, FIFO-within-depth
// order. The second return value is false when the frontier is empty.
func (f *Frontier) Pop() (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for depth := 0; depth < len(f.queues); depth++ {
		head := f.headIdx[depth]
		if head < len(f.queues[depth]) {
			entry := f.queues[depth][head]
			f.headIdx[depth] = head + 1
			return entry, true
		}
	}
	return Entry{}, false
}

// Size returns the number of entries not yet popped.
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := 0
	for depth, q := range f.queues {
		total += len(q) - f.headIdx[depth]
	}
	return total
}

// AdmittedCount returns the total number of URLs ever admitted.
func (f *Frontier) AdmittedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admitted
}

// PageID returns the page_id already assigned to url_key, if any.
func (f *Frontier) PageID(urlKey string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.visited[xxhash.Sum64String(urlKey)]
	return id, ok
}

// Snapshot is the serializable frontier state used by the checkpointer.
// Visited is keyed by the portable url_key string rather than the internal
// xxhash shortcut, since the hash is a pure lookup optimization and must
// not leak into the on-disk checkpoint format.
type Snapshot struct {
	Visited  map[string]string `json:"visited"`
	Admitted int               `json:"admitted"`
	Queues   [][]Entry         `json:"queues"`
	HeadIdx  map[int]int       `json:"head_idx"`
}

// Snapshot captures the current frontier state for checkpointing.
func (f *Frontier) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	visited := make(map[string]string, f.admitted)
	for _, q := range f.queues {
		for _, e := range q {
			visited[e.URLKey] = e.PageID
		}
	}
	queues := make([][]Entry, len(f.queues))
	for i, q := range f.queues {
		queues[i] = append([]Entry(nil), q...)
	}
	headIdx := make(map[int]int, len(f.headIdx))
	for k, v := range f.headIdx {
		headIdx[k] = v
	}

	return Snapshot{Visited: visited, Admitted: f.admitted, Queues: queues, HeadIdx: headIdx}
}

// Restore replaces the frontier's state with a previously captured
// snapshot, used when resuming from a checkpoint.
func (f *Frontier) Restore(s Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.visited = make(map[uint64]string, len(s.Visited))
	for urlKey, pageID := range s.Visited {
		f.visited[xxhash.Sum64String(urlKey)] = pageID
	}
	f.admitted = s.Admitted
	f.queues = make([][]Entry, len(s.Queues))
	for i, q := range s.Queues {
		f.queues[i] = append([]Entry(nil), q...)
	}
	f.headIdx = make(map[int]int, len(s.HeadIdx))
	for k, v := range s.HeadIdx {
		f.headIdx[k] = v
	}
}
