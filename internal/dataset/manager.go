package dataset

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/edgecomet/atlascrawl/internal/schema"
)

// DefaultVersion is the dataset schema version this build writes.
const DefaultVersion = "v1"

// Manager owns one Writer per dataset, opened lazily on first write so a
// crawl that never produces, say, console records doesn't leave an empty
// dataset directory behind.
type Manager struct {
	mu            sync.Mutex
	stagingDir    string
	registry      *schema.Registry
	strict        bool
	logger        *zap.Logger
	writers       map[string]*Writer
	finalizedMeta map[string]*Metadata
}

func NewManager(stagingDir string, registry *schema.Registry, strict bool, logger *zap.Logger) *Manager {
	return &Manager{
		stagingDir: stagingDir, registry: registry, strict: strict,
		logger: logger, writers: make(map[string]*Writer),
		finalizedMeta: make(map[string]*Metadata),
	}
}

// Write opens (if needed) and writes to the named dataset's writer.
func (m *Manager) Write(dataset string, record interface{}) error {
	w, err := m.writerFor(dataset)
	if err != nil {
		return err
	}
	return w.Write(record)
}

func (m *Manager) writerFor(dataset string) (*Writer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.writers[dataset]; ok {
		return w, nil
	}
	w, err := New(dataset, DefaultVersion, m.registry, m.stagingDir, m.strict, m.logger)
	if err != nil {
		return nil, fmt.Errorf("dataset manager: open %s: %w", dataset, err)
	}
	m.writers[dataset] = w
	return w, nil
}

// Present reports which datasets have had at least one writer opened
// (spec §4.13: a dataset is "present" in the coverage matrix iff at least
// one record was written).
func (m *Manager) Present() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.writers))
	for name, w := range m.writers {
		out[name] = w.RecordCount() > 0
	}
	return out
}

// RecordCount reports how many records have been written to the named
// dataset so far, or 0 if its writer was never opened.
func (m *Manager) RecordCount(dataset string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.writers[dataset]
	if !ok {
		return 0
	}
	return w.RecordCount()
}

// FinalizeAll finalizes every writer opened since the last call and
// returns the accumulated metadata for every dataset finalized so far,
// keyed by dataset name. Calling it more than once is safe — e.g. once
// after the crawl loop drains to finalize the page-derived datasets, and
// again after the provenance records (which describe those datasets'
// finalized hashes) have been written to their own dataset.
func (m *Manager) FinalizeAll() (map[string]*Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, w := range m.writers {
		if _, done := m.finalizedMeta[name]; done {
			continue
		}
		meta, err := w.Finalize()
		if err != nil {
			return nil, fmt.Errorf("dataset manager: finalize %s: %w", name, err)
		}
		m.finalizedMeta[name] = meta
	}

	results := make(map[string]*Metadata, len(m.finalizedMeta))
	for name, meta := range m.finalizedMeta {
		results[name] = meta
	}
	return results, nil
}
