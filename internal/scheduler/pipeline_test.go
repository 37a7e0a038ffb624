package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/edgecomet/atlascrawl/internal/blobstore"
	"github.com/edgecomet/atlascrawl/internal/config"
	"github.com/edgecomet/atlascrawl/internal/dataset"
	"github.com/edgecomet/atlascrawl/internal/extract"
	"github.com/edgecomet/atlascrawl/internal/frontier"
	"github.com/edgecomet/atlascrawl/internal/normalize"
	"github.com/edgecomet/atlascrawl/internal/render"
	"github.com/edgecomet/atlascrawl/internal/schema"
	"github.com/edgecomet/atlascrawl/internal/scheduler/eventlog"
	"github.com/edgecomet/atlascrawl/internal/urlfilter"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	logger := zaptest.NewLogger(t)

	registry, err := schema.New()
	require.NoError(t, err)

	blobs, err := blobstore.New(t.TempDir(), logger)
	require.NoError(t, err)

	datasets := dataset.NewManager(t.TempDir(), registry, false, logger)
	fr := frontier.New(normalize.New(normalize.ParamKeep), frontier.Config{MaxDepth: -1})

	cfg := &config.CrawlConfig{RenderMode: types.RenderModeRaw}

	return New(cfg, Deps{
		Frontier:     fr,
		URLFilter:    urlfilter.New(nil, nil),
		Datasets:     datasets,
		BlobStore:    blobs,
		Logger:       logger,
		EventEmitter: eventlog.NoopEmitter{},
	})
}

func TestHeaderLookup_CaseInsensitive(t *testing.T) {
	headers := map[string]string{"X-Robots-Tag": "noindex"}
	assert.Equal(t, "noindex", headerLookup(headers, "x-robots-tag"))
	assert.Equal(t, "", headerLookup(headers, "x-missing"))
}

func TestDiscoverySource_SeedVsPage(t *testing.T) {
	seed := frontier.Entry{Depth: 0, DiscoveredFrom: ""}
	assert.Equal(t, types.DiscoverySeed, discoverySource(seed))

	discovered := frontier.Entry{Depth: 1, DiscoveredFrom: "page-1"}
	assert.Equal(t, types.DiscoveryPage, discoverySource(discovered))
}

func TestHashIfPresent_EmptyVsNonEmpty(t *testing.T) {
	assert.Equal(t, "", hashIfPresent(nil))
	assert.NotEmpty(t, hashIfPresent([]byte("hello")))
}

func TestApplyExtractedFields_CopiesEveryPageField(t *testing.T) {
	page := &types.Page{}
	result := &extract.Result{
		Page: extract.PageFields{
			Title:       "Example",
			H1:          "Hello",
			WordCount:   42,
			Language:    "en",
			DOMHash:     "dom-hash",
			ContentHash: "content-hash",
		},
	}
	applyExtractedFields(page, result)
	assert.Equal(t, "Example", page.Title)
	assert.Equal(t, "Hello", page.H1)
	assert.Equal(t, 42, page.WordCount)
	assert.Equal(t, "en", page.Language)
	assert.Equal(t, "dom-hash", page.DOMHash)
	assert.Equal(t, "content-hash", page.ContentHash)
}

func TestPersistEdgesAndAssets_WritesAndAdmitsInternalLinks(t *testing.T) {
	s := newTestScheduler(t)
	entry := frontier.Entry{PageID: "page-1", URL: "https://example.com/", Depth: 0}
	result := &extract.Result{
		Edges: []types.Edge{
			{SourceURL: "https://example.com/", TargetURL: "https://example.com/next", IsExternal: false},
			{SourceURL: "https://example.com/", TargetURL: "https://other.example/", IsExternal: true},
		},
		Assets: []types.Asset{
			{AssetURL: "https://example.com/logo.png", Type: types.AssetImage},
		},
	}

	require.NotPanics(t, func() {
		s.persistEdgesAndAssets(entry, result)
	})

	snap := s.deps.Frontier.Snapshot()
	assert.Equal(t, 1, snap.Admitted, "only the internal link should be re-admitted into the frontier")
}

func TestPersistDOMSnapshot_WritesBlobAndRecord(t *testing.T) {
	s := newTestScheduler(t)
	entry := frontier.Entry{PageID: "page-1", URL: "https://example.com/"}

	require.NotPanics(t, func() {
		s.persistDOMSnapshot(entry, []byte("<html></html>"))
	})
}

func TestWriteError_RecordsErrorAndIncrementsCounter(t *testing.T) {
	s := newTestScheduler(t)
	entry := frontier.Entry{PageID: "page-1", URL: "https://example.com/bad"}

	s.writeError(entry, types.PhaseFetch, "timeout", "request timed out")

	_, errs, _, _, _ := s.Counters()
	assert.Equal(t, 1, errs)
}

func TestPersistRenderExtras_WritesConsoleAccessibilityStyles(t *testing.T) {
	s := newTestScheduler(t)
	entry := frontier.Entry{PageID: "page-1"}
	result := &render.Result{
		Console:       []types.Console{{Level: "warn", Text: "deprecated api"}},
		Accessibility: &types.Accessibility{},
		Styles:        &types.Styles{},
	}

	require.NotPanics(t, func() {
		s.persistRenderExtras(entry, result)
	})
}
