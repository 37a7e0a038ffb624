package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/atlascrawl/internal/config"
	"github.com/edgecomet/atlascrawl/internal/dataset"
	"github.com/edgecomet/atlascrawl/internal/schema"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

func TestComputeCapabilities_CoreRawMode(t *testing.T) {
	cfg := &config.CrawlConfig{Profile: config.ProfileCore, RenderMode: types.RenderModeRaw, ReplayTier: types.ReplayTierHTML}
	caps := ComputeCapabilities(cfg, false)
	assert.Contains(t, caps, types.CapSEOCore)
	assert.NotContains(t, caps, types.CapSEOEnhanced)
	assert.NotContains(t, caps, types.CapRenderDOM)
	assert.Contains(t, caps, types.CapReplayHTML)
}

func TestComputeCapabilities_FullModeFullTier(t *testing.T) {
	cfg := &config.CrawlConfig{Profile: config.ProfileFull, RenderMode: types.RenderModeFull, ReplayTier: types.ReplayTierFull}
	caps := ComputeCapabilities(cfg, true)
	assert.Contains(t, caps, types.CapSEOEnhanced)
	assert.Contains(t, caps, types.CapRenderDOM)
	assert.Contains(t, caps, types.CapRenderNetlog)
	assert.Contains(t, caps, types.CapA11yCore)
	assert.Contains(t, caps, types.CapReplayImages)
}

func TestBuild_CoverageMatrixAndProvenance(t *testing.T) {
	reg, err := schema.New()
	require.NoError(t, err)

	cfg := &config.CrawlConfig{RenderMode: types.RenderModeFull, ReplayTier: types.ReplayTierHTML}
	finalized := map[string]*dataset.Metadata{
		"pages": {Name: "pages", Version: "v1", RecordCount: 2, HashSHA256: "abc", SchemaURI: "x"},
	}

	in := Input{
		CrawlID: "crawl-1", Cfg: cfg, SchemaRegistry: reg,
		ExcludedReasons:  map[string]string{"dom_snapshots": types.ReasonModeExcluded},
		StartedAt:        time.Now().Add(-time.Minute),
		FinishedAt:       time.Now(),
		TotalPages:       2,
		CompletionReason: types.CompletionFinished,
	}

	m, provenance := Build(in, finalized)

	assert.True(t, m.CoverageMatrix["pages"].Present)
	assert.False(t, m.CoverageMatrix["dom_snapshots"].Present)
	assert.Equal(t, types.ReasonModeExcluded, m.CoverageMatrix["dom_snapshots"].Reason)
	assert.False(t, m.CoverageMatrix["errors"].Present)
	assert.Equal(t, types.ReasonNoPages, m.CoverageMatrix["errors"].Reason)

	require.Len(t, provenance, 1)
	assert.Equal(t, "pages", provenance[0].DatasetName)
	assert.Equal(t, 2, provenance[0].Output.RecordCount)
	assert.Empty(t, provenance[0].Inputs)
}
