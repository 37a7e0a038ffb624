// Package manifest implements the Manifest / Provenance Builder (spec
// §4.13): it assembles the archive's self-description from every
// finalized dataset's metadata, the producer/environment snapshot, the
// computed capabilities, and the accumulated coverage/warnings.
package manifest

import (
	"time"

	"github.com/edgecomet/atlascrawl/internal/config"
	"github.com/edgecomet/atlascrawl/internal/dataset"
	"github.com/edgecomet/atlascrawl/internal/schema"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

// expectedDatasets is the full set of datasets a crawl could ever
// produce, used to fill in coverage_matrix entries for ones that ended
// up empty or excluded (spec §5's list: pages, edges, assets, errors,
// accessibility, console, styles, provenance, dom_snapshots).
var expectedDatasets = []string{
	"pages", "edges", "assets", "errors", "accessibility", "console",
	"styles", "provenance", "dom_snapshots",
}

// Input bundles everything the Builder needs beyond the finalized
// dataset metadata, which it takes directly from dataset.Manager.
type Input struct {
	CrawlID          string
	Cfg              *config.CrawlConfig
	Producer         types.Producer
	Environment      types.EnvironmentSnapshot
	SchemaRegistry   *schema.Registry
	Present          map[string]bool
	ExcludedReasons  map[string]string // dataset -> coverage reason when expected but never opened
	A11yEnabled      bool
	StartedAt        time.Time
	FinishedAt       time.Time
	TotalPages       int
	TotalErrors      int
	Warnings         []string
	CompletionReason types.CompletionReason
}

// Build assembles the Manifest from finalized dataset metadata plus Input,
// and the matching Provenance record for every dataset present in
// finalized, including one that finalized with zero records; a dataset
// whose writer was never opened gets no Provenance record (spec §4.13: "inputs=[] for leaf datasets extracted
// directly from pages").
func Build(in Input, finalized map[string]*dataset.Metadata) (*types.Manifest, []types.Provenance) {
	m := &types.Manifest{
		SpecVersion:      "1.0",
		CrawlID:          in.CrawlID,
		Producer:         in.Producer,
		Environment:      in.Environment,
		CoverageMatrix:   make(map[string]types.CoverageEntry, len(expectedDatasets)),
		Parts:            make(map[string][]types.PartMetadata, len(finalized)),
		Schemas:          in.SchemaRegistry.Entries(),
		Privacy:          privacyFromConfig(in.Cfg),
		Warnings:         in.Warnings,
		CompletionReason: in.CompletionReason,
		StartedAt:        in.StartedAt,
		FinishedAt:       in.FinishedAt,
		TotalPages:       in.TotalPages,
		TotalErrors:      in.TotalErrors,
	}

	provenance := make([]types.Provenance, 0, len(finalized))

	for _, name := range expectedDatasets {
		meta, ok := finalized[name]
		present := ok && meta.RecordCount > 0
		if override, has := in.Present[name]; has {
			present = override
		}
		entry := types.CoverageEntry{Expected: true, Present: present}
		if !present {
			if reason, hasReason := in.ExcludedReasons[name]; hasReason {
				entry.Reason = reason
			} else {
				entry.Reason = types.ReasonNoPages
			}
		}
		m.CoverageMatrix[name] = entry

		if !ok {
			continue
		}
		m.Parts[name] = meta.Parts

		provenance = append(provenance, types.Provenance{
			DatasetName: name,
			Producer:    in.Producer,
			CreatedAt:   in.FinishedAt,
			Inputs:      []types.ProvenanceInput{},
			Parameters: map[string]interface{}{
				"render_mode": in.Cfg.RenderMode,
				"replay_tier": in.Cfg.ReplayTier,
			},
			Output: types.ProvenanceOutput{
				RecordCount: meta.RecordCount,
				HashSHA256:  meta.HashSHA256,
			},
		})
	}

	return m, provenance
}

func privacyFromConfig(cfg *config.CrawlConfig) types.PrivacyPolicy {
	return types.PrivacyPolicy{
		StripCookies:      cfg.Privacy.StripCookies,
		StripAuthHeaders:  cfg.Privacy.StripAuthHeaders,
		RedactInputValues: cfg.Privacy.RedactInputValues,
		RedactForms:       cfg.Privacy.RedactForms,
	}
}
