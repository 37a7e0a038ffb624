package manifest

import (
	"github.com/edgecomet/atlascrawl/internal/config"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

// ComputeCapabilities derives the closed-vocabulary capability set from
// config (spec §4.13/§6): seo.core is always present; render/a11y/replay
// capabilities follow render mode, replay tier, and explicit opt-outs.
func ComputeCapabilities(cfg *config.CrawlConfig, a11yEnabled bool) []string {
	caps := []string{types.CapSEOCore}

	if cfg.Profile == config.ProfileFull {
		caps = append(caps, types.CapSEOEnhanced)
	}

	rendered := cfg.RenderMode == types.RenderModePrerender || cfg.RenderMode == types.RenderModeFull
	if rendered {
		caps = append(caps, types.CapRenderDOM)
		if a11yEnabled {
			caps = append(caps, types.CapA11yCore)
		}
	}
	if cfg.RenderMode == types.RenderModeFull {
		caps = append(caps, types.CapRenderNetlog)
	}

	switch cfg.ReplayTier {
	case types.ReplayTierHTML:
		caps = append(caps, types.CapReplayHTML)
	case types.ReplayTierHTMLCSS:
		caps = append(caps, types.CapReplayHTML, types.CapReplayCSS, types.CapReplayFonts)
	case types.ReplayTierFull:
		caps = append(caps, types.CapReplayHTML, types.CapReplayCSS, types.CapReplayFonts,
			types.CapReplayJS, types.CapReplayImages)
	}

	return caps
}
