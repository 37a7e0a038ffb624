package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// explicitFieldProbes maps the dotted field names ApplyProfile checks
// against their path in the raw YAML document.
var explicitFieldProbes = []struct {
	field string
	path  []string
}{
	{"renderMode", []string{"renderMode"}},
	{"replayTier", []string{"replayTier"}},
	{"media.captureScreenshots", []string{"media", "captureScreenshots"}},
	{"media.captureFavicons", []string{"media", "captureFavicons"}},
}

// Load reads a YAML crawl configuration file, starts from DefaultCrawlConfig,
// decodes the document on top of it, marks which profile-overridable fields
// were set explicitly, applies the profile preset, and validates the result.
func Load(path string) (*CrawlConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultCrawlConfig()
	// Clear the profile-overridable fields so ApplyProfile's unset checks
	// below can tell "document left it unset" from "DefaultCrawlConfig's
	// own placeholder baseline" apart — those four fields are meant to
	// come from presetDefaults(cfg.Profile), not this function's baseline.
	cfg.RenderMode = ""
	cfg.ReplayTier = ""
	cfg.Media.CaptureScreenshots = false
	cfg.Media.CaptureFavicons = false

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	var generic map[string]interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	for _, probe := range explicitFieldProbes {
		if probeHasPath(generic, probe.path) {
			cfg.MarkExplicit(probe.field)
		}
	}

	cfg.ApplyProfile()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func probeHasPath(doc map[string]interface{}, path []string) bool {
	cur := interface{}(doc)
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return false
		}
		v, present := m[key]
		if !present {
			return false
		}
		cur = v
	}
	return true
}
