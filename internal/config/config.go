// Package config defines the crawl configuration surface consumed by the
// core engine (spec.md §6): seeds, output path, profile preset, render
// mode, replay tier, limits, robots behavior, URL filtering, session and
// media options, privacy defaults, resume/checkpoint settings, error
// budget, and ambient logging. It mirrors the teacher's configtypes
// package in shape (nested structs, YAML tags, a Duration field type)
// but carries the crawler's own fields.
package config

import (
	"fmt"

	"github.com/edgecomet/atlascrawl/pkg/types"
)

// Log levels/formats, ported from the teacher's configtypes constants.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	LogFormatJSON    = "json"
	LogFormatText    = "text"
	LogFormatConsole = "console"
)

type RotationConfig struct {
	MaxSize    int  `yaml:"maxSize"`
	MaxAge     int  `yaml:"maxAge"`
	MaxBackups int  `yaml:"maxBackups"`
	Compress   bool `yaml:"compress"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Level    string         `yaml:"level"`
	Format   string         `yaml:"format"`
	Path     string         `yaml:"path"`
	Rotation RotationConfig `yaml:"rotation"`
}

type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

// Profile is the preset name: {core, full}.
type Profile string

const (
	ProfileCore Profile = "core"
	ProfileFull Profile = "full"
)

// LimitsConfig bounds frontier/fetch/render resource usage.
type LimitsConfig struct {
	MaxPages        int            `yaml:"maxPages"`
	MaxDepth        int            `yaml:"maxDepth"`
	MaxBytesPerPage int64          `yaml:"maxBytesPerPage"`
	TimeoutMs       int            `yaml:"timeoutMs"`
	RPS             float64        `yaml:"rps"`
	Concurrency     int            `yaml:"concurrency"`
	Redis           RedisSettings  `yaml:"redis"`
}

// RedisSettings addresses the Redis instance backing the rate governor
// and robots decision caches.
type RedisSettings struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RobotsConfig controls robots.txt compliance.
type RobotsConfig struct {
	RespectRobots bool   `yaml:"respectRobots"`
	OverrideRobots bool  `yaml:"overrideRobots"`
	UserAgent     string `yaml:"userAgent"`
}

// URLFilterConfig is the allow/deny glob-or-regex filter applied after
// normalization (pkg/pattern syntax: exact, `*` glob, `~`/`~*` regex).
type URLFilterConfig struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// SessionConfig controls per-origin cookie/storage persistence and
// automation-fingerprint hiding.
type SessionConfig struct {
	PersistSession bool `yaml:"persistSession"`
	Stealth        bool `yaml:"stealth"`
}

// ScreenshotFormat is the image encoding used for captured screenshots.
type ScreenshotFormat string

const (
	ScreenshotJPEG ScreenshotFormat = "jpeg"
	ScreenshotPNG  ScreenshotFormat = "png"
)

// MediaConfig controls screenshot/favicon capture.
type MediaConfig struct {
	CaptureScreenshots bool             `yaml:"captureScreenshots"`
	ScreenshotQuality  int              `yaml:"screenshotQuality"`
	ScreenshotFormat   ScreenshotFormat `yaml:"screenshotFormat"`
	CaptureFavicons    bool             `yaml:"captureFavicons"`
}

// PrivacyConfig controls redaction defaults (all default true per spec §6).
type PrivacyConfig struct {
	StripCookies      bool `yaml:"stripCookies"`
	StripAuthHeaders  bool `yaml:"stripAuthHeaders"`
	RedactInputValues bool `yaml:"redactInputValues"`
	RedactForms       bool `yaml:"redactForms"`
}

// ResumeConfig controls checkpoint cadence and resume source.
type ResumeConfig struct {
	Resume            string        `yaml:"resume"`
	CheckpointInterval int          `yaml:"checkpointInterval"`
}

// OutputConfig controls process-boundary presentation, not archive content.
type OutputConfig struct {
	Quiet       bool   `yaml:"quiet"`
	JSONSummary bool   `yaml:"jsonSummary"`
	Verbose     bool   `yaml:"verbose"`
	NoColor     bool   `yaml:"noColor"`
	LogFile     string `yaml:"logFile"`
}

// CrawlConfig is the fully resolved configuration for one crawl run.
type CrawlConfig struct {
	Seeds       []string              `yaml:"seeds"`
	OutputPath  string                `yaml:"outputPath"`
	Profile     Profile               `yaml:"profile"`
	RenderMode  types.RenderMode      `yaml:"renderMode"`
	ReplayTier  types.ReplayTier      `yaml:"replayTier"`
	Limits      LimitsConfig          `yaml:"limits"`
	Robots      RobotsConfig          `yaml:"robots"`
	URLFilter   URLFilterConfig       `yaml:"urlFilter"`
	Session     SessionConfig         `yaml:"session"`
	Media       MediaConfig           `yaml:"media"`
	Privacy     PrivacyConfig         `yaml:"privacy"`
	Resume      ResumeConfig          `yaml:"resume"`
	MaxErrors   int                   `yaml:"maxErrors"`
	Output      OutputConfig          `yaml:"output"`
	Log         LogConfig             `yaml:"log"`

	// explicitlySet tracks which top-level fields the YAML document set
	// explicitly, so ApplyProfile can honor "explicit beats preset" even
	// after the preset has filled in its own defaults first.
	explicitlySet map[string]bool `yaml:"-"`
}

// DefaultCrawlConfig returns the zero-value-safe baseline defaults named
// throughout spec.md §6, before any profile preset or explicit override
// is applied.
func DefaultCrawlConfig() *CrawlConfig {
	return &CrawlConfig{
		Profile:    ProfileFull,
		RenderMode: types.RenderModeFull,
		ReplayTier: types.ReplayTierHTML,
		Limits: LimitsConfig{
			MaxPages:    0,
			MaxDepth:    -1,
			TimeoutMs:   30000,
			RPS:         1,
			Concurrency: 8,
		},
		Robots: RobotsConfig{
			RespectRobots: true,
			UserAgent:     "AtlasCrawler/1.0",
		},
		Media: MediaConfig{
			ScreenshotQuality: 80,
			ScreenshotFormat:  ScreenshotJPEG,
		},
		Privacy: PrivacyConfig{
			StripCookies:      true,
			StripAuthHeaders:  true,
			RedactInputValues: true,
			RedactForms:       true,
		},
		Resume: ResumeConfig{
			CheckpointInterval: 500,
		},
		MaxErrors: -1,
		Log: LogConfig{
			Level:   LogLevelInfo,
			Console: ConsoleLogConfig{Enabled: true, Format: LogFormatConsole},
		},
	}
}

// presetDefaults returns the field values a named profile preset supplies.
// ApplyProfile applies these only where the document did not set the field
// explicitly, resolving spec.md's Open Question in favor of "explicit
// flags win over presets" (see SPEC_FULL.md AMBIENT STACK > Configuration).
func presetDefaults(p Profile) *CrawlConfig {
	switch p {
	case ProfileCore:
		return &CrawlConfig{
			RenderMode: types.RenderModePrerender,
			ReplayTier: types.ReplayTierHTML,
			Media: MediaConfig{
				CaptureScreenshots: false,
				CaptureFavicons:    false,
			},
		}
	case ProfileFull:
		return &CrawlConfig{
			RenderMode: types.RenderModeFull,
			ReplayTier: types.ReplayTierHTMLCSS,
			Media: MediaConfig{
				CaptureScreenshots: true,
				CaptureFavicons:    true,
			},
		}
	default:
		return &CrawlConfig{}
	}
}

// MarkExplicit records that a top-level field was present in the source
// document, so ApplyProfile knows not to let the preset clobber it. Callers
// (the YAML loader) call this once per field name found in the raw document.
func (c *CrawlConfig) MarkExplicit(field string) {
	if c.explicitlySet == nil {
		c.explicitlySet = make(map[string]bool)
	}
	c.explicitlySet[field] = true
}

// ApplyProfile fills in preset defaults for fields the document left
// unset, without overwriting fields the document set explicitly.
func (c *CrawlConfig) ApplyProfile() {
	preset := presetDefaults(c.Profile)
	if !c.explicitlySet["renderMode"] && c.RenderMode == "" {
		c.RenderMode = preset.RenderMode
	}
	if !c.explicitlySet["replayTier"] && c.ReplayTier == "" {
		c.ReplayTier = preset.ReplayTier
	}
	if !c.explicitlySet["media.captureScreenshots"] {
		c.Media.CaptureScreenshots = preset.Media.CaptureScreenshots
	}
	if !c.explicitlySet["media.captureFavicons"] {
		c.Media.CaptureFavicons = preset.Media.CaptureFavicons
	}
}

// Validate applies the baseline sanity checks the front-end CLI would
// otherwise perform before invoking the core (spec.md §1 places argument
// parsing itself out of scope, but the core still rejects an unusable
// config rather than crash mid-crawl).
func (c *CrawlConfig) Validate() error {
	if len(c.Seeds) == 0 {
		return fmt.Errorf("config: at least one seed URL is required")
	}
	switch c.RenderMode {
	case types.RenderModeRaw, types.RenderModePrerender, types.RenderModeFull:
	default:
		return fmt.Errorf("config: invalid renderMode %q", c.RenderMode)
	}
	switch c.ReplayTier {
	case types.ReplayTierHTML, types.ReplayTierHTMLCSS, types.ReplayTierFull:
	default:
		return fmt.Errorf("config: invalid replayTier %q", c.ReplayTier)
	}
	if c.Limits.Concurrency <= 0 {
		return fmt.Errorf("config: limits.concurrency must be positive")
	}
	return nil
}
