// Package types holds the record model shared by every dataset writer,
// extractor, and the manifest builder: Page, Edge, Asset, Accessibility,
// Console, Styles, Error, RobotsDecision, Provenance, Capabilities, and
// Manifest, plus the small value types (Duration, RenderMode, ...) that
// appear across them.
package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// RenderMode controls how deeply the browser participates in a page visit.
type RenderMode string

const (
	RenderModeRaw       RenderMode = "raw"
	RenderModePrerender RenderMode = "prerender"
	RenderModeFull      RenderMode = "full"
)

// ReplayTier controls which subresources the renderer asks the blob store
// to capture.
type ReplayTier string

const (
	ReplayTierHTML      ReplayTier = "html"
	ReplayTierHTMLCSS   ReplayTier = "html+css"
	ReplayTierFull      ReplayTier = "full"
)

// NavEndReason records the signal that actually terminated a render wait.
type NavEndReason string

const (
	NavEndFetch       NavEndReason = "fetch"
	NavEndLoad        NavEndReason = "load"
	NavEndNetworkIdle NavEndReason = "networkidle"
	NavEndTimeout     NavEndReason = "timeout"
	NavEndError       NavEndReason = "error"
)

// DiscoverySource records how a URL was found.
type DiscoverySource string

const (
	DiscoverySeed    DiscoverySource = "seed"
	DiscoverySitemap DiscoverySource = "sitemap"
	DiscoveryPage    DiscoverySource = "page"
	DiscoveryJS      DiscoverySource = "js"
)

// NoindexSurface records where a noindex directive was observed.
type NoindexSurface string

const (
	NoindexNone   NoindexSurface = "none"
	NoindexMeta   NoindexSurface = "meta"
	NoindexHeader NoindexSurface = "header"
	NoindexBoth   NoindexSurface = "both"
)

// ErrorPhase is the pipeline stage that produced an Error record.
type ErrorPhase string

const (
	PhaseFetch   ErrorPhase = "fetch"
	PhaseRender  ErrorPhase = "render"
	PhaseExtract ErrorPhase = "extract"
	PhaseWrite   ErrorPhase = "write"
)

// Stable error codes. Colocated with the sentinel errors that produce them
// in each package's errors.go, mirroring categorizeRenderError's code map.
const (
	CodeInvalidURL         = "INVALID_URL"
	CodeChallengeDetected  = "CHALLENGE_DETECTED"
	CodeDNSFailure         = "DNS_FAILURE"
	CodeTCPFailure         = "TCP_FAILURE"
	CodeTLSFailure         = "TLS_FAILURE"
	CodeFetchTimeout       = "FETCH_TIMEOUT"
	CodeTruncatedBody      = "TRUNCATED_BODY"
	CodeProtocolError      = "PROTOCOL_ERROR"
	CodeHTTPError          = "HTTP_ERROR"
	CodeBrowserCrash       = "BROWSER_CRASH"
	CodeNavTimeout         = "NAV_TIMEOUT"
	CodeWaitTimeout        = "WAIT_TIMEOUT"
	CodeDOMSerializeFailed = "DOM_SERIALIZE_FAILED"
	CodeExtractorFailed    = "EXTRACTOR_FAILED"
	CodeSchemaInvalid      = "SCHEMA_INVALID"
	CodeWriterFatal        = "WRITER_FATAL"
	CodeRobotsDisallowed   = "ROBOTS_DISALLOWED"
)

// Duration supports extended "30d"/"2w" suffixes on top of time.ParseDuration
// and reads a bare integer as milliseconds. No CrawlConfig field uses it:
// checkpointInterval is a page count and timeouts are integer milliseconds.
type Duration struct {
	time.Duration
}

var extendedDurationRe = regexp.MustCompile(`^(\d+)(d|w)$`)

func parseExtendedDuration(s string) (time.Duration, bool) {
	m := extendedDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	switch m[2] {
	case "d":
		return time.Duration(n) * 24 * time.Hour, true
	case "w":
		return time.Duration(n) * 7 * 24 * time.Hour, true
	}
	return 0, false
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		return d.fromString(s)
	}
	var ms int64
	if err := unmarshal(&ms); err != nil {
		return err
	}
	d.Duration = time.Duration(ms) * time.Millisecond
	return nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.fromString(s)
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return err
	}
	d.Duration = time.Duration(ms) * time.Millisecond
	return nil
}

func (d *Duration) fromString(s string) error {
	if ext, ok := parseExtendedDuration(s); ok {
		d.Duration = ext
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// RedirectHop is one entry in a Fetcher redirect chain.
type RedirectHop struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
}

// CDNIndicators records detected CDN/edge-cache signals on a response.
type CDNIndicators struct {
	Detected   bool     `json:"detected"`
	Provider   string   `json:"provider,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Signals    []string `json:"signals,omitempty"`
}

// CompressionDetails records the transport compression used for a response.
type CompressionDetails struct {
	Encoding        string  `json:"encoding,omitempty"`
	CompressedBytes int64   `json:"compressed_bytes,omitempty"`
	RawBytes        int64   `json:"raw_bytes,omitempty"`
	Ratio           float64 `json:"ratio,omitempty"`
}

// PerformanceMetrics are the (approximate) web-vitals captured in full mode.
type PerformanceMetrics struct {
	LCPMs        float64 `json:"lcp_ms,omitempty"`
	CLS          float64 `json:"cls,omitempty"`
	INPMs        float64 `json:"inp_ms,omitempty"`
	TTFBMs       float64 `json:"ttfb_ms,omitempty"`
	FCPMs        float64 `json:"fcp_ms,omitempty"`
	TBTMs        float64 `json:"tbt_ms,omitempty"`
	TTIMs        float64 `json:"tti_ms,omitempty"`
	SpeedIndex   float64 `json:"speed_index,omitempty"`
	PerfScore    int     `json:"perf_score,omitempty"`
}

// NetworkAggregate summarizes requests observed during a render.
type NetworkAggregate struct {
	RequestCount     int            `json:"request_count"`
	TotalBytes       int64          `json:"total_bytes"`
	StatusCounts     map[string]int `json:"status_counts,omitempty"`
	CompressedCount  int            `json:"compressed_count,omitempty"`
	ThirdPartyCount  int            `json:"third_party_count,omitempty"`
}

// EnhancedSEO carries the derived SEO facts beyond the raw meta tags.
type EnhancedSEO struct {
	Indexable        bool              `json:"indexable"`
	HeadingCounts    map[string]int    `json:"heading_counts,omitempty"`
	HreflangErrors   []string          `json:"hreflang_errors,omitempty"`
	HasOpenGraph     bool              `json:"has_open_graph"`
	HasTwitterCard   bool              `json:"has_twitter_card"`
	HasStructuredData bool             `json:"has_structured_data"`
	TitleLength      int               `json:"title_length"`
	DescriptionLength int              `json:"description_length"`
}

// MediaRefs points at the blob-stored screenshots/favicon for a page.
type MediaRefs struct {
	ScreenshotDesktopRef string `json:"screenshot_desktop_ref,omitempty"`
	ScreenshotMobileRef  string `json:"screenshot_mobile_ref,omitempty"`
	FaviconRef           string `json:"favicon_ref,omitempty"`
}

// Page is the canonical row describing one fetched URL.
type Page struct {
	PageID          string       `json:"page_id"`
	URL             string       `json:"url"`
	NormalizedURL   string       `json:"normalized_url"`
	FinalURL        string       `json:"final_url"`
	URLKey          string       `json:"url_key"`
	Depth           int          `json:"depth"`
	DiscoveredFrom  string       `json:"discovered_from,omitempty"`
	DiscoverySource DiscoverySource `json:"discovery_source"`

	HTTPStatus        int                 `json:"http_status"`
	ContentType       string              `json:"content_type,omitempty"`
	RedirectChain     []RedirectHop       `json:"redirect_chain,omitempty"`
	FetchedAt         time.Time           `json:"fetched_at"`
	ResponseHeaders   map[string]string   `json:"response_headers,omitempty"`
	CDNIndicators     CDNIndicators       `json:"cdn_indicators"`
	CompressionDetails CompressionDetails `json:"compression_details"`

	RenderMode     RenderMode   `json:"render_mode"`
	NavEndReason   NavEndReason `json:"nav_end_reason"`
	RenderMs       int64        `json:"render_ms"`
	FetchMs        int64        `json:"fetch_ms"`
	WaitCondition  string       `json:"wait_condition,omitempty"`

	Title            string         `json:"title,omitempty"`
	MetaDescription  string         `json:"meta_description,omitempty"`
	H1               string         `json:"h1,omitempty"`
	Headings         map[string]int `json:"headings,omitempty"`
	CanonicalRaw     string         `json:"canonical_raw,omitempty"`
	CanonicalResolved string        `json:"canonical_resolved,omitempty"`
	RobotsMeta       string         `json:"robots_meta,omitempty"`
	RobotsHeader     string         `json:"robots_header,omitempty"`
	NoindexSurface   NoindexSurface `json:"noindex_surface"`
	TextSample       string         `json:"text_sample,omitempty"`
	WordCount        int            `json:"word_count"`
	Language         string         `json:"language,omitempty"`
	RawHTMLHash      string         `json:"raw_html_hash,omitempty"`
	DOMHash          string         `json:"dom_hash,omitempty"`
	ContentHash      string         `json:"content_hash,omitempty"`
	BodyBlobRef      string         `json:"body_blob_ref,omitempty"`

	EnhancedSEO        EnhancedSEO         `json:"enhanced_seo"`
	OpenGraph          map[string]string   `json:"open_graph,omitempty"`
	TwitterCard        map[string]string   `json:"twitter_card,omitempty"`
	StructuredDataTypes []string           `json:"structured_data_types,omitempty"`
	TechStack          []string            `json:"tech_stack,omitempty"`
	SecurityHeaders    map[string]string   `json:"security_headers,omitempty"`
	Performance        PerformanceMetrics  `json:"performance"`
	Network            NetworkAggregate    `json:"network"`
	Media              MediaRefs           `json:"media"`

	PreviousPageID string `json:"previous_page_id,omitempty"`
	ContentChanged bool   `json:"content_changed,omitempty"`
	DOMChanged     bool   `json:"dom_changed,omitempty"`
}

// LinkLocation is the rough DOM region a link was found in.
type LinkLocation string

const (
	LocationNav    LinkLocation = "nav"
	LocationHeader LinkLocation = "header"
	LocationFooter LinkLocation = "footer"
	LocationAside  LinkLocation = "aside"
	LocationMain   LinkLocation = "main"
	LocationOther  LinkLocation = "other"
	LocationUnknown LinkLocation = "unknown"
)

// LinkType classifies a link's apparent purpose.
type LinkType string

const (
	LinkNavigation LinkType = "navigation"
	LinkContent    LinkType = "content"
	LinkAction     LinkType = "action"
	LinkFooter     LinkType = "footer"
	LinkBreadcrumb LinkType = "breadcrumb"
	LinkPagination LinkType = "pagination"
	LinkSkip       LinkType = "skip"
	LinkSocial     LinkType = "social"
	LinkDownload   LinkType = "download"
	LinkExternal   LinkType = "external"
	LinkRelated    LinkType = "related"
	LinkTag        LinkType = "tag"
	LinkAuthor     LinkType = "author"
	LinkOther      LinkType = "other"
)

// Edge is a directed link between two pages (or a page and an uncrawled URL).
type Edge struct {
	SourcePageID    string       `json:"source_page_id"`
	TargetPageID    string       `json:"target_page_id,omitempty"`
	SourceURL       string       `json:"source_url"`
	TargetURL       string       `json:"target_url"`
	AnchorText      string       `json:"anchor_text,omitempty"`
	Rel             string       `json:"rel,omitempty"`
	Nofollow        bool         `json:"nofollow"`
	Sponsored       bool         `json:"sponsored"`
	UGC             bool         `json:"ugc"`
	IsExternal      bool         `json:"is_external"`
	Location        LinkLocation `json:"location"`
	SelectorHint    string       `json:"selector_hint,omitempty"`
	DiscoveredInMode RenderMode  `json:"discovered_in_mode"`
	HTTPStatusAtTo  int          `json:"http_status_at_to,omitempty"`

	LinkType      LinkType `json:"link_type"`
	TargetAttr    string   `json:"target_attr,omitempty"`
	TitleAttr     string   `json:"title_attr,omitempty"`
	DownloadAttr  string   `json:"download_attr,omitempty"`
	Hreflang      string   `json:"hreflang,omitempty"`
	TypeAttr      string   `json:"type_attr,omitempty"`
	AriaLabel     string   `json:"aria_label,omitempty"`
	Role          string   `json:"role,omitempty"`
	IsPrimaryNav  bool     `json:"is_primary_nav"`
	IsBreadcrumb  bool     `json:"is_breadcrumb"`
	IsSkipLink    bool     `json:"is_skip_link"`
	IsPagination  bool     `json:"is_pagination"`
}

// AssetType is the gross media category of an Asset.
type AssetType string

const (
	AssetImage AssetType = "image"
	AssetVideo AssetType = "video"
	AssetAudio AssetType = "audio"
)

// LazyStrategy records how an asset was (or wasn't) lazy-loaded.
type LazyStrategy string

const (
	LazyNative              LazyStrategy = "native"
	LazyIntersectionObserver LazyStrategy = "intersection-observer"
	LazyDataSrc             LazyStrategy = "data-src"
	LazyNone                LazyStrategy = "none"
)

// SrcsetCandidate is one entry of a parsed `srcset` attribute.
type SrcsetCandidate struct {
	URL        string  `json:"url"`
	Descriptor string  `json:"descriptor,omitempty"`
	Width      int     `json:"width,omitempty"`
	Density    float64 `json:"density,omitempty"`
}

// PictureContext records the <picture>/<source> context of a responsive image.
type PictureContext struct {
	HasPictureParent bool     `json:"has_picture_parent"`
	SourceCount      int      `json:"source_count"`
	Sources          []string `json:"sources,omitempty"`
}

// MediaTrack is a <track> child of <video>/<audio>.
type MediaTrack struct {
	Kind    string `json:"kind,omitempty"`
	Src     string `json:"src,omitempty"`
	SrcLang string `json:"srclang,omitempty"`
	Label   string `json:"label,omitempty"`
}

// MediaSource is a <source> child of <video>/<audio>.
type MediaSource struct {
	Src  string `json:"src"`
	Type string `json:"type,omitempty"`
}

// Asset is a non-document resource referenced by a page.
type Asset struct {
	PageID   string    `json:"page_id"`
	AssetID  string    `json:"asset_id"`
	PageURL  string    `json:"page_url"`
	AssetURL string    `json:"asset_url"`
	Type     AssetType `json:"type"`
	Alt      string    `json:"alt,omitempty"`
	HasAlt   bool      `json:"has_alt"`
	Visible  bool      `json:"visible"`
	InViewport   bool  `json:"in_viewport"`
	WasLazyLoaded bool `json:"was_lazy_loaded"`

	Srcset           string            `json:"srcset,omitempty"`
	SrcsetCandidates []SrcsetCandidate `json:"srcset_candidates,omitempty"`
	Sizes            string            `json:"sizes,omitempty"`
	PictureContext   PictureContext    `json:"picture_context"`

	DurationS   float64       `json:"duration_s,omitempty"`
	MimeType    string        `json:"mime_type,omitempty"`
	HasControls bool          `json:"has_controls,omitempty"`
	Autoplay    bool          `json:"autoplay,omitempty"`
	Loop        bool          `json:"loop,omitempty"`
	Muted       bool          `json:"muted,omitempty"`
	Preload     string        `json:"preload,omitempty"`
	Poster      string        `json:"poster,omitempty"`
	Tracks      []MediaTrack  `json:"tracks,omitempty"`
	Sources     []MediaSource `json:"sources,omitempty"`

	LazyStrategy  LazyStrategy `json:"lazy_strategy"`
	LazyDataAttrs []string     `json:"lazy_data_attrs,omitempty"`
	LazyClasses   []string     `json:"lazy_classes,omitempty"`
}

// AuditProfile is the depth of an accessibility audit.
type AuditProfile string

const (
	AuditBasic    AuditProfile = "basic"
	AuditEssential AuditProfile = "essential"
	AuditFull     AuditProfile = "full"
	AuditCustom   AuditProfile = "custom"
)

// Accessibility is the per-page audit result.
type Accessibility struct {
	PageID            string         `json:"page_id"`
	PageURL           string         `json:"page_url"`
	Lang              string         `json:"lang,omitempty"`
	HeadingOrder      []string       `json:"heading_order,omitempty"`
	Landmarks         []string       `json:"landmarks,omitempty"`
	Roles             []string       `json:"roles,omitempty"`
	MissingAltCount   int            `json:"missing_alt_count"`
	MissingAltSources []string       `json:"missing_alt_sources,omitempty"`
	FormControls      []string       `json:"form_controls,omitempty"`
	FocusOrder        []string       `json:"focus_order,omitempty"`

	AuditEngine  AuditEngine  `json:"audit_engine"`
	WCAGVersion  string       `json:"wcag_version"`
	AuditProfile AuditProfile `json:"audit_profile"`
	AuditedAt    time.Time    `json:"audited_at"`
}

// AuditEngine names the code that produced an Accessibility record.
type AuditEngine struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Console is a single console API call captured in full mode.
type Console struct {
	PageID   string `json:"page_id"`
	Level    string `json:"level"`
	Text     string `json:"text"`
	Source   string `json:"source,omitempty"`
	Location string `json:"location,omitempty"`
}

// ComputedStyleSample is one text-node computed-style observation.
type ComputedStyleSample struct {
	Selector   string            `json:"selector,omitempty"`
	Properties map[string]string `json:"properties"`
}

// Styles carries a page's computed-style samples (full mode only).
type Styles struct {
	PageID  string                `json:"page_id"`
	Samples []ComputedStyleSample `json:"samples"`
}

// DOMSnapshot points at a full-mode post-render DOM serialization held in
// the blob store, keyed separately from Page so readers can skip the
// (large) snapshot dataset without touching page facts.
type DOMSnapshot struct {
	PageID     string    `json:"page_id"`
	URL        string    `json:"url"`
	DOMHash    string    `json:"dom_hash"`
	BlobRef    string    `json:"blob_ref"`
	Bytes      int64     `json:"bytes"`
	CapturedAt time.Time `json:"captured_at"`
}

// Error is an emitted fault that does not necessarily stop the crawl.
type Error struct {
	URL        string     `json:"url"`
	Origin     string     `json:"origin,omitempty"`
	Host       string     `json:"host,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
	Phase      ErrorPhase `json:"phase"`
	Code       string     `json:"code"`
	Message    string     `json:"message"`
}

// RobotsDecisionKind is the outcome of a robots.txt evaluation.
type RobotsDecisionKind string

const (
	RobotsAllowed    RobotsDecisionKind = "allowed"
	RobotsDisallowed RobotsDecisionKind = "disallowed"
	RobotsError      RobotsDecisionKind = "error"
)

// RobotsDecision is the event emitted for every robots.txt evaluation.
type RobotsDecision struct {
	URL          string             `json:"url"`
	Decision     RobotsDecisionKind `json:"decision"`
	Reason       string             `json:"reason,omitempty"`
	UserAgent    string             `json:"user_agent"`
	OverrideUsed bool               `json:"override_used,omitempty"`
}

// ProvenanceInput names one upstream dataset that fed a derived dataset.
type ProvenanceInput struct {
	Dataset string `json:"dataset"`
	Hash    string `json:"hash"`
}

// ProvenanceOutput summarizes what a dataset's producer wrote.
type ProvenanceOutput struct {
	RecordCount int    `json:"record_count"`
	HashSHA256  string `json:"hash_sha256"`
}

// Producer identifies the code that produced a dataset or the archive.
type Producer struct {
	App     string `json:"app"`
	Version string `json:"version"`
	Module  string `json:"module,omitempty"`
}

// Provenance ties a dataset to its producer, inputs, and output hash.
type Provenance struct {
	DatasetName string                 `json:"dataset_name"`
	Producer    Producer               `json:"producer"`
	CreatedAt   time.Time              `json:"created_at"`
	Inputs      []ProvenanceInput      `json:"inputs"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Output      ProvenanceOutput       `json:"output"`
}

// Compatibility declares the minimum reader version an archive requires.
type Compatibility struct {
	MinSDKVersion string `json:"min_sdk_version"`
}

// Capabilities is the closed-vocabulary set of reader-facing capabilities.
type Capabilities struct {
	Version       string        `json:"version"`
	Capabilities  []string      `json:"capabilities"`
	Compatibility Compatibility `json:"compatibility"`
}

// Capability vocabulary constants (spec.md §6, closed set).
const (
	CapSEOCore      = "seo.core"
	CapSEOEnhanced  = "seo.enhanced"
	CapRenderDOM    = "render.dom"
	CapRenderNetlog = "render.netlog"
	CapA11yCore     = "a11y.core"
	CapReplayHTML   = "replay.html"
	CapReplayCSS    = "replay.css"
	CapReplayJS     = "replay.js"
	CapReplayFonts  = "replay.fonts"
	CapReplayImages = "replay.images"
)

// CoverageEntry is one row of the manifest's coverage_matrix.
type CoverageEntry struct {
	Expected bool   `json:"expected"`
	Present  bool   `json:"present"`
	Reason   string `json:"reason,omitempty"`
}

// Coverage-matrix reason codes.
const (
	ReasonModeExcluded    = "mode_excluded"
	ReasonProfileExcluded = "profile_excluded"
	ReasonNoPages         = "no_pages"
)

// PartMetadata describes one finalized dataset's on-disk parts.
type PartMetadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Path        string `json:"path"`
	RecordCount int    `json:"record_count"`
	Bytes       int64  `json:"bytes"`
	HashSHA256  string `json:"hash_sha256"`
	SchemaURI   string `json:"schema_uri"`
}

// SchemaRegistryEntry records a registered schema's URI and content hash.
type SchemaRegistryEntry struct {
	URI        string `json:"uri"`
	HashSHA256 string `json:"hash_sha256"`
}

// EnvironmentSnapshot records the machine/browser context a crawl ran in.
type EnvironmentSnapshot struct {
	Device           string `json:"device,omitempty"`
	Viewport         string `json:"viewport,omitempty"`
	Locale           string `json:"locale,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	BrowserName      string `json:"browser_name,omitempty"`
	BrowserVersion   string `json:"browser_version,omitempty"`
	CPUThrottling    float64 `json:"cpu_throttling,omitempty"`
	NetworkProfile   string `json:"network_profile,omitempty"`
	Hostname         string `json:"hostname,omitempty"`
	OS               string `json:"os,omitempty"`
	CPUCount         int    `json:"cpu_count,omitempty"`
	TotalMemoryBytes uint64 `json:"total_memory_bytes,omitempty"`
}

// PrivacyPolicy records the redaction/stripping choices applied to the crawl.
type PrivacyPolicy struct {
	StripCookies      bool `json:"strip_cookies"`
	StripAuthHeaders  bool `json:"strip_auth_headers"`
	RedactInputValues bool `json:"redact_input_values"`
	RedactForms       bool `json:"redact_forms"`
}

// CompletionReason is the terminal state reported in the manifest/summary.
type CompletionReason string

const (
	CompletionFinished    CompletionReason = "finished"
	CompletionCapped      CompletionReason = "capped"
	CompletionErrorBudget CompletionReason = "error_budget"
	CompletionManual      CompletionReason = "manual"
	CompletionFailed      CompletionReason = "failed"
)

// completionPrecedence ranks reasons high-to-low; see ResolveCompletionReason.
var completionPrecedence = map[CompletionReason]int{
	CompletionErrorBudget: 4,
	CompletionCapped:      3,
	CompletionManual:      2,
	CompletionFinished:    1,
	CompletionFailed:      5,
}

// ResolveCompletionReason applies the precedence rule from spec.md §4.15/§8
// (property 10): error_budget > capped > manual > finished, with failed
// always winning since it represents an unrecoverable abort.
func ResolveCompletionReason(candidates ...CompletionReason) CompletionReason {
	best := CompletionFinished
	bestRank := completionPrecedence[best]
	for _, c := range candidates {
		if rank := completionPrecedence[c]; rank > bestRank {
			best = c
			bestRank = rank
		}
	}
	return best
}

// Manifest is the archive's top-level self-description.
type Manifest struct {
	SpecVersion     string                   `json:"spec_version"`
	CrawlID         string                   `json:"crawl_id"`
	Producer        Producer                 `json:"producer"`
	Environment     EnvironmentSnapshot      `json:"environment"`
	CoverageMatrix  map[string]CoverageEntry `json:"coverage_matrix"`
	Parts           map[string][]PartMetadata `json:"parts"`
	Schemas         map[string]SchemaRegistryEntry `json:"schemas"`
	Privacy         PrivacyPolicy            `json:"privacy"`
	Warnings        []string                 `json:"warnings,omitempty"`
	CompletionReason CompletionReason        `json:"completion_reason"`
	StartedAt       time.Time                `json:"started_at"`
	FinishedAt      time.Time                `json:"finished_at"`
	TotalPages      int                      `json:"total_pages"`
	TotalErrors     int                      `json:"total_errors"`
}
