package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/atlascrawl/internal/common/urlutil"
	"github.com/edgecomet/atlascrawl/internal/extract"
	"github.com/edgecomet/atlascrawl/internal/frontier"
	"github.com/edgecomet/atlascrawl/internal/render"
	"github.com/edgecomet/atlascrawl/internal/scheduler/eventlog"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

// processPage runs one frontier entry through robots evaluation, rate
// limiting, fetch-or-render, extraction, and dataset persistence. It never
// returns an error to the caller: every failure short-circuits to an Error
// record written to the errors dataset, matching spec §4.8's "extraction
// never fails the page outright."
func (s *Scheduler) processPage(ctx context.Context, entry frontier.Entry) {
	origin := urlutil.ExtractHost(entry.URL)

	if s.cfg.Robots.RespectRobots {
		decision, err := s.deps.Robots.Evaluate(ctx, entry.URL)
		if err != nil {
			s.writeError(entry, types.PhaseFetch, "robots_fetch_failed", err.Error())
			return
		}
		s.deps.EventEmitter.Emit(eventlog.KindRobotsDecision, entry.PageID, entry.URL, map[string]interface{}{
			"decision":      decision.Event.Decision,
			"override_used": decision.OverrideUsed,
		})
		if !decision.Allowed {
			return
		}
	}

	lease, err := s.deps.RateGovernor.Acquire(ctx, origin, 0)
	if err != nil {
		s.writeError(entry, types.PhaseFetch, "rate_limit_wait_failed", err.Error())
		return
	}
	defer lease.Release()

	s.deps.EventEmitter.Emit(eventlog.KindRenderStarted, entry.PageID, entry.URL, map[string]interface{}{
		"render_mode": s.cfg.RenderMode,
	})
	started := time.Now()

	page := &types.Page{
		PageID:          entry.PageID,
		URL:             entry.URL,
		NormalizedURL:   entry.NormalizedURL,
		URLKey:          entry.URLKey,
		Depth:           entry.Depth,
		DiscoveredFrom:  entry.DiscoveredFrom,
		DiscoverySource: discoverySource(entry),
		RenderMode:      s.cfg.RenderMode,
	}

	var (
		rawBody []byte
		domBody []byte
		network types.NetworkAggregate
	)

	if s.cfg.RenderMode == types.RenderModeRaw {
		result, fetchErr := s.deps.Fetcher.Fetch(entry.URL)
		if fetchErr != nil {
			s.writeError(entry, types.PhaseFetch, fetchErr.Code, fetchErr.Message)
			return
		}
		if result.Status >= 400 {
			s.writeError(entry, types.PhaseFetch, types.CodeHTTPError, fmt.Sprintf("http status %d", result.Status))
			return
		}
		page.FinalURL = result.FinalURL
		page.HTTPStatus = result.Status
		page.RedirectChain = result.RedirectChain
		page.FetchMs = result.FetchMs
		page.NavEndReason = types.NavEndFetch
		page.ResponseHeaders = result.Headers
		rawBody = result.Body
	} else {
		req := render.Request{
			URL:       entry.URL,
			RequestID: entry.PageID,
			Mode:      s.cfg.RenderMode,
			UserAgent: s.cfg.Robots.UserAgent,
		}
		result, renderErr := s.deps.Renderer.Render(ctx, req)
		if renderErr != nil {
			s.writeError(entry, types.PhaseRender, renderErr.Code, renderErr.Message)
			return
		}
		if result.StatusCode >= 400 {
			s.writeError(entry, types.PhaseRender, types.CodeHTTPError, fmt.Sprintf("http status %d", result.StatusCode))
			return
		}
		page.FinalURL = result.FinalURL
		page.HTTPStatus = result.StatusCode
		page.RedirectChain = result.RedirectChain
		page.RenderMs = result.RenderMs
		page.NavEndReason = result.NavEndReason
		page.Network = result.Network
		page.ResponseHeaders = result.Headers
		rawBody = result.RawBody
		domBody = result.DOM
		network = result.Network

		s.persistRenderExtras(entry, result)
	}

	page.FetchedAt = started
	page.RawHTMLHash = hashIfPresent(rawBody)

	if len(rawBody) > 0 {
		if ref, err := s.deps.BlobStore.Store(rawBody); err == nil {
			page.BodyBlobRef = ref.BlobRef
		} else {
			s.deps.Logger.Warn("blob store write failed", zap.String("page_id", entry.PageID), zap.Error(err))
		}
	}

	extracted, extractErr := extract.Extract(rawBody, page.FinalURL, headerLookup(page.ResponseHeaders, "X-Robots-Tag"))
	if extractErr != nil {
		s.writeError(entry, types.PhaseExtract, "extract_parse_failed", extractErr.Error())
		s.deps.EventEmitter.Emit(eventlog.KindExtractFailed, entry.PageID, entry.URL, nil)
	} else {
		applyExtractedFields(page, extracted)
		s.persistEdgesAndAssets(entry, extracted)
	}

	if len(domBody) > 0 {
		s.persistDOMSnapshot(entry, domBody)
	}

	_ = network // already folded into page.Network above; named for clarity at call sites

	if err := s.deps.Datasets.Write("pages", page); err != nil {
		s.deps.Logger.Warn("page write failed", zap.String("page_id", entry.PageID), zap.Error(err))
	}

	s.deps.EventEmitter.Emit(eventlog.KindRenderFinished, entry.PageID, entry.URL, map[string]interface{}{
		"status_code": page.HTTPStatus,
	})
	s.recordCompletion()
}

// headerLookup does a case-insensitive lookup against a response-header
// map whose keys keep whatever canonicalization the fetch/render layer
// produced (fasthttp's Peek/VisitAll both canonicalize to Title-Case, but
// callers shouldn't have to know that).
func headerLookup(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func discoverySource(entry frontier.Entry) types.DiscoverySource {
	if entry.Depth == 0 && entry.DiscoveredFrom == "" {
		return types.DiscoverySeed
	}
	return types.DiscoveryPage
}

func hashIfPresent(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return extract.HashBytes(b)
}

func applyExtractedFields(page *types.Page, result *extract.Result) {
	page.Title = result.Page.Title
	page.MetaDescription = result.Page.MetaDescription
	page.H1 = result.Page.H1
	page.Headings = result.Page.Headings
	page.CanonicalRaw = result.Page.CanonicalRaw
	page.CanonicalResolved = result.Page.CanonicalResolved
	page.RobotsMeta = result.Page.RobotsMeta
	page.NoindexSurface = result.Page.NoindexSurface
	page.TextSample = result.Page.TextSample
	page.WordCount = result.Page.WordCount
	page.Language = result.Page.Language
	page.DOMHash = result.Page.DOMHash
	page.ContentHash = result.Page.ContentHash
	page.EnhancedSEO = result.Page.EnhancedSEO
	page.OpenGraph = result.Page.OpenGraph
	page.TwitterCard = result.Page.TwitterCard
	page.StructuredDataTypes = result.Page.StructuredDataTypes
}

func (s *Scheduler) persistEdgesAndAssets(entry frontier.Entry, result *extract.Result) {
	for i := range result.Edges {
		edge := result.Edges[i]
		edge.SourcePageID = entry.PageID
		edge.DiscoveredInMode = s.cfg.RenderMode
		if !edge.IsExternal {
			// Admit before writing so target_page_id reflects the outcome:
			// the assigned page_id if the target entered (or was already in)
			// the frontier, empty if it never will be (spec §8 S5 — a link
			// past maxDepth carries target_page_id="").
			edge.TargetPageID = s.admit(edge.TargetURL, entry.Depth+1, entry.PageID)
		}
		if err := s.deps.Datasets.Write("edges", edge); err != nil {
			s.deps.Logger.Warn("edge write failed", zap.Error(err))
		}
	}
	for i := range result.Assets {
		asset := result.Assets[i]
		asset.PageID = entry.PageID
		if err := s.deps.Datasets.Write("assets", asset); err != nil {
			s.deps.Logger.Warn("asset write failed", zap.Error(err))
		}
	}
}

func (s *Scheduler) persistRenderExtras(entry frontier.Entry, result *render.Result) {
	for _, c := range result.Console {
		c.PageID = entry.PageID
		if err := s.deps.Datasets.Write("console", c); err != nil {
			s.deps.Logger.Warn("console write failed", zap.Error(err))
		}
	}
	if result.Accessibility != nil {
		result.Accessibility.PageID = entry.PageID
		if err := s.deps.Datasets.Write("accessibility", *result.Accessibility); err != nil {
			s.deps.Logger.Warn("accessibility write failed", zap.Error(err))
		}
	}
	if result.Styles != nil {
		result.Styles.PageID = entry.PageID
		if err := s.deps.Datasets.Write("styles", *result.Styles); err != nil {
			s.deps.Logger.Warn("styles write failed", zap.Error(err))
		}
	}
}

func (s *Scheduler) persistDOMSnapshot(entry frontier.Entry, domBody []byte) {
	ref, err := s.deps.BlobStore.Store(domBody)
	if err != nil {
		s.deps.Logger.Warn("dom snapshot blob store failed", zap.Error(err))
		return
	}
	snap := types.DOMSnapshot{
		PageID:     entry.PageID,
		URL:        entry.URL,
		DOMHash:    extract.HashBytes(domBody),
		BlobRef:    ref.BlobRef,
		Bytes:      int64(len(domBody)),
		CapturedAt: time.Now(),
	}
	if err := s.deps.Datasets.Write("dom_snapshots", snap); err != nil {
		s.deps.Logger.Warn("dom snapshot write failed", zap.Error(err))
	}
}

func (s *Scheduler) writeError(entry frontier.Entry, phase types.ErrorPhase, code, message string) {
	s.recordError()
	e := types.Error{
		URL:        entry.URL,
		Origin:     urlutil.ExtractHost(entry.URL),
		Host:       urlutil.ExtractHostname(urlutil.ExtractHost(entry.URL)),
		OccurredAt: time.Now(),
		Phase:      phase,
		Code:       code,
		Message:    message,
	}
	if err := s.deps.Datasets.Write("errors", e); err != nil {
		s.deps.Logger.Warn("error-record write failed", zap.Error(err))
	}
}
