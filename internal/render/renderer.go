// Package render implements the Renderer (spec §4.7): it executes one of
// three render modes against a URL and produces a render Result for the
// Extractors to consume. Grounded on the teacher's internal/render/chrome
// package (ChromeInstance.Render / buildTasks), generalized from a single
// fixed render mode into raw/prerender/full and from the teacher's
// edge-render request/response shape into the crawler's Page-oriented one.
package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/edgecomet/atlascrawl/internal/browserpool"
	atlasfetch "github.com/edgecomet/atlascrawl/internal/fetch"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

const maxHTMLResponseBytes = 20 * 1024 * 1024

// Renderer executes render requests, dispatching raw mode to the Fetcher
// and prerender/full mode to a leased browser context.
type Renderer struct {
	pool    *browserpool.Pool
	fetcher *atlasfetch.Fetcher
	logger  *zap.Logger
}

func New(pool *browserpool.Pool, fetcher *atlasfetch.Fetcher, logger *zap.Logger) *Renderer {
	return &Renderer{pool: pool, fetcher: fetcher, logger: logger}
}

func (r *Renderer) Render(ctx context.Context, req Request) (*Result, *types.Error) {
	req = defaultRequest(req)
	if req.Mode == types.RenderModeRaw {
		return r.renderRaw(req)
	}
	return r.renderBrowser(ctx, req)
}

func (r *Renderer) renderRaw(req Request) (*Result, *types.Error) {
	fr, ferr := r.fetcher.Fetch(req.URL)
	if ferr != nil {
		return nil, ferr
	}
	headers := make(map[string]string, len(fr.Headers))
	for k, v := range fr.Headers {
		headers[k] = v
	}
	return &Result{
		FinalURL:      fr.FinalURL,
		StatusCode:    fr.Status,
		Headers:       headers,
		RawBody:       fr.Body,
		NavEndReason:  types.NavEndFetch,
		RenderMs:      fr.FetchMs,
		RedirectChain: fr.RedirectChain,
		Truncated:     fr.Truncated,
	}, nil
}

func (r *Renderer) renderBrowser(ctx context.Context, req Request) (*Result, *types.Error) {
	start := time.Now()
	origin := extractOrigin(req.URL)

	lease, err := r.pool.Acquire(ctx, origin, req.RequestID)
	if err != nil {
		return nil, &types.Error{
			URL: req.URL, OccurredAt: time.Now().UTC(), Phase: types.PhaseRender,
			Code: types.CodeBrowserCrash, Message: fmt.Sprintf("acquire browser context: %v", err),
		}
	}
	defer lease.Release()

	tabCtx, tabCancel := lease.Context().Navigate()
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	blocklist := NewBlocklist(req.BlockedPatterns, req.BlockedResourceTypes)
	netCollector := newNetworkCollector(req.URL)

	result := &Result{}
	var statusMu sync.Mutex
	var consoleMu sync.Mutex

	renderErr := chromedp.Run(tabCtx, r.buildTasks(req, result, &statusMu, &consoleMu, blocklist, netCollector))
	result.RenderMs = time.Since(start).Milliseconds()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
		return nil, &types.Error{
			URL: req.URL, OccurredAt: time.Now().UTC(), Phase: types.PhaseRender,
			Code: types.CodeNavTimeout, Message: "hard timeout exceeded",
		}
	}
	if renderErr != nil {
		return nil, &types.Error{
			URL: req.URL, OccurredAt: time.Now().UTC(), Phase: types.PhaseRender,
			Code: categorizeRenderError(renderErr), Message: renderErr.Error(),
		}
	}
	if result.StatusCode == 0 {
		return nil, &types.Error{
			URL: req.URL, OccurredAt: time.Now().UTC(), Phase: types.PhaseRender,
			Code: types.CodeNavTimeout, Message: "failed to capture status code",
		}
	}
	if len(result.DOM) > maxHTMLResponseBytes {
		return nil, &types.Error{
			URL: req.URL, OccurredAt: time.Now().UTC(), Phase: types.PhaseRender,
			Code: types.CodeDOMSerializeFailed,
			Message: fmt.Sprintf("response size %d exceeds maximum %d bytes", len(result.DOM), maxHTMLResponseBytes),
		}
	}

	title := extractTitleLoose(string(result.DOM))
	if detectChallenge(result.StatusCode, title, string(result.DOM)) {
		cleared, recaptured := r.waitForChallengeClear(tabCtx, req, result, &statusMu)
		if !cleared {
			return nil, &types.Error{
				URL: req.URL, OccurredAt: time.Now().UTC(), Phase: types.PhaseRender,
				Code: types.CodeChallengeDetected, Message: "challenge signals did not clear before timeout",
			}
		}
		result.DOM = recaptured
	}

	result.Network = netCollector.aggregate()
	result.NavEndReason = types.NavEndLoad

	if req.Mode == types.RenderModeFull {
		r.captureFullModeExtras(tabCtx, req, result, netCollector)
		result.NavEndReason = types.NavEndNetworkIdle
	}

	return result, nil
}

// buildTasks mirrors the teacher's buildTasks: event listeners registered
// before any CDP command, request interception via the Fetch domain for
// blocklist enforcement, then navigate/wait/extract.
func (r *Renderer) buildTasks(req Request, result *Result, statusMu, consoleMu *sync.Mutex, blocklist *Blocklist, netCollector *networkCollector) chromedp.Tasks {
	var fetchHandlerCount int64

	return chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			chromedp.ListenTarget(ctx, func(event interface{}) {
				switch ev := event.(type) {
				case *fetch.EventRequestPaused:
					atomic.AddInt64(&fetchHandlerCount, 1)
					go func(event *fetch.EventRequestPaused) {
						defer atomic.AddInt64(&fetchHandlerCount, -1)
						cmdCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
						defer cancel()
						c := chromedp.FromContext(cmdCtx)
						execCtx := cdp.WithExecutor(cmdCtx, c.Target)

						if blocklist.IsBlocked(event.Request.URL) || blocklist.IsResourceTypeBlocked(string(event.ResourceType)) {
							netCollector.onRequestBlocked(string(event.RequestID))
							_ = fetch.FailRequest(event.RequestID, network.ErrorReasonAborted).Do(execCtx)
							return
						}
						if err := fetch.ContinueRequest(event.RequestID).Do(execCtx); err != nil {
							_ = fetch.FailRequest(event.RequestID, network.ErrorReasonAborted).Do(execCtx)
						}
					}(ev)

				case *network.EventRequestWillBeSent:
					netCollector.onRequestSent(string(ev.RequestID))

				case *network.EventResponseReceived:
					statusMu.Lock()
					if result.StatusCode == 0 {
						result.StatusCode = int(ev.Response.Status)
						result.FinalURL = ev.Response.URL
						headers := make(map[string]string, len(ev.Response.Headers))
						for k, v := range ev.Response.Headers {
							if s, ok := v.(string); ok {
								headers[k] = s
							}
						}
						result.Headers = headers
					}
					statusMu.Unlock()
					_, compressed := ev.Response.Headers["content-encoding"]
					netCollector.onResponseReceived(string(ev.RequestID), int(ev.Response.Status), ev.Response.URL, compressed)

				case *cdpruntime.EventConsoleAPICalled:
					var level string
					switch ev.Type {
					case cdpruntime.APITypeError:
						level = "error"
					case cdpruntime.APITypeWarning:
						level = "warning"
					default:
						return
					}
					var parts []string
					for _, arg := range ev.Args {
						if part := formatConsoleArg(arg); part != "" {
							parts = append(parts, part)
						}
					}
					if len(parts) == 0 {
						return
					}
					sourceURL, sourceLoc := extractSourceInfo(ev.StackTrace)
					consoleMu.Lock()
					result.Console = append(result.Console, types.Console{
						Level: level, Text: strings.Join(parts, " "),
						Source: sourceURL, Location: sourceLoc,
					})
					consoleMu.Unlock()

				case *network.EventLoadingFinished:
					netCollector.onLoadingFinished(string(ev.RequestID), int64(ev.EncodedDataLength))

				case *network.EventLoadingFailed:
					netCollector.onRequestFailed(string(ev.RequestID))
				}
			})
			return nil
		}),

		network.Enable(),
		fetch.Enable(),
		page.Enable(),
		page.SetLifecycleEventsEnabled(true),

		emulation.SetUserAgentOverride(req.UserAgent),
		emulation.SetDeviceMetricsOverride(int64(req.ViewportWidth), int64(req.ViewportHeight), 1.0, req.ViewportWidth < 768),

		r.navigateAndWait(req),

		chromedp.WaitReady("body", chromedp.ByQuery),

		r.waitForSelector(req),

		r.extractHTML(&result.DOM),
		chromedp.Location(&result.FinalURL),

		chromedp.ActionFunc(func(ctx context.Context) error {
			timeout := time.After(5 * time.Second)
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				if atomic.LoadInt64(&fetchHandlerCount) <= 0 {
					return nil
				}
				select {
				case <-timeout:
					return nil
				case <-ticker.C:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}),
	}
}

func (r *Renderer) navigateAndWait(req Request) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		_, _, _, _, err := page.Navigate(req.URL).Do(ctx)
		if err != nil {
			return errors.Join(ErrNavigateFailed, err)
		}
		err = waitForLoadEvent(ctx, req.Timeout)
		if errors.Is(err, ErrWaitTimeout) {
			r.logger.Debug("navigation wait timed out, continuing with HTML extraction",
				zap.String("request_id", req.RequestID), zap.String("url", req.URL))
		} else if err != nil {
			return err
		}
		if req.ExtraWait > 0 {
			time.Sleep(req.ExtraWait)
		}
		return nil
	}
}

func waitForLoadEvent(ctx context.Context, timeout time.Duration) error {
	ch := make(chan struct{})
	listenerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chromedp.ListenTarget(listenerCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && string(e.Name) == "load" {
			cancel()
			close(ch)
		}
	})

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return ErrWaitTimeout
	}
}

func (r *Renderer) waitForSelector(req Request) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if req.WaitSelector == "" {
			return nil
		}
		waitCtx, cancel := context.WithTimeout(ctx, req.WaitSelectorTimeout)
		defer cancel()
		if err := chromedp.Run(waitCtx, chromedp.WaitVisible(req.WaitSelector, chromedp.ByQuery)); err != nil {
			r.logger.Debug("wait-selector timed out, continuing",
				zap.String("request_id", req.RequestID), zap.String("selector", req.WaitSelector))
		}
		return nil
	}
}

func (r *Renderer) extractHTML(output *[]byte) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		var lastErr error
		for attempt := 0; attempt < 3; attempt++ {
			rootNode, err := dom.GetDocument().Do(ctx)
			if err != nil {
				lastErr = err
				time.Sleep(300 * time.Millisecond)
				continue
			}
			html, err := dom.GetOuterHTML().WithNodeID(rootNode.NodeID).Do(ctx)
			if err != nil {
				lastErr = err
				time.Sleep(300 * time.Millisecond)
				continue
			}
			*output = []byte(html)
			return nil
		}
		return fmt.Errorf("%w after 3 attempts: %v", ErrExtractHTML, lastErr)
	}
}

// waitForChallengeClear re-polls the DOM up to req.ChallengeTimeout, used
// when detectChallenge fired once already (spec §4.7).
func (r *Renderer) waitForChallengeClear(ctx context.Context, req Request, result *Result, statusMu *sync.Mutex) (bool, []byte) {
	deadline := time.Now().Add(req.ChallengeTimeout)
	for time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
		var recaptured []byte
		if err := chromedp.Run(ctx, r.extractHTML(&recaptured)); err != nil {
			continue
		}
		statusMu.Lock()
		status := result.StatusCode
		statusMu.Unlock()
		title := extractTitleLoose(string(recaptured))
		if !detectChallenge(status, title, string(recaptured)) {
			return true, recaptured
		}
	}
	return false, nil
}

func (r *Renderer) captureFullModeExtras(ctx context.Context, req Request, result *Result, netCollector *networkCollector) {
	r.waitNetworkIdle(ctx, req, netCollector)

	var desktop []byte
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&desktop, 90)); err == nil {
		result.ScreenshotDesktop = desktop
	}

	var mobile []byte
	mobileTasks := chromedp.Tasks{
		emulation.SetDeviceMetricsOverride(390, 844, 2.0, true),
		chromedp.FullScreenshot(&mobile, 90),
		emulation.SetDeviceMetricsOverride(int64(req.ViewportWidth), int64(req.ViewportHeight), 1.0, req.ViewportWidth < 768),
	}
	if err := chromedp.Run(ctx, mobileTasks); err == nil {
		result.ScreenshotMobile = mobile
	}

	if favicon := r.captureFavicon(ctx, req); favicon != nil {
		result.Favicon = favicon
	}

	result.Accessibility = r.captureAccessibility(ctx, req)
	result.Styles = r.captureComputedStyles(ctx, req)
}

// waitNetworkIdle blocks until the collector shows ≤2 in-flight requests
// for ≥500ms, or req.Timeout elapses (spec §4.7 full mode).
func (r *Renderer) waitNetworkIdle(ctx context.Context, req Request, netCollector *networkCollector) {
	const idleThreshold = 2
	const idleWindow = 500 * time.Millisecond

	deadline := time.Now().Add(req.Timeout)
	var quietSince time.Time

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if netCollector.inFlightCount() <= idleThreshold {
			if quietSince.IsZero() {
				quietSince = time.Now()
			} else if time.Since(quietSince) >= idleWindow {
				return
			}
		} else {
			quietSince = time.Time{}
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (r *Renderer) captureFavicon(ctx context.Context, req Request) []byte {
	var href string
	script := `(function(){var l=document.querySelector('link[rel~="icon"]'); return l ? l.href : '';})()`
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &href)); err != nil || href == "" {
		parsed, err := url.Parse(req.URL)
		if err != nil {
			return nil
		}
		href = fmt.Sprintf("%s://%s/favicon.ico", parsed.Scheme, parsed.Host)
	}
	fr, ferr := r.fetcher.Fetch(href)
	if ferr != nil || fr.Status != 200 {
		return nil
	}
	return fr.Body
}

func (r *Renderer) captureAccessibility(ctx context.Context, req Request) *types.Accessibility {
	script := `(function(){
		var headings = Array.from(document.querySelectorAll('h1,h2,h3,h4,h5,h6')).map(function(e){return e.tagName.toLowerCase();});
		var landmarkSel = 'header,nav,main,footer,aside,[role]';
		var landmarks = Array.from(document.querySelectorAll(landmarkSel)).map(function(e){
			return e.getAttribute('role') || e.tagName.toLowerCase();
		});
		var roles = Array.from(document.querySelectorAll('[role]')).map(function(e){return e.getAttribute('role');});
		var imgs = Array.from(document.querySelectorAll('img'));
		var missing = imgs.filter(function(i){return !i.hasAttribute('alt');}).map(function(i){return i.src;});
		var forms = Array.from(document.querySelectorAll('input,select,textarea,button')).map(function(e){return e.tagName.toLowerCase();});
		return JSON.stringify({headings:headings, landmarks:landmarks, roles:roles, missing:missing, forms:forms, lang: document.documentElement.lang || ''});
	})()`
	var raw string
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return nil
	}
	data := parseAccessibilityJSON(raw)
	if data == nil {
		return nil
	}
	profile := types.AuditBasic
	if req.Mode == types.RenderModeFull {
		profile = types.AuditFull
	}
	data.AuditEngine = types.AuditEngine{Name: "atlascrawl-a11y", Version: "1.0"}
	data.WCAGVersion = "2.1"
	data.AuditProfile = profile
	data.AuditedAt = time.Now().UTC()
	return data
}

func (r *Renderer) captureComputedStyles(ctx context.Context, req Request) *types.Styles {
	script := `(function(){
		function sample(sel){
			var e = document.querySelector(sel);
			if (!e) return null;
			var cs = window.getComputedStyle(e);
			return {selector: sel, properties: {
				"font-size": cs.fontSize, "color": cs.color, "font-family": cs.fontFamily,
				"display": cs.display, "font-weight": cs.fontWeight
			}};
		}
		return JSON.stringify([sample('body'), sample('h1'), sample('p')].filter(Boolean));
	})()`
	var raw string
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return nil
	}
	samples := parseStyleSamplesJSON(raw)
	if len(samples) == 0 {
		return nil
	}
	return &types.Styles{Samples: samples}
}

func extractOrigin(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}

func extractTitleLoose(html string) string {
	lower := strings.ToLower(html)
	start := strings.Index(lower, "<title")
	if start < 0 {
		return ""
	}
	start = strings.Index(lower[start:], ">")
	if start < 0 {
		return ""
	}
	rest := html[strings.Index(lower, "<title")+start+1:]
	end := strings.Index(strings.ToLower(rest), "</title>")
	if end < 0 {
		return ""
	}
	return rest[:end]
}

func formatConsoleArg(arg *cdpruntime.RemoteObject) string {
	if len(arg.Value) > 0 {
		raw := string(arg.Value)
		if unquoted, err := strconv.Unquote(raw); err == nil {
			return unquoted
		}
		if raw != "null" && raw != "undefined" {
			return raw
		}
	}
	if arg.Description != "" {
		return arg.Description
	}
	if arg.ClassName != "" {
		return "[" + arg.ClassName + "]"
	}
	return ""
}

func extractSourceInfo(stackTrace *cdpruntime.StackTrace) (string, string) {
	if stackTrace == nil || len(stackTrace.CallFrames) == 0 {
		return "", ""
	}
	frame := stackTrace.CallFrames[0]
	line := frame.LineNumber
	if line < 0 {
		line = 0
	}
	col := frame.ColumnNumber
	if col < 0 {
		col = 0
	}
	return frame.URL, fmt.Sprintf("%d:%d", line+1, col+1)
}

func parseAccessibilityJSON(raw string) *types.Accessibility {
	var parsed struct {
		Headings  []string `json:"headings"`
		Landmarks []string `json:"landmarks"`
		Roles     []string `json:"roles"`
		Missing   []string `json:"missing"`
		Forms     []string `json:"forms"`
		Lang      string   `json:"lang"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}
	return &types.Accessibility{
		Lang:              parsed.Lang,
		HeadingOrder:      parsed.Headings,
		Landmarks:         parsed.Landmarks,
		Roles:             parsed.Roles,
		MissingAltCount:   len(parsed.Missing),
		MissingAltSources: parsed.Missing,
		FormControls:      parsed.Forms,
	}
}

func parseStyleSamplesJSON(raw string) []types.ComputedStyleSample {
	var parsed []struct {
		Selector   string            `json:"selector"`
		Properties map[string]string `json:"properties"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}
	samples := make([]types.ComputedStyleSample, 0, len(parsed))
	for _, p := range parsed {
		samples = append(samples, types.ComputedStyleSample{Selector: p.Selector, Properties: p.Properties})
	}
	return samples
}

func categorizeRenderError(err error) string {
	if errors.Is(err, ErrWaitTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return types.CodeWaitTimeout
	}
	if errors.Is(err, ErrExtractHTML) {
		return types.CodeDOMSerializeFailed
	}
	if errors.Is(err, ErrNavigateFailed) {
		return types.CodeNavTimeout
	}
	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "net::err_") || strings.Contains(errMsg, "dns") || strings.Contains(errMsg, "ssl") || strings.Contains(errMsg, "tls") {
		return types.CodeTCPFailure
	}
	return types.CodeNavTimeout
}
