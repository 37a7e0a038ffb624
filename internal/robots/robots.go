// Package robots implements the Robots Evaluator (spec §4.2): per-origin
// robots.txt fetch-once-and-cache, allow/disallow/override decisions, and
// crawl-delay extraction, built on github.com/temoto/robotstxt for parsing
// and valyala/fasthttp for the fetch itself, matching every other
// HTTP-fetching concern in the repo (internal/fetch, the teacher's
// bypass_service.go). Grounded on the teacher's per-origin caching idiom
// in internal/common/redis (cache the parsed result for the run, not per
// request).
package robots

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/atlascrawl/pkg/types"
)

// Decision is the result of evaluating one URL against its origin's
// robots.txt, paired with the structured event the caller should log.
type Decision struct {
	Allowed     bool
	OverrideUsed bool
	CrawlDelay  time.Duration
	Event       types.RobotsDecision
}

type cacheEntry struct {
	data       *robotstxt.RobotsData
	crawlDelay time.Duration
	fetchErr   error
}

// Evaluator fetches and caches robots.txt per origin for the run's lifetime.
type Evaluator struct {
	httpClient     *fasthttp.Client
	timeout        time.Duration
	userAgent      string
	respectRobots  bool
	overrideRobots bool
	logger         *zap.Logger

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

// Config configures an Evaluator.
type Config struct {
	UserAgent      string
	RespectRobots  bool
	OverrideRobots bool
	Timeout        time.Duration
}

// New builds an Evaluator. If cfg.Timeout is zero, a 10s default is used.
func New(cfg Config, logger *zap.Logger) *Evaluator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Evaluator{
		httpClient:     &fasthttp.Client{ReadTimeout: timeout, WriteTimeout: timeout},
		timeout:        timeout,
		userAgent:      cfg.UserAgent,
		respectRobots:  cfg.RespectRobots,
		overrideRobots: cfg.OverrideRobots,
		logger:         logger,
		cache:          make(map[string]*cacheEntry),
	}
}

// Evaluate decides whether rawURL may be fetched under the configured
// user agent, fetching and caching that origin's robots.txt on first use.
func (e *Evaluator) Evaluate(ctx context.Context, rawURL string) (*Decision, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("robots: invalid url %q: %w", rawURL, err)
	}

	if !e.respectRobots {
		return &Decision{
			Allowed: true,
			Event: types.RobotsDecision{
				URL:       rawURL,
				Decision:  types.RobotsAllowed,
				Reason:    "robots_disabled",
				UserAgent: e.userAgent,
			},
		}, nil
	}

	entry := e.fetchOrigin(ctx, u)

	allowed := true
	reason := "matched_rule"
	if entry.fetchErr != nil {
		reason = entry.fetchErr.Error()
	} else if entry.data != nil {
		group := entry.data.FindGroup(e.userAgent)
		allowed = group.Test(u.Path)
		if !allowed {
			reason = "disallowed_by_robots"
		}
	}

	overrideUsed := false
	if !allowed && e.overrideRobots {
		overrideUsed = true
		allowed = true
		reason = "override_enabled"
	}

	decisionKind := types.RobotsAllowed
	if !allowed {
		decisionKind = types.RobotsDisallowed
	}
	if entry.fetchErr != nil && entry.data == nil {
		// Timeout/5xx path still allows, but is recorded distinctly.
	}

	return &Decision{
		Allowed:      allowed,
		OverrideUsed: overrideUsed,
		CrawlDelay:   entry.crawlDelay,
		Event: types.RobotsDecision{
			URL:          rawURL,
			Decision:     decisionKind,
			Reason:       reason,
			UserAgent:    e.userAgent,
			OverrideUsed: overrideUsed,
		},
	}, nil
}

// fetchOrigin fetches and parses robots.txt for u's origin, once per run.
func (e *Evaluator) fetchOrigin(ctx context.Context, u *url.URL) *cacheEntry {
	origin := u.Scheme + "://" + u.Host

	e.mu.Lock()
	if cached, ok := e.cache[origin]; ok {
		e.mu.Unlock()
		return cached
	}
	e.mu.Unlock()

	entry := e.doFetch(ctx, origin)

	e.mu.Lock()
	e.cache[origin] = entry
	e.mu.Unlock()

	return entry
}

func (e *Evaluator) doFetch(ctx context.Context, origin string) *cacheEntry {
	robotsURL := origin + "/robots.txt"

	status, body, err := e.get(robotsURL)
	if err != nil {
		// Timeout or transport error: "unknown, allow but warn".
		if e.logger != nil {
			e.logger.Warn("robots.txt fetch failed, allowing with warning",
				zap.String("origin", origin), zap.Error(err))
		}
		return &cacheEntry{fetchErr: fmt.Errorf("unknown_allow_by_default_warn")}
	}

	if status >= 400 && status < 500 {
		// "no robots, allow" — treat as an empty robots.txt.
		data, _ := robotstxt.FromStatusAndString(status, "")
		return &cacheEntry{data: data}
	}
	if status >= 500 {
		if e.logger != nil {
			e.logger.Warn("robots.txt server error, allowing with warning",
				zap.String("origin", origin), zap.Int("status", status))
		}
		return &cacheEntry{fetchErr: fmt.Errorf("unknown_allow_by_default_warn")}
	}

	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		return &cacheEntry{fetchErr: fmt.Errorf("parse_error_allow_by_default")}
	}

	crawlDelay := time.Duration(0)
	if group := data.FindGroup(e.userAgent); group != nil {
		crawlDelay = group.CrawlDelay
	}

	return &cacheEntry{data: data, crawlDelay: crawlDelay}
}

// get issues a single robots.txt GET, following at most one redirect hop —
// matching the previous net/http client's CheckRedirect, which stopped
// after the first hop and took whatever response came back.
func (e *Evaluator) get(robotsURL string) (int, []byte, error) {
	currentURL := robotsURL
	for hop := 0; ; hop++ {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		req.SetRequestURI(currentURL)
		req.Header.SetMethod("GET")
		req.Header.Set("User-Agent", e.userAgent)

		err := e.httpClient.DoTimeout(req, resp, e.timeout)
		if err != nil {
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
			return 0, nil, err
		}

		status := resp.StatusCode()
		if hop == 0 && isRedirectStatus(status) {
			location := string(resp.Header.Peek("Location"))
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
			if location == "" {
				return status, nil, nil
			}
			currentURL = resolveRedirect(currentURL, location)
			continue
		}

		body := append([]byte(nil), resp.Body()...)
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
		return status, body, nil
	}
}

func isRedirectStatus(status int) bool {
	switch status {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

func resolveRedirect(base, location string) string {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location
	}
	u := &fasthttp.URI{}
	u.Parse(nil, []byte(base))
	u.Update(location)
	return u.String()
}
