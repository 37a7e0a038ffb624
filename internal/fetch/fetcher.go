// Package fetch implements the Fetcher (spec §4.6): one HTTP GET with
// redirect-chain capture and header normalization. Grounded on the
// teacher's internal/edge/bypass bypass-fetch client — the teacher's
// plain direct-to-origin GET used when render services are unavailable —
// generalized from a single-hop fetch into a capped redirect-following
// loop with a per-hop recorded chain, and reusing its SSRF-safe dial.
package fetch

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/atlascrawl/internal/common/urlutil"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

// HeaderPolicy controls which request headers the Fetcher strips or adds.
type HeaderPolicy struct {
	StripCookies     bool
	StripAuthHeaders bool
	UserAgent        string
}

// Config configures a Fetcher.
type Config struct {
	MaxRedirects   int
	Timeout        time.Duration
	MaxBytesPerPage int64
	HeaderPolicy   HeaderPolicy

	// SSRFProtection blocks dials to private/reserved IPs, including
	// post-DNS-resolution rebinding. Nil or true enables it; a caller must
	// set it to false explicitly to opt out (e.g. tests pointed at an
	// httptest.Server, which always listens on loopback).
	SSRFProtection *bool
}

// Fetcher performs plain HTTP(S) GETs with redirect-chain capture.
type Fetcher struct {
	client *fasthttp.Client
	cfg    Config
	logger *zap.Logger
}

// New builds a Fetcher. SSRF protection is on by default, matching the
// teacher's bypass service default, but cfg.SSRFProtection can disable it.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}
	client := &fasthttp.Client{
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if cfg.SSRFProtection == nil || *cfg.SSRFProtection {
		client.Dial = ssrfSafeDial
	}
	return &Fetcher{client: client, cfg: cfg, logger: logger}
}

// Result is the outcome of one Fetch call.
type Result struct {
	FinalURL      string
	Status        int
	Headers       map[string]string
	Body          []byte
	RedirectChain []types.RedirectHop
	FetchMs       int64
	Truncated     bool
}

// Fetch issues a GET against rawURL, following up to cfg.MaxRedirects
// redirects and recording the full hop chain. On failure it returns a
// types.Error with a stable fetch-phase code (spec §4.6); the caller is
// expected to drop the page without halting the run.
func (f *Fetcher) Fetch(rawURL string) (*Result, *types.Error) {
	start := time.Now()

	currentURL := rawURL
	var chain []types.RedirectHop

	for hop := 0; ; hop++ {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()

		req.SetRequestURI(currentURL)
		req.Header.SetMethod("GET")
		f.applyHeaderPolicy(req)

		err := f.client.Do(req, resp)
		if err != nil {
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
			return nil, classifyFetchError(currentURL, err)
		}

		status := resp.StatusCode()

		if isRedirectStatus(status) {
			location := string(resp.Header.Peek("Location"))
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)

			if location == "" {
				return nil, &types.Error{
					URL: rawURL, OccurredAt: time.Now().UTC(), Phase: types.PhaseFetch,
					Code: types.CodeProtocolError, Message: "redirect response missing Location header",
				}
			}
			chain = append(chain, types.RedirectHop{URL: currentURL, Status: status})
			if hop+1 > f.cfg.MaxRedirects {
				return nil, &types.Error{
					URL: rawURL, OccurredAt: time.Now().UTC(), Phase: types.PhaseFetch,
					Code: types.CodeProtocolError, Message: "exceeded maximum redirect count",
				}
			}
			currentURL = resolveLocation(currentURL, location)
			continue
		}

		headers := make(map[string]string)
		resp.Header.VisitAll(func(key, value []byte) {
			headers[string(key)] = string(value)
		})

		body := resp.Body()
		truncated := false
		if f.cfg.MaxBytesPerPage > 0 && int64(len(body)) > f.cfg.MaxBytesPerPage {
			body = body[:f.cfg.MaxBytesPerPage]
			truncated = true
		}
		bodyCopy := append([]byte(nil), body...)

		result := &Result{
			FinalURL:      currentURL,
			Status:        status,
			Headers:       headers,
			Body:          bodyCopy,
			RedirectChain: chain,
			FetchMs:       time.Since(start).Milliseconds(),
			Truncated:     truncated,
		}

		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)

		if truncated {
			f.logger.Warn("response body truncated", zap.String("url", rawURL), zap.Int64("limit", f.cfg.MaxBytesPerPage))
		}

		return result, nil
	}
}

// applyHeaderPolicy sets the configured User-Agent and, per policy, ensures
// no cookie or auth header rides along — the request is built fresh per
// hop, so this is enforcement of the policy rather than a strip of
// anything actually present.
func (f *Fetcher) applyHeaderPolicy(req *fasthttp.Request) {
	ua := f.cfg.HeaderPolicy.UserAgent
	if ua == "" {
		ua = "AtlasCrawl/1.0"
	}
	req.Header.Set("User-Agent", ua)

	if f.cfg.HeaderPolicy.StripCookies {
		req.Header.Del("Cookie")
	}
	if f.cfg.HeaderPolicy.StripAuthHeaders {
		req.Header.Del("Authorization")
		req.Header.Del("Proxy-Authorization")
	}
}

func isRedirectStatus(status int) bool {
	switch status {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

func resolveLocation(base, location string) string {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location
	}
	u := &fasthttp.URI{}
	u.Parse(nil, []byte(base))
	u.Update(location)
	return u.String()
}

// classifyFetchError maps a fasthttp/net error into a stable fetch-phase
// error code (spec §4.6: DNS, TCP, TLS, timeout, truncated, protocol).
func classifyFetchError(url string, err error) *types.Error {
	code := types.CodeProtocolError
	switch {
	case isTimeout(err):
		code = types.CodeFetchTimeout
	case isDNSError(err):
		code = types.CodeDNSFailure
	case isTLSError(err):
		code = types.CodeTLSFailure
	case isConnError(err):
		code = types.CodeTCPFailure
	}
	return &types.Error{URL: url, OccurredAt: time.Now().UTC(), Phase: types.PhaseFetch, Code: code, Message: err.Error()}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if ne, ok := err.(net.Error); ok {
		netErr = ne
		return netErr.Timeout()
	}
	return err == fasthttp.ErrTimeout || err == fasthttp.ErrDialTimeout
}

func isDNSError(err error) bool {
	_, ok := err.(*net.DNSError)
	return ok
}

func isTLSError(err error) bool {
	return strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "x509:")
}

func isConnError(err error) bool {
	_, ok := err.(*net.OpError)
	return ok
}

// ssrfSafeDial resolves the hostname, validates every candidate IP is
// public, then connects to the first one — blocking DNS-rebinding SSRF
// (the same protection the teacher's bypass service applies).
func ssrfSafeDial(addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("DNS resolution failed for %q: %w", host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no IP addresses found for %q", host)
	}
	for _, ip := range ips {
		if err := urlutil.ValidateResolvedIP(ip); err != nil {
			return nil, fmt.Errorf("SSRF protection for %q: %w", host, err)
		}
	}
	return fasthttp.DialTimeout(net.JoinHostPort(ips[0].String(), port), 10*time.Second)
}
