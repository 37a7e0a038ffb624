package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/edgecomet/atlascrawl/internal/browserpool"
	atlasfetch "github.com/edgecomet/atlascrawl/internal/fetch"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

func TestDetectChallenge_TitleAndStatus(t *testing.T) {
	assert.True(t, detectChallenge(503, "Just a moment...", "<html></html>"))
	assert.True(t, detectChallenge(429, "Checking your browser before accessing", ""))
	assert.False(t, detectChallenge(200, "Just a moment...", ""))
}

func TestDetectChallenge_DOMMarker(t *testing.T) {
	assert.True(t, detectChallenge(200, "", `<div class="cf-challenge-running"></div>`))
	assert.False(t, detectChallenge(200, "Home", "<div>hello</div>"))
}

func TestBlocklist_BlocksGlobalAndCustomPatterns(t *testing.T) {
	bl := NewBlocklist([]string{"*example-ads.test*"}, []string{"Image"})
	assert.True(t, bl.IsBlocked("https://doubleclick.net/pixel"))
	assert.True(t, bl.IsBlocked("https://example-ads.test/banner.js"))
	assert.False(t, bl.IsBlocked("https://example.com/page"))
	assert.True(t, bl.IsResourceTypeBlocked("Image"))
	assert.False(t, bl.IsResourceTypeBlocked("Document"))
}

func TestNetworkCollector_AggregatesRequests(t *testing.T) {
	c := newNetworkCollector("https://example.com")
	c.onRequestSent("r1")
	c.onResponseReceived("r1", 200, "https://example.com/a.js", false)
	c.onLoadingFinished("r1", 1000)

	c.onRequestSent("r2")
	c.onResponseReceived("r2", 200, "https://cdn.other.test/b.js", true)
	c.onLoadingFinished("r2", 2000)

	assert.Equal(t, 0, c.inFlightCount())
	agg := c.aggregate()
	assert.Equal(t, 2, agg.RequestCount)
	assert.Equal(t, int64(3000), agg.TotalBytes)
	assert.Equal(t, 1, agg.CompressedCount)
	assert.Equal(t, 1, agg.ThirdPartyCount)
	assert.Equal(t, 2, agg.StatusCounts["2xx"])
}

func TestNetworkCollector_InFlightTracksOutstanding(t *testing.T) {
	c := newNetworkCollector("https://example.com")
	c.onRequestSent("r1")
	c.onRequestSent("r2")
	assert.Equal(t, 2, c.inFlightCount())
	c.onResponseReceived("r1", 200, "https://example.com/a.js", false)
	c.onLoadingFinished("r1", 10)
	assert.Equal(t, 1, c.inFlightCount())
	c.onRequestFailed("r2")
	assert.Equal(t, 0, c.inFlightCount())
}

func TestRender_RawMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>hi</body></html>"))
	}))
	defer srv.Close()

	logger := zaptest.NewLogger(t)
	ssrfOff := false
	fetcher := atlasfetch.New(atlasfetch.Config{Timeout: 5 * time.Second, SSRFProtection: &ssrfOff}, logger)
	renderer := New(nil, fetcher, logger)

	result, rerr := renderer.Render(context.Background(), Request{URL: srv.URL, Mode: types.RenderModeRaw})
	require.Nil(t, rerr)
	require.NotNil(t, result)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, types.NavEndFetch, result.NavEndReason)
	assert.Contains(t, string(result.RawBody), "hi")
}

// TestRender_PrerenderMode drives a real headless Chrome instance through
// the browser pool, matching the project's browser-pool test style rather
// than mocking chromedp.
func TestRender_PrerenderMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<html><head><title>Hello</title></head><body><h1>Hello world</h1></body></html>`))
	}))
	defer srv.Close()

	logger := zaptest.NewLogger(t)
	cfg := browserpool.DefaultConfig()
	cfg.Concurrency = 1
	pool, err := browserpool.New(cfg, logger)
	require.NoError(t, err)
	defer pool.Shutdown()

	fetcher := atlasfetch.New(atlasfetch.Config{Timeout: 5 * time.Second}, logger)
	renderer := New(pool, fetcher, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, rerr := renderer.Render(ctx, Request{
		URL: srv.URL, RequestID: "req-1", Mode: types.RenderModePrerender, Timeout: 10 * time.Second,
	})
	require.Nil(t, rerr)
	require.NotNil(t, result)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Contains(t, string(result.DOM), "Hello world")
}
