package fetch

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// testConfig returns cfg with SSRF protection disabled, since every test
// here points at an httptest.Server on loopback.
func testConfig(cfg Config) Config {
	off := false
	cfg.SSRFProtection = &off
	return cfg
}

func TestFetch_SimpleOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := New(testConfig(Config{Timeout: 5 * time.Second}), zaptest.NewLogger(t))
	result, fetchErr := f.Fetch(srv.URL)
	require.Nil(t, fetchErr)
	require.NotNil(t, result)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.Equal(t, "<html><body>hello</body></html>", string(result.Body))
	assert.Empty(t, result.RedirectChain)
}

func TestFetch_FollowsRedirectChain(t *testing.T) {
	var finalSrv *httptest.Server
	finalSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("landed"))
	}))
	defer finalSrv.Close()

	var hop1Srv *httptest.Server
	hop1Srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, finalSrv.URL, http.StatusFound)
	}))
	defer hop1Srv.Close()

	startSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, hop1Srv.URL, http.StatusMovedPermanently)
	}))
	defer startSrv.Close()

	f := New(testConfig(Config{Timeout: 5 * time.Second}), zaptest.NewLogger(t))
	result, fetchErr := f.Fetch(startSrv.URL)
	require.Nil(t, fetchErr)
	require.NotNil(t, result)
	assert.Equal(t, "landed", string(result.Body))
	require.Len(t, result.RedirectChain, 2)
	assert.Equal(t, startSrv.URL, result.RedirectChain[0].URL)
	assert.Equal(t, http.StatusMovedPermanently, result.RedirectChain[0].Status)
	assert.Equal(t, hop1Srv.URL, result.RedirectChain[1].URL)
	assert.Equal(t, http.StatusFound, result.RedirectChain[1].Status)
	assert.Equal(t, finalSrv.URL, result.FinalURL)
}

func TestFetch_RedirectLoopExceedsMaxRedirects(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	f := New(testConfig(Config{Timeout: 5 * time.Second, MaxRedirects: 3}), zaptest.NewLogger(t))
	result, fetchErr := f.Fetch(srv.URL)
	assert.Nil(t, result)
	require.NotNil(t, fetchErr)
	assert.Equal(t, "exceeded maximum redirect count", fetchErr.Message)
}

func TestFetch_HeaderPolicyAppliesUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(testConfig(Config{
		Timeout:      5 * time.Second,
		HeaderPolicy: HeaderPolicy{UserAgent: "AtlasCrawl-Test/9"},
	}), zaptest.NewLogger(t))
	_, fetchErr := f.Fetch(srv.URL)
	require.Nil(t, fetchErr)
	assert.Equal(t, "AtlasCrawl-Test/9", gotUA)
}

func TestFetch_TruncatesBodyOverLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	f := New(testConfig(Config{Timeout: 5 * time.Second, MaxBytesPerPage: 4}), zaptest.NewLogger(t))
	result, fetchErr := f.Fetch(srv.URL)
	require.Nil(t, fetchErr)
	require.NotNil(t, result)
	assert.True(t, result.Truncated)
	assert.Equal(t, "0123", string(result.Body))
}
