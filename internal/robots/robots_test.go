package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/atlascrawl/pkg/types"
)

func TestEvaluate_AllowedByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	defer srv.Close()

	e := New(Config{UserAgent: "AtlasCrawler", RespectRobots: true}, nil)
	d, err := e.Evaluate(context.Background(), srv.URL+"/public")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, types.RobotsAllowed, d.Event.Decision)
}

func TestEvaluate_Disallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	defer srv.Close()

	e := New(Config{UserAgent: "AtlasCrawler", RespectRobots: true}, nil)
	d, err := e.Evaluate(context.Background(), srv.URL+"/private/page")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, types.RobotsDisallowed, d.Event.Decision)
}

func TestEvaluate_OverrideAllowsDisallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	defer srv.Close()

	e := New(Config{UserAgent: "AtlasCrawler", RespectRobots: true, OverrideRobots: true}, nil)
	d, err := e.Evaluate(context.Background(), srv.URL+"/private/page")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.OverrideUsed)
	assert.True(t, d.Event.OverrideUsed)
}

func Test4xxRobotsTreatedAsAllowAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e := New(Config{UserAgent: "AtlasCrawler", RespectRobots: true}, nil)
	d, err := e.Evaluate(context.Background(), srv.URL+"/anything")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func Test5xxRobotsAllowsWithWarning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := New(Config{UserAgent: "AtlasCrawler", RespectRobots: true}, nil)
	d, err := e.Evaluate(context.Background(), srv.URL+"/anything")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRespectRobotsFalseSkipsFetchEntirely(t *testing.T) {
	e := New(Config{UserAgent: "AtlasCrawler", RespectRobots: false}, nil)
	d, err := e.Evaluate(context.Background(), "https://example.com/private")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, "robots_disabled", d.Event.Reason)
}

func TestEvaluate_CachesPerOrigin(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	defer srv.Close()

	e := New(Config{UserAgent: "AtlasCrawler", RespectRobots: true}, nil)
	_, err := e.Evaluate(context.Background(), srv.URL+"/a")
	require.NoError(t, err)
	_, err = e.Evaluate(context.Background(), srv.URL+"/b")
	require.NoError(t, err)

	assert.Equal(t, 1, hits)
}
