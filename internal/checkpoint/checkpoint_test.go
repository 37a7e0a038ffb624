package checkpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/edgecomet/atlascrawl/internal/frontier"
)

func TestCheckpointer_SaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)
	c := New(dir, 500, logger)

	state := State{
		CrawlID:        "crawl-1",
		StartedAt:      time.Now().UTC().Truncate(time.Second),
		Frontier:       frontier.Snapshot{Visited: map[string]string{"http://example.com|/": "page-1"}, Admitted: 1},
		PagesCompleted: 3,
		ErrorsCount:    1,
	}
	require.NoError(t, c.Save(state))

	loaded, found, err := c.Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, state.CrawlID, loaded.CrawlID)
	assert.Equal(t, state.PagesCompleted, loaded.PagesCompleted)
	assert.Equal(t, state.Frontier.Admitted, loaded.Frontier.Admitted)
}

func TestCheckpointer_LoadMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)
	c := New(dir, 500, logger)

	_, found, err := c.Load()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCheckpointer_OnPageCompletedFiresAtInterval(t *testing.T) {
	logger := zaptest.NewLogger(t)
	c := New(t.TempDir(), 3, logger)

	assert.False(t, c.OnPageCompleted())
	assert.False(t, c.OnPageCompleted())
	assert.True(t, c.OnPageCompleted())
	assert.False(t, c.OnPageCompleted())
}
