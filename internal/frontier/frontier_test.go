package frontier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/atlascrawl/internal/normalize"
)

func newTestFrontier(cfg Config) *Frontier {
	return New(normalize.New(normalize.ParamKeep), cfg)
}

func TestAdmit_FirstAdmissionWins(t *testing.T) {
	f := newTestFrontier(Config{MaxDepth: -1})

	r1, err := f.Admit("https://example.com/a", 0, "")
	require.NoError(t, err)
	assert.True(t, r1.Admitted)

	r2, err := f.Admit("https://example.com/a", 0, "")
	require.NoError(t, err)
	assert.False(t, r2.Admitted)
	assert.Equal(t, r1.PageID, r2.PageID)
}

func TestAdmit_DepthRejection(t *testing.T) {
	f := newTestFrontier(Config{MaxDepth: 1})

	r, err := f.Admit("https://example.com/deep", 2, "")
	require.NoError(t, err)
	assert.False(t, r.Admitted)
}

func TestAdmit_UnlimitedDepth(t *testing.T) {
	f := newTestFrontier(Config{MaxDepth: -1})

	r, err := f.Admit("https://example.com/deep", 50, "")
	require.NoError(t, err)
	assert.True(t, r.Admitted)
}

func TestAdmit_MaxPagesCapped(t *testing.T) {
	f := newTestFrontier(Config{MaxDepth: -1, MaxPages: 1})

	r1, err := f.Admit("https://example.com/a", 0, "")
	require.NoError(t, err)
	assert.True(t, r1.Admitted)

	r2, err := f.Admit("https://example.com/b", 0, "")
	require.NoError(t, err)
	assert.False(t, r2.Admitted)
	assert.True(t, r2.Capped)
}

func TestPop_BreadthFirstByDepthFIFOWithinDepth(t *testing.T) {
	f := newTestFrontier(Config{MaxDepth: -1})

	_, _ = f.Admit("https://example.com/d1-a", 1, "")
	_, _ = f.Admit("https://example.com/d0-a", 0, "")
	_, _ = f.Admit("https://example.com/d0-b", 0, "")
	_, _ = f.Admit("https://example.com/d1-b", 1, "")

	e1, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/d0-a", e1.URL)

	e2, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/d0-b", e2.URL)

	e3, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/d1-a", e3.URL)

	e4, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/d1-b", e4.URL)

	_, ok = f.Pop()
	assert.False(t, ok)
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	f := newTestFrontier(Config{MaxDepth: -1})
	_, _ = f.Admit("https://example.com/a", 0, "")
	_, _ = f.Admit("https://example.com/b", 1, "")
	_, _ = f.Pop()

	snap := f.Snapshot()

	restored := newTestFrontier(Config{MaxDepth: -1})
	restored.Restore(snap)

	assert.Equal(t, f.AdmittedCount(), restored.AdmittedCount())
	e, ok := restored.Pop()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/b", e.URL)
}

func TestAdmit_PageIDNeverReused(t *testing.T) {
	f := newTestFrontier(Config{MaxDepth: -1})

	r1, err := f.Admit("https://example.com/x", 0, "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		r, err := f.Admit("https://example.com/x", 0, "")
		require.NoError(t, err)
		assert.Equal(t, r1.PageID, r.PageID)
	}
}
