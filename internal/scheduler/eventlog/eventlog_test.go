package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFileEmitter_WritesOneJSONLinePerEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	e, err := NewFileEmitter(path, RotationConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	e.Emit(KindAdmission, "page-1", "https://example.com/", map[string]interface{}{"depth": 0})
	e.Emit(KindRenderFinished, "page-1", "https://example.com/", map[string]interface{}{"status": 200})
	require.NoError(t, e.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var first Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, KindAdmission, first.Kind)
	assert.Equal(t, "page-1", first.PageID)
	assert.Equal(t, float64(0), first.Fields["depth"])
}

func TestNoopEmitter_DiscardsSilently(t *testing.T) {
	var e NoopEmitter
	e.Emit(KindShutdownReason, "", "", nil)
	assert.NoError(t, e.Close())
}
