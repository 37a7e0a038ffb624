package dataset

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/edgecomet/atlascrawl/internal/schema"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.New()
	require.NoError(t, err)
	return reg
}

func errorRecord(n int) types.Error {
	return types.Error{
		URL: "https://example.com/page", OccurredAt: time.Now().UTC(),
		Phase: types.PhaseFetch, Code: types.CodeDNSFailure, Message: "lookup failed",
	}
}

func TestWriter_WriteAndFinalize(t *testing.T) {
	dir := t.TempDir()
	reg := newTestRegistry(t)
	logger := zaptest.NewLogger(t)

	w, err := New("errors", DefaultVersion, reg, dir, true, logger)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Write(errorRecord(i)))
	}
	assert.Equal(t, 5, w.RecordCount())

	meta, err := w.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 5, meta.RecordCount)
	assert.NotEmpty(t, meta.HashSHA256)
	require.Len(t, meta.Parts, 1)

	zstPath := meta.Parts[0].Path
	assert.FileExists(t, zstPath)
	_, statErr := os.Stat(filepath.Join(dir, "errors", "errors.v1_part_000.jsonl"))
	assert.True(t, os.IsNotExist(statErr), "uncompressed source should be removed")

	decoder, err := zstd.NewReader(nil)
	require.NoError(t, err)
	compressed, err := os.ReadFile(zstPath)
	require.NoError(t, err)
	raw, err := decoder.DecodeAll(compressed, nil)
	require.NoError(t, err)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	lines := 0
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 5, lines)
}

func TestWriter_StrictRejectsInvalidRecord(t *testing.T) {
	dir := t.TempDir()
	reg := newTestRegistry(t)
	logger := zaptest.NewLogger(t)

	w, err := New("errors", DefaultVersion, reg, dir, true, logger)
	require.NoError(t, err)

	err = w.Write(map[string]interface{}{"url": "https://example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStrictValidation)
}

func TestWriter_NonStrictWritesInvalidRecordWithWarning(t *testing.T) {
	dir := t.TempDir()
	reg := newTestRegistry(t)
	logger := zaptest.NewLogger(t)

	w, err := New("errors", DefaultVersion, reg, dir, false, logger)
	require.NoError(t, err)

	err = w.Write(map[string]interface{}{"url": "https://example.com"})
	assert.NoError(t, err)
	assert.Equal(t, 1, w.RecordCount())
}

func TestWriter_RotatesOnThreshold(t *testing.T) {
	dir := t.TempDir()
	reg := newTestRegistry(t)
	logger := zaptest.NewLogger(t)

	w, err := New("errors", DefaultVersion, reg, dir, false, logger)
	require.NoError(t, err)
	w.partBytes = rotationThresholdBytes - 10

	require.NoError(t, w.Write(errorRecord(0)))
	require.NoError(t, w.Write(errorRecord(1)))

	assert.Equal(t, 1, w.partIndex)
}

func TestManager_WriteOpensLazilyAndTracksPresence(t *testing.T) {
	dir := t.TempDir()
	reg := newTestRegistry(t)
	logger := zaptest.NewLogger(t)

	m := NewManager(dir, reg, true, logger)
	assert.Empty(t, m.Present())

	require.NoError(t, m.Write("errors", errorRecord(0)))
	present := m.Present()
	assert.True(t, present["errors"])

	results, err := m.FinalizeAll()
	require.NoError(t, err)
	require.Contains(t, results, "errors")
	assert.Equal(t, 1, results["errors"].RecordCount)
}
