package archive

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFinalize_WritesZipWithAllStagedFiles(t *testing.T) {
	staging := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(staging, "blobs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "pages.v1_part_000.jsonl.zst"), []byte("compressed"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "manifest.json"), []byte(`{"spec_version":"1.0"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "blobs", "ab.bin"), []byte("blobdata"), 0o644))

	out := filepath.Join(t.TempDir(), "nested", "archive.zip")
	f := New(zaptest.NewLogger(t))

	summary, err := f.Finalize(staging, out)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.FileCount)
	assert.FileExists(t, out)

	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()

	names := map[string]*zip.File{}
	for _, file := range zr.File {
		names[file.Name] = file
	}
	require.Contains(t, names, "manifest.json")
	require.Contains(t, names, "pages.v1_part_000.jsonl.zst")
	require.Contains(t, names, "blobs/ab.bin")
	assert.Equal(t, zip.Store, names["pages.v1_part_000.jsonl.zst"].Method)
	assert.Equal(t, zip.Deflate, names["manifest.json"].Method)
}

func TestWriteSummary_EmitsSingleJSONLine(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSummary(&buf, &Summary{Path: "/tmp/out.zip", Bytes: 42, FileCount: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"/tmp/out.zip","bytes":42,"file_count":3}`, buf.String())
}
