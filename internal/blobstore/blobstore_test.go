package blobstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoad_RoundTrip(t *testing.T) {
	s, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	data := []byte("<html><body>hello</body></html>")
	res, err := s.Store(data)
	require.NoError(t, err)
	assert.False(t, res.Deduplicated)
	assert.Regexp(t, `^sha256/[0-9a-f]{2}/[0-9a-f]{2}/[0-9a-f]{64}\.zst$`, res.BlobRef)

	loaded, err := s.Load(res.BlobRef)
	require.NoError(t, err)
	assert.Equal(t, data, loaded)
}

func TestStore_DeduplicatesIdenticalBytes(t *testing.T) {
	s, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	data := []byte("duplicate content")
	res1, err := s.Store(data)
	require.NoError(t, err)
	assert.False(t, res1.Deduplicated)

	for i := 0; i < 4; i++ {
		res, err := s.Store(data)
		require.NoError(t, err)
		assert.True(t, res.Deduplicated)
		assert.Equal(t, res1.BlobRef, res.BlobRef)
	}

	stats := s.Stats()
	assert.EqualValues(t, 1, stats.TotalBlobs)
	assert.EqualValues(t, 4, stats.DeduplicatedCount)
}

func TestStore_DifferentBytesDifferentRefs(t *testing.T) {
	s, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	r1, err := s.Store([]byte("a"))
	require.NoError(t, err)
	r2, err := s.Store([]byte("b"))
	require.NoError(t, err)

	assert.NotEqual(t, r1.BlobRef, r2.BlobRef)
}

func TestLoad_IntegrityFailureOnTamperedFile(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, nil)
	require.NoError(t, err)

	res, err := s.Store([]byte("original"))
	require.NoError(t, err)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	tampered := enc.EncodeAll([]byte("different content entirely"), nil)

	path := filepath.Join(root, "blobs", filepath.FromSlash(res.BlobRef))
	require.NoError(t, os.WriteFile(path, tampered, 0644))

	_, err = s.Load(res.BlobRef)
	assert.Error(t, err)
}
