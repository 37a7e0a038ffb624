// Package blobstore implements the Blob Store (spec §4.9): content-
// addressed, Zstd-compressed storage for HTML bodies, resource bodies, and
// media, with deduplication and integrity verification. Grounded on the
// teacher's internal/edge/cache filesystem writer (atomic temp-file-then-
// rename pattern) and its compress.go encoder/decoder, generalized from
// snappy/lz4 page-cache compression to SHA-256 content addressing with
// klauspost/compress/zstd.
package blobstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// Stats summarizes the store's accumulated activity.
type Stats struct {
	TotalBlobs        int64
	CompressedBytes   int64
	DeduplicatedCount int64
}

// Store is a SHA-256 content-addressed, Zstd-compressed blob store rooted
// at a staging directory's blobs/ subtree.
type Store struct {
	root   string
	logger *zap.Logger

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	// hashLocks serializes concurrent writers of the same hash so that a
	// racing duplicate write is a no-op rather than a torn file (spec
	// §4.9 "concurrent writer producing the same hash is a no-op" and
	// §5 "concurrent writers for distinct hashes are serialized per-hash").
	mu        sync.Mutex
	hashLocks map[string]*sync.Mutex

	stats Stats
}

// New opens (creating if absent) a blob store rooted at stagingDir/blobs.
func New(stagingDir string, logger *zap.Logger) (*Store, error) {
	root := filepath.Join(stagingDir, "blobs")
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: init encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: init decoder: %w", err)
	}

	return &Store{
		root:      root,
		logger:    logger,
		encoder:   encoder,
		decoder:   decoder,
		hashLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Result is the outcome of a Store call.
type Result struct {
	Hash        string
	BlobRef     string
	Deduplicated bool
}

// Store computes the SHA-256 of data, Zstd-compresses it, and writes it to
// blobs/sha256/<aa>/<bb>/<hash>.zst iff that file does not already exist.
func (s *Store) Store(data []byte) (Result, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	blobRef := blobRefFor(hash)
	path := filepath.Join(s.root, filepath.FromSlash(blobRef))

	lock := s.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(path); err == nil {
		s.mu.Lock()
		s.stats.DeduplicatedCount++
		s.mu.Unlock()
		return Result{Hash: hash, BlobRef: blobRef, Deduplicated: true}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Result{}, fmt.Errorf("blobstore: mkdir: %w", err)
	}

	compressed := s.encoder.EncodeAll(data, nil)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0644); err != nil {
		return Result{}, fmt.Errorf("blobstore: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		// A concurrent writer may have already renamed its own temp file
		// into place for this same hash between our Stat and our Rename;
		// that race is the defined no-op, not a failure.
		if _, statErr := os.Stat(path); statErr == nil {
			s.mu.Lock()
			s.stats.DeduplicatedCount++
			s.mu.Unlock()
			return Result{Hash: hash, BlobRef: blobRef, Deduplicated: true}, nil
		}
		return Result{}, fmt.Errorf("blobstore: rename: %w", err)
	}

	s.mu.Lock()
	s.stats.TotalBlobs++
	s.stats.CompressedBytes += int64(len(compressed))
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debug("blob stored",
			zap.String("blob_ref", blobRef),
			zap.Int("raw_bytes", len(data)),
			zap.Int("compressed_bytes", len(compressed)))
	}

	return Result{Hash: hash, BlobRef: blobRef}, nil
}

// Load decompresses and returns the bytes at blobRef, verifying that the
// content's SHA-256 matches the hash embedded in the path (spec invariant 2).
func (s *Store) Load(blobRef string) ([]byte, error) {
	path := filepath.Join(s.root, filepath.FromSlash(blobRef))

	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", blobRef, err)
	}

	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: decompress %s: %w", blobRef, err)
	}

	wantHash := hashFromBlobRef(blobRef)
	sum := sha256.Sum256(data)
	gotHash := hex.EncodeToString(sum[:])
	if wantHash != "" && gotHash != wantHash {
		return nil, fmt.Errorf("blobstore: integrity check failed for %s: got %s", blobRef, gotHash)
	}

	return data, nil
}

// Copy writes the decompressed content to w. It loads the whole blob into
// memory first (via Load), so the integrity check runs before any byte is
// written.
func (s *Store) Copy(w io.Writer, blobRef string) error {
	data, err := s.Load(blobRef)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, bytes.NewReader(data))
	return err
}

// Stats reports the store's accumulated dedup/size statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Store) lockFor(hash string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.hashLocks[hash]
	if !ok {
		lock = &sync.Mutex{}
		s.hashLocks[hash] = lock
	}
	return lock
}

// blobRefFor returns "sha256/<aa>/<bb>/<hash>.zst" for a full hex hash.
func blobRefFor(hash string) string {
	return fmt.Sprintf("sha256/%s/%s/%s.zst", hash[0:2], hash[2:4], hash)
}

// hashFromBlobRef extracts the hex hash from a "sha256/<aa>/<bb>/<hash>.zst"
// blob_ref, returning "" if the ref does not match that shape.
func hashFromBlobRef(blobRef string) string {
	base := filepath.Base(blobRef)
	const suffix = ".zst"
	if len(base) <= len(suffix) || base[len(base)-len(suffix):] != suffix {
		return ""
	}
	return base[:len(base)-len(suffix)]
}
