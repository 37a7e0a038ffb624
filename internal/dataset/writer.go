// Package dataset implements the Dataset Writers (spec §4.10): one
// streaming, schema-validated JSONL writer per dataset, with soft-
// threshold part rotation and Zstd compression at finalize. Grounded on
// the teacher's internal/edge/cache FilesystemCache (temp-file-then-rename
// atomic writes) and the blob store's klauspost/compress/zstd encoder,
// generalized from the teacher's single-file HTML cache write into a
// rotating multi-part append stream validated with xeipuuv/gojsonschema.
package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/edgecomet/atlascrawl/internal/schema"
	"github.com/edgecomet/atlascrawl/pkg/types"
)

// rotationThresholdBytes is the soft uncompressed-part-size cap (spec
// §4.10 default 150 MB).
const rotationThresholdBytes = 150 * 1024 * 1024

type partInfo struct {
	path        string
	recordCount int
}

// Writer streams one dataset's records to rotating JSONL parts.
type Writer struct {
	name       string
	version    string
	schemaURI  string
	dir        string
	registry   *schema.Registry
	strict     bool
	logger     *zap.Logger

	mu              sync.Mutex
	file            *os.File
	partIndex       int
	partBytes       int64
	partRecordCount int
	totalRecords    int
	closedParts     []partInfo
	finalized       bool
}

// New opens (or reattaches to, on resume) a dataset's writer rooted at
// stagingDir/<name>/.
func New(name, version string, registry *schema.Registry, stagingDir string, strict bool, logger *zap.Logger) (*Writer, error) {
	schemaURI, ok := registry.URI(name)
	if !ok {
		return nil, fmt.Errorf("dataset: %s has no registered schema", name)
	}

	dir := filepath.Join(stagingDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("dataset: create dir for %s: %w", name, err)
	}

	w := &Writer{
		name: name, version: version, schemaURI: schemaURI,
		dir: dir, registry: registry, strict: strict, logger: logger,
	}

	resumeIdx, resumeSize, err := findResumablePart(dir, name, version)
	if err != nil {
		return nil, err
	}
	w.partIndex = resumeIdx
	w.partBytes = resumeSize

	f, err := os.OpenFile(w.partPath(w.partIndex), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("dataset: open part %d for %s: %w", w.partIndex, name, err)
	}
	w.file = f
	return w, nil
}

// findResumablePart scans dir for the highest-numbered still-uncompressed
// part (spec §4.12: "dataset writers reattach by appending to the last
// (still-uncompressed) part"); returns index 0 and size 0 for a fresh run.
func findResumablePart(dir, name, version string) (int, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("dataset: scan %s: %w", dir, err)
	}
	best := -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var idx int
		if _, scanErr := fmt.Sscanf(e.Name(), name+"."+version+"_part_%03d.jsonl", &idx); scanErr == nil && idx > best {
			best = idx
		}
	}
	if best < 0 {
		return 0, 0, nil
	}
	info, err := os.Stat(filepath.Join(dir, fmt.Sprintf("%s.%s_part_%03d.jsonl", name, version, best)))
	if err != nil {
		return 0, 0, fmt.Errorf("dataset: stat resumed part: %w", err)
	}
	return best, info.Size(), nil
}

func (w *Writer) partPath(idx int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s.%s_part_%03d.jsonl", w.name, w.version, idx))
}

// Write validates record against the dataset's schema and appends it as
// one JSON line. In non-strict mode, an invalid record is still written
// (with a logged warning); in strict mode it is rejected.
func (w *Writer) Write(record interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return ErrClosed
	}

	if verr := w.registry.Validate(w.name, record); verr != nil {
		if w.strict {
			return fmt.Errorf("%w: %v", ErrStrictValidation, verr)
		}
		w.logger.Warn("dataset record failed schema validation, writing anyway",
			zap.String("dataset", w.name), zap.Error(verr))
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("dataset: marshal %s record: %w", w.name, err)
	}
	raw = append(raw, '\n')

	if _, err := w.file.Write(raw); err != nil {
		return fmt.Errorf("dataset: write %s record: %w", w.name, err)
	}

	w.partBytes += int64(len(raw))
	w.partRecordCount++
	w.totalRecords++

	if w.partBytes >= rotationThresholdBytes {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	return nil
}

// rotate closes the current part and opens the next one. Caller holds mu.
func (w *Writer) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("dataset: close part %d for %s: %w", w.partIndex, w.name, err)
	}
	w.closedParts = append(w.closedParts, partInfo{path: w.partPath(w.partIndex), recordCount: w.partRecordCount})

	w.partIndex++
	w.partBytes = 0
	w.partRecordCount = 0

	f, err := os.OpenFile(w.partPath(w.partIndex), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("dataset: open part %d for %s: %w", w.partIndex, w.name, err)
	}
	w.file = f
	return nil
}

// RecordCount reports records written so far (open + closed parts).
func (w *Writer) RecordCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalRecords
}

// Metadata is the outcome of Finalize: the dataset-level summary plus
// every part's individual metadata for the manifest's parts map.
type Metadata struct {
	Name            string
	Version         string
	RecordCount     int
	BytesCompressed int64
	HashSHA256      string
	SchemaURI       string
	Parts           []types.PartMetadata
}

// Finalize closes the stream, Zstd-compresses every part, deletes the
// uncompressed sources, and returns the combined dataset metadata (spec
// §4.10: hash_sha256 is the SHA-256 of the concatenation of per-part
// hashes).
func (w *Writer) Finalize() (*Metadata, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return nil, ErrClosed
	}
	if err := w.file.Close(); err != nil {
		return nil, fmt.Errorf("dataset: close final part for %s: %w", w.name, err)
	}
	w.finalized = true

	allParts := append(w.closedParts, partInfo{path: w.partPath(w.partIndex), recordCount: w.partRecordCount})

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("dataset: init zstd encoder: %w", err)
	}
	defer encoder.Close()

	combined := sha256.New()
	meta := &Metadata{Name: w.name, Version: w.version, SchemaURI: w.schemaURI}

	for _, p := range allParts {
		if p.recordCount == 0 {
			os.Remove(p.path)
			continue
		}

		raw, err := os.ReadFile(p.path)
		if err != nil {
			return nil, fmt.Errorf("dataset: read part %s: %w", p.path, err)
		}
		compressed := encoder.EncodeAll(raw, nil)

		zstPath := p.path + ".zst"
		tmp := zstPath + ".tmp"
		if err := os.WriteFile(tmp, compressed, 0644); err != nil {
			return nil, fmt.Errorf("dataset: write %s: %w", tmp, err)
		}
		if err := os.Rename(tmp, zstPath); err != nil {
			os.Remove(tmp)
			return nil, fmt.Errorf("dataset: rename %s: %w", tmp, err)
		}
		if err := os.Remove(p.path); err != nil {
			w.logger.Warn("dataset: failed to remove uncompressed source", zap.String("path", p.path), zap.Error(err))
		}

		sum := sha256.Sum256(compressed)
		partHash := hex.EncodeToString(sum[:])
		combined.Write([]byte(partHash))

		meta.RecordCount += p.recordCount
		meta.BytesCompressed += int64(len(compressed))
		meta.Parts = append(meta.Parts, types.PartMetadata{
			Name: w.name, Version: w.version, Path: zstPath,
			RecordCount: p.recordCount, Bytes: int64(len(compressed)),
			HashSHA256: partHash, SchemaURI: w.schemaURI,
		})
	}

	meta.HashSHA256 = hex.EncodeToString(combined.Sum(nil))
	return meta, nil
}
