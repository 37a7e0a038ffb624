// Package archive implements the Archive Finalizer (spec §4.14): it
// packages the staging directory — dataset parts, blob store, manifest,
// and provenance records — into a single zip file and atomically installs
// it at the configured output path.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// preCompressedExtensions are stored rather than re-compressed: dataset
// parts are already Zstd-compressed and blobs are stored as-is, so asking
// zip to deflate them again would spend CPU for no size benefit.
var preCompressedExtensions = map[string]bool{
	".zst": true,
}

// Finalizer zips a staging directory into one archive file.
type Finalizer struct {
	logger *zap.Logger
}

// New returns a Finalizer.
func New(logger *zap.Logger) *Finalizer {
	return &Finalizer{logger: logger}
}

// Summary describes the archive written by Finalize, used for the
// optional one-line JSON summary on stdout (spec §4.14/§9).
type Summary struct {
	Path      string `json:"path"`
	Bytes     int64  `json:"bytes"`
	FileCount int    `json:"file_count"`
}

// Finalize walks stagingDir and writes every regular file it contains into
// a zip archive at outputPath, using a temp-file-then-rename so a reader
// never observes a partially written archive (same pattern as the blob
// store and checkpoint writers).
func (f *Finalizer) Finalize(stagingDir, outputPath string) (*Summary, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("archive: create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".archive-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("archive: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	succeeded := false
	defer func() {
		tmp.Close()
		if !succeeded {
			os.Remove(tmpPath)
		}
	}()

	zw := zip.NewWriter(tmp)
	fileCount := 0

	walkErr := filepath.Walk(stagingDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return err
		}
		if err := addFile(zw, path, filepath.ToSlash(rel), info); err != nil {
			return err
		}
		fileCount++
		return nil
	})
	if walkErr != nil {
		zw.Close()
		return nil, fmt.Errorf("archive: walk staging dir: %w", walkErr)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: close zip writer: %w", err)
	}

	stat, err := tmp.Stat()
	if err != nil {
		return nil, fmt.Errorf("archive: stat temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("archive: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return nil, fmt.Errorf("archive: rename into place: %w", err)
	}
	succeeded = true

	if f.logger != nil {
		f.logger.Info("archive finalized",
			zap.String("path", outputPath),
			zap.Int64("bytes", stat.Size()),
			zap.Int("file_count", fileCount))
	}

	return &Summary{Path: outputPath, Bytes: stat.Size(), FileCount: fileCount}, nil
}

func addFile(zw *zip.Writer, srcPath, archiveName string, info os.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = archiveName
	header.Method = zip.Deflate
	if preCompressedExtensions[strings.ToLower(filepath.Ext(archiveName))] {
		header.Method = zip.Store
	}

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(w, src)
	return err
}
