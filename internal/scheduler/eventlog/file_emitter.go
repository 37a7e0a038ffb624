package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RotationConfig mirrors the teacher's log-rotation knobs, reused here for
// the event log file instead of the application log file.
type RotationConfig struct {
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// FileEmitter appends one JSON line per event to a rotating file.
type FileEmitter struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
	logger *zap.Logger
}

// NewFileEmitter opens (creating parent directories as needed) the event
// log file at path with rotation per cfg.
func NewFileEmitter(path string, cfg RotationConfig, logger *zap.Logger) (*FileEmitter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create directory %s: %w", dir, err)
	}

	maxSize := cfg.MaxSizeMB
	if maxSize == 0 {
		maxSize = 100
	}
	maxBackups := cfg.MaxBackups
	if maxBackups == 0 {
		maxBackups = 10
	}

	return &FileEmitter{
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSize,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: maxBackups,
			Compress:   cfg.Compress,
		},
		logger: logger,
	}, nil
}

// Emit marshals the event and appends it as one JSON line.
func (e *FileEmitter) Emit(kind Kind, pageID, url string, fields map[string]interface{}) {
	ev := New(kind, pageID, url, fields)
	ev.Timestamp = time.Now().UTC()

	line, err := json.Marshal(ev)
	if err != nil {
		e.logger.Warn("eventlog: failed to marshal event", zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.writer.Write(append(line, '\n')); err != nil {
		e.logger.Warn("eventlog: failed to write event", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// Close closes the underlying file handle.
func (e *FileEmitter) Close() error {
	return e.writer.Close()
}
