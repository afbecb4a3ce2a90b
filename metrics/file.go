package metrics

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	perrors "github.com/vinayprograms/pulse/errors"
)

// FileRecorder appends cycles as JSON lines.
type FileRecorder struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewFileRecorder opens path for appending, creating parent directories.
func NewFileRecorder(path string) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, perrors.WrapWithCode(err, perrors.ErrCodeMetricsFailed, "create metrics directory")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, perrors.WrapWithCode(err, perrors.ErrCodeMetricsFailed, "open metrics file")
	}
	return &FileRecorder{path: path, file: f}, nil
}

func (r *FileRecorder) RecordCycle(_ context.Context, c Cycle) error {
	line, err := json.Marshal(c)
	if err != nil {
		return recordFailed(err, c, "encode cycle")
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.file.Write(line); err != nil {
		return recordFailed(err, c, "append cycle")
	}
	return nil
}

// Recent reads the file and returns the last limit cycles, newest first.
// Lines that fail to decode are skipped.
func (r *FileRecorder) Recent(_ context.Context, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if err != nil {
		return nil, perrors.WrapWithCode(err, perrors.ErrCodeMetricsFailed, "open metrics file")
	}
	defer f.Close()

	var ring []Cycle
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var c Cycle
		if json.Unmarshal(scanner.Bytes(), &c) != nil {
			continue
		}
		ring = append(ring, c)
		if len(ring) > limit {
			ring = ring[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, perrors.WrapWithCode(err, perrors.ErrCodeMetricsFailed, "read metrics file")
	}

	out := make([]Cycle, len(ring))
	for i, c := range ring {
		out[len(ring)-1-i] = c
	}
	return out, nil
}

// Close closes the underlying file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
