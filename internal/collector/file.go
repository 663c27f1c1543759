package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/Be-Wagile-India/pypss/internal/model"
)

// FileSink appends traces as JSON lines to a shared file. Each physical
// write holds an exclusive advisory flock, so multiple producer processes
// can append to the same file or pipe without interleaving records.
type FileSink struct {
	file *os.File
	path string
}

// NewFileSink opens (creating if needed) the trace file in append mode.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("collector: open trace file: %w", err)
	}
	return &FileSink{file: f, path: path}, nil
}

// Write serializes the batch to a single buffer and appends it under an
// exclusive lock. One write syscall per batch keeps the lock hold short.
func (s *FileSink) Write(ctx context.Context, batch []model.Trace) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, t := range batch {
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("collector: encode trace: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	fd := int(s.file.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return fmt.Errorf("collector: lock trace file: %w", err)
	}
	defer func() { _ = unix.Flock(fd, unix.LOCK_UN) }()

	if _, err := s.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("collector: append traces: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	return s.file.Close()
}

// ReadTraceFile loads a JSONL trace file produced by a FileSink. Used by
// one-shot scoring of previously captured traces.
func ReadTraceFile(path string) (model.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("collector: read trace file: %w", err)
	}

	var batch model.Batch
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var t model.Trace
		if err := dec.Decode(&t); err != nil {
			return nil, fmt.Errorf("collector: decode trace file %s: %w", path, err)
		}
		if t.Validate() != nil {
			continue // malformed records never enter scoring
		}
		batch = append(batch, t)
	}
	return batch, nil
}
