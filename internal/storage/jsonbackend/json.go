// Package jsonbackend stores entries as JSON Lines: one storage.Entry per
// line, appended across runs.
package jsonbackend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/FranksOps/companyfinder/internal/storage"
)

var _ storage.Backend = (*Backend)(nil)

const maxLine = 1 << 20

// Option configures a Backend.
type Option func(*Backend)

// WithSync flushes the file to disk after every Save.
func WithSync() Option {
	return func(b *Backend) { b.sync = true }
}

// Backend is a JSON Lines storage.Backend. Safe for concurrent use within
// one process; the exporter's file lock covers separate processes.
type Backend struct {
	mu   sync.Mutex
	path string
	file *os.File
	sync bool
}

// New opens or creates the file at path for appending. A partial last line,
// left by a writer that died mid-Save, is cut off so new entries start on a
// fresh line.
func New(path string, opts ...Option) (*Backend, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonl: open: %w", err)
	}
	if err := trimTornTail(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("jsonl: repair %s: %w", path, err)
	}

	b := &Backend{path: path, file: f}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Path returns the file the backend writes to.
func (b *Backend) Path() string { return b.path }

func (b *Backend) Save(ctx context.Context, entry *storage.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("jsonl: marshal: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("jsonl: write: %w", err)
	}
	if b.sync {
		if err := b.file.Sync(); err != nil {
			return fmt.Errorf("jsonl: sync: %w", err)
		}
	}
	return nil
}

// Query reads the file through a separate handle, so appends are not
// disturbed. Undecodable lines are reported with their line number.
func (b *Backend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("jsonl: open: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	var entries []*storage.Entry
	for n := 1; scanner.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var e storage.Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("jsonl: %s line %d: %w", b.path, n, err)
		}
		if filter.Match(&e) {
			entries = append(entries, &e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("jsonl: read: %w", err)
	}

	return filter.Apply(entries), nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}

// trimTornTail truncates f after its last newline when the file does not end
// with one.
func trimTornTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}

	// Walk back in chunks to the previous newline.
	const chunk = 64 * 1024
	end := size
	for end > 0 {
		start := max(end-chunk, 0)
		buf := make([]byte, end-start)
		if _, err := f.ReadAt(buf, start); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
			return f.Truncate(start + int64(i) + 1)
		}
		end = start
	}
	return f.Truncate(0)
}
