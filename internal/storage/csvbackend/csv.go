package csvbackend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/FranksOps/companyfinder/internal/record"
	"github.com/FranksOps/companyfinder/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

const (
	colID    = "id"
	colRunID = "runId"
	colSeq   = "seq"
)

type csvBackend struct {
	mu      sync.Mutex
	file    *os.File
	headers []string
}

// Option configures the CSV backend.
type Option func(*csvBackend)

// RecordColumnsOnly drops the id, runId and seq columns so the file holds
// just the record fields. Entries read back from such a file have no ID or
// RunID and are numbered by row.
func RecordColumnsOnly() Option {
	return func(b *csvBackend) {
		b.headers = record.Fields
	}
}

// New creates a new CSV-backed storage.Backend. When the file already has a
// header row, that layout is kept.
func New(filePath string, opts ...Option) (storage.Backend, error) {
	b := &csvBackend{
		headers: append(append([]string{}, record.Fields...), colID, colRunID, colSeq),
	}
	for _, o := range opts {
		o(b)
	}

	// Open file for appending, create if it doesn't exist
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("csv: open: %w", err)
	}
	b.file = f

	// Check if file is empty to write headers
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csv: stat: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(b.headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("csv: write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csv: write header: %w", err)
		}
		return b, nil
	}

	existing, err := csv.NewReader(f).Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	b.headers = existing
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("csv: seek: %w", err)
	}
	return b, nil
}

func (b *csvBackend) Save(ctx context.Context, entry *storage.Entry) error {
	values := make(map[string]string, len(record.Fields)+3)
	for i, v := range entry.Record.Values() {
		values[record.Fields[i]] = v
	}
	values[colID] = entry.ID
	values[colRunID] = entry.RunID
	values[colSeq] = strconv.Itoa(entry.Seq)

	row := make([]string, len(b.headers))
	for i, h := range b.headers {
		row[i] = values[h]
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Ensure we're at the end of the file for appending (just in case)
	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("csv: seek: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("csv: write: %w", err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: write: %w", err)
	}

	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Seek to the beginning of the file to read all entries
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csv: seek: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []*storage.Entry{}, nil
		}
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	col := func(row []string, name string) string {
		if i, ok := idx[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	var entries []*storage.Entry
	for n := 0; ; n++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: read: %w", err)
		}

		ts, err := record.ParseTime(col(row, record.FieldTimestamp))
		if err != nil {
			continue // skip malformed rows
		}
		seq, err := strconv.Atoi(col(row, colSeq))
		if err != nil {
			seq = n
		}

		entries = append(entries, &storage.Entry{
			ID:    col(row, colID),
			RunID: col(row, colRunID),
			Seq:   seq,
			Record: record.Restore(
				col(row, record.FieldCompanyName),
				col(row, record.FieldSearchQuery),
				record.OptionalString(col(row, record.FieldResultTitle)),
				record.OptionalString(col(row, record.FieldLinkedinURL)),
				ts,
			),
		})
	}

	return filter.Apply(entries), nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
