// Package export writes resolved records to files and databases.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/companyfinder/internal/record"
	"github.com/FranksOps/companyfinder/internal/storage"
	"github.com/FranksOps/companyfinder/internal/storage/csvbackend"
	"github.com/FranksOps/companyfinder/internal/storage/jsonbackend"
	"github.com/FranksOps/companyfinder/internal/storage/postgres"
	"github.com/FranksOps/companyfinder/internal/storage/sqlite"
)

// Format names an output encoding.
type Format string

const (
	JSON     Format = "json"
	CSV      Format = "csv"
	Excel    Format = "excel"
	XML      Format = "xml"
	RSS      Format = "rss"
	JSONL    Format = "jsonl"
	SQLite   Format = "sqlite"
	Postgres Format = "postgres"
)

var (
	// ErrUnsupportedFormat is returned for a format this package cannot write.
	ErrUnsupportedFormat = errors.New("export: unsupported format")
	// ErrLocked is returned when another process holds the output lock.
	ErrLocked = errors.New("export: output is locked by another process")
)

var extensions = map[Format]string{
	JSON:     ".json",
	CSV:      ".csv",
	Excel:    ".xlsx",
	XML:      ".xml",
	RSS:      ".rss",
	JSONL:    ".jsonl",
	SQLite:   ".db",
	Postgres: "",
}

var aliases = map[string]Format{
	"xlsx":       Excel,
	"ndjson":     JSONL,
	"sqlite3":    SQLite,
	"pg":         Postgres,
	"postgresql": Postgres,
}

// Formats lists every supported format.
func Formats() []Format {
	return []Format{JSON, CSV, Excel, XML, RSS, JSONL, SQLite, Postgres}
}

// ParseFormat resolves a format name or alias, case-insensitively.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if f, ok := aliases[name]; ok {
		return f, nil
	}
	f := Format(name)
	if _, ok := extensions[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
	return f, nil
}

// Ext returns the file extension for f, including the dot. Postgres has none.
func (f Format) Ext() string { return extensions[f] }

// Appends reports whether f adds to existing output instead of replacing it.
func (f Format) Appends() bool {
	return f == JSONL || f == SQLite || f == Postgres
}

// Exporter writes records in one or more formats. The zero value is usable.
type Exporter struct {
	// RunID tags entries written to jsonl, sqlite and postgres. A new one
	// is generated when empty.
	RunID string
	// PostgresDSN is used for the postgres format when the target path is
	// not itself a postgres:// URL.
	PostgresDSN string
	// LockTimeout bounds the wait for the advisory <path>.lock. Default 10s.
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// Export writes records to path with a zero Exporter.
func Export(ctx context.Context, records []record.Record, path string, format Format) error {
	return (&Exporter{}).Export(ctx, records, path, format)
}

// Export writes records to path in format.
func (e *Exporter) Export(ctx context.Context, records []record.Record, path string, format Format) error {
	e.defaults()

	if _, ok := extensions[format]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if format == Postgres {
		return e.toBackend(ctx, records, format, e.postgresDSN(path))
	}
	if path == "" {
		return fmt.Errorf("export: %s: empty output path", format)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export: %s: %w", format, err)
		}
	}

	unlock, err := e.lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	write := func(target string) error {
		switch format {
		case JSON:
			return writeJSON(records, target)
		case Excel:
			return writeExcel(records, target)
		case XML:
			return writeXML(records, target)
		case RSS:
			return writeRSS(records, target, time.Now())
		default:
			return e.toBackend(ctx, records, format, target)
		}
	}
	if format.Appends() {
		err = write(path)
	} else {
		err = replaceFile(path, write)
	}
	if err != nil {
		return err
	}

	e.Logger.Debug("exported records", "format", format, "path", path, "count", len(records))
	return nil
}

// ExportAll writes records in every format concurrently. With one format the
// path is used as given; with several, each format gets path with its own
// extension. It returns the path written for each format.
func (e *Exporter) ExportAll(ctx context.Context, records []record.Record, path string, formats []Format) (map[Format]string, error) {
	e.defaults()

	targets := make(map[Format]string, len(formats))
	for _, f := range formats {
		if _, ok := extensions[f]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
		}
		targets[f] = PathFor(path, f, len(formats) > 1)
	}

	g, ctx := errgroup.WithContext(ctx)
	for f, p := range targets {
		g.Go(func() error {
			return e.Export(ctx, records, p, f)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return targets, nil
}

// PathFor derives the output path for f from base. When rename is false, or
// f has no extension, base is returned unchanged.
func PathFor(base string, f Format, rename bool) string {
	if !rename || f.Ext() == "" {
		return base
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + f.Ext()
}

func (e *Exporter) defaults() {
	if e.RunID == "" {
		e.RunID = storage.NewRunID()
	}
	if e.LockTimeout <= 0 {
		e.LockTimeout = 10 * time.Second
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
}

func (e *Exporter) postgresDSN(path string) string {
	if strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://") {
		return path
	}
	return e.PostgresDSN
}

// lock takes the advisory lock next to path so concurrent runs do not
// interleave writes to the same file.
func (e *Exporter) lock(ctx context.Context, path string) (func(), error) {
	fl := flock.New(path + ".lock")

	lctx, cancel := context.WithTimeout(ctx, e.LockTimeout)
	defer cancel()

	ok, err := fl.TryLockContext(lctx, 50*time.Millisecond)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("export: lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return func() { _ = fl.Unlock() }, nil
}

// toBackend saves records through a storage.Backend in input order.
func (e *Exporter) toBackend(ctx context.Context, records []record.Record, format Format, target string) error {
	if target == "" {
		return fmt.Errorf("export: %s: no target", format)
	}

	backend, err := OpenBackend(ctx, format, target)
	if err != nil {
		return err
	}

	for i, r := range records {
		if err := backend.Save(ctx, storage.NewEntry(e.RunID, i, r)); err != nil {
			_ = backend.Close()
			return fmt.Errorf("export: %s: %w", format, err)
		}
	}
	if err := backend.Close(); err != nil {
		return fmt.Errorf("export: %s: close: %w", format, err)
	}
	return nil
}

// OpenBackend opens the storage backend behind a storage format. CSV is
// opened with record columns only.
func OpenBackend(ctx context.Context, format Format, target string) (storage.Backend, error) {
	var (
		b   storage.Backend
		err error
	)
	switch format {
	case JSONL:
		b, err = jsonbackend.New(target)
	case CSV:
		b, err = csvbackend.New(target, csvbackend.RecordColumnsOnly())
	case SQLite:
		b, err = sqlite.New(target)
	case Postgres:
		b, err = postgres.New(ctx, target)
	default:
		return nil, fmt.Errorf("%w: %q has no storage backend", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("export: %s: %w", format, err)
	}
	return b, nil
}

// replaceFile runs write against a new temporary file next to path and
// renames it over path only when write succeeds. The previous file survives a
// failed write.
func replaceFile(path string, write func(tmp string) error) error {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)
	f, err := os.CreateTemp(filepath.Dir(path), "."+base+".*"+ext)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	tmp := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("export: %w", err)
	}

	if err := write(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("export: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func writeJSON(records []record.Record, path string) error {
	if records == nil {
		records = []record.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("export: json: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("export: json: %w", err)
	}
	return nil
}
