package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/FranksOps/companyfinder/internal/record"
	"github.com/FranksOps/companyfinder/internal/storage"
	"github.com/FranksOps/companyfinder/pkg/opt"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS company_records (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	company_name TEXT NOT NULL,
	search_query TEXT NOT NULL,
	result_title TEXT,
	linkedin_url TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS company_records_run ON company_records (run_id, seq);
`

const columns = `id, run_id, seq, company_name, search_query, result_title, linkedin_url, created_at`

// New creates a new SQLite-backed storage.Backend. dsn is a file path or a
// modernc.org/sqlite DSN.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer; also keeps in-memory databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, entry *storage.Entry) error {
	r := entry.Record
	query := `INSERT INTO company_records (` + columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := b.db.ExecContext(ctx, query,
		entry.ID,
		entry.RunID,
		entry.Seq,
		r.CompanyName(),
		r.SearchQuery(),
		nullString(r.ResultTitle().Get()),
		nullString(r.LinkedinURL().Get()),
		r.Timestamp(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Entry, error) {
	query := `SELECT ` + columns + ` FROM company_records WHERE 1=1`
	args := []any{}

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.CompanyName != "" {
		query += ` AND company_name = ?`
		args = append(args, filter.CompanyName)
	}
	if filter.Matched != nil {
		if *filter.Matched {
			query += ` AND linkedin_url IS NOT NULL`
		} else {
			query += ` AND linkedin_url IS NULL`
		}
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY created_at ASC, seq ASC`

	// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := -1
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	var entries []*storage.Entry
	for rows.Next() {
		var (
			e                  storage.Entry
			name, searchQuery  string
			title, linkedinURL sql.NullString
			createdAt          time.Time
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Seq, &name, &searchQuery, &title, &linkedinURL, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		e.Record = record.Restore(name, searchQuery, fromNull(title), fromNull(linkedinURL), createdAt)
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	return entries, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

func nullString(s string, ok bool) sql.NullString {
	return sql.NullString{String: s, Valid: ok}
}

func fromNull(s sql.NullString) opt.Option[string] {
	if !s.Valid {
		return opt.None[string]()
	}
	return opt.Some(s.String)
}
