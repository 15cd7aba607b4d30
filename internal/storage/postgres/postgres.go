package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FranksOps/companyfinder/internal/record"
	"github.com/FranksOps/companyfinder/internal/storage"
	"github.com/FranksOps/companyfinder/pkg/opt"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
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
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS company_records_run ON company_records (run_id, seq);
`

const columns = `id, run_id, seq, company_name, search_query, result_title, linkedin_url, created_at`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, entry *storage.Entry) error {
	r := entry.Record
	query := `INSERT INTO company_records (` + columns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := b.pool.Exec(ctx, query,
		entry.ID,
		entry.RunID,
		entry.Seq,
		r.CompanyName(),
		r.SearchQuery(),
		nullable(r.ResultTitle()),
		nullable(r.LinkedinURL()),
		r.Timestamp(),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert: %w", err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Entry, error) {
	query := `SELECT ` + columns + ` FROM company_records WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, paramCount)
		args = append(args, filter.RunID)
		paramCount++
	}
	if filter.CompanyName != "" {
		query += fmt.Sprintf(` AND company_name = $%d`, paramCount)
		args = append(args, filter.CompanyName)
		paramCount++
	}
	if filter.Matched != nil {
		if *filter.Matched {
			query += ` AND linkedin_url IS NOT NULL`
		} else {
			query += ` AND linkedin_url IS NULL`
		}
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at ASC, seq ASC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	var entries []*storage.Entry
	for rows.Next() {
		var (
			e                  storage.Entry
			name, searchQuery  string
			title, linkedinURL *string
			createdAt          time.Time
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Seq, &name, &searchQuery, &title, &linkedinURL, &createdAt); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		e.Record = record.Restore(name, searchQuery, fromPtr(title), fromPtr(linkedinURL), createdAt)
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows: %w", err)
	}
	return entries, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func nullable(o opt.Option[string]) *string {
	if v, ok := o.Get(); ok {
		return &v
	}
	return nil
}

func fromPtr(s *string) opt.Option[string] {
	if s == nil {
		return opt.None[string]()
	}
	return opt.Some(*s)
}
