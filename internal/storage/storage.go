package storage

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/companyfinder/internal/record"
)

// Entry is a Record as persisted by a Backend.
type Entry struct {
	ID     string        `json:"id"`
	RunID  string        `json:"runId"`
	Seq    int           `json:"seq"` // position of the company in the run's input
	Record record.Record `json:"record"`
}

// NewEntry wraps r for the run runID with a fresh ID.
func NewEntry(runID string, seq int, r record.Record) *Entry {
	return &Entry{
		ID:     uuid.NewString(),
		RunID:  runID,
		Seq:    seq,
		Record: r,
	}
}

// NewRunID returns an identifier for one resolve run.
func NewRunID() string {
	return uuid.NewString()
}

// Filter allows querying for specific Entries.
type Filter struct {
	RunID       string
	CompanyName string
	Matched     *bool
	Since       *time.Time
	Limit       int
	Offset      int
}

// Match reports whether e passes every condition set on f. Limit and Offset
// are ignored.
func (f Filter) Match(e *Entry) bool {
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if f.CompanyName != "" && e.Record.CompanyName() != f.CompanyName {
		return false
	}
	if f.Matched != nil && e.Record.Matched() != *f.Matched {
		return false
	}
	if f.Since != nil && e.Record.Timestamp().Before(*f.Since) {
		return false
	}
	return true
}

// Apply filters entries in memory, orders them by (timestamp, seq) ascending
// and applies Offset and Limit. Backends without a query engine use it.
func (f Filter) Apply(entries []*Entry) []*Entry {
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}

	slices.SortStableFunc(out, func(a, b *Entry) int {
		if c := a.Record.Timestamp().Compare(b.Record.Timestamp()); c != 0 {
			return c
		}
		return a.Seq - b.Seq
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*Entry{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}

// Backend defines the interface for storing and querying resolved records.
type Backend interface {
	Save(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, filter Filter) ([]*Entry, error)
	Close() error
}
