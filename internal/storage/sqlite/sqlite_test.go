package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/companyfinder/internal/record"
	"github.com/FranksOps/companyfinder/internal/serp"
	"github.com/FranksOps/companyfinder/internal/storage"
	"github.com/FranksOps/companyfinder/pkg/opt"
)

func TestSQLiteBackend(t *testing.T) {
	// Use an in-memory database for testing
	dsn := "file::memory:?cache=shared"
	b, err := New(dsn)
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC() // SQLite stores UTC well

	matched := storage.NewEntry("run1", 0, record.BuildAt(
		"Acme Corp",
		serp.BuildQuery("Acme Corp"),
		opt.Some(serp.Result{Title: "Acme Corp | LinkedIn"}),
		opt.Some("https://www.linkedin.com/company/acme-corp"),
		now.Add(-2*time.Hour),
	))
	missing := storage.NewEntry("run1", 1, record.BuildAt(
		"Globex",
		serp.BuildQuery("Globex"),
		opt.None[serp.Result](),
		opt.None[string](),
		now.Add(-1*time.Hour),
	))
	other := storage.NewEntry("run2", 0, record.BuildAt(
		"Initech",
		serp.BuildQuery("Initech"),
		opt.Some(serp.Result{Title: "Initech"}),
		opt.Some("https://www.linkedin.com/company/initech"),
		now,
	))

	for _, e := range []*storage.Entry{other, missing, matched} {
		if err := b.Save(ctx, e); err != nil {
			t.Fatalf("Failed to save entry: %v", err)
		}
	}

	results, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query results: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	// Oldest first regardless of insert order
	if results[0].ID != matched.ID || results[2].ID != other.ID {
		t.Errorf("Unexpected order: %s, %s, %s", results[0].Record.CompanyName(), results[1].Record.CompanyName(), results[2].Record.CompanyName())
	}

	got := results[0]
	if got.RunID != "run1" || got.Seq != 0 {
		t.Errorf("Expected run1/0, got %s/%d", got.RunID, got.Seq)
	}
	if got.Record.SearchQuery() != matched.Record.SearchQuery() {
		t.Errorf("Expected query %s, got %s", matched.Record.SearchQuery(), got.Record.SearchQuery())
	}
	if title, ok := got.Record.ResultTitle().Get(); !ok || title != "Acme Corp | LinkedIn" {
		t.Errorf("Expected title, got %v", got.Record.ResultTitle())
	}
	if got.Record.Timestamp().Unix() != matched.Record.Timestamp().Unix() {
		t.Errorf("Expected timestamp %v, got %v", matched.Record.Timestamp(), got.Record.Timestamp())
	}

	// Absent values stay absent
	boolFalse := false
	resultsMissing, err := b.Query(ctx, storage.Filter{Matched: &boolFalse})
	if err != nil {
		t.Fatalf("Failed to query by Matched: %v", err)
	}
	if len(resultsMissing) != 1 || resultsMissing[0].ID != missing.ID {
		t.Fatalf("Expected only the missing entry, got %v", resultsMissing)
	}
	if resultsMissing[0].Record.LinkedinURL().IsSome() || resultsMissing[0].Record.ResultTitle().IsSome() {
		t.Errorf("Expected absent URL and title")
	}

	// Test RunID filter
	resultsRun, err := b.Query(ctx, storage.Filter{RunID: "run2"})
	if err != nil {
		t.Fatalf("Failed to query by RunID: %v", err)
	}
	if len(resultsRun) != 1 || resultsRun[0].ID != other.ID {
		t.Errorf("Expected only run2 entry, got %v", resultsRun)
	}

	// Test Since filter
	past := now.Add(-90 * time.Minute)
	resultsSince, err := b.Query(ctx, storage.Filter{Since: &past})
	if err != nil {
		t.Fatalf("Failed to query results with Since: %v", err)
	}
	if len(resultsSince) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(resultsSince))
	}

	// Offset without limit
	resultsOffset, err := b.Query(ctx, storage.Filter{Offset: 2})
	if err != nil {
		t.Fatalf("Failed to query with Offset: %v", err)
	}
	if len(resultsOffset) != 1 || resultsOffset[0].ID != other.ID {
		t.Errorf("Expected last entry for offset 2, got %v", resultsOffset)
	}

	resultsLimit, err := b.Query(ctx, storage.Filter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Failed to query with Limit: %v", err)
	}
	if len(resultsLimit) != 1 || resultsLimit[0].ID != missing.ID {
		t.Errorf("Expected the middle entry, got %v", resultsLimit)
	}
}

func TestSQLiteBackend_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	ctx := context.Background()

	b, err := New(path)
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	e := storage.NewEntry("run", 0, record.Build("Acme", "q", opt.None[serp.Result](), opt.None[string]()))
	if err := b.Save(ctx, e); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	// Reopen and read back
	b, err = New(path)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer b.Close()
	results, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(results) != 1 || results[0].ID != e.ID {
		t.Errorf("Expected persisted entry, got %v", results)
	}

	if err := b.Save(ctx, e); err == nil {
		t.Error("Expected duplicate ID to be rejected")
	}
}
