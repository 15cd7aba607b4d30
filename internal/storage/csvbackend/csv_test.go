package csvbackend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/companyfinder/internal/record"
	"github.com/FranksOps/companyfinder/internal/serp"
	"github.com/FranksOps/companyfinder/internal/storage"
	"github.com/FranksOps/companyfinder/pkg/opt"
)

func newEntry(runID string, seq int, name, title, url string, at time.Time) *storage.Entry {
	best := opt.None[serp.Result]()
	if title != "" {
		best = opt.Some(serp.Result{Title: title})
	}
	return storage.NewEntry(runID, seq, record.BuildAt(name, serp.BuildQuery(name), best, record.OptionalString(url), at))
}

func TestCSVBackend(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "records.csv")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second) // Format truncates precision

	acme := newEntry("run1", 0, "Acme, Corp", "Acme Corp | LinkedIn", "https://www.linkedin.com/company/acme-corp", now.Add(-2*time.Hour))
	globex := newEntry("run1", 1, "Globex", "", "", now.Add(-1*time.Hour))

	if err := b.Save(ctx, acme); err != nil {
		t.Fatalf("Failed to save entry 1: %v", err)
	}
	if err := b.Save(ctx, globex); err != nil {
		t.Fatalf("Failed to save entry 2: %v", err)
	}

	// Test Matched Filter
	boolFalse := false
	resultsMissing, err := b.Query(ctx, storage.Filter{Matched: &boolFalse})
	if err != nil {
		t.Fatalf("Failed to query by Matched=false: %v", err)
	}
	if len(resultsMissing) != 1 || resultsMissing[0].ID != globex.ID {
		t.Fatalf("Expected only globex for Matched=false, got %v", resultsMissing)
	}
	if resultsMissing[0].Record.ResultTitle().IsSome() {
		t.Errorf("Expected empty title to read back as absent")
	}

	// Test CompanyName Filter, quoting survives
	resultsName, err := b.Query(ctx, storage.Filter{CompanyName: "Acme, Corp"})
	if err != nil {
		t.Fatalf("Failed to query by CompanyName: %v", err)
	}
	if len(resultsName) != 1 {
		t.Fatalf("Expected 1 result for CompanyName filter, got %d", len(resultsName))
	}
	got := resultsName[0]
	if got.RunID != "run1" || got.Seq != 0 {
		t.Errorf("Expected run1/0, got %s/%d", got.RunID, got.Seq)
	}
	if u, _ := got.Record.LinkedinURL().Get(); u != "https://www.linkedin.com/company/acme-corp" {
		t.Errorf("Unexpected URL %q", u)
	}
	if !got.Record.Timestamp().Equal(acme.Record.Timestamp()) {
		t.Errorf("Expected timestamp %v, got %v", acme.Record.Timestamp(), got.Record.Timestamp())
	}

	// Test Since Filter
	past := now.Add(-90 * time.Minute)
	resultsSince, err := b.Query(ctx, storage.Filter{Since: &past})
	if err != nil {
		t.Fatalf("Failed to query by Since: %v", err)
	}
	if len(resultsSince) != 1 || resultsSince[0].ID != globex.ID {
		t.Fatalf("Expected only globex since %v, got %v", past, resultsSince)
	}

	// Test no filters, ordering
	resultsAll, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query all: %v", err)
	}
	if len(resultsAll) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(resultsAll))
	}
	if resultsAll[0].ID != acme.ID {
		t.Errorf("Expected acme first, got %s", resultsAll[0].Record.CompanyName())
	}

	// Test offset
	resultsOffset, err := b.Query(ctx, storage.Filter{Offset: 1})
	if err != nil {
		t.Fatalf("Failed to query offset: %v", err)
	}
	if len(resultsOffset) != 1 || resultsOffset[0].ID != globex.ID {
		t.Errorf("Expected globex for offset 1, got %v", resultsOffset)
	}
}

func TestCSVBackend_RecordColumnsOnly(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "export.csv")

	b, err := New(filePath, RecordColumnsOnly())
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := b.Save(ctx, newEntry("run", 0, "Globex", "", "", at)); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	want := "companyName,searchQuery,resultTitle,linkedinUrl,timestamp\n" +
		"Globex,\"\"\"Globex\"\" site:linkedin.com/company\",,,2026-05-01T10:00:00Z\n"
	if string(data) != want {
		t.Errorf("Unexpected file contents:\n%s\nwant:\n%s", data, want)
	}

	// Reopening keeps the existing layout
	b, err = New(filePath)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer b.Close()
	if err := b.Save(ctx, newEntry("run", 1, "Initech", "", "", at)); err != nil {
		t.Fatalf("Failed to save after reopen: %v", err)
	}

	entries, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "" || entries[1].Seq != 1 {
		t.Errorf("Expected row-numbered entries without IDs, got %+v", entries)
	}

	data, _ = os.ReadFile(filePath)
	if lines := strings.Count(string(data), "\n"); lines != 3 {
		t.Errorf("Expected header plus 2 rows, got %d lines", lines)
	}
}
