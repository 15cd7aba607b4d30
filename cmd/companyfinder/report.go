package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FranksOps/companyfinder/internal/export"
	"github.com/FranksOps/companyfinder/internal/record"
	"github.com/FranksOps/companyfinder/internal/report"
	"github.com/FranksOps/companyfinder/internal/storage"
)

type reportOptions struct {
	source  string
	backend string
	runID   string
	format  string
}

func newReportCmd() *cobra.Command {
	opts := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize stored lookup results",
		Long: "Reads records back from a json export or a jsonl, csv, sqlite or postgres store " +
			"and prints a summary: totals, match rate, time span and the companies without a URL.",
		Args: cobra.NoArgs,
		RunE: opts.run,
	}

	f := cmd.Flags()
	f.StringVar(&opts.source, "source", "", "Results file or postgres DSN (required)")
	f.StringVar(&opts.backend, "backend", "", "Source type: json, jsonl, csv, sqlite or postgres (default: from the source)")
	f.StringVar(&opts.runID, "run", "", "Only include entries from this run id")
	f.StringVar(&opts.format, "format", "text", "Summary format: text, json or html")

	if err := cmd.MarkFlagRequired("source"); err != nil {
		panic(fmt.Sprintf("failed to mark source flag as required: %v", err))
	}
	return cmd
}

func (o *reportOptions) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	format, err := o.sourceFormat()
	if err != nil {
		return err
	}
	if format != export.Postgres {
		if _, err := os.Stat(o.source); err != nil {
			return fmt.Errorf("report: source: %w", err)
		}
	}

	var records []record.Record
	if format == export.JSON {
		if o.runID != "" {
			return errors.New("report: --run needs a jsonl, csv, sqlite or postgres source")
		}
		records, err = readJSON(o.source)
		if err != nil {
			return err
		}
	} else {
		b, err := export.OpenBackend(ctx, format, o.source)
		if err != nil {
			return err
		}
		defer b.Close()

		entries, err := b.Query(ctx, storage.Filter{RunID: o.runID})
		if err != nil {
			return fmt.Errorf("report: query: %w", err)
		}
		records = make([]record.Record, 0, len(entries))
		for _, e := range entries {
			records = append(records, e.Record)
		}
	}

	return report.Write(cmd.OutOrStdout(), report.GenerateSummary(records), o.format)
}

// sourceFormat is the --backend flag, or the format implied by the source.
func (o *reportOptions) sourceFormat() (export.Format, error) {
	if o.backend != "" {
		return export.ParseFormat(o.backend)
	}
	f, ok := targetFormat(o.source)
	if !ok {
		return "", fmt.Errorf("report: cannot tell the backend of %q, use --backend", o.source)
	}
	return f, nil
}

// targetFormat infers a format from a file extension or a postgres URL.
func targetFormat(target string) (export.Format, bool) {
	if strings.HasPrefix(target, "postgres://") || strings.HasPrefix(target, "postgresql://") {
		return export.Postgres, true
	}
	switch strings.ToLower(filepath.Ext(target)) {
	case ".json":
		return export.JSON, true
	case ".jsonl", ".ndjson":
		return export.JSONL, true
	case ".csv":
		return export.CSV, true
	case ".db", ".sqlite", ".sqlite3":
		return export.SQLite, true
	}
	return "", false
}

func readJSON(path string) ([]record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	var records []record.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("report: decode %s: %w", path, err)
	}
	return records, nil
}
