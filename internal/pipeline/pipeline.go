// Package pipeline runs the per-company resolution loop: build the query,
// search, select the best LinkedIn company page and assemble the record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/companyfinder/internal/linkedin"
	"github.com/FranksOps/companyfinder/internal/metrics"
	"github.com/FranksOps/companyfinder/internal/record"
	"github.com/FranksOps/companyfinder/internal/serp"
	"github.com/FranksOps/companyfinder/internal/storage"
	"github.com/FranksOps/companyfinder/pkg/opt"
)

// SearchError reports a failed search for one company.
type SearchError struct {
	Company string
	Query   string
	Index   int // 0-based position in the input
	Err     error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search for %q (#%d) failed: %v", e.Company, e.Index+1, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// Pauser suspends between companies. *ratelimit.Pacer implements it.
type Pauser interface {
	Pause(ctx context.Context) error
}

// Sink receives each record as soon as it is assembled.
// storage.Backend implements it.
type Sink interface {
	Save(ctx context.Context, entry *storage.Entry) error
}

// Pipeline resolves companies one at a time, in input order.
type Pipeline struct {
	Provider serp.Provider
	Selector linkedin.Selector
	// Pacer runs after every company but the last. Nil means no pause.
	Pacer           Pauser
	ResultsPerQuery int
	// AbortOnSearchError stops the run at the first failed search. When
	// false the company is recorded without a URL and the run continues.
	AbortOnSearchError bool
	// Sink is optional.
	Sink   Sink
	RunID  string
	Logger *slog.Logger
}

// Run resolves every company and returns one record per company in input
// order. On cancellation or an aborting search failure it returns the records
// assembled so far together with the error.
func (p *Pipeline) Run(ctx context.Context, companies []string) ([]record.Record, error) {
	if p.Provider == nil {
		return nil, errors.New("pipeline: provider is nil")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := p.RunID
	if runID == "" {
		runID = storage.NewRunID()
	}

	total := len(companies)
	records := make([]record.Record, 0, total)

	for i, company := range companies {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		logger.Info(fmt.Sprintf("Processing (%d/%d): %s", i+1, total, company), "run_id", runID)

		rec, err := p.resolve(ctx, logger, i, company)
		if err != nil {
			return records, err
		}
		records = append(records, rec)

		if p.Sink != nil {
			if err := p.Sink.Save(ctx, storage.NewEntry(runID, i, rec)); err != nil {
				return records, fmt.Errorf("pipeline: save %q: %w", company, err)
			}
		}

		if i < total-1 && p.Pacer != nil {
			if err := p.Pacer.Pause(ctx); err != nil {
				return records, err
			}
		}
	}

	return records, nil
}

func (p *Pipeline) resolve(ctx context.Context, logger *slog.Logger, i int, company string) (record.Record, error) {
	query := serp.BuildQuery(company)
	engine := p.Provider.Name()

	start := time.Now()
	results, err := p.Provider.Search(ctx, query, p.ResultsPerQuery)
	elapsed := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return record.Record{}, ctxErr
		}
		metrics.RecordResolution(engine, metrics.OutcomeError, 0, elapsed)

		serr := &SearchError{Company: company, Query: query, Index: i, Err: err}
		if p.AbortOnSearchError {
			return record.Record{}, serr
		}
		logger.Warn("Search failed, recording no LinkedIn URL", "company", company, "engine", engine, "error", err)
		return record.Build(company, query, opt.None[serp.Result](), opt.None[string]()), nil
	}

	sel := p.Selector.SelectBest(results, company)
	if url, ok := sel.URL.Get(); ok {
		metrics.RecordResolution(engine, metrics.OutcomeMatched, sel.Score, elapsed)
		logger.Info("Found LinkedIn URL", "company", company, "url", url, "score", sel.Score)
	} else {
		metrics.RecordResolution(engine, metrics.OutcomeMissing, 0, elapsed)
		logger.Warn("No LinkedIn URL found", "company", company, "candidates", len(results))
	}

	return record.Build(company, query, sel.Result, sel.URL), nil
}
