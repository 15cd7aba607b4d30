package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FranksOps/companyfinder/internal/config"
	"github.com/FranksOps/companyfinder/internal/export"
	"github.com/FranksOps/companyfinder/internal/fingerprint"
	"github.com/FranksOps/companyfinder/internal/input"
	"github.com/FranksOps/companyfinder/internal/linkedin"
	"github.com/FranksOps/companyfinder/internal/metrics"
	"github.com/FranksOps/companyfinder/internal/pipeline"
	"github.com/FranksOps/companyfinder/internal/report"
	"github.com/FranksOps/companyfinder/internal/scraper"
	"github.com/FranksOps/companyfinder/internal/serp"
	"github.com/FranksOps/companyfinder/internal/storage"
	"github.com/FranksOps/companyfinder/pkg/proxy"
	"github.com/FranksOps/companyfinder/pkg/ratelimit"
	"github.com/FranksOps/companyfinder/pkg/useragent"
)

// pgDSNEnv supplies the postgres DSN when --pg-dsn is not given.
const pgDSNEnv = "COMPANYFINDER_PG_DSN"

type resolveOptions struct {
	input       string
	output      string
	formats     []string
	settings    string
	metricsPort int
	runSummary  string
	pgDSN       string
	stream      string
	searchURL   string
}

func newResolveCmd() *cobra.Command {
	opts := &resolveOptions{}
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve company names to LinkedIn company page URLs",
		Long: "Reads company names from the input file, one per line (blank lines and lines " +
			"starting with # are skipped), searches for each one and writes the results in " +
			"every requested format.",
		Args: cobra.NoArgs,
		RunE: opts.run,
	}
	opts.addFlags(cmd)
	return cmd
}

func (o *resolveOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.input, "input", "i", "data/companies_input.txt", "Input file with one company name per line")
	f.StringVarP(&o.output, "output", "o", "data/companies_output.json", "Output file; with several formats each gets its own extension")
	f.StringSliceVarP(&o.formats, "format", "f", []string{string(export.JSON)},
		"Output format, repeatable: "+strings.Join(formatNames(), ", "))
	f.StringVarP(&o.settings, "settings", "s", "config/settings.json", "Settings file (JSON)")
	f.IntVar(&o.metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port while running (0 disables)")
	f.StringVar(&o.runSummary, "run-summary", "", "Also write the run summary to this file (.json, .html, otherwise text)")
	f.StringVar(&o.pgDSN, "pg-dsn", "", "Postgres DSN for the postgres format (default $"+pgDSNEnv+")")
	f.StringVar(&o.stream, "stream", "",
		"Save each record here as soon as it is resolved (.jsonl, .csv, .db or postgres://); kept when the run aborts")
	f.StringVar(&o.searchURL, "search-url", "", "Replace the search engine endpoint")
	_ = f.MarkHidden("search-url")
}

func (o *resolveOptions) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	formats, err := parseFormats(o.formats)
	if err != nil {
		return err
	}
	dsn := o.postgresDSN()
	if slices.Contains(formats, export.Postgres) && dsn == "" && !strings.HasPrefix(o.output, "postgres") {
		return fmt.Errorf("postgres format needs --pg-dsn, $%s or a postgres:// output", pgDSNEnv)
	}

	var streamFormat export.Format
	if o.stream != "" {
		f, ok := targetFormat(o.stream)
		if !ok || f == export.JSON {
			return fmt.Errorf("--stream needs a .jsonl, .csv, .db or postgres:// target, got %q", o.stream)
		}
		streamFormat = f
	}

	settings, err := config.Load(o.settings, logger)
	if err != nil {
		return err
	}

	companies, err := input.ReadCompanies(o.input)
	if err != nil {
		return err
	}
	logger.Info("Loaded companies", "count", len(companies), "path", o.input)

	if o.metricsPort > 0 {
		srv := metrics.Start(o.metricsPort, logger)
		defer func() { _ = srv.Stop(context.Background()) }()
	}

	fetcher, closeFetcher, err := newFetcher(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer closeFetcher()

	provider, err := serp.NewAt(settings.SearchEngine, fetcher, o.searchURL)
	if err != nil {
		return err
	}

	runID := storage.NewRunID()
	p := &pipeline.Pipeline{
		Provider:           provider,
		Selector:           linkedin.Selector{MinScore: settings.MinSimilarity},
		Pacer:              ratelimit.NewPacer(settings.Delay(), settings.DelayJitter),
		ResultsPerQuery:    settings.ResultsPerQuery,
		AbortOnSearchError: settings.AbortOnSearchError(),
		RunID:              runID,
		Logger:             logger,
	}
	if o.stream != "" {
		sink, err := export.OpenBackend(ctx, streamFormat, o.stream)
		if err != nil {
			return err
		}
		defer func() { _ = sink.Close() }()
		p.Sink = sink
		logger.Info("Streaming records", "format", streamFormat, "path", o.stream, "run", runID)
	}

	records, err := p.Run(ctx, companies)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	exporter := &export.Exporter{RunID: runID, PostgresDSN: dsn, Logger: logger}
	written, err := exporter.ExportAll(ctx, records, o.output, formats)
	if err != nil {
		return err
	}
	for _, f := range formats {
		target := written[f]
		if f == export.Postgres {
			target = "postgres"
		}
		logger.Info("Results saved", "format", f, "path", target, "run", runID)
	}

	summary := report.GenerateSummary(records)
	if err := report.WriteText(cmd.ErrOrStderr(), summary); err != nil {
		return err
	}
	if o.runSummary != "" {
		if err := writeSummaryFile(o.runSummary, summary); err != nil {
			return err
		}
	}
	return nil
}

func (o *resolveOptions) postgresDSN() string {
	if o.pgDSN != "" {
		return o.pgDSN
	}
	return os.Getenv(pgDSNEnv)
}

// newFetcher builds the page fetcher described by settings and a func that
// releases it.
func newFetcher(ctx context.Context, s *config.Settings, logger *slog.Logger) (serp.Fetcher, func(), error) {
	uas := useragent.FromSetting(s.UserAgent, s.TLSFingerprint)
	proxies, err := proxy.FromSettings(proxy.Config{}, s.Proxies, s.ProxyFile)
	if err != nil {
		return nil, nil, err
	}
	limiter := ratelimit.NewLimiter(s.RequestsPerSecond, 1)

	if s.UseBrowser {
		cfg := scraper.BrowserConfig{
			Timeout:   s.Timeout(),
			UserAgent: useragent.BrowserUserAgent(uas),
			Limiter:   limiter,
			Logger:    logger,
		}
		if proxies != nil {
			u, err := proxies.Next()
			if err != nil {
				return nil, nil, err
			}
			cfg.ProxyURL = u.String()
		}
		b, err := scraper.NewBrowserFetcher(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	}

	profile, err := fingerprint.ParseProfile(s.TLSFingerprint)
	if err != nil {
		return nil, nil, err
	}
	f, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:       s.Timeout(),
		MaxRedirects:  s.MaxRedirects,
		UseCookieJar:  true,
		Retries:       s.MaxRetries,
		ProxyPool:     proxies,
		UAPool:        uas,
		Fingerprint:   profile,
		Limiter:       limiter,
		RespectRobots: s.RespectRobots,
		Logger:        logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return f, func() {
		_ = f.Close()
		logProxyHealth(logger, proxies)
	}, nil
}

func logProxyHealth(logger *slog.Logger, proxies *proxy.Pool) {
	if proxies == nil {
		return
	}
	for _, st := range proxies.Statuses() {
		attrs := []any{"proxy", st.URL, "successes", st.Successes, "failures", st.Failures, "blocks", st.Blocks}
		if !st.BenchedUntil.IsZero() {
			attrs = append(attrs, "benched_until", st.BenchedUntil)
		}
		logger.Info("Proxy health", attrs...)
	}
}

func parseFormats(names []string) ([]export.Format, error) {
	var formats []export.Format
	seen := make(map[export.Format]bool)
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		f, err := export.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		return nil, errors.New("at least one --format is required")
	}
	return formats, nil
}

func formatNames() []string {
	var names []string
	for _, f := range export.Formats() {
		names = append(names, string(f))
	}
	return names
}

func writeSummaryFile(path string, summary report.Summary) error {
	format := "text"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = "json"
	case ".html", ".htm":
		format = "html"
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("run summary: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("run summary: %w", err)
	}
	if err := report.Write(f, summary, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
