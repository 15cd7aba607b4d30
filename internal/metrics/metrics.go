package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Resolution outcomes used as the "outcome" label.
const (
	OutcomeMatched = "matched"
	OutcomeMissing = "missing"
	OutcomeError   = "error"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companyfinder_fetch_requests_total",
			Help: "Total number of result page fetches",
		},
		[]string{"host", "status", "blocked_by"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "companyfinder_fetch_duration_seconds",
			Help:    "Duration of result page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companyfinder_fetch_bytes_total",
			Help: "Total bytes downloaded across all fetches",
		},
		[]string{"host"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companyfinder_proxy_failures_total",
			Help: "Total number of proxy failures during fetches",
		},
		[]string{"proxy_url"},
	)

	ProxiesHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "companyfinder_proxies_healthy",
			Help: "Proxies currently in rotation",
		},
	)

	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companyfinder_resolutions_total",
			Help: "Companies processed, by search engine and outcome",
		},
		[]string{"engine", "outcome"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "companyfinder_search_duration_seconds",
			Help:    "Duration of search calls in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"engine"},
	)

	MatchScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "companyfinder_match_score",
			Help:    "Similarity score of selected LinkedIn candidates",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)
)

// RecordFetch updates the fetch metrics. status 0 means the request failed
// before a response arrived.
func RecordFetch(host string, status int, blockedBy string, d time.Duration, bytes int) {
	statusStr := strconv.Itoa(status)
	if status == 0 {
		statusStr = "error"
	}
	FetchRequestsTotal.WithLabelValues(host, statusStr, blockedBy).Inc()
	FetchDuration.WithLabelValues(host).Observe(d.Seconds())
	FetchBytesTotal.WithLabelValues(host).Add(float64(bytes))
}

// RecordProxy counts a failed or blocked request through proxyURL (already
// redacted) and publishes the pool's healthy count.
func RecordProxy(proxyURL string, ok bool, healthy int) {
	if !ok {
		ProxyFailures.WithLabelValues(proxyURL).Inc()
	}
	ProxiesHealthy.Set(float64(healthy))
}

// RecordResolution updates the per-company metrics. score is observed only
// for matched outcomes.
func RecordResolution(engine, outcome string, score float64, searchTime time.Duration) {
	ResolutionsTotal.WithLabelValues(engine, outcome).Inc()
	SearchDuration.WithLabelValues(engine).Observe(searchTime.Seconds())
	if outcome == OutcomeMatched {
		MatchScore.Observe(score)
	}
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "port", port, "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
