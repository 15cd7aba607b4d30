package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordResolution(t *testing.T) {
	matched := ResolutionsTotal.WithLabelValues("bing", OutcomeMatched)
	before := testutil.ToFloat64(matched)
	scores := testutil.CollectAndCount(MatchScore)

	RecordResolution("bing", OutcomeMatched, 0.75, 300*time.Millisecond)
	RecordResolution("bing", OutcomeError, 0, 10*time.Millisecond)

	if got := testutil.ToFloat64(matched) - before; got != 1 {
		t.Errorf("expected one matched resolution, got %v", got)
	}
	if got := testutil.ToFloat64(ResolutionsTotal.WithLabelValues("bing", OutcomeError)); got < 1 {
		t.Errorf("expected error outcome to be counted, got %v", got)
	}
	if got := testutil.CollectAndCount(MatchScore); got != scores {
		t.Errorf("match score is a single histogram, got %d series", got)
	}
}

func TestRecordProxy(t *testing.T) {
	failures := ProxyFailures.WithLabelValues("http://proxy.example.com:3128")
	before := testutil.ToFloat64(failures)

	RecordProxy("http://proxy.example.com:3128", true, 3)
	if got := testutil.ToFloat64(failures) - before; got != 0 {
		t.Errorf("successful request counted as failure")
	}
	RecordProxy("http://proxy.example.com:3128", false, 2)
	if got := testutil.ToFloat64(failures) - before; got != 1 {
		t.Errorf("expected one failure, got %v", got)
	}
	if got := testutil.ToFloat64(ProxiesHealthy); got != 2 {
		t.Errorf("expected 2 healthy proxies, got %v", got)
	}
}

func TestMetricsServer(t *testing.T) {
	srv := Start(8889, nil)
	// Give it a tiny bit of time to start up
	time.Sleep(100 * time.Millisecond)

	defer srv.Stop(context.Background())

	RecordFetch("html.duckduckgo.com", 200, "", time.Second, 11)
	RecordFetch("www.google.com", 429, "Google", 200*time.Millisecond, 0)
	RecordResolution("duckduckgo", OutcomeMatched, 0.9, time.Second)
	RecordResolution("duckduckgo", OutcomeMissing, 0, time.Second)

	resp, err := http.Get("http://localhost:8889/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	output := string(body)

	for _, want := range []string{
		`companyfinder_fetch_bytes_total{host="html.duckduckgo.com"} 11`,
		`companyfinder_fetch_requests_total{blocked_by="Google",host="www.google.com",status="429"} 1`,
		`companyfinder_resolutions_total{engine="duckduckgo",outcome="matched"} 1`,
		`companyfinder_resolutions_total{engine="duckduckgo",outcome="missing"} 1`,
		`companyfinder_search_duration_seconds_bucket`,
		`companyfinder_proxies_healthy`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}
