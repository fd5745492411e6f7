package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRowCountsSourcesAndCacheHits(t *testing.T) {
	m := NewClassifierMetrics()
	m.ObserveRow("topics", domain.SourceModel)
	m.ObserveRow("topics", domain.SourceModel)
	m.ObserveRow("topics", domain.SourceCache)
	m.ObserveRow("topics", domain.SourceFallback)

	if got := testutil.ToFloat64(m.rowsTotal.WithLabelValues("topics", "model")); got != 2 {
		t.Fatalf("model rows = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.rowsTotal.WithLabelValues("topics", "fallback")); got != 1 {
		t.Fatalf("fallback rows = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.cacheHitsTotal.WithLabelValues("topics")); got != 1 {
		t.Fatalf("cache hits = %v, want 1", got)
	}
}

func TestObserveBatchAndCheckpoint(t *testing.T) {
	m := NewClassifierMetrics()
	m.ObserveBatch("apoyo-daniel", "labeled")
	m.ObserveBatch("apoyo-daniel", "fallback")
	m.ObserveBatch("apoyo-daniel", "")
	m.ObserveCheckpoint("apoyo-daniel")

	if got := testutil.ToFloat64(m.batchesTotal.WithLabelValues("apoyo-daniel", "unknown")); got != 1 {
		t.Fatalf("unknown outcome = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.batchesTotal); got != 3 {
		t.Fatalf("batch series = %d, want 3", got)
	}
	if got := testutil.ToFloat64(m.checkpointsTotal.WithLabelValues("apoyo-daniel")); got != 1 {
		t.Fatalf("checkpoints = %v, want 1", got)
	}
}

func TestObserveInferenceIgnoresNegativeDurations(t *testing.T) {
	m := NewClassifierMetrics()
	m.ObserveInference("topics", "generate", 1500*time.Millisecond)
	m.ObserveInference("topics", "generate", -time.Second)

	if got := testutil.CollectAndCount(m.inferenceDuration); got != 1 {
		t.Fatalf("histogram series = %d, want 1", got)
	}
}

func TestServerExposesRegistry(t *testing.T) {
	m := NewClassifierMetrics()
	m.ObserveCheckpoint("topics")

	server, err := NewServer("127.0.0.1:0", m)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	server.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	resp, err := http.Get("http://" + server.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `labeler_checkpoints_total{task="topics"} 1`) {
		t.Fatalf("metrics output missing checkpoint counter:\n%s", body)
	}
}
