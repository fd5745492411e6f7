package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/comment-labeler/internal/config"
	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/kirillkom/comment-labeler/internal/tasks"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		OllamaHost:          "http://127.0.0.1:1",
		OllamaModel:         "llama3.1:8b",
		RequestTimeout:      time.Second,
		BatchSize:           5,
		TopP:                0.9,
		RetryMaxAttempts:    1,
		RetryInitialBackoff: time.Millisecond,
		CacheBackend:        config.CacheBackendFile,
		CachePath:           filepath.Join(t.TempDir(), "cache.yaml"),
	}
}

func TestNewWiresFileBackend(t *testing.T) {
	task, err := tasks.Lookup("apoyo-daniel")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	cfg := testConfig(t)
	cfg.MetricsAddr = "127.0.0.1:0"

	app, err := New(context.Background(), cfg, task)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer app.Close()

	if app.ClassifyUC == nil || app.Store == nil {
		t.Fatalf("expected classifier and store to be wired")
	}
	if app.Store.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", app.Store.Len())
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.CacheBackend = "memcached"

	_, err := New(context.Background(), cfg, domain.Task{Name: "x"})
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestCloseRunsInReverseOrder(t *testing.T) {
	var order []int
	app := &App{}
	app.onClose(func() { order = append(order, 1) })
	app.onClose(func() { order = append(order, 2) })
	app.Close()
	app.Close()

	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("unexpected close order %v", order)
	}
}

func TestDefaultCachePath(t *testing.T) {
	if got := DefaultCachePath("topics"); got != "labels_cache_topics.yaml" {
		t.Fatalf("DefaultCachePath = %q", got)
	}
}

func TestEventsUseShorterRetryPolicyThanInference(t *testing.T) {
	cfg := testConfig(t)
	cfg.RetryMaxAttempts = 3
	cfg.RetryInitialBackoff = time.Second

	inference := resilienceConfig(cfg)
	events := eventsResilienceConfig()
	if events.RetryMaxAttempts != 2 || events.WaitAfterFinalAttempt {
		t.Fatalf("unexpected events policy %+v", events)
	}
	if events.RetryMaxBackoff > time.Second {
		t.Fatalf("events backoff cap too long: %s", events.RetryMaxBackoff)
	}
	if got, limit := events.Backoff(0), inference.Backoff(0); got >= limit {
		t.Fatalf("events backoff %s, want below inference %s", got, limit)
	}
}
