package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/comment-labeler/internal/config"
	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/kirillkom/comment-labeler/internal/core/ports"
	"github.com/kirillkom/comment-labeler/internal/core/usecase"
	"github.com/kirillkom/comment-labeler/internal/infrastructure/cache/filecache"
	"github.com/kirillkom/comment-labeler/internal/infrastructure/cache/rediscache"
	"github.com/kirillkom/comment-labeler/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/comment-labeler/internal/infrastructure/queue/nats"
	"github.com/kirillkom/comment-labeler/internal/infrastructure/repository/sqlstore"
	"github.com/kirillkom/comment-labeler/internal/infrastructure/resilience"
	"github.com/kirillkom/comment-labeler/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/comment-labeler/internal/infrastructure/table"
	"github.com/kirillkom/comment-labeler/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Task   domain.Task

	Store      ports.LabelStore
	ClassifyUC ports.Classifier

	closeFns []func()
}

// New wires a labeling run for task. Everything opened here is released by Close.
func New(ctx context.Context, cfg config.Config, task domain.Task) (*App, error) {
	app := &App{Config: cfg, Task: task}

	storage := localfs.New("")
	tables := table.NewStore(storage, table.Options{OutputDelimiter: delimiter(cfg.OutputDelimiter)})

	store, err := openLabelStore(ctx, cfg, storage, task.Name)
	if err != nil {
		return nil, err
	}
	app.Store = store
	app.onClose(func() {
		if err := store.Close(); err != nil {
			slog.Warn("label_store_close_failed", "error", err)
		}
	})

	client := ollama.New(cfg.OllamaHost, cfg.OllamaModel, ollama.Options{
		Timeout:  cfg.RequestTimeout,
		Executor: resilience.NewExecutor(resilienceConfig(cfg)),
	})
	slog.Info("inference_client_ready", "host", cfg.OllamaHost, "model", client.Model())

	var events ports.EventPublisher
	if cfg.NATSURL != "" {
		// Events get their own executor: a slow broker must not stall the
		// run for the inference backoff schedule or trip its breaker.
		publisher, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(eventsResilienceConfig()),
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		slog.Info("event_publisher_enabled", "subject", publisher.Subject())
		events = publisher
		app.onClose(publisher.Close)
	}

	var observer ports.Observer
	if cfg.MetricsAddr != "" {
		registry := metrics.NewClassifierMetrics()
		server, err := metrics.NewServer(cfg.MetricsAddr, registry)
		if err != nil {
			app.Close()
			return nil, domain.WrapError(domain.ErrConfig, "listen metrics "+cfg.MetricsAddr, err)
		}
		server.Start()
		observer = registry
		app.onClose(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Warn("metrics_server_shutdown_failed", "error", err)
			}
		})
	}

	app.ClassifyUC = usecase.NewClassifyUseCase(tables, client, store, events, observer, usecase.EngineOptions{
		Sampling: domain.SamplingOptions{
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		},
		Delay:          cfg.SleepBetween,
		RetryFallbacks: cfg.RetryFallbacks,
	})
	return app, nil
}

// NewSummarizer wires the read-only summary use case.
func NewSummarizer() ports.Summarizer {
	storage := localfs.New("")
	return usecase.NewSummaryUseCase(table.NewStore(storage, table.Options{}))
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

func openLabelStore(ctx context.Context, cfg config.Config, storage *localfs.Storage, task string) (ports.LabelStore, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendFile:
		path := cfg.CachePath
		if path == "" {
			path = DefaultCachePath(task)
		}
		store, err := filecache.Open(ctx, storage, path)
		if err != nil {
			return nil, fmt.Errorf("open file label cache: %w", err)
		}
		slog.Info("label_cache_opened", "backend", cfg.CacheBackend, "path", path, "entries", store.Len())
		return store, nil

	case config.CacheBackendPostgres, config.CacheBackendSQLite:
		dialect, err := sqlstore.DialectByName(cfg.CacheBackend)
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfig, "select sql dialect", err)
		}
		dsn := cfg.CacheDSN
		if dsn == "" {
			dsn = cfg.CachePath
		}
		if dsn == "" {
			dsn = strings.TrimSuffix(DefaultCachePath(task), ".yaml") + ".db"
		}
		db, err := sqlstore.OpenDB(dialect, dsn)
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfig, "open "+dialect.Name+" label cache", err)
		}
		store, err := sqlstore.Open(ctx, db, dialect, task)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("load %s label cache: %w", dialect.Name, err)
		}
		slog.Info("label_cache_opened", "backend", cfg.CacheBackend, "entries", store.Len())
		return store, nil

	case config.CacheBackendRedis:
		client, err := rediscache.NewClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		store, err := rediscache.Open(ctx, client, task)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("load redis label cache: %w", err)
		}
		slog.Info("label_cache_opened", "backend", cfg.CacheBackend, "entries", store.Len())
		return store, nil
	}
	return nil, domain.WrapError(domain.ErrConfig, "open label cache", errors.New("unknown backend "+cfg.CacheBackend))
}

// DefaultCachePath is used by the file backend when no path is configured.
func DefaultCachePath(task string) string {
	return "labels_cache_" + task + ".yaml"
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.RetryMaxAttempts
	out.RetryInitialBackoff = cfg.RetryInitialBackoff
	out.BreakerEnabled = cfg.BreakerEnabled
	return out
}

// eventsResilienceConfig keeps event publishing short: one quick retry and
// no pause after the last attempt.
func eventsResilienceConfig() resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = 2
	out.RetryInitialBackoff = 100 * time.Millisecond
	out.RetryMaxBackoff = 500 * time.Millisecond
	out.WaitAfterFinalAttempt = false
	return out
}

func delimiter(raw string) rune {
	for _, r := range raw {
		return r
	}
	return 0
}
