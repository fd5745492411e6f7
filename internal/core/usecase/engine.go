package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/kirillkom/comment-labeler/internal/core/ports"
)

// Orchestrator resolves every row of a batch, in row order. The only error
// it returns is the caller's context error.
type Orchestrator interface {
	Resolve(ctx context.Context, batch domain.Batch) ([]domain.Resolution, error)
}

type EngineOptions struct {
	Sampling domain.SamplingOptions
	// Delay spaces consecutive remote calls.
	Delay          time.Duration
	RetryFallbacks bool
}

// engine holds what both orchestrators share: cache access, pacing and
// observation of remote calls.
type engine struct {
	task     domain.Task
	resolver *Resolver
	client   ports.InferenceClient
	store    ports.LabelStore
	observer ports.Observer
	pacer    *pacer
	sampling domain.SamplingOptions
	retry    bool
}

func newEngine(task domain.Task, client ports.InferenceClient, store ports.LabelStore, observer ports.Observer, opts EngineOptions) engine {
	if observer == nil {
		observer = noopObserver{}
	}
	sampling := opts.Sampling
	if task.Temperature != nil {
		sampling.Temperature = *task.Temperature
	}
	sampling.FormatJSON = sampling.FormatJSON || task.FormatJSON
	return engine{
		task:     task,
		resolver: NewResolver(task),
		client:   client,
		store:    store,
		observer: observer,
		pacer:    newPacer(opts.Delay),
		sampling: sampling,
		retry:    opts.RetryFallbacks,
	}
}

// NewOrchestrator picks the orchestrator matching the task mode.
func NewOrchestrator(task domain.Task, client ports.InferenceClient, store ports.LabelStore, observer ports.Observer, opts EngineOptions) Orchestrator {
	e := newEngine(task, client, store, observer, opts)
	if task.Mode == domain.ModeSingle {
		return &SingleOrchestrator{engine: e}
	}
	return &BatchOrchestrator{engine: e}
}

// pacer spaces remote calls so that each one starts at least delay after
// the previous one finished.
type pacer struct {
	delay   time.Duration
	limiter *rate.Limiter
}

func newPacer(delay time.Duration) *pacer {
	if delay <= 0 {
		return &pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &pacer{delay: delay, limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

func (p *pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Done restarts the interval from the end of a call: the fresh limiter's
// only token is taken, so the next one is due a full delay from now.
func (p *pacer) Done() {
	if p.delay <= 0 {
		return
	}
	p.limiter = rate.NewLimiter(rate.Every(p.delay), 1)
	p.limiter.ReserveN(time.Now(), 1)
}

// cached returns the stored label for a fingerprint. Fallback entries count
// as missing when they are being re-attempted.
func (e *engine) cached(row *domain.Row, fingerprint string) (domain.Resolution, bool) {
	entry, ok := e.store.Get(fingerprint)
	if !ok {
		legacy := domain.RawFingerprint(row.Text)
		if legacy == fingerprint {
			return domain.Resolution{}, false
		}
		if entry, ok = e.store.Get(legacy); !ok {
			return domain.Resolution{}, false
		}
	}
	if e.retry && entry.Source == domain.SourceFallback {
		return domain.Resolution{}, false
	}
	label, ok := e.resolver.Labels().Lookup(string(entry.Label))
	if !ok {
		return domain.Resolution{}, false
	}
	return domain.Resolution{
		RowID:       row.ID,
		Fingerprint: fingerprint,
		Label:       label,
		Source:      domain.SourceCache,
	}, true
}

func (e *engine) shortCircuit(row *domain.Row, fingerprint string) (domain.Resolution, bool) {
	label, ok := e.resolver.ShortCircuit(row.Text)
	if !ok {
		return domain.Resolution{}, false
	}
	return domain.Resolution{
		RowID:       row.ID,
		Fingerprint: fingerprint,
		Label:       label,
		Source:      domain.SourceHeuristic,
	}, true
}

func (e *engine) fallback(row *domain.Row, fingerprint string) domain.Resolution {
	return domain.Resolution{
		RowID:       row.ID,
		Fingerprint: fingerprint,
		Label:       e.resolver.Fallback(row.Text),
		Source:      domain.SourceFallback,
	}
}

func (e *engine) remember(results []domain.Resolution) {
	for _, res := range results {
		e.observer.ObserveRow(e.task.Name, res.Source)
		if res.Source == domain.SourceCache {
			continue
		}
		e.store.Put(domain.CacheEntry{
			Fingerprint: res.Fingerprint,
			Label:       res.Label,
			Source:      res.Source,
		})
	}
}

// call paces and times one remote exchange. A reply lost to exhausted
// retries comes back empty with a nil error; only cancellation surfaces.
func (e *engine) call(ctx context.Context, operation string, fn func(context.Context) (string, error)) (string, error) {
	if err := e.pacer.Wait(ctx); err != nil {
		return "", err
	}

	started := time.Now()
	reply, err := fn(ctx)
	e.pacer.Done()
	e.observer.ObserveInference(e.task.Name, operation, time.Since(started))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		slog.Warn("inference_no_reply",
			"task", e.task.Name,
			"operation", operation,
			"error", err,
		)
		return "", nil
	}
	return reply, nil
}

type noopObserver struct{}

func (noopObserver) ObserveRow(string, domain.LabelSource) {}
func (noopObserver) ObserveBatch(string, string) {}
func (noopObserver) ObserveInference(string, string, time.Duration) {}
func (noopObserver) ObserveCheckpoint(string) {}
