package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/kirillkom/comment-labeler/internal/core/ports"
)

const (
	defaultBatchSize        = 5
	defaultBatchCheckpoint  = 1
	defaultSingleCheckpoint = 10
)

type ClassifyUseCase struct {
	tables   ports.TableStore
	client   ports.InferenceClient
	store    ports.LabelStore
	events   ports.EventPublisher
	observer ports.Observer
	options  EngineOptions
	now      func() time.Time
}

// NewClassifyUseCase wires a labeling run. events and observer may be nil.
func NewClassifyUseCase(
	tables ports.TableStore,
	client ports.InferenceClient,
	store ports.LabelStore,
	events ports.EventPublisher,
	observer ports.Observer,
	options EngineOptions,
) *ClassifyUseCase {
	if observer == nil {
		observer = noopObserver{}
	}
	return &ClassifyUseCase{
		tables:   tables,
		client:   client,
		store:    store,
		events:   events,
		observer: observer,
		options:  options,
		now:      time.Now,
	}
}

type runState struct {
	req         domain.RunRequest
	table       *domain.Table
	labelColumn string
	report      *domain.RunReport
}

func (uc *ClassifyUseCase) Run(ctx context.Context, req domain.RunRequest) (*domain.RunReport, error) {
	started := uc.now()
	state, err := uc.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	task := req.Task

	opts := uc.options
	opts.RetryFallbacks = opts.RetryFallbacks || req.RetryFallbacks
	orchestrator := NewOrchestrator(task, uc.client, uc.store, uc.observer, opts)
	if stale := uc.store.Restrict(NewResolver(task).Labels()); stale > 0 {
		slog.Info("label_cache_stale_entries", "task", task.Name, "entries", stale)
	}

	batchSize, every := runCadence(req)
	batches := domain.Partition(state.table.Rows, batchSize)
	slog.Info("classify_started",
		"run_id", state.report.RunID,
		"task", task.Name,
		"rows", len(state.table.Rows),
		"batches", len(batches),
		"text_column", state.req.TextColumn,
		"label_column", state.labelColumn,
	)

	sinceCheckpoint := 0
	for _, batch := range batches {
		results, err := orchestrator.Resolve(ctx, batch)
		if err != nil {
			slog.Warn("classify_interrupted", "run_id", state.report.RunID, "task", task.Name, "batch", batch.Number, "error", err)
			if cpErr := uc.checkpoint(context.WithoutCancel(ctx), state); cpErr != nil {
				err = errors.Join(err, cpErr)
			}
			state.report.Duration = uc.now().Sub(started)
			return state.report, err
		}

		uc.apply(state, batch, results)
		uc.publish(ctx, state, batch, results)

		slog.Info("batch_labeled",
			"run_id", state.report.RunID,
			"task", task.Name,
			"batch", batch.Number,
			"of", len(batches),
			"labeled", state.report.Labeled,
		)

		sinceCheckpoint++
		if sinceCheckpoint >= every {
			sinceCheckpoint = 0
			if err := uc.checkpoint(ctx, state); err != nil {
				slog.Error("checkpoint_failed", "run_id", state.report.RunID, "task", task.Name, "error", err)
			}
		}
	}

	if err := uc.checkpoint(ctx, state); err != nil {
		return state.report, err
	}
	state.report.Duration = uc.now().Sub(started)
	slog.Info("classify_completed",
		"run_id", state.report.RunID,
		"task", task.Name,
		"rows", state.report.Rows,
		"model", state.report.ModelLabels,
		"cache_hits", state.report.CacheHits,
		"fallbacks", state.report.Fallbacks,
		"duration_ms", state.report.Duration.Milliseconds(),
	)
	return state.report, nil
}

// prepare validates the request and loads the table. Everything that fails
// here fails before any output is written.
func (uc *ClassifyUseCase) prepare(ctx context.Context, req domain.RunRequest) (*runState, error) {
	if err := req.Task.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.InputPath) == "" {
		return nil, domain.WrapError(domain.ErrConfig, "classify", errors.New("input path is required"))
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return nil, domain.WrapError(domain.ErrConfig, "classify", errors.New("output path is required"))
	}

	table, err := uc.tables.Read(ctx, req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("read input table: %w", err)
	}

	textColumn, err := ResolveTextColumn(table, req.TextColumn)
	if err != nil {
		return nil, err
	}
	if textColumn != req.TextColumn {
		slog.Info("text_column_detected", "requested", req.TextColumn, "using", textColumn)
	}
	req.TextColumn = textColumn

	labelColumn := strings.TrimSpace(req.LabelColumn)
	if labelColumn == "" {
		labelColumn = req.Task.Column
	}
	table.BindColumns(req.IDColumn, textColumn)
	table.EnsureColumn(labelColumn)

	return &runState{
		req:         req,
		table:       table,
		labelColumn: labelColumn,
		report: &domain.RunReport{
			RunID:  uuid.NewString(),
			Task:   req.Task.Name,
			Rows:   len(table.Rows),
			Counts: make(map[domain.Label]int),
		},
	}, nil
}

func runCadence(req domain.RunRequest) (batchSize, every int) {
	batchSize = req.BatchSize
	every = req.CheckpointEvery
	if req.Task.Mode == domain.ModeSingle {
		batchSize = 1
		if every <= 0 {
			every = defaultSingleCheckpoint
		}
		return batchSize, every
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if every <= 0 {
		every = defaultBatchCheckpoint
	}
	return batchSize, every
}

func (uc *ClassifyUseCase) apply(state *runState, batch domain.Batch, results []domain.Resolution) {
	for i, res := range results {
		state.table.Set(batch.Rows[i], state.labelColumn, string(res.Label))
		state.report.Record(res)
	}
	state.report.Batches++
	uc.observer.ObserveBatch(state.req.Task.Name, batchOutcome(results))
}

func (uc *ClassifyUseCase) publish(ctx context.Context, state *runState, batch domain.Batch, results []domain.Resolution) {
	if uc.events == nil {
		return
	}
	event := domain.BatchLabeled{
		RunID: state.report.RunID,
		Task:  state.req.Task.Name,
		Batch: batch.Number,
		Rows:  len(results),
		At:    uc.now().UTC(),
	}
	for _, res := range results {
		switch res.Source {
		case domain.SourceModel:
			event.Model++
		case domain.SourceFallback:
			event.Fallback++
		case domain.SourceCache:
			event.CacheHits++
		}
	}
	if err := uc.events.PublishBatchLabeled(ctx, event); err != nil {
		slog.Warn("publish_batch_event_failed", "run_id", state.report.RunID, "batch", batch.Number, "error", err)
	}
}

// checkpoint flushes the label store and rewrites the whole output table.
func (uc *ClassifyUseCase) checkpoint(ctx context.Context, state *runState) error {
	var errs []error
	if err := uc.store.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush label store: %w", err))
	}
	if err := uc.tables.Write(ctx, state.req.OutputPath, state.table); err != nil {
		errs = append(errs, fmt.Errorf("write output table: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	uc.observer.ObserveCheckpoint(state.req.Task.Name)
	return nil
}

func batchOutcome(results []domain.Resolution) string {
	outcome := "cached"
	for _, res := range results {
		switch res.Source {
		case domain.SourceFallback:
			return "fallback"
		case domain.SourceModel, domain.SourceHeuristic:
			outcome = "labeled"
		}
	}
	return outcome
}
