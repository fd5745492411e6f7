package usecase

import (
	"context"
	"log/slog"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/kirillkom/comment-labeler/internal/core/structured"
)

// SingleOrchestrator classifies one row per generate request and sends one
// correction request when the first reply carries no valid label.
type SingleOrchestrator struct {
	engine
}

func (o *SingleOrchestrator) Resolve(ctx context.Context, batch domain.Batch) ([]domain.Resolution, error) {
	results := make([]domain.Resolution, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		res, err := o.resolveRow(ctx, row)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	o.remember(results)
	return results, nil
}

func (o *SingleOrchestrator) resolveRow(ctx context.Context, row *domain.Row) (domain.Resolution, error) {
	fp := domain.Fingerprint(row.Text)
	if res, ok := o.cached(row, fp); ok {
		return res, nil
	}
	if res, ok := o.shortCircuit(row, fp); ok {
		return res, nil
	}

	for _, correction := range []bool{false, true} {
		label, ok, err := o.classify(ctx, row.Text, correction)
		if err != nil {
			return domain.Resolution{}, err
		}
		if ok {
			return domain.Resolution{
				RowID:       row.ID,
				Fingerprint: fp,
				Label:       label,
				Source:      domain.SourceModel,
			}, nil
		}
		if !correction {
			slog.Warn("label_retry_with_correction", "task", o.task.Name, "row_id", row.ID)
		}
	}

	slog.Error("label_fallback_applied", "task", o.task.Name, "row_id", row.ID)
	return o.fallback(row, fp), nil
}

func (o *SingleOrchestrator) classify(ctx context.Context, text string, correction bool) (domain.Label, bool, error) {
	prompt := buildSinglePrompt(o.task, text, correction)
	reply, err := o.call(ctx, "generate", func(callCtx context.Context) (string, error) {
		return o.client.Generate(callCtx, prompt, o.sampling)
	})
	if err != nil {
		return "", false, err
	}

	obj, ok := structured.ExtractObject(reply)
	if !ok {
		return "", false, nil
	}
	raw, ok := lookupField(obj, o.task.Field)
	if !ok {
		return "", false, nil
	}
	label, ok := o.resolver.Normalize(raw)
	return label, ok, nil
}
