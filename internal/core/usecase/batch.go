package usecase

import (
	"context"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/kirillkom/comment-labeler/internal/core/structured"
)

// BatchOrchestrator sends one chat request per batch and reconciles the
// reply items back to rows by identifier.
type BatchOrchestrator struct {
	engine
}

func (o *BatchOrchestrator) Resolve(ctx context.Context, batch domain.Batch) ([]domain.Resolution, error) {
	results := make([]domain.Resolution, len(batch.Rows))
	pending := make([]int, 0, len(batch.Rows))

	for i, row := range batch.Rows {
		fp := domain.Fingerprint(row.Text)
		if res, ok := o.cached(row, fp); ok {
			results[i] = res
			continue
		}
		if res, ok := o.shortCircuit(row, fp); ok {
			results[i] = res
			continue
		}
		results[i] = domain.Resolution{RowID: row.ID, Fingerprint: fp}
		pending = append(pending, i)
	}

	if len(pending) > 0 {
		rows := make([]*domain.Row, len(pending))
		for j, i := range pending {
			rows[j] = batch.Rows[i]
		}

		labels, err := o.classify(ctx, rows)
		if err != nil {
			return nil, err
		}

		for _, i := range pending {
			row := batch.Rows[i]
			if label, ok := labels[row.ID]; ok {
				results[i].Label = label
				results[i].Source = domain.SourceModel
				continue
			}
			results[i] = o.fallback(row, results[i].Fingerprint)
		}
	}

	o.remember(results)
	return results, nil
}

func (o *BatchOrchestrator) classify(ctx context.Context, rows []*domain.Row) (map[string]domain.Label, error) {
	messages := buildBatchMessages(o.task, o.resolver.Labels(), rows)
	reply, err := o.call(ctx, "chat", func(callCtx context.Context) (string, error) {
		return o.client.Chat(callCtx, messages, o.sampling)
	})
	if err != nil {
		return nil, err
	}

	items := structured.ExtractArray(reply)
	if len(items) == 0 {
		items = structured.ParseLoose(reply)
	}

	pending := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		pending[row.ID] = struct{}{}
	}
	return reconcile(items, o.task.Field, o.resolver, pending), nil
}
