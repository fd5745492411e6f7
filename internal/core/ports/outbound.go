package ports

import (
	"context"
	"time"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
)

// InferenceClient talks to the model endpoint. An exhausted call returns an
// empty reply and an error wrapping domain.ErrNoReply.
type InferenceClient interface {
	Chat(ctx context.Context, messages []domain.Message, opts domain.SamplingOptions) (string, error)
	Generate(ctx context.Context, prompt string, opts domain.SamplingOptions) (string, error)
}

// LabelStore maps content fingerprints to resolved labels.
//
// Put keeps the first model or heuristic label written for a fingerprint. A
// fallback entry may later be replaced by a non-fallback label. Restrict marks
// entries whose label is outside labels so that the next Put replaces them.
type LabelStore interface {
	Get(fingerprint string) (domain.CacheEntry, bool)
	Put(entry domain.CacheEntry) bool
	Restrict(labels domain.LabelSet) int
	Len() int
	Flush(ctx context.Context) error
	Close() error
}

// TableStore reads and writes whole tables.
type TableStore interface {
	Read(ctx context.Context, path string) (*domain.Table, error)
	Write(ctx context.Context, path string, table *domain.Table) error
}

// EventPublisher announces progress to other systems.
type EventPublisher interface {
	PublishBatchLabeled(ctx context.Context, event domain.BatchLabeled) error
}

// Observer records run metrics.
type Observer interface {
	ObserveRow(task string, source domain.LabelSource)
	ObserveBatch(task, outcome string)
	ObserveInference(task, operation string, elapsed time.Duration)
	ObserveCheckpoint(task string)
}
