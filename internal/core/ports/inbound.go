package ports

import (
	"context"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
)

// Classifier is the inbound contract for one labeling run over a table.
type Classifier interface {
	Run(ctx context.Context, req domain.RunRequest) (*domain.RunReport, error)
}

// Summarizer counts labels over an already labeled table.
type Summarizer interface {
	Summarize(ctx context.Context, path string, columns []string) ([]domain.ColumnSummary, error)
}
