package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/kirillkom/comment-labeler/internal/core/ports"
)

type SummaryUseCase struct {
	tables ports.TableStore
}

func NewSummaryUseCase(tables ports.TableStore) *SummaryUseCase {
	return &SummaryUseCase{tables: tables}
}

// Summarize counts labels per column. Percentages are over non-empty cells.
func (uc *SummaryUseCase) Summarize(ctx context.Context, path string, columns []string) ([]domain.ColumnSummary, error) {
	if len(columns) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "summarize", fmt.Errorf("at least one column is required"))
	}
	table, err := uc.tables.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}

	out := make([]domain.ColumnSummary, 0, len(columns))
	for _, column := range columns {
		if !table.HasColumn(column) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "summarize", fmt.Errorf("column %q not found", column))
		}
		out = append(out, summarizeColumn(table, column))
	}
	return out, nil
}

func summarizeColumn(table *domain.Table, column string) domain.ColumnSummary {
	counts := make(map[string]int)
	total := 0
	for _, row := range table.Rows {
		value := strings.TrimSpace(row.Values[column])
		if value == "" {
			continue
		}
		counts[value]++
		total++
	}

	summary := domain.ColumnSummary{Column: column, Total: total}
	for label, count := range counts {
		summary.Counts = append(summary.Counts, domain.LabelCount{
			Label:   label,
			Count:   count,
			Percent: float64(count) / float64(total) * 100,
		})
	}
	sort.Slice(summary.Counts, func(i, j int) bool {
		if summary.Counts[i].Count != summary.Counts[j].Count {
			return summary.Counts[i].Count > summary.Counts[j].Count
		}
		return summary.Counts[i].Label < summary.Counts[j].Label
	})
	return summary
}
