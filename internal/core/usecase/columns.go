package usecase

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
)

var textColumnCandidates = []string{"Comentario", "comment", "texto", "text", "body"}

// ResolveTextColumn returns preferred when present, then the first known
// candidate, then the column with the longest average cell.
func ResolveTextColumn(table *domain.Table, preferred string) (string, error) {
	if preferred != "" && table.HasColumn(preferred) {
		return preferred, nil
	}
	for _, candidate := range textColumnCandidates {
		if table.HasColumn(candidate) {
			return candidate, nil
		}
	}

	best, bestAvg := "", -1.0
	for _, header := range table.Headers {
		if strings.TrimSpace(header) == "" {
			continue
		}
		total := 0
		for _, row := range table.Rows {
			total += utf8.RuneCountInString(row.Values[header])
		}
		avg := 0.0
		if len(table.Rows) > 0 {
			avg = float64(total) / float64(len(table.Rows))
		}
		if avg > bestAvg {
			best, bestAvg = header, avg
		}
	}
	if best == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve text column", errors.New("table has no columns"))
	}
	return best, nil
}
