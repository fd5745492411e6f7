package usecase

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
)

// Resolver is the last gate before a label is persisted. Every label it
// returns is a member of the task's label set.
type Resolver struct {
	task     domain.Task
	set      domain.LabelSet
	keywords []string
}

func NewResolver(task domain.Task) *Resolver {
	keywords := make([]string, 0, len(task.Keywords))
	for _, kw := range task.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return &Resolver{
		task:     task,
		set:      task.LabelSet(),
		keywords: keywords,
	}
}

func (r *Resolver) Labels() domain.LabelSet {
	return r.set
}

// Normalize maps a raw model value onto the canonical label.
func (r *Resolver) Normalize(candidate any) (domain.Label, bool) {
	if candidate == nil {
		return "", false
	}
	return r.set.Lookup(fmt.Sprint(candidate))
}

// ShortCircuit labels texts too short to be worth a remote call.
func (r *Resolver) ShortCircuit(text string) (domain.Label, bool) {
	if r.task.MinTextLength <= 0 || r.task.ShortTextLabel == "" {
		return "", false
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) >= r.task.MinTextLength {
		return "", false
	}
	return r.set.Lookup(r.task.ShortTextLabel)
}

// Fallback returns the deterministic label for a row the model did not
// label: the short-text label, then the keyword label, then the default.
func (r *Resolver) Fallback(text string) domain.Label {
	if label, ok := r.ShortCircuit(text); ok {
		return label
	}
	if len(r.keywords) > 0 && r.task.KeywordLabel != "" {
		lowered := strings.ToLower(text)
		for _, kw := range r.keywords {
			if strings.Contains(lowered, kw) {
				if label, ok := r.set.Lookup(r.task.KeywordLabel); ok {
					return label
				}
			}
		}
	}
	label, _ := r.set.Lookup(r.task.Fallback)
	return label
}
