package domain

import (
	"errors"
	"fmt"
	"strings"
)

type TaskMode string

const (
	// ModeBatch sends one chat request per batch and reconciles items by identifier.
	ModeBatch TaskMode = "batch"
	// ModeSingle sends one generate request per row and expects a single object.
	ModeSingle TaskMode = "single"
)

// Task describes one classification job: the rubric sent to the model, the
// closed label set and the deterministic fallback policy.
type Task struct {
	Name           string   `yaml:"name" json:"name"`
	Description    string   `yaml:"description" json:"description"`
	Mode           TaskMode `yaml:"mode" json:"mode"`
	Rubric         string   `yaml:"rubric" json:"rubric"`
	Instruction    string   `yaml:"instruction" json:"instruction"`
	Field          string   `yaml:"field" json:"field"`
	Labels         []string `yaml:"labels" json:"labels"`
	Fallback       string   `yaml:"fallback" json:"fallback"`
	MinTextLength  int      `yaml:"min_text_length" json:"min_text_length"`
	ShortTextLabel string   `yaml:"short_text_label" json:"short_text_label"`
	Keywords       []string `yaml:"keywords" json:"keywords"`
	KeywordLabel   string   `yaml:"keyword_label" json:"keyword_label"`
	Correction     string   `yaml:"correction" json:"correction"`
	Column         string   `yaml:"column" json:"column"`
	FormatJSON     bool     `yaml:"format_json" json:"format_json"`
	Temperature    *float64 `yaml:"temperature" json:"temperature"`
}

func (t Task) LabelSet() LabelSet {
	return NewLabelSet(t.Labels...)
}

// Validate checks the task once at startup. A missing rubric is fatal.
func (t Task) Validate() error {
	var problems []error
	if strings.TrimSpace(t.Name) == "" {
		problems = append(problems, errors.New("task name is required"))
	}
	if strings.TrimSpace(t.Rubric) == "" {
		problems = append(problems, fmt.Errorf("task %q: rubric is required", t.Name))
	}
	switch t.Mode {
	case ModeBatch, ModeSingle:
	default:
		problems = append(problems, fmt.Errorf("task %q: unknown mode %q", t.Name, t.Mode))
	}
	if strings.TrimSpace(t.Field) == "" {
		problems = append(problems, fmt.Errorf("task %q: reply field is required", t.Name))
	}
	if strings.TrimSpace(t.Column) == "" {
		problems = append(problems, fmt.Errorf("task %q: output column is required", t.Name))
	}

	set := t.LabelSet()
	if set.Len() == 0 {
		problems = append(problems, fmt.Errorf("task %q: labels are required", t.Name))
	}
	if !set.Contains(Label(t.Fallback)) {
		problems = append(problems, fmt.Errorf("task %q: fallback %q is not an allowed label", t.Name, t.Fallback))
	}
	if t.MinTextLength > 0 && !set.Contains(Label(t.ShortTextLabel)) {
		problems = append(problems, fmt.Errorf("task %q: short text label %q is not an allowed label", t.Name, t.ShortTextLabel))
	}
	if len(t.Keywords) > 0 && !set.Contains(Label(t.KeywordLabel)) {
		problems = append(problems, fmt.Errorf("task %q: keyword label %q is not an allowed label", t.Name, t.KeywordLabel))
	}

	if len(problems) > 0 {
		return WrapError(ErrConfig, "validate task", errors.Join(problems...))
	}
	return nil
}
