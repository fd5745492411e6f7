package domain

import "strings"

type Label string

type LabelSource string

const (
	SourceModel     LabelSource = "model"
	SourceHeuristic LabelSource = "heuristic"
	SourceFallback  LabelSource = "fallback"
	SourceCache     LabelSource = "cache"
)

// LabelSet is a closed, ordered set of labels with case-insensitive lookup.
type LabelSet struct {
	labels []Label
	index  map[string]Label
}

func NewLabelSet(labels ...string) LabelSet {
	set := LabelSet{index: make(map[string]Label, len(labels))}
	for _, raw := range labels {
		label := Label(strings.TrimSpace(raw))
		if label == "" {
			continue
		}
		key := foldLabel(string(label))
		if _, exists := set.index[key]; exists {
			continue
		}
		set.index[key] = label
		set.labels = append(set.labels, label)
	}
	return set
}

// Lookup returns the canonical spelling of candidate when it belongs to the set.
func (s LabelSet) Lookup(candidate string) (Label, bool) {
	label, ok := s.index[foldLabel(candidate)]
	return label, ok
}

func (s LabelSet) Contains(label Label) bool {
	_, ok := s.Lookup(string(label))
	return ok
}

func (s LabelSet) Labels() []Label {
	out := make([]Label, len(s.labels))
	copy(out, s.labels)
	return out
}

func (s LabelSet) Len() int { return len(s.labels) }

// Joined renders the set as "A|B|C" for reply format instructions.
func (s LabelSet) Joined(sep string) string {
	parts := make([]string, len(s.labels))
	for i, l := range s.labels {
		parts[i] = string(l)
	}
	return strings.Join(parts, sep)
}

func foldLabel(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

type CacheEntry struct {
	Fingerprint string
	Label       Label
	Source      LabelSource
}

// Resolution is the final, validated outcome for one row.
type Resolution struct {
	RowID       string
	Fingerprint string
	Label       Label
	Source      LabelSource
}
