package domain

import "time"

type RunRequest struct {
	Task       Task
	InputPath  string
	OutputPath string

	IDColumn    string
	TextColumn  string
	LabelColumn string

	BatchSize       int
	CheckpointEvery int
	RetryFallbacks  bool
}

type RunReport struct {
	RunID       string
	Task        string
	Rows        int
	Labeled     int
	CacheHits   int
	ModelLabels int
	Fallbacks   int
	Heuristics  int
	Batches     int
	Duration    time.Duration
	Counts      map[Label]int
}

// Record accounts one resolved row.
func (r *RunReport) Record(res Resolution) {
	if r.Counts == nil {
		r.Counts = make(map[Label]int)
	}
	r.Labeled++
	r.Counts[res.Label]++
	switch res.Source {
	case SourceCache:
		r.CacheHits++
	case SourceModel:
		r.ModelLabels++
	case SourceFallback:
		r.Fallbacks++
	case SourceHeuristic:
		r.Heuristics++
	}
}

// BatchLabeled is published once per resolved batch (or item in single mode).
type BatchLabeled struct {
	RunID     string    `json:"run_id"`
	Task      string    `json:"task"`
	Batch     int       `json:"batch"`
	Rows      int       `json:"rows"`
	Model     int       `json:"model"`
	Fallback  int       `json:"fallback"`
	CacheHits int       `json:"cache_hits"`
	At        time.Time `json:"at"`
}

type LabelCount struct {
	Label   string
	Count   int
	Percent float64
}

type ColumnSummary struct {
	Column string
	Total  int
	Counts []LabelCount
}
