package usecase

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
)

var errUnavailable = errors.New("connection refused")

type inferenceCall struct {
	messages []domain.Message
	prompt   string
	opts     domain.SamplingOptions
}

// inferenceFake replays scripted replies in order; once exhausted it
// repeats the last one. An empty reply with fail=true mimics exhaustion.
type inferenceFake struct {
	mu      sync.Mutex
	replies []string
	fail    bool
	calls   []inferenceCall
	onCall  func(n int)
}

func (f *inferenceFake) next(ctx context.Context, call inferenceCall) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	n := len(f.calls)
	hook := f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.fail {
		return "", errors.Join(domain.ErrNoReply, errUnavailable)
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	idx := n - 1
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	return f.replies[idx], nil
}

func (f *inferenceFake) Chat(ctx context.Context, messages []domain.Message, opts domain.SamplingOptions) (string, error) {
	return f.next(ctx, inferenceCall{messages: messages, opts: opts})
}

func (f *inferenceFake) Generate(ctx context.Context, prompt string, opts domain.SamplingOptions) (string, error) {
	return f.next(ctx, inferenceCall{prompt: prompt, opts: opts})
}

func (f *inferenceFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type storeFake struct {
	entries map[string]domain.CacheEntry
	stale   map[string]bool
	flushes int
	flushed map[string]domain.CacheEntry
}

func newStoreFake() *storeFake {
	return &storeFake{entries: make(map[string]domain.CacheEntry), stale: make(map[string]bool)}
}

func (s *storeFake) Get(fp string) (domain.CacheEntry, bool) {
	e, ok := s.entries[fp]
	return e, ok
}

func (s *storeFake) Put(entry domain.CacheEntry) bool {
	if existing, ok := s.entries[entry.Fingerprint]; ok && !s.stale[entry.Fingerprint] {
		if existing.Source != domain.SourceFallback || entry.Source == domain.SourceFallback {
			return false
		}
	}
	delete(s.stale, entry.Fingerprint)
	s.entries[entry.Fingerprint] = entry
	return true
}

func (s *storeFake) Restrict(labels domain.LabelSet) int {
	n := 0
	for fp, e := range s.entries {
		if !labels.Contains(e.Label) {
			s.stale[fp] = true
			n++
		}
	}
	return n
}

func (s *storeFake) Len() int { return len(s.entries) }

func (s *storeFake) Flush(context.Context) error {
	s.flushes++
	s.flushed = make(map[string]domain.CacheEntry, len(s.entries))
	for k, v := range s.entries {
		s.flushed[k] = v
	}
	return nil
}

func (s *storeFake) Close() error { return nil }

type tableStoreFake struct {
	input   *domain.Table
	readErr error
	writes  []map[string]string
	paths   []string
	column  string
}

func (f *tableStoreFake) Read(context.Context, string) (*domain.Table, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.input, nil
}

// Write snapshots the label column per row index.
func (f *tableStoreFake) Write(_ context.Context, path string, table *domain.Table) error {
	snap := make(map[string]string, len(table.Rows))
	for _, row := range table.Rows {
		snap[row.ID] = row.Values[f.column]
	}
	f.writes = append(f.writes, snap)
	f.paths = append(f.paths, path)
	return nil
}

type publisherFake struct {
	events []domain.BatchLabeled
	err    error
}

func (p *publisherFake) PublishBatchLabeled(_ context.Context, event domain.BatchLabeled) error {
	p.events = append(p.events, event)
	return p.err
}

type observerFake struct {
	rows        map[domain.LabelSource]int
	batches     map[string]int
	inferences  int
	checkpoints int
}

func newObserverFake() *observerFake {
	return &observerFake{rows: map[domain.LabelSource]int{}, batches: map[string]int{}}
}

func (o *observerFake) ObserveRow(_ string, source domain.LabelSource) { o.rows[source]++ }
func (o *observerFake) ObserveBatch(_ string, outcome string) { o.batches[outcome]++ }
func (o *observerFake) ObserveInference(string, string, time.Duration) { o.inferences++ }
func (o *observerFake) ObserveCheckpoint(string) { o.checkpoints++ }

func stanceTask() domain.Task {
	return domain.Task{
		Name:        "apoyo-daniel",
		Mode:        domain.ModeBatch,
		Rubric:      "Clasificás postura hacia Daniel Ximénez.",
		Instruction: "Evitá NEUTRAL.",
		Field:       "apoyo",
		Labels:      []string{"FAVORABLE", "CONTRARIO", "NEUTRAL"},
		Fallback:    "NEUTRAL",
		Column:      "Apoyo Daniel",
	}
}

func topicTask() domain.Task {
	temp := 0.1
	return domain.Task{
		Name:   "topics",
		Mode:   domain.ModeSingle,
		Rubric: "Eres un experto en análisis de discurso político uruguayo.",
		Field:  "topic",
		Labels: []string{
			"Vocación Médica y Humanidad",
			"Legalidad y Compatibilidad Funcional",
			"Rechazo a la denuncia",
			"Crítica Política y Valores Políticos",
			"No identificado",
		},
		Fallback:       "No identificado",
		MinTextLength:  10,
		ShortTextLabel: "No identificado",
		Keywords:       []string{"médico", "doctor", "paciente", "salv", "vida", "human", "curar"},
		KeywordLabel:   "Vocación Médica y Humanidad",
		Correction:     "AVISO: usá SOLO los tópicos de la lista.",
		Column:         "Topic",
		FormatJSON:     true,
		Temperature:    &temp,
	}
}

func rows(texts ...string) []*domain.Row {
	out := make([]*domain.Row, len(texts))
	for i, text := range texts {
		out[i] = &domain.Row{ID: strconv.Itoa(i + 1), Text: text, Index: i}
	}
	return out
}
