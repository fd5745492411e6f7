package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
)

func resolveOnce(t *testing.T, o Orchestrator, rs []*domain.Row) []domain.Resolution {
	t.Helper()
	results, err := o.Resolve(context.Background(), domain.Batch{Number: 1, Rows: rs})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(results) != len(rs) {
		t.Fatalf("expected %d results, got %d", len(rs), len(results))
	}
	return results
}

func TestBatchLabelsMatchedRowsAndFallsBackForMissingOnes(t *testing.T) {
	client := &inferenceFake{replies: []string{`[{"id":"1","apoyo":"FAVORABLE"}]`}}
	store := newStoreFake()
	o := NewOrchestrator(stanceTask(), client, store, nil, EngineOptions{})

	results := resolveOnce(t, o, rows("trabajar no jode, dejalo", ""))

	if results[0].Label != "FAVORABLE" || results[0].Source != domain.SourceModel {
		t.Fatalf("unexpected first result %+v", results[0])
	}
	if results[1].Label != "NEUTRAL" || results[1].Source != domain.SourceFallback {
		t.Fatalf("unexpected second result %+v", results[1])
	}
	if client.callCount() != 1 {
		t.Fatalf("expected one request per batch, got %d", client.callCount())
	}
	if store.Len() != 2 {
		t.Fatalf("expected both fingerprints cached, got %d", store.Len())
	}
}

func TestBatchPromptListsRowsAndReplyFormat(t *testing.T) {
	client := &inferenceFake{replies: []string{`[]`}}
	o := NewOrchestrator(stanceTask(), client, newStoreFake(), nil, EngineOptions{
		Sampling: domain.SamplingOptions{Temperature: 0, TopP: 0.9},
	})
	resolveOnce(t, o, rows("hola", "chau"))

	call := client.calls[0]
	if len(call.messages) != 2 || call.messages[0].Role != domain.RoleSystem || call.messages[0].Content != stanceTask().Rubric {
		t.Fatalf("unexpected messages %+v", call.messages)
	}
	user := call.messages[1].Content
	for _, want := range []string{
		`Formato: [{"id":"<id>","apoyo":"FAVORABLE|CONTRARIO|NEUTRAL"}, ...]`,
		"Evitá NEUTRAL.",
		"- ID: 1, Comentario: hola\n",
		"- ID: 2, Comentario: chau\n",
	} {
		if !strings.Contains(user, want) {
			t.Fatalf("user message missing %q:\n%s", want, user)
		}
	}
	if call.opts.TopP != 0.9 {
		t.Fatalf("sampling options not forwarded: %+v", call.opts)
	}
}

func TestBatchRecoversLabelFromProse(t *testing.T) {
	client := &inferenceFake{replies: []string{`Aquí está el resultado: [{"id":"1","apoyo":"contrario"}] Espero que ayude.`}}
	o := NewOrchestrator(stanceTask(), client, newStoreFake(), nil, EngineOptions{})

	results := resolveOnce(t, o, rows("que lo investiguen"))
	if results[0].Label != "CONTRARIO" || results[0].Source != domain.SourceModel {
		t.Fatalf("unexpected result %+v", results[0])
	}
}

func TestBatchAcceptsBareObjectReply(t *testing.T) {
	client := &inferenceFake{replies: []string{`{"id": 1, "apoyo": "favorable"}`}}
	o := NewOrchestrator(stanceTask(), client, newStoreFake(), nil, EngineOptions{})

	results := resolveOnce(t, o, rows("déjenlo trabajar"))
	if results[0].Label != "FAVORABLE" {
		t.Fatalf("unexpected result %+v", results[0])
	}
}

func TestBatchIgnoresUnknownIdentifiers(t *testing.T) {
	client := &inferenceFake{replies: []string{`[{"id":"42","apoyo":"CONTRARIO"},{"id":"1","apoyo":"FAVORABLE"}]`}}
	o := NewOrchestrator(stanceTask(), client, newStoreFake(), nil, EngineOptions{})

	results := resolveOnce(t, o, rows("a favor", "en contra"))
	if results[0].Label != "FAVORABLE" {
		t.Fatalf("unexpected first result %+v", results[0])
	}
	if results[1].Label != "NEUTRAL" || results[1].Source != domain.SourceFallback {
		t.Fatalf("unknown id changed a row: %+v", results[1])
	}
}

func TestBatchInvalidLastItemFallsBack(t *testing.T) {
	client := &inferenceFake{replies: []string{`[{"id":"1","apoyo":"CONTRARIO"},{"id":"1","apoyo":"no sé"}]`}}
	o := NewOrchestrator(stanceTask(), client, newStoreFake(), nil, EngineOptions{})

	results := resolveOnce(t, o, rows("que lo investiguen"))
	if results[0].Label != "NEUTRAL" || results[0].Source != domain.SourceFallback {
		t.Fatalf("earlier item survived an invalid last item: %+v", results[0])
	}
}

func TestBatchNeverPersistsRawModelTokens(t *testing.T) {
	client := &inferenceFake{replies: []string{`[{"id":"1","apoyo":"MUY FAVORABLE"},{"id":"2","apoyo":"contrario "}]`}}
	store := newStoreFake()
	o := NewOrchestrator(stanceTask(), client, store, nil, EngineOptions{})

	results := resolveOnce(t, o, rows("uno", "dos"))
	set := stanceTask().LabelSet()
	for _, res := range results {
		if !set.Contains(res.Label) || string(res.Label) != strings.ToUpper(string(res.Label)) {
			t.Fatalf("label outside set: %+v", res)
		}
	}
	for _, entry := range store.entries {
		if !set.Contains(entry.Label) {
			t.Fatalf("persisted label outside set: %+v", entry)
		}
	}
}

func TestBatchFallsBackWhenInferenceFailsAndPoisonsCache(t *testing.T) {
	failing := &inferenceFake{fail: true}
	store := newStoreFake()
	o := NewOrchestrator(stanceTask(), failing, store, nil, EngineOptions{})

	results := resolveOnce(t, o, rows("uno", "dos", "tres"))
	for _, res := range results {
		if res.Label != "NEUTRAL" || res.Source != domain.SourceFallback {
			t.Fatalf("expected fallback, got %+v", res)
		}
	}
	if store.Len() != 3 {
		t.Fatalf("expected fallback entries cached, got %d", store.Len())
	}

	second := &inferenceFake{replies: []string{`[{"id":"1","apoyo":"FAVORABLE"}]`}}
	again := NewOrchestrator(stanceTask(), second, store, nil, EngineOptions{})
	resolveOnce(t, again, rows("uno", "dos", "tres"))
	if second.callCount() != 0 {
		t.Fatalf("cached fallbacks must not be re-sent by default, got %d calls", second.callCount())
	}
}

func TestBatchRetryFallbacksReplacesFallbackEntries(t *testing.T) {
	store := newStoreFake()
	resolveOnce(t, NewOrchestrator(stanceTask(), &inferenceFake{fail: true}, store, nil, EngineOptions{}), rows("uno"))

	client := &inferenceFake{replies: []string{`[{"id":"1","apoyo":"CONTRARIO"}]`}}
	o := NewOrchestrator(stanceTask(), client, store, nil, EngineOptions{RetryFallbacks: true})
	results := resolveOnce(t, o, rows("uno"))

	if client.callCount() != 1 || results[0].Label != "CONTRARIO" {
		t.Fatalf("expected re-attempt, calls=%d result=%+v", client.callCount(), results[0])
	}
	entry, _ := store.Get(domain.Fingerprint("uno"))
	if entry.Label != "CONTRARIO" || entry.Source != domain.SourceModel {
		t.Fatalf("fallback entry not replaced: %+v", entry)
	}
}

func TestBatchCacheIsIdempotentAcrossRuns(t *testing.T) {
	store := newStoreFake()
	first := &inferenceFake{replies: []string{`[{"id":"1","apoyo":"FAVORABLE"},{"id":"2","apoyo":"CONTRARIO"}]`}}
	resolveOnce(t, NewOrchestrator(stanceTask(), first, store, nil, EngineOptions{}), rows("a favor", "en contra"))

	second := &inferenceFake{fail: true}
	observer := newObserverFake()
	reordered := []*domain.Row{
		{ID: "10", Text: "en contra"},
		{ID: "11", Text: "  a favor  "},
	}
	results := resolveOnce(t, NewOrchestrator(stanceTask(), second, store, observer, EngineOptions{}), reordered)

	if second.callCount() != 0 {
		t.Fatalf("expected no remote calls, got %d", second.callCount())
	}
	if results[0].Label != "CONTRARIO" || results[1].Label != "FAVORABLE" {
		t.Fatalf("unexpected cached labels %+v", results)
	}
	if results[0].Source != domain.SourceCache || observer.rows[domain.SourceCache] != 2 {
		t.Fatalf("expected cache sources, got %+v / %v", results, observer.rows)
	}
}

func TestBatchFallbackIsDeterministic(t *testing.T) {
	input := []string{"uno", "", "que lo investiguen"}
	var runs [][]domain.Resolution
	for i := 0; i < 2; i++ {
		o := NewOrchestrator(stanceTask(), &inferenceFake{fail: true}, newStoreFake(), nil, EngineOptions{})
		runs = append(runs, resolveOnce(t, o, rows(input...)))
	}
	for i := range input {
		if runs[0][i] != runs[1][i] {
			t.Fatalf("run mismatch at %d: %+v vs %+v", i, runs[0][i], runs[1][i])
		}
	}
}

func TestBatchPropagatesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &inferenceFake{fail: true, onCall: func(int) { cancel() }}
	store := newStoreFake()
	o := NewOrchestrator(stanceTask(), client, store, nil, EngineOptions{})

	_, err := o.Resolve(ctx, domain.Batch{Number: 1, Rows: rows("uno")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("cancelled batch must not be cached")
	}
}
