package structured

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestExtractArrayRecoversPayloadFromWrappers(t *testing.T) {
	payload := `[{"id":"1","apoyo":"FAVORABLE"},{"id":2,"apoyo":"neutral"}]`
	want := ParseLoose(payload)
	if len(want) != 2 {
		t.Fatalf("expected bare payload to parse into 2 items, got %d", len(want))
	}

	cases := map[string]string{
		"bare":          payload,
		"leading prose": "Claro, acá va:\n" + payload,
		"both sides":    "Resultado: " + payload + " Espero que ayude.",
		"fenced":        "```json\n" + payload + "\n```",
		"fenced prose":  "Respuesta:\n```json\n" + payload + "\n```\nSaludos",
		"whitespace":    "\n\n   " + payload + "   \n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			got := ExtractArray(text)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("ExtractArray(%q) = %v, want %v", text, got, want)
			}
		})
	}
}

func TestExtractArrayProseScenario(t *testing.T) {
	got := ExtractArray(`Aquí está el resultado: [{"id":"1","apoyo":"contrario"}] Espero que ayude.`)
	if len(got) != 1 {
		t.Fatalf("expected one item, got %v", got)
	}
	if got[0]["id"] != "1" || got[0]["apoyo"] != "contrario" {
		t.Fatalf("unexpected item %v", got[0])
	}
}

func TestExtractArrayFallsBackToPatternWhenSpanIsInvalid(t *testing.T) {
	// The outer span runs from the first '[' to the trailing note's ']'.
	text := `[{"id":"1","apoyo":"NEUTRAL"}] nota: [sin más]`
	got := ExtractArray(text)
	if len(got) != 1 || got[0]["apoyo"] != "NEUTRAL" {
		t.Fatalf("expected pattern step to recover one item, got %v", got)
	}
}

func TestExtractArrayKeepsNumericIdentifiersExact(t *testing.T) {
	got := ExtractArray(`[{"id": 12345678901234567890, "apoyo": "FAVORABLE"}]`)
	if len(got) != 1 {
		t.Fatalf("expected one item, got %v", got)
	}
	num, ok := got[0]["id"].(json.Number)
	if !ok || num.String() != "12345678901234567890" {
		t.Fatalf("expected exact json.Number id, got %#v", got[0]["id"])
	}
}

func TestExtractArrayReturnsEmptyOnGarbage(t *testing.T) {
	for _, text := range []string{"", "   ", "no sé", "[1, 2, 3]", `[{"id":"1",`, "{}"} {
		if got := ExtractArray(text); len(got) != 0 {
			t.Fatalf("ExtractArray(%q) = %v, want empty", text, got)
		}
	}
}

func TestExtractArrayRejectsTrailingGarbageInDirectParse(t *testing.T) {
	// Direct parse must not accept a value followed by extra data.
	if _, ok := directArray(`[{"a":1}] [{"b":2}]`); ok {
		t.Fatalf("direct parse accepted trailing data")
	}
}

func TestExtractObject(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{name: "bare", text: `{"topic":"Rechazo a la denuncia"}`, want: "Rechazo a la denuncia"},
		{name: "prose", text: `El tópico es {"topic": "No identificado"} listo.`, want: "No identificado"},
		{name: "multiple candidates", text: `{"topic":"X"} o mejor {"topic":"Legalidad y Compatibilidad Funcional"}`, want: "Legalidad y Compatibilidad Funcional"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obj, ok := ExtractObject(tc.text)
			if !ok {
				t.Fatalf("expected object from %q", tc.text)
			}
			if obj["topic"] != tc.want {
				t.Fatalf("got %v, want %s", obj["topic"], tc.want)
			}
		})
	}

	if _, ok := ExtractObject("sin json"); ok {
		t.Fatalf("expected no object")
	}
}

func TestParseLooseAcceptsBareObject(t *testing.T) {
	got := ParseLoose(`{"id":"7","apoyo":"CONTRARIO"}`)
	if len(got) != 1 || got[0]["id"] != "7" {
		t.Fatalf("expected single item, got %v", got)
	}
	if got := ParseLoose("nada"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
