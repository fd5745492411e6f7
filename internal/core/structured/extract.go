// Package structured recovers JSON payloads from free-form model replies.
//
// Extraction is an ordered chain of pure steps. Each step either yields a
// fully valid value or reports nothing, in which case the next step runs.
// Malformed replies are an expected outcome and never produce an error.
package structured

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
)

type Object = map[string]any

type arrayStep func(text string) ([]Object, bool)

type objectStep func(text string) (Object, bool)

var (
	arrayPattern  = regexp.MustCompile(`(?s)\[\s*\{.*?\}\s*(?:,\s*\{.*?\}\s*)*\]`)
	objectPattern = regexp.MustCompile(`(?s)\{[^{}]*\}`)
)

var arraySteps = []arrayStep{
	directArray,
	spanArray,
	patternArray,
}

var objectSteps = []objectStep{
	directObject,
	spanObject,
	patternObject,
}

// ExtractArray returns the objects of the first JSON array found in text.
func ExtractArray(text string) []Object {
	cleaned := clean(text)
	if cleaned == "" {
		return nil
	}
	for _, step := range arraySteps {
		if items, ok := step(cleaned); ok && len(items) > 0 {
			return items
		}
	}
	return nil
}

// ExtractObject returns a single JSON object found in text.
func ExtractObject(text string) (Object, bool) {
	cleaned := clean(text)
	if cleaned == "" {
		return nil, false
	}
	for _, step := range objectSteps {
		if obj, ok := step(cleaned); ok {
			return obj, true
		}
	}
	return nil, false
}

// ParseLoose strictly parses the whole reply, accepting either an array of
// objects or a bare object as a one-item sequence.
func ParseLoose(text string) []Object {
	cleaned := clean(text)
	if items, ok := parseArray(cleaned); ok {
		return items
	}
	if obj, ok := parseObject(cleaned); ok {
		return []Object{obj}
	}
	return nil
}

func directArray(text string) ([]Object, bool) {
	if !strings.HasPrefix(text, "[") || !strings.HasSuffix(text, "]") {
		return nil, false
	}
	return parseArray(text)
}

func spanArray(text string) ([]Object, bool) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, false
	}
	return parseArray(text[start : end+1])
}

func patternArray(text string) ([]Object, bool) {
	for _, candidate := range arrayPattern.FindAllString(text, -1) {
		if items, ok := parseArray(candidate); ok {
			return items, true
		}
	}
	return nil, false
}

func directObject(text string) (Object, bool) {
	if !strings.HasPrefix(text, "{") || !strings.HasSuffix(text, "}") {
		return nil, false
	}
	return parseObject(text)
}

func spanObject(text string) (Object, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return parseObject(text[start : end+1])
}

// patternObject keeps the last candidate that parses; models tend to restate
// a corrected answer after a first attempt.
func patternObject(text string) (Object, bool) {
	var (
		found Object
		ok    bool
	)
	for _, candidate := range objectPattern.FindAllString(text, -1) {
		if obj, parsed := parseObject(candidate); parsed {
			found, ok = obj, true
		}
	}
	return found, ok
}

func parseArray(text string) ([]Object, bool) {
	var raw []any
	if err := decode(text, &raw); err != nil {
		return nil, false
	}
	items := make([]Object, 0, len(raw))
	for _, el := range raw {
		obj, isObj := el.(map[string]any)
		if !isObj {
			return nil, false
		}
		items = append(items, obj)
	}
	return items, true
}

func parseObject(text string) (Object, bool) {
	var obj map[string]any
	if err := decode(text, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func decode(text string, out any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

func clean(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		if end := strings.LastIndex(s, "```"); end != -1 {
			s = s[:end]
		}
	}
	return strings.TrimSpace(s)
}
