// Package normalize repairs possibly-malformed structured model output
// into validated decision records. Normalize always terminates in a valid
// record; its final level is deterministic and cannot fail. Everything
// downstream of this package may assume well-typed input.
package normalize

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"storyloop/internal/llm"
)

// Repairer issues the single fix-it completion round-trip (level 4).
type Repairer interface {
	Repair(ctx context.Context, raw string, schemaHint string) (string, bool)
}

// Schema describes one decision record shape.
type Schema[T any] struct {
	// Name labels the schema in repair prompts.
	Name string
	// Hint is the JSON shape shown to the repair round-trip.
	Hint string
	// FromObject validates a parsed JSON object into the record. It
	// rejects structurally wrong objects by returning false.
	FromObject func(obj map[string]any) (T, bool)
	// FromProse builds a record treating the whole raw text as the
	// narration/speech field. Optional.
	FromProse func(text string) (T, bool)
	// Fallback constructs a valid record from local rules alone. This is
	// the crash-prevention floor and must always succeed.
	Fallback func() T
}

// Normalize repairs raw into a schema-valid record. Strategy, each level
// attempted only when the previous fails:
//
//  1. direct structural parse
//  2. strip fences and prose, locate a balanced-brace substring
//  3. remove trailing commas from that substring
//  4. one repair round-trip through the completion service
//  5. treat prose-looking raw text as the speech field
//  6. deterministic fallback
func Normalize[T any](ctx context.Context, raw llm.RawResult, s Schema[T], rep Repairer) T {
	if raw.OK {
		if rec, ok := fromText(raw.Text, s); ok {
			return rec
		}
	}

	if rep != nil && raw.OK && strings.TrimSpace(raw.Text) != "" {
		if repaired, ok := rep.Repair(ctx, raw.Text, s.Hint); ok {
			if rec, ok := fromText(repaired, s); ok {
				return rec
			}
		}
	}

	if s.FromProse != nil && raw.OK && LooksLikeProse(raw.Text) {
		if rec, ok := s.FromProse(strings.TrimSpace(raw.Text)); ok {
			return rec
		}
	}

	return s.Fallback()
}

func fromText[T any](text string, s Schema[T]) (T, bool) {
	obj, ok := ExtractObject(text)
	if !ok {
		var zero T
		return zero, false
	}
	return s.FromObject(obj)
}

// ExtractObject parses text into a JSON object using levels 1-3 of the
// cascade.
func ExtractObject(text string) (map[string]any, bool) {
	// level 1: direct parse
	if obj, ok := parseObject(text); ok {
		return obj, true
	}

	// level 2: strip markdown fences and surrounding prose, then take the
	// first balanced-brace substring
	candidate := stripFences(text)
	candidate, ok := balancedBraces(candidate)
	if !ok {
		return nil, false
	}
	if obj, ok := parseObject(candidate); ok {
		return obj, true
	}

	// level 3: common punctuation errors
	if obj, ok := parseObject(removeTrailingCommas(candidate)); ok {
		return obj, true
	}

	return nil, false
}

func parseObject(text string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &obj); err != nil {
		return nil, false
	}
	if obj == nil {
		return nil, false
	}
	return obj, true
}

func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if i := strings.Index(trimmed, "```json"); i >= 0 {
		trimmed = trimmed[i+len("```json"):]
	} else if i := strings.Index(trimmed, "```"); i >= 0 {
		trimmed = trimmed[i+len("```"):]
	}
	if i := strings.Index(trimmed, "```"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.TrimSpace(trimmed)
}

// balancedBraces returns the first top-level {...} span, honoring strings
// and escapes.
func balancedBraces(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// removeTrailingCommas drops commas that directly precede a closing brace
// or bracket, outside of strings.
func removeTrailingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		if inString && c == '\\' {
			b.WriteByte(c)
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			b.WriteByte(c)
			continue
		}
		if !inString && c == ',' {
			j := i + 1
			for j < len(text) && unicode.IsSpace(rune(text[j])) {
				j++
			}
			if j < len(text) && (text[j] == '}' || text[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// LooksLikeProse reports whether raw text reads like narrative output that
// never attempted JSON: long enough to be a line of dialogue and not
// starting with a structural opening token.
func LooksLikeProse(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 20 {
		return false
	}
	switch trimmed[0] {
	case '{', '[', '`':
		return false
	}
	return true
}

// CompleterRepairer implements Repairer on top of the completion service.
// It issues exactly one round-trip per call.
type CompleterRepairer struct {
	Completer llm.Completer
	Operation string
	MaxTokens int
}

func (r CompleterRepairer) Repair(ctx context.Context, raw, schemaHint string) (string, bool) {
	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 400
	}

	op := r.Operation
	if op == "" {
		op = "normalize.repair"
	}

	res := r.Completer.Complete(ctx, llm.Request{
		System: "You repair malformed JSON. Return ONLY a valid JSON object matching the requested shape. No backticks. No markdown. No commentary.",
		User: "Fix this into valid JSON matching this shape:\n" + schemaHint +
			"\n\nMalformed output:\n" + raw + "\n\nReturn ONLY the JSON object:",
		MaxTokens: maxTokens,
		JSON:      true,
		Operation: op,
	})
	if !res.OK {
		return "", false
	}
	return res.Text, true
}
