// Package extract recovers structured records from free-form generative model output.
//
// The input is expected to hold one JSON array or object, but may be wrapped in
// commentary, reasoning blocks or markdown fences, use typographic quotes, be cut off
// by a token limit, or contain broken items. Parse tries an ordered chain of recovery
// strategies and returns the first value that decodes.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const previewLimit = 2000

// Sentinel errors.
var (
	ErrEmpty      = errors.New("empty response")
	ErrNoRecords  = errors.New("no recoverable records")
	ErrNotArray   = errors.New("expected a JSON array")
	ErrNotObject  = errors.New("expected a JSON object")
	errNoBoundary = errors.New("no JSON container found")
)

// ParseFailure is returned when every recovery strategy is exhausted.
type ParseFailure struct {
	Err     error
	Preview string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("parse response: %v", e.Err)
}

func (e *ParseFailure) Unwrap() error {
	return e.Err
}

func fail(err error, text string) error {
	return &ParseFailure{Err: err, Preview: preview(text)}
}

var thinkBlock = regexp.MustCompile(`(?is)<think(?:ing)?>.*?</think(?:ing)?>`)

var typography = strings.NewReplacer(
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
	"‑", "-", "–", "-", "—", "-",
)

// Normalize strips reasoning blocks, typographic punctuation and control characters.
func Normalize(text string) string {
	s := thinkBlock.ReplaceAllString(text, "")
	s = typography.Replace(s)
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 0x20 || (r >= 0x7F && r <= 0x9F) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// Parse returns the first structured value ([]any or map[string]any) recovered from text.
func Parse(text string) (any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fail(ErrEmpty, text)
	}
	s := Normalize(text)
	if s == "" {
		return nil, fail(ErrEmpty, text)
	}

	if v, err := parseBounded(s); err == nil {
		return v, nil
	}
	if objs := rescueObjects(s); len(objs) > 0 {
		return objs, nil
	}
	if objs := extractFields(s); len(objs) > 0 {
		return objs, nil
	}
	return nil, fail(ErrNoRecords, text)
}

// ParseArray parses text and requires the result to be an array.
// A well-formed non-array value yields ErrNotArray rather than a ParseFailure.
func ParseArray(text string) ([]any, error) {
	v, err := Parse(text)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, ErrNotArray
	}
	return arr, nil
}

// ParseObject parses text and returns a single record.
// An array result yields its first object element.
func ParseObject(text string) (map[string]any, error) {
	v, err := Parse(text)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case []any:
		for _, el := range t {
			if m, ok := el.(map[string]any); ok {
				return m, nil
			}
		}
	}
	return nil, ErrNotObject
}

// Decode converts a parsed value into dst through a JSON round trip.
func Decode(v any, dst any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode parsed value: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode parsed value: %w", err)
	}
	return nil
}

func parseBounded(s string) (any, error) {
	firstBracket := strings.IndexByte(s, '[')
	firstBrace := strings.IndexByte(s, '{')

	start := -1
	isArray := false
	switch {
	case firstBracket != -1 && (firstBrace == -1 || firstBracket < firstBrace):
		start, isArray = firstBracket, true
	case firstBrace != -1:
		start = firstBrace
	default:
		return nil, errNoBoundary
	}

	end := strings.LastIndexByte(s, '}')
	if isArray {
		end = strings.LastIndexByte(s, ']')
	}

	if end > start {
		if v, ok := tryParse(s[start : end+1]); ok {
			return v, nil
		}
	}

	// Either an item is broken or the text was cut off before the closing bracket.
	partial := s[start:]
	if isArray {
		if v, ok := backtrack(partial); ok {
			return v, nil
		}
		return nil, errNoBoundary
	}
	if end <= start {
		if v, ok := tryParse(partial + "}"); ok {
			return v, nil
		}
	}
	return nil, errNoBoundary
}

// backtrack retries an array candidate with the end moved to each earlier '}' in turn,
// closing it with ']'. The longest prefix that parses wins.
func backtrack(candidate string) (any, bool) {
	pos := len(candidate)
	for pos > 0 {
		pos = strings.LastIndexByte(candidate[:pos], '}')
		if pos == -1 {
			break
		}
		if v, ok := tryParse(candidate[:pos+1] + "]"); ok {
			return v, true
		}
	}
	return nil, false
}

// tryParse decodes a candidate directly and then through progressively heavier repairs.
func tryParse(candidate string) (any, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return nil, false
	}
	if v, ok := decode(candidate); ok {
		return v, true
	}
	repaired := escapeControlInStrings(removeTrailingCommas(candidate))
	if v, ok := decode(repaired); ok {
		return v, true
	}
	if v, ok := decode(fixQuotes(repaired)); ok {
		return v, true
	}
	return nil, false
}

func decode(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		if len(t) == 0 {
			return nil, false
		}
		return t, true
	}
	return nil, false
}

func preview(text string) string {
	if len(text) <= previewLimit {
		return text
	}
	cut := text[:previewLimit]
	for !utf8.ValidString(cut) && len(cut) > 0 {
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}
