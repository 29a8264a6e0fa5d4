package extract

import (
	"regexp"
	"strings"
)

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

func removeTrailingCommas(s string) string {
	return trailingComma.ReplaceAllString(s, "$1")
}

// escapeControlInStrings escapes raw newlines, carriage returns and tabs that appear
// inside string literals and drops any other control character found there.
func escapeControlInStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		if escaped {
			escaped = false
			b.WriteByte(c)
			continue
		}
		switch {
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// fixQuotes escapes double quotes inside string literals that do not look like the
// end of the literal. Already escaped quotes are left alone.
func fixQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		switch c {
		case '\\':
			b.WriteByte(c)
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		case '"':
			if closesString(s, i+1) {
				inString = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// closesString reports whether the text from pos on is what may follow a closing quote.
func closesString(s string, pos int) bool {
	j := skipSpace(s, pos)
	if j >= len(s) {
		return true
	}
	switch s[j] {
	case ':', '}', ']':
		return true
	case ',':
	default:
		return false
	}

	k := skipSpace(s, j+1)
	if k >= len(s) {
		return true
	}
	switch c := s[k]; {
	case c == '"', c == '{', c == '[', c == '}', c == ']', c == '-':
		return true
	case c >= '0' && c <= '9':
		return true
	}
	rest := s[k:]
	return strings.HasPrefix(rest, "true") || strings.HasPrefix(rest, "false") || strings.HasPrefix(rest, "null")
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\n' || s[i] == '\r' || s[i] == '\t') {
		i++
	}
	return i
}

var (
	titledObject = regexp.MustCompile(`(?s)\{[^{}]*"title"\s*:\s*"[^"]*".*?\}`)
	anyBlock     = regexp.MustCompile(`\{[^}]*\}`)

	titleField       = regexp.MustCompile(`"title"\s*:\s*"([^"]*)"`)
	yearField        = regexp.MustCompile(`"year"\s*:\s*"?([0-9]{4}[^",}]*)`)
	genresField      = regexp.MustCompile(`"genres"\s*:\s*\[([^\]]*)\]`)
	reasonField      = regexp.MustCompile(`"reason"\s*:\s*"([^"]*)"`)
	descriptionField = regexp.MustCompile(`"description"\s*:\s*"([^"]*)"`)
)

// rescueObjects parses every individually well-formed object that carries a title.
func rescueObjects(s string) []any {
	var out []any
	for _, m := range titledObject.FindAllString(s, -1) {
		if v, ok := tryParse(m); ok {
			if obj, ok := v.(map[string]any); ok {
				out = append(out, obj)
			}
		}
	}
	return out
}

// extractFields pulls known fields out of object-like blocks with plain patterns.
// Blocks without a title are skipped.
func extractFields(s string) []any {
	var out []any
	for _, block := range anyBlock.FindAllString(s, -1) {
		title := firstGroup(titleField, block)
		if strings.TrimSpace(title) == "" {
			continue
		}
		rec := map[string]any{
			"title":       title,
			"year":        strings.TrimSpace(firstGroup(yearField, block)),
			"genres":      splitGenres(firstGroup(genresField, block)),
			"reason":      firstGroup(reasonField, block),
			"description": firstGroup(descriptionField, block),
		}
		out = append(out, rec)
	}
	return out
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func splitGenres(list string) []any {
	out := []any{}
	for _, g := range strings.Split(list, ",") {
		g = strings.Trim(strings.TrimSpace(g), `"'`)
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}
