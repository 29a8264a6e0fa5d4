// Package search implements the quick search over the collections.
package search

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"animepicker/internal/model"
)

// Kind is the matching mode of a term.
type Kind int

// Term kinds.
const (
	Include Kind = iota
	Exclude
	IncludeRe
	ExcludeRe
)

// Scope selects the item text a term is matched against.
type Scope int

// Term scopes.
const (
	ScopeAll Scope = iota
	ScopeTitle
	ScopeContent
)

// Term is one parsed query element.
type Term struct {
	Kind  Kind
	Scope Scope
	Value string
}

// ErrEmptyQuery is returned by Parse when the query has no terms.
var ErrEmptyQuery = errors.New("empty search query")

// Parse splits a query into terms. A leading "-" excludes, "/.../" is a regular
// expression, and "title:" or "desc:" narrows the scope. Double quotes group words.
func Parse(query string) ([]Term, error) {
	var terms []Term
	for _, tok := range tokenize(query) {
		t := Term{Kind: Include, Scope: ScopeAll}
		if strings.HasPrefix(tok, "-") && len(tok) > 1 {
			t.Kind = Exclude
			tok = tok[1:]
		}
		switch {
		case strings.HasPrefix(strings.ToLower(tok), "title:"):
			t.Scope = ScopeTitle
			tok = tok[len("title:"):]
		case strings.HasPrefix(strings.ToLower(tok), "desc:"):
			t.Scope = ScopeContent
			tok = tok[len("desc:"):]
		}
		if len(tok) > 2 && strings.HasPrefix(tok, "/") && strings.HasSuffix(tok, "/") {
			tok = tok[1 : len(tok)-1]
			if err := ValidateRegex(tok); err != nil {
				return nil, err
			}
			if t.Kind == Exclude {
				t.Kind = ExcludeRe
			} else {
				t.Kind = IncludeRe
			}
		}
		tok = strings.Trim(tok, `"`)
		if tok == "" {
			continue
		}
		t.Value = tok
		terms = append(terms, t)
	}
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}
	return terms, nil
}

func tokenize(s string) []string {
	var out []string
	var cur strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case (r == ' ' || r == '\t' || r == '\n') && !quoted:
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// Match checks whether an item passes the given terms.
// Include terms use AND logic (every one must match).
// Exclude terms use AND logic (none must match).
func Match(item model.Item, terms []Term) bool {
	for _, t := range terms {
		hit := matchesTerm(item, t)
		switch t.Kind {
		case Include, IncludeRe:
			if !hit {
				return false
			}
		case Exclude, ExcludeRe:
			if hit {
				return false
			}
		}
	}
	return true
}

func matchesTerm(item model.Item, t Term) bool {
	text := textForScope(item, t.Scope)
	switch t.Kind {
	case Include, Exclude:
		return strings.Contains(text, strings.ToLower(t.Value))
	case IncludeRe, ExcludeRe:
		re, err := regexp.Compile("(?i)" + t.Value)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}
	return false
}

func textForScope(item model.Item, scope Scope) string {
	content := strings.Join([]string{item.Description, strings.Join(item.Genres, " "), item.Note}, " ")
	switch scope {
	case ScopeTitle:
		return strings.ToLower(item.Title)
	case ScopeContent:
		return strings.ToLower(content)
	default:
		return strings.ToLower(item.Title + " " + content)
	}
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}

// Hit is an item found in a collection.
type Hit struct {
	Collection model.Collection
	Item       model.Item
}

// Run matches every visible item of st against terms, in collection precedence order.
// Items whose title is excluded are skipped.
func Run(st model.State, terms []Term) []Hit {
	excluded := make(map[string]bool, len(st.ExcludedItems))
	for _, ex := range st.ExcludedItems {
		excluded[ex.Key()] = true
	}
	var hits []Hit
	for _, c := range model.Collections {
		for _, it := range st.Items(c) {
			if excluded[it.Key()] || !Match(it, terms) {
				continue
			}
			hits = append(hits, Hit{Collection: c, Item: it.Clone()})
		}
	}
	return hits
}
