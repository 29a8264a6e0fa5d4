package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{
			name: "fenced with commentary",
			in:   "Here is the JSON:\n```json\n[{\"title\":\"A\",\"year\":\"2001\"}]\n```",
			want: []any{map[string]any{"title": "A", "year": "2001"}},
		},
		{
			name: "typographic quotes and dashes",
			in:   "[{“title”: “Mushi‑shi”, “reason”: “calm — eerie”}]",
			want: []any{map[string]any{"title": "Mushi-shi", "reason": "calm - eerie"}},
		},
		{
			name: "reasoning block is ignored",
			in:   "<think>maybe [\"x\"] or {\"y\":1}</think>\n[{\"title\":\"A\"}]",
			want: []any{map[string]any{"title": "A"}},
		},
		{
			name: "trailing commas",
			in:   `[{"title":"A",},]`,
			want: []any{map[string]any{"title": "A"}},
		},
		{
			name: "raw newline inside string",
			in:   "[{\"title\":\"A\",\"description\":\"line one\nline two\"}]",
			want: []any{map[string]any{"title": "A", "description": "line one\nline two"}},
		},
		{
			name: "unescaped inner quotes",
			in:   `[{"title":"A","reason":"He said "hi" to me"}]`,
			want: []any{map[string]any{"title": "A", "reason": `He said "hi" to me`}},
		},
		{
			name: "truncated after complete object",
			in:   `[{"title":"A","genres":["X"]},{"title":"B","genres":["Y"`,
			want: []any{map[string]any{"title": "A", "genres": []any{"X"}}},
		},
		{
			name: "broken trailing item is dropped",
			in:   `[{"title":"A"},{"title":"B",,"year":}]`,
			want: []any{map[string]any{"title": "A"}},
		},
		{
			name: "truncated single object",
			in:   `{"title":"Monster","year":"2004"`,
			want: map[string]any{"title": "Monster", "year": "2004"},
		},
		{
			name: "loose objects in prose",
			in:   `Picks: {"title":"A"} and also {"title":"B"}`,
			want: []any{map[string]any{"title": "A"}, map[string]any{"title": "B"}},
		},
		{
			name: "field extraction from malformed object",
			in:   `{"title":"A" "year":"2001", "genres":["Seinen", "Drama"]}`,
			want: []any{map[string]any{
				"title":       "A",
				"year":        "2001",
				"genres":      []any{"Seinen", "Drama"},
				"reason":      "",
				"description": "",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseFailure(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantErr     error
		wantPreview string
	}{
		{name: "empty", in: "", wantErr: ErrEmpty, wantPreview: ""},
		{name: "whitespace", in: "  \n ", wantErr: ErrEmpty, wantPreview: "  \n "},
		{name: "only reasoning", in: "<think>hmm</think>", wantErr: ErrEmpty, wantPreview: "<think>hmm</think>"},
		{name: "no structure", in: "I cannot help with that.", wantErr: ErrNoRecords, wantPreview: "I cannot help with that."},
		{name: "empty array", in: "[]", wantErr: ErrNoRecords, wantPreview: "[]"},
		{name: "long text", in: strings.Repeat("x", 2500), wantErr: ErrNoRecords, wantPreview: strings.Repeat("x", 2000) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			var pf *ParseFailure
			if !errors.As(err, &pf) {
				t.Fatalf("expected *ParseFailure, got %v", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if diff := cmp.Diff(tt.wantPreview, pf.Preview); diff != "" {
				t.Errorf("preview mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseArray(t *testing.T) {
	if _, err := ParseArray(`{"title":"A"}`); !errors.Is(err, ErrNotArray) {
		t.Errorf("expected ErrNotArray, got %v", err)
	}

	got, err := ParseArray(`["Naruto", "Bleach"]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]any{"Naruto", "Bleach"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParseObject(t *testing.T) {
	got, err := ParseObject("```json\n[{\"title\":\"Monster\",\"genres\":[\"Seinen\"]}]\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]any{"title": "Monster", "genres": []any{"Seinen"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if _, err := ParseObject(`["a","b"]`); !errors.Is(err, ErrNotObject) {
		t.Errorf("expected ErrNotObject, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	in := "  <thinking>plan</thinking>“a”\x00 ‘b’ c–d\u0085 "
	want := `"a" 'b' c-d`
	if diff := cmp.Diff(want, Normalize(in)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode(t *testing.T) {
	var dst []struct {
		Title string `json:"title"`
	}
	if err := Decode([]any{map[string]any{"title": "A"}}, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dst) != 1 || dst[0].Title != "A" {
		t.Errorf("unexpected decode result: %+v", dst)
	}
}
