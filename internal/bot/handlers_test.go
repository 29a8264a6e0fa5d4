package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"animepicker/internal/collection"
	"animepicker/internal/model"
	"animepicker/internal/remote"
	"animepicker/internal/scheduler"
	"animepicker/internal/session"
)

func TestParseCollectionArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      string
		wantColl  model.Collection
		wantTitle string
		wantErr   bool
	}{
		{name: "alias", args: "lib Mushishi", wantColl: model.Library, wantTitle: "Mushishi"},
		{name: "multi-word title", args: "watch  Sousou no Frieren ", wantColl: model.Watchlist, wantTitle: "Sousou no Frieren"},
		{name: "recs", args: "recs Monster", wantColl: model.Recommendations, wantTitle: "Monster"},
		{name: "missing title", args: "lib", wantErr: true},
		{name: "unknown collection", args: "shelf Monster", wantErr: true},
		{name: "empty", args: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, title, err := ParseCollectionArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantColl, c); diff != "" {
				t.Errorf("collection mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantTitle, title); diff != "" {
				t.Errorf("title mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseMoveArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		from    model.Collection
		to      model.Collection
		title   string
		wantErr bool
	}{
		{name: "valid", args: "watch lib Dororo", from: model.Watchlist, to: model.Library, title: "Dororo"},
		{name: "multi-word", args: "recs wl Made in Abyss", from: model.Recommendations, to: model.Watchlist, title: "Made in Abyss"},
		{name: "same collection", args: "lib library Dororo", wantErr: true},
		{name: "too short", args: "lib watch", wantErr: true},
		{name: "bad source", args: "x lib Dororo", wantErr: true},
		{name: "bad destination", args: "lib x Dororo", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, title, err := ParseMoveArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := []string{string(from), string(to), title}
			want := []string{string(tt.from), string(tt.to), tt.title}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("ParseMoveArgs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSplitPipe(t *testing.T) {
	tests := []struct {
		args  string
		left  string
		right string
	}{
		{"Mushishi | too slow", "Mushishi", "too slow"},
		{"Mushishi", "Mushishi", ""},
		{" Mushishi |", "Mushishi", ""},
		{"a | b | c", "a", "b | c"},
	}
	for _, tt := range tests {
		left, right := SplitPipe(tt.args)
		if diff := cmp.Diff([]string{tt.left, tt.right}, []string{left, right}); diff != "" {
			t.Errorf("SplitPipe(%q) mismatch (-want +got):\n%s", tt.args, diff)
		}
	}
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		n       int
		want    int
		wantErr bool
	}{
		{name: "first", args: "1", n: 3, want: 0},
		{name: "last", args: "3", n: 3, want: 2},
		{name: "zero", args: "0", n: 3, wantErr: true},
		{name: "past end", args: "4", n: 3, wantErr: true},
		{name: "empty list", args: "1", n: 0, wantErr: true},
		{name: "not a number", args: "two", n: 3, wantErr: true},
		{name: "missing", args: "", n: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePosition(tt.args, tt.n)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParsePosition() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		args    string
		want    int
		wantErr bool
	}{
		{"", 5, false},
		{"3", 3, false},
		{"20", 20, false},
		{"21", 0, true},
		{"0", 0, true},
		{"many", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseCount(tt.args, 5)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCount(%q) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseCount(%q) mismatch (-want +got):\n%s", tt.args, diff)
		}
	}
}

func TestParseClearMode(t *testing.T) {
	tests := []struct {
		args    string
		want    collection.ClearMode
		wantErr bool
	}{
		{"", collection.ClearAdded, false},
		{"added", collection.ClearAdded, false},
		{"ALL", collection.ClearAll, false},
		{"some", "", true},
	}
	for _, tt := range tests {
		got, err := ParseClearMode(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClearMode(%q) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseClearMode(%q) mismatch (-want +got):\n%s", tt.args, diff)
		}
	}
}

func TestParseFeedArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     string
		wantURL  string
		wantColl model.Collection
		wantErr  bool
	}{
		{name: "default collection", args: "https://example.com/list.rss", wantURL: "https://example.com/list.rss", wantColl: model.Watchlist},
		{name: "explicit collection", args: "http://example.com/rss lib", wantURL: "http://example.com/rss", wantColl: model.Library},
		{name: "not a url", args: "example.com/rss", wantErr: true},
		{name: "bad collection", args: "https://example.com/rss shelf", wantErr: true},
		{name: "empty", args: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, c, err := ParseFeedArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff([]string{tt.wantURL, string(tt.wantColl)}, []string{url, string(c)}); diff != "" {
				t.Errorf("ParseFeedArgs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveExcluded(t *testing.T) {
	list := []model.ExcludedItem{
		{Item: model.Item{ID: "a", Title: "Mushishi"}},
		{Item: model.Item{ID: "b", Title: "Dororo"}},
	}
	tests := []struct {
		arg    string
		wantID string
		wantOK bool
	}{
		{"1", "a", true},
		{"2", "b", true},
		{"3", "", false},
		{"dororo", "b", true},
		{"Monster", "", false},
	}
	for _, tt := range tests {
		got, ok := resolveExcluded(list, tt.arg)
		if ok != tt.wantOK || got.ID != tt.wantID {
			t.Errorf("resolveExcluded(%q) = (%q, %v), want (%q, %v)", tt.arg, got.ID, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestFormatTags(t *testing.T) {
	tests := []struct {
		name     string
		tags     []string
		max      int
		want     []string
		wantRest int
	}{
		{
			name: "demographic first",
			tags: []string{"Mystery", "Drama", "Seinen"},
			max:  2,
			want: []string{"Seinen", "Mystery"}, wantRest: 1,
		},
		{
			name: "case-insensitive demographics",
			tags: []string{"Action", "shounen", "JOSEI"},
			max:  5,
			want: []string{"shounen", "JOSEI", "Action"},
		},
		{
			name: "blank tags dropped",
			tags: []string{" ", "Fantasy"},
			max:  2,
			want: []string{"Fantasy"},
		},
		{
			name: "no tags",
			tags: nil,
			max:  2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rest := FormatTags(tt.tags, tt.max)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("tags mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantRest, rest); diff != "" {
				t.Errorf("remaining mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatList(t *testing.T) {
	score := 8.5
	items := []model.Item{
		{Title: "Monster", Year: "2004", Genres: []string{"Thriller", "Mystery", "Seinen"}, AverageScore: &score},
		{Title: "Dororo"},
	}
	got := FormatList(model.Watchlist, items)
	want := "Watchlist (2):\n1. Monster (2004) [Seinen, Thriller +1]\n2. Dororo"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatList() mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff("Library is empty.", FormatList(model.Library, nil)); diff != "" {
		t.Errorf("empty list mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatItem(t *testing.T) {
	score := 8.7
	it := model.Item{
		Title:        "Mushishi",
		Year:         "2005",
		AverageScore: &score,
		Genres:       []string{"Seinen", "Slice of Life"},
		Description:  "A wanderer studies primitive life forms.",
		Note:         "rewatch in autumn",
	}
	want := "Mushishi (2005)  score 8.7\n" +
		"Genres: Seinen, Slice of Life\n\n" +
		"A wanderer studies primitive life forms.\n\n" +
		"Note: rewatch in autumn"
	if diff := cmp.Diff(want, FormatItem(it)); diff != "" {
		t.Errorf("FormatItem() mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitMessage(t *testing.T) {
	text := strings.Repeat("line\n", 5)

	if diff := cmp.Diff([]string{text}, splitMessage(text, 100)); diff != "" {
		t.Errorf("short text mismatch (-want +got):\n%s", diff)
	}

	got := splitMessage(text, 10)
	want := []string{"line\nline\n", "line\nline\n", "line\n"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("split mismatch (-want +got):\n%s", diff)
	}

	long := strings.Repeat("x", 25)
	if diff := cmp.Diff([]string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, splitMessage(long, 10)); diff != "" {
		t.Errorf("long line mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncErrText(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{session.ErrNotConnected, "not connected"},
		{fmt.Errorf("open: %w", remote.ErrUnauthorized), "Reconnect"},
		{scheduler.ErrSyncInProgress, "already running"},
		{context.DeadlineExceeded, "did not answer"},
		{errors.New("boom"), "unchanged"},
	}
	for _, tt := range tests {
		if got := syncErrText(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("syncErrText(%v) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}
