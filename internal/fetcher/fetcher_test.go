package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mmcdole/gofeed"

	"animepicker/internal/model"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
	gotAgent   string
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.gotAgent = req.Header.Get("User-Agent")
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func TestFetch(t *testing.T) {
	xml := loadFixture(t, "../../testdata/anime_list.xml")

	tests := []struct {
		name      string
		transport *mockTransport
		wantTitle string
		wantItems int
		wantErr   bool
	}{
		{
			name:      "successful fetch",
			transport: &mockTransport{body: xml, statusCode: 200},
			wantTitle: "Planned Anime",
			wantItems: 6,
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "not found", statusCode: 404},
			wantErr:   true,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantErr:   true,
		},
		{
			name:      "invalid xml",
			transport: &mockTransport{body: "not xml at all", statusCode: 200},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport)
			feed, err := f.Fetch(context.Background(), "https://example.com/rss")

			if tt.transport.gotAgent != "AnimePicker/1.0" {
				t.Errorf("unexpected user agent %q", tt.transport.gotAgent)
			}
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if diff := cmp.Diff(tt.wantTitle, feed.Title); diff != "" {
				t.Errorf("title mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantItems, len(feed.Items)); diff != "" {
				t.Errorf("item count mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Mushishi - TV", want: "Mushishi"},
		{in: "Sousou no Frieren (TV)", want: "Sousou no Frieren"},
		{in: "Akira [Movie]", want: "Akira"},
		{in: "Dororo - Episode 12", want: "Dororo"},
		{in: "Dororo - Ep. 3 of 24", want: "Dororo"},
		{in: "Monster: 3/74", want: "Monster"},
		{in: "One Piece - 1100/?", want: "One Piece"},
		{in: "Trigun - Completed", want: "Trigun"},
		{in: "Hellsing Ultimate - OVA (OVA)", want: "Hellsing Ultimate"},
		{in: "Re:Zero - Starting Life in Another World", want: "Re:Zero - Starting Life in Another World"},
		{in: "  86  ", want: "86"},
	}
	for _, tt := range tests {
		if got := CleanTitle(tt.in); got != tt.want {
			t.Errorf("CleanTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTitles(t *testing.T) {
	parser := gofeed.NewParser()
	feed, err := parser.ParseString(loadFixture(t, "../../testdata/anime_list.xml"))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	want := []string{"Mushishi", "Sousou no Frieren", "Dororo", "Monster"}
	if diff := cmp.Diff(want, Titles(feed)); diff != "" {
		t.Errorf("titles mismatch (-want +got):\n%s", diff)
	}

	items := Items(feed)
	if diff := cmp.Diff(model.NewItem("Mushishi"), items[0]); diff != "" {
		t.Errorf("item mismatch (-want +got):\n%s", diff)
	}
	if Titles(nil) != nil {
		t.Error("expected no titles for a nil feed")
	}
}
