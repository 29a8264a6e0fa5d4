// Package fetcher downloads RSS list feeds and turns their entries into titles.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"animepicker/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses RSS feeds.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// Fetch downloads and parses an RSS feed from the given URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "AnimePicker/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// Format and progress suffixes list sites append to entry titles,
// e.g. "Mushishi - TV", "Frieren (TV)", "Dororo - Episode 12", "Monster: 3/74".
var (
	bracketSuffix = regexp.MustCompile(`(?i)\s*[\(\[](tv|ova|ona|movie|special|tv short|music)[\)\]]\s*$`)
	dashSuffix    = regexp.MustCompile(`(?i)\s+[-–|]\s+(tv|ova|ona|movie|special|tv short|music|(episode|ep\.?)\s*\d+.*|watching|completed|plan to watch|on-hold|dropped)\s*$`)
	progress      = regexp.MustCompile(`\s*[-:]\s*\d+\s*/\s*(\d+|\?)\s*$`)
)

// CleanTitle strips list-site decorations from a feed entry title.
func CleanTitle(s string) string {
	s = strings.TrimSpace(s)
	for {
		prev := s
		s = bracketSuffix.ReplaceAllString(s, "")
		s = dashSuffix.ReplaceAllString(s, "")
		s = progress.ReplaceAllString(s, "")
		s = strings.TrimSpace(s)
		if s == prev {
			return s
		}
	}
}

// Titles returns the cleaned entry titles of feed in feed order, dropping empty
// titles and case-insensitive duplicates.
func Titles(feed *gofeed.Feed) []string {
	if feed == nil {
		return nil
	}
	seen := make(map[string]bool, len(feed.Items))
	var out []string
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		title := CleanTitle(item.Title)
		key := model.NormalizeTitle(title)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, title)
	}
	return out
}

// Items converts feed entries into bare items ready for import.
func Items(feed *gofeed.Feed) []model.Item {
	titles := Titles(feed)
	out := make([]model.Item, 0, len(titles))
	for _, t := range titles {
		out = append(out, model.NewItem(t))
	}
	return out
}
