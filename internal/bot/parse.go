package bot

import (
	"fmt"
	"strconv"
	"strings"

	"animepicker/internal/collection"
	"animepicker/internal/model"
)

// maxRecommend bounds the count accepted by /recommend.
const maxRecommend = 20

// ParseCollectionArgs splits "<collection> <title...>" into its parts.
func ParseCollectionArgs(args string) (model.Collection, string, error) {
	name, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	if name == "" {
		return "", "", fmt.Errorf("collection is required")
	}
	c, err := model.ParseCollection(name)
	if err != nil {
		return "", "", err
	}
	title := strings.TrimSpace(rest)
	if title == "" {
		return "", "", fmt.Errorf("title is required")
	}
	return c, title, nil
}

// ParseMoveArgs parses "<from> <to> <title...>".
func ParseMoveArgs(args string) (from, to model.Collection, title string, err error) {
	parts := strings.Fields(args)
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("usage: /move <from> <to> <title>")
	}
	if from, err = model.ParseCollection(parts[0]); err != nil {
		return "", "", "", err
	}
	if to, err = model.ParseCollection(parts[1]); err != nil {
		return "", "", "", err
	}
	if from == to {
		return "", "", "", fmt.Errorf("source and destination are the same")
	}
	return from, to, strings.Join(parts[2:], " "), nil
}

// SplitPipe splits "left | right" on the first pipe. right is empty when there is no pipe.
func SplitPipe(args string) (left, right string) {
	left, right, _ = strings.Cut(args, "|")
	return strings.TrimSpace(left), strings.TrimSpace(right)
}

// ParsePosition parses a one-based list position and returns it zero-based.
func ParsePosition(args string, n int) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("a number is required")
	}
	pos, err := strconv.Atoi(strings.Fields(s)[0])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if pos < 1 || pos > n {
		if n == 0 {
			return 0, fmt.Errorf("the list is empty")
		}
		return 0, fmt.Errorf("number must be between 1 and %d", n)
	}
	return pos - 1, nil
}

// ParseCount parses the optional count of /recommend.
func ParseCount(args string, def int) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxRecommend {
		return 0, fmt.Errorf("count must be between 1 and %d", maxRecommend)
	}
	return n, nil
}

// ParseClearMode parses the argument of /clearrecs. The default clears only
// recommendations already added to the library or watchlist.
func ParseClearMode(args string) (collection.ClearMode, error) {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "", "added":
		return collection.ClearAdded, nil
	case "all":
		return collection.ClearAll, nil
	}
	return "", fmt.Errorf("unknown mode %q, use: added, all", args)
}

// ParseFeedArgs parses "<url> [collection]". The collection defaults to the watchlist.
func ParseFeedArgs(args string) (string, model.Collection, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", "", fmt.Errorf("usage: /importfeed <url> [lib|watch|recs]")
	}
	url := parts[0]
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", "", fmt.Errorf("URL must start with http:// or https://")
	}
	c := model.Watchlist
	if len(parts) > 1 {
		var err error
		if c, err = model.ParseCollection(parts[1]); err != nil {
			return "", "", err
		}
	}
	return url, c, nil
}

// resolveExcluded finds an excluded entry by one-based position or by title.
func resolveExcluded(list []model.ExcludedItem, arg string) (model.ExcludedItem, bool) {
	arg = strings.TrimSpace(arg)
	if n, err := strconv.Atoi(arg); err == nil {
		if n >= 1 && n <= len(list) {
			return list[n-1], true
		}
		return model.ExcludedItem{}, false
	}
	key := model.NormalizeTitle(arg)
	for _, ex := range list {
		if ex.Key() == key {
			return ex, true
		}
	}
	return model.ExcludedItem{}, false
}
