package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"animepicker/internal/cloudsync"
	"animepicker/internal/model"
	"animepicker/internal/search"
	"animepicker/internal/transfer"
)

// visibleTags is how many genre tags a list line shows.
const visibleTags = 2

var demographics = map[string]bool{
	"shounen":    true,
	"shonen":     true,
	"seinen":     true,
	"shoujo":     true,
	"shojo":      true,
	"josei":      true,
	"kids":       true,
	"kodomomuke": true,
}

// FormatTags orders demographic tags first and returns at most max of them together
// with how many were left out.
func FormatTags(tags []string, max int) ([]string, int) {
	var demo, other []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if demographics[strings.ToLower(t)] {
			demo = append(demo, t)
		} else {
			other = append(other, t)
		}
	}
	all := append(demo, other...)
	if max < 0 || len(all) <= max {
		return all, 0
	}
	return all[:max], len(all) - max
}

func tagSuffix(tags []string) string {
	shown, rest := FormatTags(tags, visibleTags)
	if len(shown) == 0 {
		return ""
	}
	s := " [" + strings.Join(shown, ", ")
	if rest > 0 {
		s += fmt.Sprintf(" +%d", rest)
	}
	return s + "]"
}

func itemLine(it model.Item) string {
	line := it.Title
	if it.Year != "" {
		line += " (" + it.Year + ")"
	}
	return line + tagSuffix(it.Genres)
}

// FormatItem formats the full details of an item.
func FormatItem(it model.Item) string {
	var b strings.Builder
	b.WriteString(it.Title)
	if it.Year != "" {
		fmt.Fprintf(&b, " (%s)", it.Year)
	}
	if it.AverageScore != nil {
		fmt.Fprintf(&b, "  score %s", strconv.FormatFloat(*it.AverageScore, 'f', -1, 64))
	}
	b.WriteString("\n")
	if len(it.Genres) > 0 {
		fmt.Fprintf(&b, "Genres: %s\n", strings.Join(it.Genres, ", "))
	}
	if it.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", it.Description)
	}
	if it.Reason != "" {
		fmt.Fprintf(&b, "\nWhy: %s\n", it.Reason)
	}
	if it.Note != "" {
		fmt.Fprintf(&b, "\nNote: %s\n", it.Note)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatList formats a collection as a numbered list.
func FormatList(c model.Collection, items []model.Item) string {
	if len(items) == 0 {
		return fmt.Sprintf("%s is empty.", c.Label())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d):\n", c.Label(), len(items))
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, itemLine(it))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatExcluded formats the excluded list with the collection each entry came from.
func FormatExcluded(list []model.ExcludedItem) string {
	if len(list) == 0 {
		return "No excluded titles."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Excluded (%d):\n", len(list))
	for i, ex := range list {
		fmt.Fprintf(&b, "%d. %s  [from %s]", i+1, ex.Title, strings.ToLower(ex.Source.Label()))
		if ex.Reason != "" {
			fmt.Fprintf(&b, "  %s", ex.Reason)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n/restore <n> puts an entry back, /clearexcluded <n> forgets it.")
	return b.String()
}

// FormatHits formats search results.
func FormatHits(query string, hits []search.Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("Nothing matches %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d:\n", len(hits))
	for _, h := range hits {
		fmt.Fprintf(&b, "- %s  (%s)\n", itemLine(h.Item), strings.ToLower(h.Collection.Label()))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatInstructions formats the generator instructions as a numbered list.
func FormatInstructions(list []string) string {
	if len(list) == 0 {
		return "No instructions. Use /addinstruction <text> or /defaults."
	}
	var b strings.Builder
	b.WriteString("Instructions:\n")
	for i, in := range list {
		fmt.Fprintf(&b, "%d. %s\n", i+1, in)
	}
	fmt.Fprintf(&b, "\nInstructions starting with %s also apply to /info.", model.AlwaysTag)
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// FormatSettings formats the presentation toggles.
func FormatSettings(ps model.PerformanceSettings) string {
	return fmt.Sprintf("Settings:\nblur: %s\nmotion: %s\n\nUse /settings blur or /settings motion to toggle.",
		onOff(ps.EnableBlur), onOff(ps.EnhancedMotion))
}

func fieldNames(fields []model.Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// FormatSyncResult summarizes a finished pass.
func FormatSyncResult(res cloudsync.Result) string {
	if res.Created {
		return "Cloud sync set up: your data was uploaded."
	}
	var b strings.Builder
	b.WriteString("Sync complete.")
	if len(res.FromRemote) > 0 {
		fmt.Fprintf(&b, "\nUpdated from cloud: %s", fieldNames(res.FromRemote))
	}
	if len(res.FromLocal) > 0 {
		fmt.Fprintf(&b, "\nUploaded: %s", fieldNames(res.FromLocal))
	}
	if len(res.Rejected) > 0 {
		fmt.Fprintf(&b, "\nIgnored invalid cloud data: %s", fieldNames(res.Rejected))
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(&b, "\nChanged during sync, will retry: %s", fieldNames(res.Skipped))
	}
	return b.String()
}

// FormatStatus formats the connection state.
func FormatStatus(connected bool, last time.Time) string {
	if !connected {
		return "Cloud sync is off."
	}
	if last.IsZero() {
		return "Cloud sync is on. Not synced yet."
	}
	return "Cloud sync is on. Last sync: " + last.UTC().Format("2006-01-02 15:04 UTC")
}

// FormatImportReport summarizes an applied import.
func FormatImportReport(rep transfer.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Import complete: %d added, %d updated.", rep.Added(), rep.Updated())
	lines := []struct {
		c   model.Collection
		rep int
	}{
		{model.Library, rep.Library.Added},
		{model.Watchlist, rep.Watchlist.Added},
		{model.Recommendations, rep.Recommendations.Added},
	}
	for _, l := range lines {
		if l.rep > 0 {
			fmt.Fprintf(&b, "\n%s: +%d", l.c.Label(), l.rep)
		}
	}
	if rep.Excluded > 0 {
		fmt.Fprintf(&b, "\nExcluded: %d", rep.Excluded)
	}
	if rep.Instructions > 0 {
		fmt.Fprintf(&b, "\nInstructions: +%d", rep.Instructions)
	}
	if rep.Settings {
		b.WriteString("\nSettings replaced.")
	}
	return b.String()
}

// FormatRecommendations lists newly generated recommendations.
func FormatRecommendations(items []model.Item) string {
	if len(items) == 0 {
		return "No new recommendations this time. Try again or adjust /instructions."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "New recommendations (%d):\n", len(items))
	for i, it := range items {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, itemLine(it))
		if it.Reason != "" {
			fmt.Fprintf(&b, "   %s\n", it.Reason)
		}
	}
	b.WriteString("\nUse /add <title> or /watch <title> to keep one.")
	return b.String()
}
