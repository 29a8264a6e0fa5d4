// Package model defines the domain types used across the application.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Collection names one of the three item collections an excluded item can come from.
type Collection string

// Supported collections.
const (
	Library         Collection = "library"
	Watchlist       Collection = "watchlist"
	Recommendations Collection = "recommendations"
)

// Collections lists the item collections in exclusion precedence order.
var Collections = []Collection{Library, Watchlist, Recommendations}

// ParseCollection maps user input (including short aliases) to a Collection.
func ParseCollection(s string) (Collection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "library", "lib":
		return Library, nil
	case "watchlist", "watch", "wl":
		return Watchlist, nil
	case "recommendations", "recs", "rec", "picks":
		return Recommendations, nil
	}
	return "", fmt.Errorf("unknown collection %q, use: lib, watch, recs", s)
}

// Field returns the sync field that holds this collection.
func (c Collection) Field() Field {
	return Field(c)
}

// Label returns a human-readable collection name.
func (c Collection) Label() string {
	switch c {
	case Library:
		return "Library"
	case Watchlist:
		return "Watchlist"
	case Recommendations:
		return "Recommendations"
	}
	return string(c)
}

// AlwaysTag marks an instruction that also applies to single-title info generation.
const AlwaysTag = "[ALWAYS]"

// Field is one independently tracked sync unit.
type Field string

// Sync fields.
const (
	FieldLibrary             Field = "library"
	FieldWatchlist           Field = "watchlist"
	FieldRecommendations     Field = "recommendations"
	FieldInstructions        Field = "instructions"
	FieldExcludedItems       Field = "excludedItems"
	FieldPerformanceSettings Field = "performanceSettings"
)

// AllFields lists every sync field in a fixed order.
var AllFields = []Field{
	FieldLibrary,
	FieldWatchlist,
	FieldRecommendations,
	FieldInstructions,
	FieldExcludedItems,
	FieldPerformanceSettings,
}

// IsSequence reports whether the field value must be a JSON array.
func (f Field) IsSequence() bool {
	return f != FieldPerformanceSettings
}

// Item is a library, watchlist or recommendation entry.
type Item struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Genres       []string `json:"genres"`
	Description  string   `json:"description"`
	Year         string   `json:"year,omitempty"`
	AverageScore *float64 `json:"averageScore,omitempty"`
	CoverImage   string   `json:"coverImage,omitempty"`
	BannerImage  string   `json:"bannerImage,omitempty"`
	Note         string   `json:"note,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Model        string   `json:"model,omitempty"`
	Provider     string   `json:"provider,omitempty"`
}

// NewItem returns an item with only a title set.
func NewItem(title string) Item {
	return Item{Title: strings.TrimSpace(title), Genres: []string{}}
}

// Key returns the normalized title used for uniqueness checks.
func (i Item) Key() string {
	return NormalizeTitle(i.Title)
}

// HasInfo reports whether the item carries generated metadata.
func (i Item) HasInfo() bool {
	return len(i.Genres) > 0
}

// Clone returns a deep copy of the item.
func (i Item) Clone() Item {
	c := i
	if i.Genres != nil {
		c.Genres = append([]string(nil), i.Genres...)
	}
	if i.AverageScore != nil {
		v := *i.AverageScore
		c.AverageScore = &v
	}
	return c
}

// UnmarshalJSON accepts either a full record or a bare title string.
// Numeric ids, years and scores are accepted and normalized.
func (i *Item) UnmarshalJSON(data []byte) error {
	var title string
	if err := json.Unmarshal(data, &title); err == nil {
		*i = NewItem(title)
		return nil
	}

	var raw struct {
		ID           json.RawMessage `json:"id"`
		Title        json.RawMessage `json:"title"`
		Genres       json.RawMessage `json:"genres"`
		Description  string          `json:"description"`
		Year         json.RawMessage `json:"year"`
		AverageScore json.RawMessage `json:"averageScore"`
		CoverImage   string          `json:"coverImage"`
		BannerImage  string          `json:"bannerImage"`
		Note         string          `json:"note"`
		Reason       string          `json:"reason"`
		Model        string          `json:"model"`
		Provider     string          `json:"provider"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode item: %w", err)
	}

	*i = Item{
		ID:          scalarString(raw.ID),
		Title:       strings.TrimSpace(scalarString(raw.Title)),
		Genres:      stringList(raw.Genres),
		Description: raw.Description,
		Year:        scalarString(raw.Year),
		CoverImage:  raw.CoverImage,
		BannerImage: raw.BannerImage,
		Note:        raw.Note,
		Reason:      raw.Reason,
		Model:       raw.Model,
		Provider:    raw.Provider,
	}
	if s := scalarString(raw.AverageScore); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			i.AverageScore = &v
		}
	}
	return nil
}

// ExcludedItem is an item hidden from every collection, remembering where it came from.
type ExcludedItem struct {
	Item
	Source         Collection `json:"source"`
	Date           time.Time  `json:"date,omitzero"`
	OriginalReason string     `json:"originalReason,omitempty"`
}

// Restored returns the item as it was before exclusion.
func (e ExcludedItem) Restored() Item {
	it := e.Item.Clone()
	it.Reason = e.OriginalReason
	return it
}

// UnmarshalJSON decodes the embedded item and the exclusion metadata.
func (e *ExcludedItem) UnmarshalJSON(data []byte) error {
	var it Item
	if err := it.UnmarshalJSON(data); err != nil {
		return err
	}
	var meta struct {
		Source         string `json:"source"`
		Date           string `json:"date"`
		OriginalReason string `json:"originalReason"`
	}
	// Bare strings carry no metadata.
	_ = json.Unmarshal(data, &meta)

	src := Collection(meta.Source)
	switch src {
	case Library, Watchlist, Recommendations:
	default:
		src = Recommendations
	}
	*e = ExcludedItem{
		Item:           it,
		Source:         src,
		Date:           ParseTime(meta.Date),
		OriginalReason: meta.OriginalReason,
	}
	return nil
}

// PerformanceSettings holds the user's presentation toggles.
type PerformanceSettings struct {
	EnableBlur     bool `json:"enableBlur"`
	EnhancedMotion bool `json:"enhancedMotion"`
}

// State is the full set of synchronized user data.
type State struct {
	Library             []Item              `json:"library"`
	Watchlist           []Item              `json:"watchlist"`
	Recommendations     []Item              `json:"recommendations"`
	Instructions        []string            `json:"instructions"`
	ExcludedItems       []ExcludedItem      `json:"excludedItems"`
	PerformanceSettings PerformanceSettings `json:"performanceSettings"`
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	c := State{
		Library:             cloneItems(s.Library),
		Watchlist:           cloneItems(s.Watchlist),
		Recommendations:     cloneItems(s.Recommendations),
		Instructions:        append([]string{}, s.Instructions...),
		ExcludedItems:       make([]ExcludedItem, len(s.ExcludedItems)),
		PerformanceSettings: s.PerformanceSettings,
	}
	for i, ex := range s.ExcludedItems {
		ex.Item = ex.Item.Clone()
		c.ExcludedItems[i] = ex
	}
	return c
}

// SetItems replaces the item slice for a collection.
func (s *State) SetItems(c Collection, items []Item) {
	switch c {
	case Library:
		s.Library = items
	case Watchlist:
		s.Watchlist = items
	case Recommendations:
		s.Recommendations = items
	}
}

// Items returns the item slice for a collection.
func (s *State) Items(c Collection) []Item {
	switch c {
	case Library:
		return s.Library
	case Watchlist:
		return s.Watchlist
	case Recommendations:
		return s.Recommendations
	}
	return nil
}

// NormalizeTitle returns the case-insensitive, trimmed natural key of a title.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func stringList(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 || string(raw) == "null" {
		return out
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, el := range list {
			if s := strings.TrimSpace(scalarString(el)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		for _, s := range strings.Split(joined, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
