// Package transfer reads and writes the import/export file.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"animepicker/internal/collection"
	"animepicker/internal/model"
)

// ErrUnknownFormat is returned for documents that are neither an export, a partial export
// nor a bare list.
var ErrUnknownFormat = errors.New("unrecognized import format")

// FileName returns the conventional export file name for the given day.
func FileName(now time.Time) string {
	return "anime_data_export_" + now.UTC().Format("2006-01-02") + ".json"
}

// Export renders st as an indented export document.
func Export(st model.State, now time.Time) ([]byte, error) {
	st = st.Clone()
	doc := model.ExportDocument{
		Version:             model.ExportVersion,
		Timestamp:           model.FormatTime(now),
		Library:             st.Library,
		Watchlist:           st.Watchlist,
		Recommendations:     st.Recommendations,
		Instructions:        st.Instructions,
		ExcludedItems:       st.ExcludedItems,
		PerformanceSettings: st.PerformanceSettings,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return data, nil
}

// Payload is a decoded import document. Absent keys are nil.
type Payload struct {
	Library         []model.Item
	Watchlist       []model.Item
	Recommendations []model.Item
	Instructions    []string
	ExcludedItems   []model.ExcludedItem
	// Settings holds the raw settings object so that it can be overlaid on current values.
	Settings json.RawMessage
}

// Decode accepts an export document, a partial document with any subset of its keys, or a
// bare array treated as a library list. Documents from before the library existed used
// "watchlist" for the library and "wishlist" for the watchlist; they are recognized by a
// missing "library" key.
func Decode(data []byte) (Payload, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Payload{}, ErrUnknownFormat
	}

	if data[0] == '[' {
		items, err := decodeList[model.Item](data)
		if err != nil {
			return Payload{}, fmt.Errorf("decode library list: %w", err)
		}
		return Payload{Library: items}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Payload{}, fmt.Errorf("decode import: %w", err)
	}

	known := false
	for _, k := range []string{"library", "watchlist", "wishlist", "recommendations", "instructions", "excludedItems", "performanceSettings"} {
		if _, ok := raw[k]; ok {
			known = true
			break
		}
	}
	if !known {
		return Payload{}, ErrUnknownFormat
	}

	libKey, watchKey := "library", "watchlist"
	if _, ok := raw["library"]; !ok {
		if _, legacy := raw["wishlist"]; legacy {
			libKey, watchKey = "watchlist", "wishlist"
		}
	}

	var p Payload
	var err error
	if p.Library, err = decodeKey[model.Item](raw, libKey); err != nil {
		return Payload{}, err
	}
	if p.Watchlist, err = decodeKey[model.Item](raw, watchKey); err != nil {
		return Payload{}, err
	}
	if p.Recommendations, err = decodeKey[model.Item](raw, "recommendations"); err != nil {
		return Payload{}, err
	}
	if p.Instructions, err = decodeKey[string](raw, "instructions"); err != nil {
		return Payload{}, err
	}
	if p.ExcludedItems, err = decodeKey[model.ExcludedItem](raw, "excludedItems"); err != nil {
		return Payload{}, err
	}
	if v, ok := raw["performanceSettings"]; ok && bytes.HasPrefix(bytes.TrimSpace(v), []byte("{")) {
		p.Settings = v
	}
	return p, nil
}

func decodeKey[T any](raw map[string]json.RawMessage, key string) ([]T, error) {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return nil, nil
	}
	out, err := decodeList[T](v)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

// decodeList decodes a JSON array, dropping elements that do not decode as T.
func decodeList[T any](data []byte) ([]T, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(elems))
	for _, el := range elems {
		var v T
		if err := json.Unmarshal(el, &v); err == nil {
			out = append(out, v)
		}
	}
	return out, nil
}

// Report summarizes an applied import.
type Report struct {
	Library         collection.ImportReport
	Watchlist       collection.ImportReport
	Recommendations collection.ImportReport
	Instructions    int
	Excluded        int
	Settings        bool
}

// Added returns the number of items added across the three collections.
func (r Report) Added() int {
	return r.Library.Added + r.Watchlist.Added + r.Recommendations.Added
}

// Updated returns the number of items updated across the three collections.
func (r Report) Updated() int {
	return r.Library.Updated + r.Watchlist.Updated + r.Recommendations.Updated
}

// Apply merges p into s. Excluded entries are merged first so that imported items with an
// excluded title are skipped.
func Apply(ctx context.Context, s *collection.Store, p Payload) (Report, error) {
	var rep Report
	var err error

	if len(p.ExcludedItems) > 0 {
		if rep.Excluded, err = s.MergeExcluded(ctx, p.ExcludedItems); err != nil {
			return rep, fmt.Errorf("merge excluded: %w", err)
		}
	}

	targets := []struct {
		c     model.Collection
		items []model.Item
		rep   *collection.ImportReport
	}{
		{model.Library, p.Library, &rep.Library},
		{model.Watchlist, p.Watchlist, &rep.Watchlist},
		{model.Recommendations, p.Recommendations, &rep.Recommendations},
	}
	for _, t := range targets {
		if len(t.items) == 0 {
			continue
		}
		if *t.rep, err = s.MergeImported(ctx, t.c, t.items); err != nil {
			return rep, fmt.Errorf("merge %s: %w", t.c, err)
		}
	}

	if len(p.Instructions) > 0 {
		if rep.Instructions, err = s.MergeInstructions(ctx, p.Instructions); err != nil {
			return rep, fmt.Errorf("merge instructions: %w", err)
		}
	}

	if len(p.Settings) > 0 {
		cur := s.Settings()
		next := cur
		if err := json.Unmarshal(p.Settings, &next); err != nil {
			return rep, fmt.Errorf("decode performance settings: %w", err)
		}
		if next != cur {
			if err := s.SetPerformanceSettings(ctx, next); err != nil {
				return rep, fmt.Errorf("set performance settings: %w", err)
			}
			rep.Settings = true
		}
	}
	return rep, nil
}
