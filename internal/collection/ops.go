package collection

import (
	"context"
	"fmt"
	"strings"

	"animepicker/internal/model"
)

// AddResult describes the outcome of Add.
type AddResult struct {
	Item  model.Item
	Added bool
	// In is where the title already lives when Added is false.
	In model.Collection
}

// MoveResult describes the outcome of Move.
type MoveResult struct {
	Item model.Item
	From model.Collection
	To   model.Collection
}

// ImportReport counts the outcome of MergeImported.
type ImportReport struct {
	Added   int
	Updated int
	Skipped int
}

// Add appends item to collection c unless its title is already present there or in
// another collection. The stored item, including an assigned id, is returned so callers
// can offer undo.
func (s *Store) Add(ctx context.Context, c model.Collection, item model.Item) (AddResult, error) {
	item = item.Clone()
	item.Title = strings.TrimSpace(item.Title)
	if item.Title == "" {
		return AddResult{}, ErrEmptyTitle
	}
	if item.Genres == nil {
		item.Genres = []string{}
	}

	var res AddResult
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		if existing, ok := find(st.Items(c), "", item.Title); ok {
			res = AddResult{Item: existing, In: c}
			return nil, nil
		}
		for _, other := range model.Collections {
			if other == c {
				continue
			}
			if existing, ok := find(st.Items(other), "", item.Title); ok {
				res = AddResult{Item: existing, In: other}
				return nil, nil
			}
		}
		if item.ID == "" {
			item.ID = s.newID()
		}
		st.SetItems(c, append(st.Items(c), item))
		res = AddResult{Item: item.Clone(), Added: true}
		return []model.Field{c.Field()}, nil
	})
	return res, err
}

// Remove deletes the item matching id, or title when id is empty.
// The removed item is returned so callers can offer undo; ok is false when nothing matched.
func (s *Store) Remove(ctx context.Context, c model.Collection, id, title string) (model.Item, bool, error) {
	var removed model.Item
	var ok bool
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		items := st.Items(c)
		idx := index(items, id, title)
		if idx < 0 {
			return nil, nil
		}
		removed, ok = items[idx], true
		st.SetItems(c, append(items[:idx:idx], items[idx+1:]...))
		return []model.Field{c.Field()}, nil
	})
	return removed, ok, err
}

// Move transfers an item between collections, keeping its id and metadata.
// When the destination already holds the title nothing changes and ErrDuplicate is returned.
func (s *Store) Move(ctx context.Context, from, to model.Collection, id, title string) (MoveResult, error) {
	if from == to {
		return MoveResult{}, ErrSameSource
	}
	var res MoveResult
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		src := st.Items(from)
		idx := index(src, id, title)
		if idx < 0 {
			return nil, ErrNotFound
		}
		it := src[idx]
		if _, dup := find(st.Items(to), "", it.Title); dup {
			return nil, fmt.Errorf("move %q to %s: %w", it.Title, to, ErrDuplicate)
		}
		st.SetItems(from, append(src[:idx:idx], src[idx+1:]...))
		st.SetItems(to, append(st.Items(to), it))
		res = MoveResult{Item: it.Clone(), From: from, To: to}
		return []model.Field{from.Field(), to.Field()}, nil
	})
	return res, err
}

// UpdateItem replaces the generated metadata of an item, keeping its id and note.
// The title is replaced only when the new one does not collide with another item.
func (s *Store) UpdateItem(ctx context.Context, c model.Collection, id string, info model.Item) (model.Item, error) {
	var updated model.Item
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		items := st.Items(c)
		idx := index(items, id, "")
		if idx < 0 {
			return nil, ErrNotFound
		}
		cur := items[idx]
		next := info.Clone()
		next.ID = cur.ID
		next.Note = cur.Note
		if next.Genres == nil {
			next.Genres = []string{}
		}
		next.Title = strings.TrimSpace(next.Title)
		if next.Title == "" || next.Key() == cur.Key() {
			next.Title = cur.Title
		} else if j := index(items, "", next.Title); j >= 0 && j != idx {
			next.Title = cur.Title
		}
		items[idx] = next
		updated = next.Clone()
		return []model.Field{c.Field()}, nil
	})
	return updated, err
}

// SetNote sets the free-text note of an item.
func (s *Store) SetNote(ctx context.Context, c model.Collection, id, title, note string) (model.Item, error) {
	var updated model.Item
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		items := st.Items(c)
		idx := index(items, id, title)
		if idx < 0 {
			return nil, ErrNotFound
		}
		updated = items[idx].Clone()
		note = strings.TrimSpace(note)
		if items[idx].Note == note {
			return nil, nil
		}
		items[idx].Note = note
		updated.Note = note
		return []model.Field{c.Field()}, nil
	})
	return updated, err
}

// Exclude hides a title from every collection. The source collection is the first of
// library, watchlist and recommendations holding the title, falling back to
// recommendations. Full metadata is captured so Restore can put the item back.
// Excluding an already excluded title is a no-op reported by ok=false.
func (s *Store) Exclude(ctx context.Context, item model.Item, reason string) (ex model.ExcludedItem, ok bool, err error) {
	key := item.Key()
	if key == "" {
		return model.ExcludedItem{}, false, ErrEmptyTitle
	}
	err = s.update(ctx, func(st *model.State) ([]model.Field, error) {
		for _, e := range st.ExcludedItems {
			if e.Key() == key {
				ex = e
				return nil, nil
			}
		}

		source := model.Recommendations
		captured := item.Clone()
		for _, c := range model.Collections {
			if found, hit := find(st.Items(c), "", item.Title); hit {
				source = c
				captured = mergeMetadata(found, item)
				break
			}
		}
		if captured.ID == "" {
			captured.ID = s.newID()
		}
		if captured.Genres == nil {
			captured.Genres = []string{}
		}
		captured.Title = strings.TrimSpace(captured.Title)

		ex = model.ExcludedItem{
			Item:           captured,
			Source:         source,
			Date:           s.now().UTC(),
			OriginalReason: captured.Reason,
		}
		ex.Reason = strings.TrimSpace(reason)
		st.ExcludedItems = append(st.ExcludedItems, ex)
		ok = true

		changed := []model.Field{model.FieldExcludedItems}
		for _, c := range model.Collections {
			items := st.Items(c)
			if idx := index(items, "", item.Title); idx >= 0 {
				st.SetItems(c, append(items[:idx:idx], items[idx+1:]...))
				changed = append(changed, c.Field())
			}
		}
		return changed, nil
	})
	return ex, ok, err
}

// Restore removes an excluded entry and re-adds it, with its original metadata, to its
// source collection unless that collection already holds the title.
func (s *Store) Restore(ctx context.Context, id string) (ex model.ExcludedItem, readded bool, err error) {
	err = s.update(ctx, func(st *model.State) ([]model.Field, error) {
		idx := excludedIndex(st.ExcludedItems, id)
		if idx < 0 {
			return nil, ErrNotFound
		}
		ex = st.ExcludedItems[idx]
		st.ExcludedItems = append(st.ExcludedItems[:idx:idx], st.ExcludedItems[idx+1:]...)

		changed := []model.Field{model.FieldExcludedItems}
		if _, dup := find(st.Items(ex.Source), "", ex.Title); !dup {
			st.SetItems(ex.Source, append(st.Items(ex.Source), ex.Restored()))
			readded = true
			changed = append(changed, ex.Source.Field())
		}
		return changed, nil
	})
	return ex, readded, err
}

// RestoreAll restores every excluded item and returns how many were re-added.
func (s *Store) RestoreAll(ctx context.Context) (int, error) {
	var n int
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		if len(st.ExcludedItems) == 0 {
			return nil, nil
		}
		changed := []model.Field{model.FieldExcludedItems}
		touched := make(map[model.Collection]bool)
		for _, ex := range st.ExcludedItems {
			if _, dup := find(st.Items(ex.Source), "", ex.Title); dup {
				continue
			}
			st.SetItems(ex.Source, append(st.Items(ex.Source), ex.Restored()))
			touched[ex.Source] = true
			n++
		}
		st.ExcludedItems = []model.ExcludedItem{}
		for _, c := range model.Collections {
			if touched[c] {
				changed = append(changed, c.Field())
			}
		}
		return changed, nil
	})
	return n, err
}

// ClearExcluded permanently drops one excluded entry.
func (s *Store) ClearExcluded(ctx context.Context, id string) (model.ExcludedItem, error) {
	var ex model.ExcludedItem
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		idx := excludedIndex(st.ExcludedItems, id)
		if idx < 0 {
			return nil, ErrNotFound
		}
		ex = st.ExcludedItems[idx]
		st.ExcludedItems = append(st.ExcludedItems[:idx:idx], st.ExcludedItems[idx+1:]...)
		return []model.Field{model.FieldExcludedItems}, nil
	})
	return ex, err
}

// ClearAllExcluded permanently drops every excluded entry and returns how many there were.
func (s *Store) ClearAllExcluded(ctx context.Context) (int, error) {
	var n int
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		n = len(st.ExcludedItems)
		if n == 0 {
			return nil, nil
		}
		st.ExcludedItems = []model.ExcludedItem{}
		return []model.Field{model.FieldExcludedItems}, nil
	})
	return n, err
}

// UpdateExcluded changes the reason recorded for an excluded entry.
func (s *Store) UpdateExcluded(ctx context.Context, id, reason string) (model.ExcludedItem, error) {
	var ex model.ExcludedItem
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		idx := excludedIndex(st.ExcludedItems, id)
		if idx < 0 {
			return nil, ErrNotFound
		}
		st.ExcludedItems[idx].Reason = strings.TrimSpace(reason)
		ex = st.ExcludedItems[idx]
		return []model.Field{model.FieldExcludedItems}, nil
	})
	return ex, err
}

// SetExcluded replaces the excluded list.
func (s *Store) SetExcluded(ctx context.Context, items []model.ExcludedItem) error {
	return s.update(ctx, func(st *model.State) ([]model.Field, error) {
		out := make([]model.ExcludedItem, 0, len(items))
		seen := make(map[string]bool, len(items))
		for _, ex := range items {
			if ex.Key() == "" || seen[ex.Key()] {
				continue
			}
			seen[ex.Key()] = true
			if ex.ID == "" {
				ex.ID = s.newID()
			}
			out = append(out, ex)
		}
		st.ExcludedItems = out
		return []model.Field{model.FieldExcludedItems}, nil
	})
}

// MergeExcluded adds incoming excluded entries. An incoming entry replaces an existing one
// with the same title, keeping its position. It returns how many entries were added or replaced.
func (s *Store) MergeExcluded(ctx context.Context, incoming []model.ExcludedItem) (int, error) {
	var n int
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		n = 0
		for _, ex := range incoming {
			ex.Item = ex.Item.Clone()
			ex.Title = strings.TrimSpace(ex.Title)
			if ex.Key() == "" {
				continue
			}
			if ex.Genres == nil {
				ex.Genres = []string{}
			}
			idx := -1
			for i, cur := range st.ExcludedItems {
				if cur.Key() == ex.Key() {
					idx = i
					break
				}
			}
			if idx >= 0 {
				if ex.ID == "" {
					ex.ID = st.ExcludedItems[idx].ID
				}
				st.ExcludedItems[idx] = ex
			} else {
				if ex.ID == "" {
					ex.ID = s.newID()
				}
				st.ExcludedItems = append(st.ExcludedItems, ex)
			}
			n++
		}
		if n == 0 {
			return nil, nil
		}
		return []model.Field{model.FieldExcludedItems}, nil
	})
	return n, err
}

// MergeImported merges incoming items into collection c. An existing entry without info
// is replaced by an incoming one that has info; unknown titles are appended. Titles that
// are excluded or live in another collection are skipped.
func (s *Store) MergeImported(ctx context.Context, c model.Collection, incoming []model.Item) (ImportReport, error) {
	var rep ImportReport
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		rep = ImportReport{}
		excluded := make(map[string]bool, len(st.ExcludedItems))
		for _, ex := range st.ExcludedItems {
			excluded[ex.Key()] = true
		}

		items := st.Items(c)
	next:
		for _, in := range incoming {
			in = in.Clone()
			in.Title = strings.TrimSpace(in.Title)
			key := in.Key()
			if key == "" || excluded[key] {
				rep.Skipped++
				continue
			}
			for _, other := range model.Collections {
				if other == c {
					continue
				}
				if _, hit := find(st.Items(other), "", in.Title); hit {
					rep.Skipped++
					continue next
				}
			}
			if in.Genres == nil {
				in.Genres = []string{}
			}

			if idx := index(items, "", in.Title); idx >= 0 {
				if !items[idx].HasInfo() && in.HasInfo() {
					if in.ID == "" {
						in.ID = items[idx].ID
					}
					items[idx] = in
					rep.Updated++
				}
				continue
			}
			if in.ID == "" {
				in.ID = s.newID()
			}
			items = append(items, in)
			rep.Added++
		}
		if rep.Added == 0 && rep.Updated == 0 {
			return nil, nil
		}
		st.SetItems(c, items)
		return []model.Field{c.Field()}, nil
	})
	return rep, err
}

// ClearMode selects which recommendations ClearRecommendations removes.
type ClearMode string

// Clear modes.
const (
	ClearAll   ClearMode = "all"
	ClearAdded ClearMode = "added"
)

// ClearRecommendations removes all recommendations, or only those whose titles are
// already in the library or watchlist, and returns how many were removed.
func (s *Store) ClearRecommendations(ctx context.Context, mode ClearMode) (int, error) {
	var n int
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		n = 0
		switch mode {
		case ClearAll:
			n = len(st.Recommendations)
			st.Recommendations = []model.Item{}
		case ClearAdded:
			kept := make([]model.Item, 0, len(st.Recommendations))
			for _, it := range st.Recommendations {
				_, inLib := find(st.Library, "", it.Title)
				_, inWatch := find(st.Watchlist, "", it.Title)
				if inLib || inWatch {
					n++
					continue
				}
				kept = append(kept, it)
			}
			st.Recommendations = kept
		default:
			return nil, fmt.Errorf("unknown clear mode %q", mode)
		}
		if n == 0 {
			return nil, nil
		}
		return []model.Field{model.FieldRecommendations}, nil
	})
	return n, err
}

// ClearAll empties the three item collections and the excluded list.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.update(ctx, func(st *model.State) ([]model.Field, error) {
		st.Library = []model.Item{}
		st.Watchlist = []model.Item{}
		st.Recommendations = []model.Item{}
		st.ExcludedItems = []model.ExcludedItem{}
		return []model.Field{
			model.FieldLibrary,
			model.FieldWatchlist,
			model.FieldRecommendations,
			model.FieldExcludedItems,
		}, nil
	})
}

// SetPerformanceSettings replaces the presentation toggles.
func (s *Store) SetPerformanceSettings(ctx context.Context, ps model.PerformanceSettings) error {
	return s.update(ctx, func(st *model.State) ([]model.Field, error) {
		if st.PerformanceSettings == ps {
			return nil, nil
		}
		st.PerformanceSettings = ps
		return []model.Field{model.FieldPerformanceSettings}, nil
	})
}

// ToggleSetting flips one presentation toggle by name ("blur" or "motion").
func (s *Store) ToggleSetting(ctx context.Context, name string) (model.PerformanceSettings, error) {
	var ps model.PerformanceSettings
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "blur":
			st.PerformanceSettings.EnableBlur = !st.PerformanceSettings.EnableBlur
		case "motion":
			st.PerformanceSettings.EnhancedMotion = !st.PerformanceSettings.EnhancedMotion
		default:
			return nil, fmt.Errorf("unknown setting %q, use: blur, motion", name)
		}
		ps = st.PerformanceSettings
		return []model.Field{model.FieldPerformanceSettings}, nil
	})
	return ps, err
}

func mergeMetadata(stored, given model.Item) model.Item {
	out := stored.Clone()
	if out.Description == "" {
		out.Description = given.Description
	}
	if out.Year == "" {
		out.Year = given.Year
	}
	if len(out.Genres) == 0 && len(given.Genres) > 0 {
		out.Genres = append([]string{}, given.Genres...)
	}
	return out
}

func index(items []model.Item, id, title string) int {
	if id != "" {
		for i, it := range items {
			if it.ID == id {
				return i
			}
		}
		return -1
	}
	key := model.NormalizeTitle(title)
	if key == "" {
		return -1
	}
	for i, it := range items {
		if it.Key() == key {
			return i
		}
	}
	return -1
}

func find(items []model.Item, id, title string) (model.Item, bool) {
	if i := index(items, id, title); i >= 0 {
		return items[i], true
	}
	return model.Item{}, false
}

func excludedIndex(items []model.ExcludedItem, id string) int {
	if id == "" {
		return -1
	}
	for i, ex := range items {
		if ex.ID == id {
			return i
		}
	}
	return -1
}
