package collection

import "animepicker/internal/model"

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() model.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Items returns a copy of collection c, including items hidden by exclusion.
func (s *Store) Items(c model.Collection) []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.state.Items(c))
}

// Visible returns collection c without titles that are currently excluded.
func (s *Store) Visible(c model.Collection) []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	excluded := s.excludedKeys()
	out := make([]model.Item, 0, len(s.state.Items(c)))
	for _, it := range s.state.Items(c) {
		if !excluded[it.Key()] {
			out = append(out, it.Clone())
		}
	}
	return out
}

// Excluded returns a copy of the excluded list.
func (s *Store) Excluded() []model.ExcludedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ExcludedItem, len(s.state.ExcludedItems))
	for i, ex := range s.state.ExcludedItems {
		ex.Item = ex.Item.Clone()
		out[i] = ex
	}
	return out
}

// Instructions returns a copy of the generator instructions.
func (s *Store) Instructions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.state.Instructions...)
}

// Settings returns the presentation toggles.
func (s *Store) Settings() model.PerformanceSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.PerformanceSettings
}

// Find looks a title up across the three collections in precedence order.
func (s *Store) Find(title string) (model.Collection, model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range model.Collections {
		if it, ok := find(s.state.Items(c), "", title); ok {
			return c, it.Clone(), true
		}
	}
	return "", model.Item{}, false
}

// IsExcluded reports whether title is in the excluded list.
func (s *Store) IsExcluded(title string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.excludedKeys()[model.NormalizeTitle(title)]
}

// KnownTitles returns the normalized titles of every item in any collection or the excluded list.
func (s *Store) KnownTitles() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.excludedKeys()
	for _, c := range model.Collections {
		for _, it := range s.state.Items(c) {
			out[it.Key()] = true
		}
	}
	return out
}

func (s *Store) excludedKeys() map[string]bool {
	out := make(map[string]bool, len(s.state.ExcludedItems))
	for _, ex := range s.state.ExcludedItems {
		out[ex.Key()] = true
	}
	return out
}

func cloneAll(items []model.Item) []model.Item {
	out := make([]model.Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
