package collection

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"animepicker/internal/model"
)

// Default instructions seeded into every new account.
const (
	DemographicInstruction    = model.AlwaysTag + ` IMPORTANT: Analyze the anime's demographic (Shonen, Seinen, Shojo, Josei, Kodomomuke). You MUST include the identified demographic as a string in the "genres" array.`
	RecommendationInstruction = "Identify the most common demographics (e.g., Seinen, Josei, Shonen, Shoujo) in my library and prioritize new recommendations that match them."
)

// DefaultInstructions returns the default instructions in display order.
func DefaultInstructions() []string {
	return []string{DemographicInstruction, RecommendationInstruction}
}

// withDefaults returns list with both defaults (and older variants of them) moved to the top.
func withDefaults(list []string) []string {
	out := DefaultInstructions()
	for _, in := range list {
		if in == DemographicInstruction || in == RecommendationInstruction {
			continue
		}
		if strings.Contains(strings.ToLower(in), "identify the most common demographics") && !strings.HasPrefix(in, model.AlwaysTag) {
			continue
		}
		out = append(out, in)
	}
	return out
}

// seedDefaults upgrades older demographic instructions and, once per account, puts the
// defaults at the top of the list. It reports the fields it changed.
func (s *Store) seedDefaults(ctx context.Context) ([]model.Field, error) {
	list := s.state.Instructions
	changed := false

	upgraded := make([]string, len(list))
	for i, in := range list {
		norm := strings.ToUpper(strings.TrimSpace(in))
		if strings.HasPrefix(norm, model.AlwaysTag) && strings.Contains(norm, "DEMOGRAPHIC") {
			in = DemographicInstruction
		}
		upgraded[i] = in
	}
	if !slices.Equal(upgraded, list) {
		list, changed = upgraded, true
	}

	_, seen, err := s.kv.Get(ctx, defaultsSeenKey(s.account))
	if err != nil {
		return nil, fmt.Errorf("get defaults flag: %w", err)
	}
	if !seen {
		seeded := withDefaults(list)
		if !slices.Equal(seeded, list) {
			list, changed = seeded, true
		}
		if err := s.kv.Set(ctx, defaultsSeenKey(s.account), "true"); err != nil {
			return nil, fmt.Errorf("set defaults flag: %w", err)
		}
	}

	if !changed {
		return nil, nil
	}
	s.state.Instructions = list
	return []model.Field{model.FieldInstructions}, nil
}

// SetInstructions replaces the instruction list. Blank entries are dropped.
func (s *Store) SetInstructions(ctx context.Context, list []string) error {
	return s.update(ctx, func(st *model.State) ([]model.Field, error) {
		out := make([]string, 0, len(list))
		for _, in := range list {
			if in = strings.TrimSpace(in); in != "" {
				out = append(out, in)
			}
		}
		if slices.Equal(out, st.Instructions) {
			return nil, nil
		}
		st.Instructions = out
		return []model.Field{model.FieldInstructions}, nil
	})
}

// AddInstruction appends an instruction unless it is already present.
func (s *Store) AddInstruction(ctx context.Context, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, ErrEmptyTitle
	}
	var added bool
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		if slices.Contains(st.Instructions, text) {
			return nil, nil
		}
		st.Instructions = append(st.Instructions, text)
		added = true
		return []model.Field{model.FieldInstructions}, nil
	})
	return added, err
}

// MergeInstructions appends the instructions not yet present and returns how many were added.
func (s *Store) MergeInstructions(ctx context.Context, list []string) (int, error) {
	var n int
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		n = 0
		for _, in := range list {
			in = strings.TrimSpace(in)
			if in == "" || slices.Contains(st.Instructions, in) {
				continue
			}
			st.Instructions = append(st.Instructions, in)
			n++
		}
		if n == 0 {
			return nil, nil
		}
		return []model.Field{model.FieldInstructions}, nil
	})
	return n, err
}

// RemoveInstruction removes the instruction at the zero-based index i and returns it.
func (s *Store) RemoveInstruction(ctx context.Context, i int) (string, error) {
	var removed string
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		if i < 0 || i >= len(st.Instructions) {
			return nil, ErrNotFound
		}
		removed = st.Instructions[i]
		st.Instructions = slices.Delete(st.Instructions, i, i+1)
		return []model.Field{model.FieldInstructions}, nil
	})
	return removed, err
}

// RestoreDefaultInstructions puts the default instructions back at the top of the list.
func (s *Store) RestoreDefaultInstructions(ctx context.Context) (bool, error) {
	var changed bool
	err := s.update(ctx, func(st *model.State) ([]model.Field, error) {
		next := withDefaults(st.Instructions)
		if slices.Equal(next, st.Instructions) {
			return nil, nil
		}
		st.Instructions = next
		changed = true
		return []model.Field{model.FieldInstructions}, nil
	})
	return changed, err
}
