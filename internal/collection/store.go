// Package collection owns an account's collections and enforces their invariants.
//
// A Store is the single source of truth for one account: every read and mutation goes
// through it. Committed mutations are persisted to the key-value store together with a
// per-field change marker, and reported to an optional change hook.
package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"animepicker/internal/model"
	"animepicker/internal/storage"
)

// Sentinel errors. None of them leave the store in a partially modified state.
var (
	ErrEmptyTitle = errors.New("title is empty")
	ErrNotFound   = errors.New("item not found")
	ErrDuplicate  = errors.New("title already present in destination")
	ErrSameSource = errors.New("source and destination are the same collection")
)

// Store holds the collections of one account.
type Store struct {
	kv      storage.KV
	account string
	now     func() time.Time
	newID   func() string
	log     *slog.Logger

	mu       sync.Mutex
	state    model.State
	markers  map[model.Field]time.Time
	onChange func(model.Field)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for change markers and exclusion dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides how ids are assigned to items that lack one.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open loads the account's collections from kv.
func Open(ctx context.Context, kv storage.KV, account string, opts ...Option) (*Store, error) {
	s := &Store{
		kv:      kv,
		account: account,
		now:     time.Now,
		newID:   func() string { return uuid.Must(uuid.NewV7()).String() },
		log:     slog.Default(),
		markers: make(map[model.Field]time.Time, len(model.AllFields)),
	}
	for _, o := range opts {
		o(s)
	}

	dirty, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	seeded, err := s.seedDefaults(ctx)
	if err != nil {
		return nil, err
	}
	dirty = append(dirty, seeded...)

	// Cleanup on load is not a user change, so no markers are written.
	if len(dirty) > 0 {
		entries, err := fieldEntries(account, &s.state, dirty)
		if err != nil {
			return nil, err
		}
		if err := kv.SetMany(ctx, entries); err != nil {
			return nil, fmt.Errorf("persist cleaned state: %w", err)
		}
		s.log.Debug("cleaned stored collections", "account", account, "fields", dirty)
	}
	return s, nil
}

// Account returns the account the store belongs to.
func (s *Store) Account() string {
	return s.account
}

// SetOnChange registers fn to be called after every committed local mutation, once per changed field.
func (s *Store) SetOnChange(fn func(model.Field)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *Store) load(ctx context.Context) ([]model.Field, error) {
	var dirty []model.Field
	for _, f := range model.AllFields {
		raw, ok, err := s.kv.Get(ctx, fieldKey(s.account, f))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
		if ok && raw != "" {
			if decodeField(&s.state, f, json.RawMessage(raw), s.newID) {
				dirty = append(dirty, f)
			}
		}

		iso, ok, err := s.kv.Get(ctx, markerKey(s.account, f))
		if err != nil {
			return nil, fmt.Errorf("load %s marker: %w", f, err)
		}
		if ok {
			if t := model.ParseTime(iso); !t.IsZero() {
				s.markers[f] = t
			}
		}
	}
	s.ensureNonNil()
	return dirty, nil
}

func (s *Store) ensureNonNil() {
	for _, c := range model.Collections {
		if s.state.Items(c) == nil {
			s.state.SetItems(c, []model.Item{})
		}
	}
	if s.state.Instructions == nil {
		s.state.Instructions = []string{}
	}
	if s.state.ExcludedItems == nil {
		s.state.ExcludedItems = []model.ExcludedItem{}
	}
}

// update applies fn to a copy of the state and commits it if fn reports changed fields.
// The in-memory state is only replaced once the write succeeded.
func (s *Store) update(ctx context.Context, fn func(st *model.State) ([]model.Field, error)) error {
	s.mu.Lock()
	next := s.state.Clone()
	changed, err := fn(&next)
	if err != nil || len(changed) == 0 {
		s.mu.Unlock()
		return err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	entries, err := fieldEntries(s.account, &next, changed)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	for _, f := range changed {
		entries[markerKey(s.account, f)] = model.FormatTime(now)
	}
	entries[overallMarkerKey(s.account)] = model.FormatTime(now)

	if err := s.kv.SetMany(ctx, entries); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist %v: %w", changed, err)
	}
	s.state = next
	for _, f := range changed {
		s.markers[f] = now
	}
	hook := s.onChange
	s.mu.Unlock()

	if hook != nil {
		for _, f := range changed {
			hook(f)
		}
	}
	return nil
}

// SyncState returns the current serialized field values together with the change markers
// they correspond to.
func (s *Store) SyncState() (map[model.Field]json.RawMessage, map[model.Field]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[model.Field]json.RawMessage, len(model.AllFields))
	for _, f := range model.AllFields {
		raw, err := encodeField(&s.state, f)
		if err != nil {
			return nil, nil, err
		}
		values[f] = raw
	}
	return values, s.markersCopy(), nil
}

// ApplyMerged replaces fields with reconciled values and sets their markers to the
// reconciled timestamps. It does not count as a local change: the change hook is not
// invoked. A field whose marker moved away from basis was changed locally while the
// reconciliation was in flight; it is left alone and returned in skipped.
// Items arriving without an id are given one.
func (s *Store) ApplyMerged(ctx context.Context, values map[model.Field]json.RawMessage, ts, basis map[model.Field]time.Time) ([]model.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	var applied, skipped []model.Field
	for _, f := range model.AllFields {
		raw, ok := values[f]
		if !ok {
			continue
		}
		if !s.markers[f].Equal(basis[f]) {
			skipped = append(skipped, f)
			continue
		}
		decodeField(&next, f, raw, s.newID)
		applied = append(applied, f)
	}
	if len(applied) == 0 {
		return skipped, nil
	}

	entries, err := fieldEntries(s.account, &next, applied)
	if err != nil {
		return nil, err
	}
	for _, f := range applied {
		if t := ts[f]; !t.IsZero() {
			entries[markerKey(s.account, f)] = model.FormatTime(t)
		}
	}
	if err := s.kv.SetMany(ctx, entries); err != nil {
		return nil, fmt.Errorf("persist merged state: %w", err)
	}

	s.state = next
	s.ensureNonNil()
	for _, f := range applied {
		if t := ts[f]; !t.IsZero() {
			s.markers[f] = t.UTC().Truncate(time.Millisecond)
		}
	}
	return skipped, nil
}

// RecordSync stores the time of the last successful reconciliation.
func (s *Store) RecordSync(ctx context.Context, at time.Time) error {
	iso := model.FormatTime(at)
	err := s.kv.SetMany(ctx, map[string]string{
		lastSyncKey(s.account):      iso,
		overallMarkerKey(s.account): iso,
	})
	if err != nil {
		return fmt.Errorf("record sync: %w", err)
	}
	return nil
}

// LastSync returns the time of the last successful reconciliation, or the zero time.
func (s *Store) LastSync(ctx context.Context) (time.Time, error) {
	iso, _, err := s.kv.Get(ctx, lastSyncKey(s.account))
	if err != nil {
		return time.Time{}, fmt.Errorf("get last sync: %w", err)
	}
	return model.ParseTime(iso), nil
}

// ChangeMarkers returns a copy of the per-field change markers.
func (s *Store) ChangeMarkers() map[model.Field]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markersCopy()
}

func (s *Store) markersCopy() map[model.Field]time.Time {
	out := make(map[model.Field]time.Time, len(s.markers))
	for f, t := range s.markers {
		out[f] = t
	}
	return out
}

func fieldKey(account string, f model.Field) string {
	return account + "_" + string(f)
}

func markerKey(account string, f model.Field) string {
	return account + "_last_local_change_" + string(f) + "_iso"
}

func overallMarkerKey(account string) string {
	return account + "_last_local_change_iso"
}

func lastSyncKey(account string) string {
	return account + "_last_cloud_sync_iso"
}

func defaultsSeenKey(account string) string {
	return account + "_has_seen_split_demographic_defaults"
}

func fieldEntries(account string, st *model.State, fields []model.Field) (map[string]string, error) {
	entries := make(map[string]string, len(fields)*2+1)
	for _, f := range fields {
		raw, err := encodeField(st, f)
		if err != nil {
			return nil, err
		}
		entries[fieldKey(account, f)] = string(raw)
	}
	return entries, nil
}

func encodeField(st *model.State, f model.Field) (json.RawMessage, error) {
	var v any
	switch f {
	case model.FieldLibrary:
		v = st.Library
	case model.FieldWatchlist:
		v = st.Watchlist
	case model.FieldRecommendations:
		v = st.Recommendations
	case model.FieldInstructions:
		v = st.Instructions
	case model.FieldExcludedItems:
		v = st.ExcludedItems
	case model.FieldPerformanceSettings:
		v = st.PerformanceSettings
	default:
		return nil, fmt.Errorf("unknown field %q", f)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f, err)
	}
	return raw, nil
}

// decodeField replaces one field of st from raw JSON. Elements that cannot be decoded,
// blank titles and duplicate titles are dropped. When newID is set, items without an id
// get one. The return value reports whether the decoded field differs from raw.
// A value of the wrong shape leaves the field unchanged.
func decodeField(st *model.State, f model.Field, raw json.RawMessage, newID func() string) bool {
	if f == model.FieldPerformanceSettings {
		var ps model.PerformanceSettings
		if err := json.Unmarshal(raw, &ps); err == nil {
			st.PerformanceSettings = ps
		}
		return false
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return false
	}
	assigned := false

	switch f {
	case model.FieldInstructions:
		out := make([]string, 0, len(elems))
		for _, el := range elems {
			var s string
			if err := json.Unmarshal(el, &s); err == nil {
				out = append(out, s)
			}
		}
		st.Instructions = out
		return len(out) != len(elems)

	case model.FieldExcludedItems:
		out := make([]model.ExcludedItem, 0, len(elems))
		seen := make(map[string]bool, len(elems))
		for _, el := range elems {
			var ex model.ExcludedItem
			if err := json.Unmarshal(el, &ex); err != nil || ex.Key() == "" || seen[ex.Key()] {
				continue
			}
			seen[ex.Key()] = true
			if ex.ID == "" && newID != nil {
				ex.ID = newID()
				assigned = true
			}
			out = append(out, ex)
		}
		st.ExcludedItems = out
		return assigned || len(out) != len(elems)

	default:
		out := make([]model.Item, 0, len(elems))
		seen := make(map[string]bool, len(elems))
		for _, el := range elems {
			var it model.Item
			if err := json.Unmarshal(el, &it); err != nil || it.Key() == "" || seen[it.Key()] {
				continue
			}
			seen[it.Key()] = true
			if it.ID == "" && newID != nil {
				it.ID = newID()
				assigned = true
			}
			out = append(out, it)
		}
		st.SetItems(model.Collection(f), out)
		return assigned || len(out) != len(elems)
	}
}
