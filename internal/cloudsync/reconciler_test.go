package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"animepicker/internal/collection"
	"animepicker/internal/model"
	"animepicker/internal/remote"
	"animepicker/internal/storage"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }
func (c *testClock) Set(sec int)    { c.t = at(sec) }

type fixture struct {
	store  *collection.Store
	remote *remote.Dir
	clock  *testClock
	rec    *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })

	clock := &testClock{t: base}
	s, err := collection.Open(context.Background(), kv, "acc", collection.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	dir := remote.NewDir(afero.NewMemMapFs(), "/ns/acc")
	return &fixture{
		store:  s,
		remote: dir,
		clock:  clock,
		rec:    NewReconciler(dir, WithClock(clock.Now)),
	}
}

func (f *fixture) writeRemote(t *testing.T, snap model.Snapshot) {
	t.Helper()
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	f.writeRemoteRaw(t, data)
}

func (f *fixture) writeRemoteRaw(t *testing.T, data []byte) {
	t.Helper()
	if _, err := f.remote.Write(context.Background(), model.SyncFileName, data, ""); err != nil {
		t.Fatalf("write remote: %v", err)
	}
}

func (f *fixture) readRemote(t *testing.T) model.Snapshot {
	t.Helper()
	data, err := f.remote.Read(context.Background(), model.SyncFileName)
	if err != nil {
		t.Fatalf("read remote: %v", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode remote: %v", err)
	}
	return snap
}

func (f *fixture) add(t *testing.T, c model.Collection, title string) {
	t.Helper()
	if _, err := f.store.Add(context.Background(), c, model.NewItem(title)); err != nil {
		t.Fatalf("add %s: %v", title, err)
	}
}

func (f *fixture) lastSync(t *testing.T) time.Time {
	t.Helper()
	ts, err := f.store.LastSync(context.Background())
	if err != nil {
		t.Fatalf("last sync: %v", err)
	}
	return ts
}

var compactJSON = cmp.Transformer("compact", func(r json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, r); err != nil {
		return string(r)
	}
	return buf.String()
})

func titlesOf(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

// remoteScenario is a snapshot whose library changed at T=5 and every other field at T=20.
func remoteScenario() model.Snapshot {
	snap := model.Snapshot{
		Values: map[model.Field]json.RawMessage{
			model.FieldLibrary:             json.RawMessage(`["Remote Show"]`),
			model.FieldWatchlist:           json.RawMessage(`[{"id":"w1","title":"Frieren","genres":["Fantasy"],"description":""}]`),
			model.FieldRecommendations:     json.RawMessage(`[]`),
			model.FieldInstructions:        json.RawMessage(`["Only short series"]`),
			model.FieldExcludedItems:       json.RawMessage(`[]`),
			model.FieldPerformanceSettings: json.RawMessage(`{"enableBlur":true,"enhancedMotion":false}`),
		},
		ModifiedAt: map[model.Field]time.Time{model.FieldLibrary: at(5)},
		Timestamp:  at(20),
	}
	for _, f := range model.AllFields[1:] {
		snap.ModifiedAt[f] = at(20)
	}
	return snap
}

func TestReconcileMergesPerField(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.clock.Set(10)
	f.add(t, model.Library, "Local Show")
	f.writeRemote(t, remoteScenario())

	f.clock.Set(30)
	res, err := f.rec.Reconcile(ctx, f.store, false)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if diff := cmp.Diff([]model.Field{model.FieldLibrary}, res.FromLocal); diff != "" {
		t.Errorf("FromLocal mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Local Show"}, titlesOf(f.store.Items(model.Library))); diff != "" {
		t.Errorf("library mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Frieren"}, titlesOf(f.store.Items(model.Watchlist))); diff != "" {
		t.Errorf("watchlist mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Only short series"}, f.store.Instructions()); diff != "" {
		t.Errorf("instructions mismatch (-want +got):\n%s", diff)
	}
	if !f.store.Settings().EnableBlur {
		t.Error("expected remote performance settings to be applied")
	}

	markers := f.store.ChangeMarkers()
	for _, fld := range model.AllFields {
		want := at(20)
		if fld == model.FieldLibrary {
			want = at(10)
		}
		if !markers[fld].Equal(want) {
			t.Errorf("%s marker: expected %v, got %v", fld, want, markers[fld])
		}
	}

	up := f.readRemote(t)
	if !up.Timestamp.Equal(at(30)) {
		t.Errorf("expected snapshot timestamp %v, got %v", at(30), up.Timestamp)
	}
	if !up.ModifiedAt[model.FieldLibrary].Equal(at(10)) {
		t.Errorf("expected remote library time %v, got %v", at(10), up.ModifiedAt[model.FieldLibrary])
	}
	var lib []model.Item
	if err := json.Unmarshal(up.Values[model.FieldLibrary], &lib); err != nil {
		t.Fatalf("decode remote library: %v", err)
	}
	if diff := cmp.Diff([]string{"Local Show"}, titlesOf(lib)); diff != "" {
		t.Errorf("remote library mismatch (-want +got):\n%s", diff)
	}

	if got := f.lastSync(t); !got.Equal(at(30)) {
		t.Errorf("expected last sync %v, got %v", at(30), got)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.clock.Set(10)
	f.add(t, model.Library, "Local Show")
	f.writeRemote(t, remoteScenario())

	f.clock.Set(30)
	if _, err := f.rec.Reconcile(ctx, f.store, false); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	state := f.store.Snapshot()
	markers := f.store.ChangeMarkers()
	snap := f.readRemote(t)

	f.clock.Set(40)
	res, err := f.rec.Reconcile(ctx, f.store, false)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if len(res.Rejected) != 0 || len(res.Skipped) != 0 {
		t.Errorf("unexpected rejected %v or skipped %v", res.Rejected, res.Skipped)
	}

	if diff := cmp.Diff(state, f.store.Snapshot()); diff != "" {
		t.Errorf("local state changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(markers, f.store.ChangeMarkers()); diff != "" {
		t.Errorf("markers changed (-want +got):\n%s", diff)
	}
	again := f.readRemote(t)
	if diff := cmp.Diff(snap.Values, again.Values, compactJSON); diff != "" {
		t.Errorf("remote values changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(snap.ModifiedAt, again.ModifiedAt); diff != "" {
		t.Errorf("remote times changed (-want +got):\n%s", diff)
	}
}

func TestReconcileForceRemote(t *testing.T) {
	f := newFixture(t)

	f.clock.Set(10)
	f.add(t, model.Library, "Local Show")
	f.writeRemote(t, remoteScenario())

	f.clock.Set(30)
	res, err := f.rec.Reconcile(context.Background(), f.store, true)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(res.FromLocal) != 0 {
		t.Errorf("expected every field from remote, kept local %v", res.FromLocal)
	}
	if diff := cmp.Diff([]string{"Remote Show"}, titlesOf(f.store.Items(model.Library))); diff != "" {
		t.Errorf("library mismatch (-want +got):\n%s", diff)
	}
	if got := f.store.ChangeMarkers()[model.FieldLibrary]; !got.Equal(at(5)) {
		t.Errorf("expected library marker %v, got %v", at(5), got)
	}
}

func TestReconcileCreatesSnapshot(t *testing.T) {
	f := newFixture(t)

	f.clock.Set(10)
	f.add(t, model.Watchlist, "Mushishi")

	f.clock.Set(30)
	res, err := f.rec.Reconcile(context.Background(), f.store, false)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !res.Created {
		t.Error("expected a new snapshot to be created")
	}

	up := f.readRemote(t)
	for _, fld := range model.AllFields {
		want := at(30)
		if fld == model.FieldWatchlist {
			want = at(10)
		}
		if !up.ModifiedAt[fld].Equal(want) {
			t.Errorf("%s: expected remote time %v, got %v", fld, want, up.ModifiedAt[fld])
		}
	}
	var watch []model.Item
	if err := json.Unmarshal(up.Values[model.FieldWatchlist], &watch); err != nil {
		t.Fatalf("decode remote watchlist: %v", err)
	}
	if diff := cmp.Diff([]string{"Mushishi"}, titlesOf(watch)); diff != "" {
		t.Errorf("remote watchlist mismatch (-want +got):\n%s", diff)
	}
	if got := f.lastSync(t); !got.Equal(at(30)) {
		t.Errorf("expected last sync %v, got %v", at(30), got)
	}
}

func TestReconcileKeepsLocalOverInvalidRemote(t *testing.T) {
	f := newFixture(t)

	f.clock.Set(10)
	f.add(t, model.Library, "Local Show")

	snap := remoteScenario()
	snap.Values[model.FieldLibrary] = json.RawMessage(`"not a list"`)
	snap.ModifiedAt[model.FieldLibrary] = at(25)
	f.writeRemote(t, snap)

	f.clock.Set(30)
	res, err := f.rec.Reconcile(context.Background(), f.store, false)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if diff := cmp.Diff([]model.Field{model.FieldLibrary}, res.Rejected); diff != "" {
		t.Errorf("Rejected mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Local Show"}, titlesOf(f.store.Items(model.Library))); diff != "" {
		t.Errorf("library mismatch (-want +got):\n%s", diff)
	}
	if got := f.readRemote(t).ModifiedAt[model.FieldLibrary]; !got.Equal(at(25)) {
		t.Errorf("expected remote library time to stay at %v, got %v", at(25), got)
	}
}

func TestReconcileOverwritesUnreadableSnapshot(t *testing.T) {
	f := newFixture(t)

	f.clock.Set(10)
	f.add(t, model.Library, "Local Show")
	f.writeRemoteRaw(t, []byte("<<garbage>>"))

	f.clock.Set(30)
	res, err := f.rec.Reconcile(context.Background(), f.store, false)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	// Only the library has a local marker; every other field falls to the empty remote side.
	if diff := cmp.Diff([]model.Field{model.FieldLibrary}, res.FromLocal); diff != "" {
		t.Errorf("FromLocal mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(model.AllFields[1:], res.Rejected); diff != "" {
		t.Errorf("Rejected mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Local Show"}, titlesOf(f.store.Items(model.Library))); diff != "" {
		t.Errorf("library mismatch (-want +got):\n%s", diff)
	}
	if got := f.readRemote(t); !got.Timestamp.Equal(at(30)) {
		t.Errorf("expected repaired snapshot at %v, got %v", at(30), got.Timestamp)
	}
}

type failingStore struct {
	remote.Store
	listErr  error
	writeErr error
}

func (s failingStore) List(ctx context.Context) ([]remote.File, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Store.List(ctx)
}

func (s failingStore) Write(ctx context.Context, name string, content []byte, id string) (string, error) {
	if s.writeErr != nil {
		return "", s.writeErr
	}
	return s.Store.Write(ctx, name, content, id)
}

func TestReconcileFailureLeavesLocalUntouched(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name  string
		store func(remote.Store) remote.Store
	}{
		{name: "write fails", store: func(s remote.Store) remote.Store { return failingStore{Store: s, writeErr: errBoom} }},
		{name: "list fails", store: func(s remote.Store) remote.Store { return failingStore{Store: s, listErr: errBoom} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.clock.Set(10)
			f.add(t, model.Library, "Local Show")
			f.writeRemote(t, remoteScenario())

			state := f.store.Snapshot()
			markers := f.store.ChangeMarkers()

			f.clock.Set(30)
			rec := NewReconciler(tt.store(f.remote), WithClock(f.clock.Now))
			if _, err := rec.Reconcile(context.Background(), f.store, true); !errors.Is(err, errBoom) {
				t.Fatalf("expected boom, got %v", err)
			}

			if diff := cmp.Diff(state, f.store.Snapshot()); diff != "" {
				t.Errorf("local state changed (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(markers, f.store.ChangeMarkers()); diff != "" {
				t.Errorf("markers changed (-want +got):\n%s", diff)
			}
			if got := f.lastSync(t); !got.IsZero() {
				t.Errorf("expected no recorded sync, got %v", got)
			}
		})
	}
}

// racingLocal makes a local change between upload and local apply.
type racingLocal struct {
	*collection.Store
	during func()
}

func (l racingLocal) ApplyMerged(ctx context.Context, values map[model.Field]json.RawMessage, ts, basis map[model.Field]time.Time) ([]model.Field, error) {
	l.during()
	return l.Store.ApplyMerged(ctx, values, ts, basis)
}

func TestReconcileSkipsFieldsChangedDuringPass(t *testing.T) {
	f := newFixture(t)
	f.writeRemote(t, remoteScenario())

	f.clock.Set(30)
	local := racingLocal{Store: f.store, during: func() {
		f.clock.Set(31)
		f.add(t, model.Watchlist, "Added Meanwhile")
	}}
	res, err := f.rec.Reconcile(context.Background(), local, false)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if diff := cmp.Diff([]model.Field{model.FieldWatchlist}, res.Skipped); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Added Meanwhile"}, titlesOf(f.store.Items(model.Watchlist))); diff != "" {
		t.Errorf("local change was overwritten (-want +got):\n%s", diff)
	}
	if got := f.store.ChangeMarkers()[model.FieldWatchlist]; !got.Equal(at(31)) {
		t.Errorf("expected watchlist marker %v, got %v", at(31), got)
	}
	if diff := cmp.Diff([]string{"Remote Show"}, titlesOf(f.store.Items(model.Library))); diff != "" {
		t.Errorf("library mismatch (-want +got):\n%s", diff)
	}
}

func TestPushStampsEveryField(t *testing.T) {
	f := newFixture(t)

	f.clock.Set(10)
	f.add(t, model.Library, "Local Show")
	f.writeRemote(t, remoteScenario())

	f.clock.Set(30)
	res, err := f.rec.Push(context.Background(), f.store)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if res.Created {
		t.Error("push must replace the existing snapshot")
	}

	up := f.readRemote(t)
	markers := f.store.ChangeMarkers()
	for _, fld := range model.AllFields {
		if !up.ModifiedAt[fld].Equal(at(30)) {
			t.Errorf("%s: expected remote time %v, got %v", fld, at(30), up.ModifiedAt[fld])
		}
		if !markers[fld].Equal(at(30)) {
			t.Errorf("%s: expected marker %v, got %v", fld, at(30), markers[fld])
		}
	}
	var lib []model.Item
	if err := json.Unmarshal(up.Values[model.FieldLibrary], &lib); err != nil {
		t.Fatalf("decode remote library: %v", err)
	}
	if diff := cmp.Diff([]string{"Local Show"}, titlesOf(lib)); diff != "" {
		t.Errorf("remote library mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(collection.DefaultInstructions(), f.store.Instructions()); diff != "" {
		t.Errorf("push changed local instructions (-want +got):\n%s", diff)
	}
}

func TestReconcileGivesIDsToRemoteItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.writeRemoteRaw(t, []byte(`{
		"library": ["Naruto"],
		"excludedItems": [{"title":"A"},{"title":"B"}],
		"modifiedAt": {"library":"2024-01-01T00:00:20.000Z","excludedItems":"2024-01-01T00:00:20.000Z"},
		"timestamp": "2024-01-01T00:00:20.000Z"
	}`))

	n := 0
	rec := NewReconciler(f.remote, WithClock(f.clock.Now), WithIDGenerator(func() string {
		n++
		return "r" + strconv.Itoa(n)
	}))
	f.clock.Set(30)
	if _, err := rec.Reconcile(ctx, f.store, true); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	lib := f.store.Items(model.Library)
	if len(lib) != 1 || lib[0].ID != "r1" || lib[0].Title != "Naruto" {
		t.Fatalf("expected Naruto with id r1, got %+v", lib)
	}
	excluded := f.store.Excluded()
	var ids []string
	for _, ex := range excluded {
		ids = append(ids, ex.ID)
	}
	if diff := cmp.Diff([]string{"r2", "r3"}, ids); diff != "" {
		t.Fatalf("excluded ids mismatch (-want +got):\n%s", diff)
	}

	up := f.readRemote(t)
	var upLib []model.Item
	if err := json.Unmarshal(up.Values[model.FieldLibrary], &upLib); err != nil {
		t.Fatalf("decode remote library: %v", err)
	}
	var upEx []model.ExcludedItem
	if err := json.Unmarshal(up.Values[model.FieldExcludedItems], &upEx); err != nil {
		t.Fatalf("decode remote excluded: %v", err)
	}
	if len(upLib) != 1 || upLib[0].ID != "r1" {
		t.Errorf("remote library must carry the local id, got %+v", upLib)
	}
	var upIDs []string
	for _, ex := range upEx {
		upIDs = append(upIDs, ex.ID)
	}
	if diff := cmp.Diff(ids, upIDs); diff != "" {
		t.Errorf("remote excluded ids mismatch (-want +got):\n%s", diff)
	}

	ex, _, err := f.store.Restore(ctx, excluded[1].ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if ex.Title != "B" {
		t.Errorf("expected B restored, got %q", ex.Title)
	}

	// A second pass keeps the ids.
	f.clock.Set(40)
	if _, err := rec.Reconcile(ctx, f.store, false); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if got := f.store.Items(model.Library)[0].ID; got != "r1" {
		t.Errorf("expected library id to stay r1, got %q", got)
	}
}

func TestReconcileUnchangedFieldsAreNotReportedFromRemote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.clock.Set(10)
	f.add(t, model.Library, "First")
	f.clock.Set(20)
	if res, err := f.rec.Reconcile(ctx, f.store, false); err != nil || !res.Created {
		t.Fatalf("first reconcile: created=%v err=%v", res.Created, err)
	}

	f.clock.Set(30)
	res, err := f.rec.Reconcile(ctx, f.store, false)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if len(res.FromRemote) != 0 || len(res.FromLocal) != 0 {
		t.Errorf("expected a quiet pass, got remote %v local %v", res.FromRemote, res.FromLocal)
	}

	f.clock.Set(40)
	f.add(t, model.Library, "Another")
	f.clock.Set(50)
	res, err = f.rec.Reconcile(ctx, f.store, false)
	if err != nil {
		t.Fatalf("third reconcile: %v", err)
	}
	if len(res.FromRemote) != 0 {
		t.Errorf("expected nothing from remote, got %v", res.FromRemote)
	}
	if diff := cmp.Diff([]model.Field{model.FieldLibrary}, res.FromLocal); diff != "" {
		t.Errorf("FromLocal mismatch (-want +got):\n%s", diff)
	}
}
