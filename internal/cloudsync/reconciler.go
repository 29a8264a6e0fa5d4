package cloudsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"animepicker/internal/model"
	"animepicker/internal/remote"
)

// Local is the local side of a reconciliation.
type Local interface {
	// SyncState returns every field's serialized value and the change markers it corresponds to.
	SyncState() (map[model.Field]json.RawMessage, map[model.Field]time.Time, error)
	// ApplyMerged replaces fields and sets their markers to ts without counting as a local
	// change. Fields whose marker no longer equals basis are left alone and returned.
	ApplyMerged(ctx context.Context, values map[model.Field]json.RawMessage, ts, basis map[model.Field]time.Time) ([]model.Field, error)
	// RecordSync stores the time of a successful pass.
	RecordSync(ctx context.Context, at time.Time) error
}

// Result summarizes one pass.
type Result struct {
	// Created is set when no snapshot existed and local state was uploaded as the first one.
	Created    bool
	FromRemote []model.Field
	FromLocal  []model.Field
	Rejected   []model.Field
	// Skipped lists fields changed locally while the pass was running.
	Skipped []model.Field
	At      time.Time
}

// Reconciler runs reconciliation passes against one remote namespace.
type Reconciler struct {
	store    remote.Store
	now      func() time.Time
	log      *slog.Logger
	fileName string
	newID    func() string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

// WithFileName overrides the snapshot file name.
func WithFileName(name string) Option {
	return func(r *Reconciler) { r.fileName = name }
}

// WithIDGenerator overrides how ids are given to remote items that lack one.
func WithIDGenerator(newID func() string) Option {
	return func(r *Reconciler) { r.newID = newID }
}

// NewReconciler creates a Reconciler for store.
func NewReconciler(store remote.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		now:      time.Now,
		log:      slog.Default(),
		fileName: model.SyncFileName,
		newID:    func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Reconcile runs one pass. The merged snapshot is written to the remote store before it
// is applied locally, so any remote failure leaves local state and markers untouched.
func (r *Reconciler) Reconcile(ctx context.Context, local Local, forceRemote bool) (Result, error) {
	values, markers, err := local.SyncState()
	if err != nil {
		return Result{}, fmt.Errorf("read local state: %w", err)
	}

	files, err := r.store.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list remote files: %w", err)
	}
	now := r.now().UTC().Truncate(time.Millisecond)

	file, found := remote.FindByName(files, r.fileName)
	if !found {
		ts := markersOr(markers, now)
		if err := r.upload(ctx, model.Snapshot{Values: values, ModifiedAt: ts, Timestamp: now}, ""); err != nil {
			return Result{}, err
		}
		// Local markers take the uploaded times so the next pass ties instead of pulling.
		skipped, err := local.ApplyMerged(ctx, values, ts, markers)
		if err != nil {
			return Result{}, fmt.Errorf("apply created state: %w", err)
		}
		if err := local.RecordSync(ctx, now); err != nil {
			return Result{}, err
		}
		r.log.Info("created remote snapshot", "file", r.fileName)
		return Result{Created: true, FromLocal: allFields(), Skipped: skipped, At: now}, nil
	}

	data, err := r.store.Read(ctx, file.ID)
	if err != nil {
		return Result{}, fmt.Errorf("read remote snapshot: %w", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// Every field is rejected and local state is written back over the damaged file.
		r.log.Warn("remote snapshot is not a JSON object", "file", file.ID, "error", err)
		snap = model.Snapshot{}
	}

	m := Merge(model.AllFields, values, markers, &snap, forceRemote, now)
	for _, f := range m.Rejected {
		r.log.Warn("kept local value over invalid remote field", "field", f)
	}
	// Ids are given before the upload so both sides store the same ones.
	for _, f := range model.AllFields {
		if raw, ok := m.Values[f]; ok {
			if fixed, n := withIDs(f, raw, r.newID); n > 0 {
				m.Values[f] = fixed
				r.log.Debug("assigned ids to remote items", "field", f, "count", n)
			}
		}
	}

	out := model.Snapshot{Values: m.Values, ModifiedAt: m.ModifiedAt, Timestamp: now}
	if err := r.upload(ctx, out, file.ID); err != nil {
		return Result{}, err
	}

	skipped, err := local.ApplyMerged(ctx, m.Values, m.ModifiedAt, markers)
	if err != nil {
		return Result{}, fmt.Errorf("apply merged state: %w", err)
	}
	if err := local.RecordSync(ctx, now); err != nil {
		return Result{}, err
	}

	return Result{
		FromRemote: m.FromRemote,
		FromLocal:  m.FromLocal,
		Rejected:   m.Rejected,
		Skipped:    skipped,
		At:         now,
	}, nil
}

// Push uploads local state as the authoritative snapshot, stamping every field with the
// current time so that other devices take it on their next pass.
func (r *Reconciler) Push(ctx context.Context, local Local) (Result, error) {
	values, markers, err := local.SyncState()
	if err != nil {
		return Result{}, fmt.Errorf("read local state: %w", err)
	}
	files, err := r.store.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list remote files: %w", err)
	}
	now := r.now().UTC().Truncate(time.Millisecond)

	ts := make(map[model.Field]time.Time, len(model.AllFields))
	for _, f := range model.AllFields {
		ts[f] = now
	}
	file, found := remote.FindByName(files, r.fileName)
	if err := r.upload(ctx, model.Snapshot{Values: values, ModifiedAt: ts, Timestamp: now}, file.ID); err != nil {
		return Result{}, err
	}

	skipped, err := local.ApplyMerged(ctx, values, ts, markers)
	if err != nil {
		return Result{}, fmt.Errorf("apply pushed state: %w", err)
	}
	if err := local.RecordSync(ctx, now); err != nil {
		return Result{}, err
	}
	return Result{Created: !found, FromLocal: allFields(), Skipped: skipped, At: now}, nil
}

func (r *Reconciler) upload(ctx context.Context, snap model.Snapshot, id string) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := r.store.Write(ctx, r.fileName, data, id); err != nil {
		return fmt.Errorf("write remote snapshot: %w", err)
	}
	return nil
}

func markersOr(markers map[model.Field]time.Time, now time.Time) map[model.Field]time.Time {
	out := make(map[model.Field]time.Time, len(model.AllFields))
	for _, f := range model.AllFields {
		if t := markers[f]; !t.IsZero() {
			out[f] = t
		} else {
			out[f] = now
		}
	}
	return out
}

func allFields() []model.Field {
	return append([]model.Field(nil), model.AllFields...)
}
