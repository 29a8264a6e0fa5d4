// Package scheduler decides when an account's collections are reconciled with the remote snapshot.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"animepicker/internal/cloudsync"
	"animepicker/internal/model"
)

// DefaultQuiet is the debounce period after the last local change.
const DefaultQuiet = 3 * time.Second

// ErrSyncInProgress is returned when a trigger arrives while a pass is running.
// The trigger is dropped, not queued.
var ErrSyncInProgress = errors.New("sync already in progress")

// Trigger says what started a pass.
type Trigger string

// Triggers.
const (
	TriggerStart    Trigger = "start"
	TriggerManual   Trigger = "manual"
	TriggerChange   Trigger = "change"
	TriggerInterval Trigger = "interval"
	TriggerPush     Trigger = "push"
)

// Syncer runs reconciliation passes.
type Syncer interface {
	Reconcile(ctx context.Context, local cloudsync.Local, forceRemote bool) (cloudsync.Result, error)
}

// Pusher is implemented by syncers that can overwrite the remote snapshot with local state.
type Pusher interface {
	Push(ctx context.Context, local cloudsync.Local) (cloudsync.Result, error)
}

// ErrPushUnsupported is returned by PushNow when the syncer cannot push.
var ErrPushUnsupported = errors.New("push not supported")

// Credentials reports whether the account has connected a remote store before.
type Credentials interface {
	HasCredentials(ctx context.Context) bool
}

// Notifier is told about every finished pass.
type Notifier interface {
	SyncFinished(trigger Trigger, res cloudsync.Result, err error)
}

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

// Timers schedules callbacks.
type Timers interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemTimers struct{}

func (systemTimers) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Scheduler runs at most one reconciliation at a time for one account.
type Scheduler struct {
	syncer   Syncer
	local    cloudsync.Local
	creds    Credentials
	timers   Timers
	notify   Notifier
	log      *slog.Logger
	quiet    time.Duration
	interval time.Duration

	mu      sync.Mutex
	base    context.Context
	syncing bool
	synced  bool
	gen     int
	pending Timer
	seq     int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimers replaces the timer implementation.
func WithTimers(t Timers) Option {
	return func(s *Scheduler) { s.timers = t }
}

// WithQuiet overrides the debounce period.
func WithQuiet(d time.Duration) Option {
	return func(s *Scheduler) { s.quiet = d }
}

// WithInterval makes Run reconcile periodically. Zero disables it.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithNotifier sets the receiver of pass outcomes.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notify = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New creates a Scheduler.
func New(syncer Syncer, local cloudsync.Local, creds Credentials, opts ...Option) *Scheduler {
	s := &Scheduler{
		syncer: syncer,
		local:  local,
		creds:  creds,
		timers: systemTimers{},
		log:    slog.Default(),
		quiet:  DefaultQuiet,
		base:   context.Background(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start runs the session-start pass when the account has credentials. Without
// credentials it does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.creds.HasCredentials(ctx) {
		s.log.Debug("skip start sync: no credentials")
		return nil
	}
	_, err := s.run(ctx, TriggerStart)
	return err
}

// SyncNow runs a pass on explicit request.
func (s *Scheduler) SyncNow(ctx context.Context) (cloudsync.Result, error) {
	return s.run(ctx, TriggerManual)
}

// PushNow uploads local state as the authoritative snapshot. It shares the
// one-pass-at-a-time guard with reconciliation.
func (s *Scheduler) PushNow(ctx context.Context) (cloudsync.Result, error) {
	p, ok := s.syncer.(Pusher)
	if !ok {
		return cloudsync.Result{}, ErrPushUnsupported
	}
	return s.pass(ctx, TriggerPush, func(context.Context, bool) (cloudsync.Result, error) {
		return p.Push(ctx, s.local)
	})
}

// NotifyChange schedules a pass after the quiet period. Every call restarts the period.
// Changes are ignored until the first successful pass of the session.
func (s *Scheduler) NotifyChange(f model.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.synced {
		return
	}
	if s.pending != nil {
		s.pending.Stop()
	}
	s.seq++
	id := s.seq
	s.pending = s.timers.AfterFunc(s.quiet, func() { s.debounced(id) })
	s.log.Debug("sync scheduled", "field", f, "in", s.quiet)
}

func (s *Scheduler) debounced(id int) {
	s.mu.Lock()
	if id != s.seq {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	ctx := s.base
	s.mu.Unlock()

	if _, err := s.run(ctx, TriggerChange); errors.Is(err, ErrSyncInProgress) {
		s.log.Debug("debounced sync dropped", "error", err)
	}
}

// Run performs the start pass and then, if an interval is set, reconciles periodically.
// It blocks until ctx is cancelled and cancels any pending debounced pass on return.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()
	defer s.stopPending()

	if err := s.Start(ctx); err != nil {
		s.log.Error("start sync", "error", err)
	}

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if !s.creds.HasCredentials(ctx) {
				continue
			}
			if _, err := s.run(ctx, TriggerInterval); err != nil && !errors.Is(err, ErrSyncInProgress) {
				s.log.Error("periodic sync", "error", err)
			}
		}
	}
}

// Reset forgets the first-sync state, e.g. after the account disconnects. The next pass
// forces remote values again and local changes stop scheduling passes until it succeeds.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.synced = false
	s.gen++
	s.mu.Unlock()
	s.stopPending()
}

// Synced reports whether a pass succeeded since the session started or was reset.
func (s *Scheduler) Synced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced
}

// Syncing reports whether a pass is running.
func (s *Scheduler) Syncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

func (s *Scheduler) stopPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.seq++
}

func (s *Scheduler) run(ctx context.Context, trigger Trigger) (cloudsync.Result, error) {
	return s.pass(ctx, trigger, func(ctx context.Context, force bool) (cloudsync.Result, error) {
		return s.syncer.Reconcile(ctx, s.local, force)
	})
}

func (s *Scheduler) pass(ctx context.Context, trigger Trigger, fn func(context.Context, bool) (cloudsync.Result, error)) (cloudsync.Result, error) {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return cloudsync.Result{}, ErrSyncInProgress
	}
	s.syncing = true
	force := !s.synced
	gen := s.gen
	s.mu.Unlock()

	s.log.Debug("sync started", "trigger", trigger, "force_remote", force)
	res, err := fn(ctx, force)

	s.mu.Lock()
	s.syncing = false
	if err == nil && gen == s.gen {
		s.synced = true
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("sync failed", "trigger", trigger, "error", err)
	} else {
		s.log.Info("sync finished", "trigger", trigger, "created", res.Created,
			"from_remote", len(res.FromRemote), "from_local", len(res.FromLocal),
			"rejected", len(res.Rejected), "skipped", len(res.Skipped))
	}
	if s.notify != nil {
		s.notify.SyncFinished(trigger, res, err)
	}
	return res, err
}
