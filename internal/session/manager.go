package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"animepicker/internal/cloudsync"
	"animepicker/internal/collection"
	"animepicker/internal/remote"
	"animepicker/internal/scheduler"
	"animepicker/internal/storage"
)

// Manager opens sessions on first use and keeps them for the life of the process.
type Manager struct {
	kv       storage.KV
	provider remote.Provider
	log      *slog.Logger
	quiet    time.Duration
	interval time.Duration
	timeout  time.Duration
	notifier func(account string) scheduler.Notifier

	storeOpts []collection.Option
	reconOpts []cloudsync.Option
	schedOpts []scheduler.Option

	mu       sync.Mutex
	base     context.Context
	wg       sync.WaitGroup
	sessions map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithQuiet sets the debounce period of local changes.
func WithQuiet(d time.Duration) Option {
	return func(m *Manager) { m.quiet = d }
}

// WithInterval enables periodic passes.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// WithSyncTimeout bounds every pass.
func WithSyncTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithNotifier sets a factory for per-account pass notifications.
func WithNotifier(fn func(account string) scheduler.Notifier) Option {
	return func(m *Manager) { m.notifier = fn }
}

// WithStoreOptions passes options to every opened collection store.
func WithStoreOptions(opts ...collection.Option) Option {
	return func(m *Manager) { m.storeOpts = append(m.storeOpts, opts...) }
}

// WithReconcilerOptions passes options to every reconciler.
func WithReconcilerOptions(opts ...cloudsync.Option) Option {
	return func(m *Manager) { m.reconOpts = append(m.reconOpts, opts...) }
}

// WithSchedulerOptions passes options to every scheduler.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(m *Manager) { m.schedOpts = append(m.schedOpts, opts...) }
}

// NewManager creates a Manager.
func NewManager(kv storage.KV, provider remote.Provider, opts ...Option) *Manager {
	m := &Manager{
		kv:       kv,
		provider: provider,
		log:      slog.Default(),
		quiet:    scheduler.DefaultQuiet,
		sessions: make(map[string]*Session),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Get returns the session of account, opening it on first use. Sessions opened while
// Run is active start their scheduler immediately; after Run returns they stay idle.
func (m *Manager) Get(ctx context.Context, account string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[account]; ok {
		return s, nil
	}

	log := m.log.With("account", account)
	storeOpts := append([]collection.Option{collection.WithLogger(log)}, m.storeOpts...)
	store, err := collection.Open(ctx, m.kv, account, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("open collections: %w", err)
	}

	creds := &Credentials{kv: m.kv, account: account}
	syncer := &remoteSyncer{
		provider: m.provider,
		account:  account,
		creds:    creds,
		timeout:  m.timeout,
		opts:     append([]cloudsync.Option{cloudsync.WithLogger(log)}, m.reconOpts...),
	}
	schedOpts := []scheduler.Option{
		scheduler.WithLogger(log),
		scheduler.WithQuiet(m.quiet),
		scheduler.WithInterval(m.interval),
	}
	if m.notifier != nil {
		if n := m.notifier(account); n != nil {
			schedOpts = append(schedOpts, scheduler.WithNotifier(n))
		}
	}
	sched := scheduler.New(syncer, store, creds, append(schedOpts, m.schedOpts...)...)
	store.SetOnChange(sched.NotifyChange)

	s := &Session{Account: account, Store: store, Sched: sched, creds: creds}
	m.sessions[account] = s
	if m.base != nil {
		m.start(s)
	}
	log.Debug("session opened")
	return s, nil
}

// start must be called with m.mu held.
func (m *Manager) start(s *Session) {
	ctx := m.base
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.Sched.Run(ctx)
	}()
}

// Run starts the schedulers of all sessions, present and future, and blocks until ctx
// is cancelled and every scheduler has stopped.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	m.base = ctx
	for _, s := range m.sessions {
		m.start(s)
	}
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	m.base = nil
	for _, s := range m.sessions {
		s.CancelGeneration()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
