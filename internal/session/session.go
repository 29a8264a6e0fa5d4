// Package session wires one account's collection store, remote namespace and sync
// scheduler together.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"animepicker/internal/cloudsync"
	"animepicker/internal/collection"
	"animepicker/internal/remote"
	"animepicker/internal/scheduler"
	"animepicker/internal/storage"
)

// ErrNotConnected is returned by sync operations of accounts without credentials.
var ErrNotConnected = errors.New("cloud sync is not connected")

// Credentials keeps an account's remote access token in the key-value store.
type Credentials struct {
	kv      storage.KV
	account string
}

func tokenKey(account string) string {
	return account + "_cloud_token"
}

// Token returns the stored token, or "" when none is stored.
func (c *Credentials) Token(ctx context.Context) (string, error) {
	v, ok, err := c.kv.Get(ctx, tokenKey(c.account))
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	if !ok {
		return "", nil
	}
	return v, nil
}

// HasCredentials reports whether a token is stored.
func (c *Credentials) HasCredentials(ctx context.Context) bool {
	tok, err := c.Token(ctx)
	return err == nil && tok != ""
}

// Set stores token.
func (c *Credentials) Set(ctx context.Context, token string) error {
	if err := c.kv.Set(ctx, tokenKey(c.account), token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// Clear removes the token.
func (c *Credentials) Clear(ctx context.Context) error {
	if err := c.kv.Remove(ctx, tokenKey(c.account)); err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// remoteSyncer opens the namespace with the current token on every pass, so a
// reconnect with another token takes effect immediately.
type remoteSyncer struct {
	provider remote.Provider
	account  string
	creds    *Credentials
	timeout  time.Duration
	opts     []cloudsync.Option
}

func (s *remoteSyncer) reconciler(ctx context.Context) (*cloudsync.Reconciler, error) {
	tok, err := s.creds.Token(ctx)
	if err != nil {
		return nil, err
	}
	if tok == "" {
		return nil, ErrNotConnected
	}
	store, err := s.provider.Open(s.account, tok)
	if err != nil {
		return nil, err
	}
	return cloudsync.NewReconciler(store, s.opts...), nil
}

func (s *remoteSyncer) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *remoteSyncer) Reconcile(ctx context.Context, local cloudsync.Local, forceRemote bool) (cloudsync.Result, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	r, err := s.reconciler(ctx)
	if err != nil {
		return cloudsync.Result{}, err
	}
	return r.Reconcile(ctx, local, forceRemote)
}

func (s *remoteSyncer) Push(ctx context.Context, local cloudsync.Local) (cloudsync.Result, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	r, err := s.reconciler(ctx)
	if err != nil {
		return cloudsync.Result{}, err
	}
	return r.Push(ctx, local)
}

// Session is one account's live state.
type Session struct {
	Account string
	Store   *collection.Store
	Sched   *scheduler.Scheduler
	creds   *Credentials

	mu        sync.Mutex
	cancelGen context.CancelFunc
	genID     int
}

// Connect stores token and runs the first pass of a new sync session, in which remote
// values win.
func (s *Session) Connect(ctx context.Context, token string) (cloudsync.Result, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return cloudsync.Result{}, ErrNotConnected
	}
	if err := s.creds.Set(ctx, token); err != nil {
		return cloudsync.Result{}, err
	}
	s.Sched.Reset()
	return s.Sched.SyncNow(ctx)
}

// Disconnect forgets the token and ends the sync session. Local data is kept.
func (s *Session) Disconnect(ctx context.Context) error {
	if err := s.creds.Clear(ctx); err != nil {
		return err
	}
	s.Sched.Reset()
	return nil
}

// Connected reports whether the account has a token.
func (s *Session) Connected(ctx context.Context) bool {
	return s.creds.HasCredentials(ctx)
}

// Sync runs a pass now.
func (s *Session) Sync(ctx context.Context) (cloudsync.Result, error) {
	if !s.Connected(ctx) {
		return cloudsync.Result{}, ErrNotConnected
	}
	return s.Sched.SyncNow(ctx)
}

// Push overwrites the remote snapshot with local state.
func (s *Session) Push(ctx context.Context) (cloudsync.Result, error) {
	if !s.Connected(ctx) {
		return cloudsync.Result{}, ErrNotConnected
	}
	return s.Sched.PushNow(ctx)
}

// BeginGeneration returns a context for a generation request, cancelling the previous
// one still running for this account.
func (s *Session) BeginGeneration(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancelGen != nil {
		s.cancelGen()
	}
	s.cancelGen = cancel
	s.genID++
	id := s.genID
	s.mu.Unlock()

	done := func() {
		cancel()
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.genID == id {
			s.cancelGen = nil
		}
	}
	return ctx, done
}

// CancelGeneration cancels the running generation request. It reports whether one was running.
func (s *Session) CancelGeneration() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelGen == nil {
		return false
	}
	s.cancelGen()
	s.cancelGen = nil
	return true
}
