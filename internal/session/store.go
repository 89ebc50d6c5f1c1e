// Package session holds the process-wide session store: a single owned
// state object whose only writers are the credential provider's
// session-changed notifications and the explicit sign-out path. UI and
// command code read it through IsAuthenticated and Subscribe, never by
// direct assignment.
package session

import (
	"errors"
	"fmt"
	"sync"

	"bridgenlp/internal/identity"
	"bridgenlp/internal/logging"
)

// ErrNotInitialized is returned by operations that need the credential
// provider before EnsureInitialized has completed.
var ErrNotInitialized = errors.New("session store not initialized")

// Provider is the slice of the credential provider the store depends on.
// *identity.Provider satisfies it.
type Provider interface {
	CurrentUser() *identity.User
	OnSessionChanged(fn func(signedIn bool)) func()
	SignOut() error
}

type state int

const (
	stateUninitialized state = iota
	stateInitializing
	stateReady
)

// Store is the session store. Use Default for the process-wide instance.
type Store struct {
	initMu sync.Mutex // serializes provider construction

	mu            sync.Mutex
	st            state
	authenticated bool
	provider      Provider

	subs    map[int]func(authenticated bool)
	nextSub int
}

var (
	defaultOnce  sync.Once
	defaultStore *Store
)

// Default returns the process-wide store.
func Default() *Store {
	defaultOnce.Do(func() {
		defaultStore = NewStore()
	})
	return defaultStore
}

// NewStore creates an uninitialized store. Library consumers normally use
// Default; direct construction exists for tests.
func NewStore() *Store {
	return &Store{subs: map[int]func(bool){}}
}

// EnsureInitialized constructs the credential provider on first call and is
// a no-op afterwards. The provider is built exactly once per process
// lifetime; rebuilding it would duplicate listeners and double-fire session
// events. Concurrent callers block until the first construction completes.
func (s *Store) EnsureInitialized(factory func() (Provider, error)) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	s.mu.Lock()
	if s.st == stateReady {
		s.mu.Unlock()
		return nil
	}
	s.st = stateInitializing
	s.mu.Unlock()

	provider, err := factory()
	if err != nil {
		s.mu.Lock()
		s.st = stateUninitialized
		s.mu.Unlock()
		return fmt.Errorf("failed to construct credential provider: %w", err)
	}

	provider.OnSessionChanged(s.onSessionChanged)
	authenticated := provider.CurrentUser() != nil

	s.mu.Lock()
	s.provider = provider
	s.st = stateReady
	s.mu.Unlock()

	// Seed from the persisted session, through the same notification path
	// every other write uses.
	s.setAuthenticated(authenticated)

	logging.Get(logging.CategorySession).Infow("session store ready", "authenticated", authenticated)
	return nil
}

// IsInitialized reports whether the store is READY.
func (s *Store) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st == stateReady
}

// IsAuthenticated reports whether a user is signed in.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Provider returns the credential provider, or nil before initialization.
func (s *Store) Provider() Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

// SignOut calls the provider's sign-out, then unconditionally forces the
// local state to unauthenticated: even when the provider call fails or races
// a concurrent session-changed notification, signing out never leaves the
// store authenticated.
func (s *Store) SignOut() error {
	s.mu.Lock()
	if s.st != stateReady {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	provider := s.provider
	s.mu.Unlock()

	err := provider.SignOut()
	s.setAuthenticated(false)

	if err != nil {
		logging.Get(logging.CategorySession).Warnw("remote sign-out failed, local session cleared anyway", "err", err)
		return fmt.Errorf("sign-out: %w", err)
	}
	return nil
}

// Subscribe registers a callback fired on every authenticated-state change.
// The returned function deregisters it.
func (s *Store) Subscribe(fn func(authenticated bool)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) onSessionChanged(signedIn bool) {
	s.setAuthenticated(signedIn)
}

func (s *Store) setAuthenticated(v bool) {
	s.mu.Lock()
	if s.authenticated == v {
		s.mu.Unlock()
		return
	}
	s.authenticated = v
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
