package session

import (
	"errors"
	"sync"
	"testing"

	"bridgenlp/internal/identity"
)

// fakeProvider is a scriptable credential provider.
type fakeProvider struct {
	mu         sync.Mutex
	user       *identity.User
	listeners  []func(bool)
	signOuts   int
	signOutErr error
}

func (f *fakeProvider) CurrentUser() *identity.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

func (f *fakeProvider) OnSessionChanged(fn func(bool)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
	return func() {}
}

func (f *fakeProvider) SignOut() error {
	f.mu.Lock()
	f.signOuts++
	f.user = nil
	err := f.signOutErr
	fns := append([]func(bool){}, f.listeners...)
	f.mu.Unlock()
	if err == nil {
		for _, fn := range fns {
			fn(false)
		}
	}
	return err
}

func (f *fakeProvider) signIn(uid string) {
	f.mu.Lock()
	f.user = &identity.User{UID: uid, Email: uid + "@example.com"}
	fns := append([]func(bool){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(true)
	}
}

func TestEnsureInitializedIsIdempotent(t *testing.T) {
	s := NewStore()
	fp := &fakeProvider{}

	factoryCalls := 0
	factory := func() (Provider, error) {
		factoryCalls++
		return fp, nil
	}

	if err := s.EnsureInitialized(factory); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}
	if err := s.EnsureInitialized(factory); err != nil {
		t.Fatalf("Second EnsureInitialized failed: %v", err)
	}
	if factoryCalls != 1 {
		t.Errorf("Provider constructed %d times, want exactly once", factoryCalls)
	}
	if !s.IsInitialized() {
		t.Error("Store should be READY")
	}
	if s.IsAuthenticated() {
		t.Error("No persisted session: store should be unauthenticated")
	}
}

func TestEnsureInitializedConcurrent(t *testing.T) {
	s := NewStore()
	fp := &fakeProvider{}

	var mu sync.Mutex
	factoryCalls := 0
	factory := func() (Provider, error) {
		mu.Lock()
		factoryCalls++
		mu.Unlock()
		return fp, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.EnsureInitialized(factory)
		}()
	}
	wg.Wait()

	if factoryCalls != 1 {
		t.Errorf("Provider constructed %d times under concurrency, want 1", factoryCalls)
	}
}

func TestEnsureInitializedFactoryFailureIsRetryable(t *testing.T) {
	s := NewStore()
	boom := errors.New("boom")

	if err := s.EnsureInitialized(func() (Provider, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("Expected factory error, got %v", err)
	}
	if s.IsInitialized() {
		t.Error("Failed init must not mark the store READY")
	}

	fp := &fakeProvider{}
	if err := s.EnsureInitialized(func() (Provider, error) { return fp, nil }); err != nil {
		t.Fatalf("Retry after failed init failed: %v", err)
	}
	if !s.IsInitialized() {
		t.Error("Store should be READY after successful retry")
	}
}

func TestAuthenticatedSeededFromPersistedSession(t *testing.T) {
	s := NewStore()
	fp := &fakeProvider{user: &identity.User{UID: "uid-1"}}

	if err := s.EnsureInitialized(func() (Provider, error) { return fp, nil }); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}
	if !s.IsAuthenticated() {
		t.Error("Persisted session should seed authenticated=true")
	}
}

func TestAuthenticatedFollowsProviderNotifications(t *testing.T) {
	s := NewStore()
	fp := &fakeProvider{}
	if err := s.EnsureInitialized(func() (Provider, error) { return fp, nil }); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}

	var observed []bool
	s.Subscribe(func(v bool) { observed = append(observed, v) })

	fp.signIn("uid-1")
	if !s.IsAuthenticated() {
		t.Error("Sign-in notification should authenticate the store")
	}

	if err := s.SignOut(); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if s.IsAuthenticated() {
		t.Error("Store should be unauthenticated after sign-out")
	}
	if len(observed) != 2 || observed[0] != true || observed[1] != false {
		t.Errorf("Subscriber observed %v, want [true false]", observed)
	}
}

func TestSignOutForcesFalseEvenWhenProviderFails(t *testing.T) {
	s := NewStore()
	fp := &fakeProvider{user: &identity.User{UID: "uid-1"}, signOutErr: errors.New("disk full")}

	if err := s.EnsureInitialized(func() (Provider, error) { return fp, nil }); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}
	if !s.IsAuthenticated() {
		t.Fatal("Precondition: authenticated")
	}

	err := s.SignOut()
	if err == nil {
		t.Error("Provider failure must be surfaced")
	}
	if s.IsAuthenticated() {
		t.Error("Store must never stay authenticated after SignOut, even on provider failure")
	}
	if fp.signOuts != 1 {
		t.Errorf("Provider SignOut called %d times, want 1", fp.signOuts)
	}
}

func TestSignOutBeforeInit(t *testing.T) {
	s := NewStore()
	if err := s.SignOut(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestSubscribeDeregistration(t *testing.T) {
	s := NewStore()
	fp := &fakeProvider{}
	if err := s.EnsureInitialized(func() (Provider, error) { return fp, nil }); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}

	fired := 0
	unsub := s.Subscribe(func(bool) { fired++ })
	unsub()

	fp.signIn("uid-1")
	if fired != 0 {
		t.Errorf("Deregistered subscriber fired %d times", fired)
	}
}
