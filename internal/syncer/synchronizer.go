// Package syncer keeps client-side collection caches converged with the
// backend. Every mutation is optimistic: the cache changes immediately,
// then commits the server's authoritative answer or rolls back to the exact
// pre-mutation state on failure. Authoritative state always lives
// server-side; the cache is only ever a view of the last acknowledged
// response.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bridgenlp/internal/logging"
	"bridgenlp/internal/platform"
)

var (
	// ErrNotLoaded guards mutations and bootstrap against an empty or stale
	// cache: Load must complete first.
	ErrNotLoaded = errors.New("collection not loaded")

	// ErrSessionEnded marks a response that arrived after sign-out and was
	// discarded instead of written into the cache.
	ErrSessionEnded = errors.New("session ended before response arrived")

	// ErrUnknownID means the id is not in the cached collection.
	ErrUnknownID = errors.New("unknown function id")
)

// Source is the server side of one function collection.
// *platform.FunctionClient satisfies it.
type Source interface {
	List(ctx context.Context) ([]platform.Function, error)
	Save(ctx context.Context, fn platform.Function) (platform.Function, error)
	ToggleVisibility(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	AddToLibrary(ctx context.Context, id string) (string, error)
}

// SessionState is the slice of the session store the synchronizer needs:
// whether responses may still be applied, and when to reset between
// sessions. *session.Store satisfies it.
type SessionState interface {
	IsAuthenticated() bool
	Subscribe(fn func(authenticated bool)) func()
}

// SnapshotStore receives the converged collection after each successful
// reconciliation and serves it back when the backend is unreachable.
// *snapshot.Store satisfies it.
type SnapshotStore interface {
	Put(name string, v any)
	Get(name string, out any) (bool, error)
}

// Options configures optional synchronizer collaborators.
type Options struct {
	// Snapshot, when set, persists converged state for offline display.
	Snapshot SnapshotStore
	// Defaults is the ordered seed set created by BootstrapDefaultsIfEmpty.
	Defaults []platform.Function
}

// Synchronizer owns the cache of one (resource kind, visibility filter)
// collection. All cache writes funnel through it; consumers get copies.
type Synchronizer struct {
	name     string
	source   Source
	session  SessionState
	snap     SnapshotStore
	defaults []platform.Function
	log      *zap.SugaredLogger

	mu                 sync.Mutex
	cache              []platform.Function
	loaded             bool
	bootstrapAttempted bool

	entMu    sync.Mutex
	entities map[string]*entityLock
}

// entityLock serializes mutations per entity so a stale response can never
// overwrite a newer optimistic state.
type entityLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a synchronizer for one collection. name scopes log lines and
// snapshots (e.g. "functions.mine"). The synchronizer resets its cache and
// bootstrap latch whenever the session transitions to unauthenticated.
func New(name string, source Source, sess SessionState, opts Options) *Synchronizer {
	s := &Synchronizer{
		name:     name,
		source:   source,
		session:  sess,
		snap:     opts.Snapshot,
		defaults: opts.Defaults,
		log:      logging.Get(logging.CategorySync).With("collection", name),
		entities: map[string]*entityLock{},
	}
	if sess != nil {
		sess.Subscribe(func(authenticated bool) {
			if !authenticated {
				s.reset()
			}
		})
	}
	return s
}

// Functions returns a copy of the cached collection.
func (s *Synchronizer) Functions() []platform.Function {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]platform.Function(nil), s.cache...)
}

// Loaded reports whether a Load has completed for the current session.
func (s *Synchronizer) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Cached returns the last snapshotted state of this collection, for display
// when the backend is unreachable. Reports false when no snapshot store is
// configured or nothing has been snapshotted yet.
func (s *Synchronizer) Cached() ([]platform.Function, bool) {
	if s.snap == nil {
		return nil, false
	}
	var funcs []platform.Function
	ok, err := s.snap.Get(s.name, &funcs)
	if err != nil {
		s.log.Warnw("failed to read snapshot", "err", err)
		return nil, false
	}
	return funcs, ok
}

// Load fetches the authoritative collection and replaces the cache
// wholesale. A response that lands after sign-out is discarded.
func (s *Synchronizer) Load(ctx context.Context) ([]platform.Function, error) {
	funcs, err := s.source.List(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if !s.authenticated() {
		s.mu.Unlock()
		s.log.Infow("discarding load that settled after sign-out")
		return nil, ErrSessionEnded
	}
	s.cache = append([]platform.Function(nil), funcs...)
	s.loaded = true
	snapshot := append([]platform.Function(nil), s.cache...)
	s.mu.Unlock()

	s.persist(snapshot)
	return snapshot, nil
}

// Create optimistically appends the draft and issues the server create. On
// success the draft is replaced by the persisted entity, matched by its
// draft key since the draft has no id yet. On failure the ghost entry is
// removed: the cache never retains an unpersisted entry after a failed
// create.
func (s *Synchronizer) Create(ctx context.Context, draft platform.Function) (platform.Function, error) {
	if err := s.requireLoaded(); err != nil {
		return platform.Function{}, err
	}
	draft.ID = ""
	if draft.DraftKey == "" {
		draft.DraftKey = uuid.NewString()
	}

	release := s.lockEntity(draft.DraftKey)
	defer release()

	s.mu.Lock()
	s.cache = append(s.cache, draft)
	s.mu.Unlock()

	persisted, err := s.source.Save(ctx, draft)

	s.mu.Lock()
	if err != nil {
		s.removeByDraftKeyLocked(draft.DraftKey)
		s.mu.Unlock()
		return platform.Function{}, err
	}
	persisted.DraftKey = draft.DraftKey
	live := s.authenticated()
	if live {
		if i := s.indexByDraftKeyLocked(draft.DraftKey); i >= 0 {
			s.cache[i] = persisted
		}
	}
	snapshot := append([]platform.Function(nil), s.cache...)
	s.mu.Unlock()

	if live {
		s.persist(snapshot)
	}
	return persisted, nil
}

// Update optimistically applies the edited function (identified by its id)
// and reverts to the pre-patch snapshot on failure.
func (s *Synchronizer) Update(ctx context.Context, updated platform.Function) (platform.Function, error) {
	if err := s.requireLoaded(); err != nil {
		return platform.Function{}, err
	}
	if !updated.Persisted() {
		return platform.Function{}, fmt.Errorf("update requires a persisted function: %w", ErrUnknownID)
	}

	release := s.lockEntity(updated.ID)
	defer release()

	s.mu.Lock()
	i := s.indexByIDLocked(updated.ID)
	if i < 0 {
		s.mu.Unlock()
		return platform.Function{}, fmt.Errorf("%w: %s", ErrUnknownID, updated.ID)
	}
	before := s.cache[i]
	s.cache[i] = updated
	s.mu.Unlock()

	persisted, err := s.source.Save(ctx, updated)

	s.mu.Lock()
	if err != nil {
		if j := s.indexByIDLocked(updated.ID); j >= 0 {
			s.cache[j] = before
		}
		s.mu.Unlock()
		return platform.Function{}, err
	}
	live := s.authenticated()
	if live {
		if j := s.indexByIDLocked(updated.ID); j >= 0 {
			s.cache[j] = persisted
		}
	}
	snapshot := append([]platform.Function(nil), s.cache...)
	s.mu.Unlock()

	if live {
		s.persist(snapshot)
	}
	return persisted, nil
}

// ToggleVisibility optimistically flips the public flag. On success the
// cache adopts the server's authoritative boolean, which is not necessarily
// the optimistic flip: a concurrent change elsewhere may have landed first.
// On failure the flag reverts.
func (s *Synchronizer) ToggleVisibility(ctx context.Context, id string) (bool, error) {
	if err := s.requireLoaded(); err != nil {
		return false, err
	}

	release := s.lockEntity(id)
	defer release()

	s.mu.Lock()
	i := s.indexByIDLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	before := s.cache[i].IsPublic
	s.cache[i].IsPublic = !before
	s.mu.Unlock()

	authoritative, err := s.source.ToggleVisibility(ctx, id)

	s.mu.Lock()
	if err != nil {
		if j := s.indexByIDLocked(id); j >= 0 {
			s.cache[j].IsPublic = before
		}
		s.mu.Unlock()
		return false, err
	}
	live := s.authenticated()
	if live {
		if j := s.indexByIDLocked(id); j >= 0 {
			s.cache[j].IsPublic = authoritative
		}
	}
	snapshot := append([]platform.Function(nil), s.cache...)
	s.mu.Unlock()

	if live {
		s.persist(snapshot)
	}
	return authoritative, nil
}

// Delete optimistically removes the entry and re-inserts it at its original
// position on failure.
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	if err := s.requireLoaded(); err != nil {
		return err
	}

	release := s.lockEntity(id)
	defer release()

	s.mu.Lock()
	i := s.indexByIDLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	removed := s.cache[i]
	s.cache = append(s.cache[:i], s.cache[i+1:]...)
	s.mu.Unlock()

	err := s.source.Delete(ctx, id)

	s.mu.Lock()
	if err != nil {
		j := i
		if j > len(s.cache) {
			j = len(s.cache)
		}
		s.cache = append(s.cache[:j], append([]platform.Function{removed}, s.cache[j:]...)...)
		s.mu.Unlock()
		return err
	}
	live := s.authenticated()
	snapshot := append([]platform.Function(nil), s.cache...)
	s.mu.Unlock()

	if live {
		s.persist(snapshot)
	}
	return nil
}

// AddToLibrary copies a function from this collection into the caller's
// private library. This collection's cache is untouched: the copy lands in
// a different collection, which converges on its next Load. Returns the
// server's confirmation message.
func (s *Synchronizer) AddToLibrary(ctx context.Context, id string) (string, error) {
	if err := s.requireLoaded(); err != nil {
		return "", err
	}

	release := s.lockEntity(id)
	defer release()

	s.mu.Lock()
	known := s.indexByIDLocked(id) >= 0
	s.mu.Unlock()
	if !known {
		return "", fmt.Errorf("%w: %s", ErrUnknownID, id)
	}

	msg, err := s.source.AddToLibrary(ctx, id)
	if err != nil {
		return "", err
	}
	s.log.Infow("copied function to library", "id", id)
	return msg, nil
}

// BootstrapDefaultsIfEmpty seeds the default functions when a completed
// Load observed an empty collection. It runs at most once per authenticated
// session: the latch is set before any network call is issued, so a second
// concurrent trigger observes it and skips. Defaults are created
// sequentially; a failing default is logged and does not roll back earlier
// ones or abort the final refresh.
func (s *Synchronizer) BootstrapDefaultsIfEmpty(ctx context.Context) error {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	if s.bootstrapAttempted || len(s.cache) > 0 || len(s.defaults) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.bootstrapAttempted = true
	s.mu.Unlock()

	s.log.Infow("seeding default functions", "count", len(s.defaults))
	for _, def := range s.defaults {
		if _, err := s.source.Save(ctx, def); err != nil {
			s.log.Warnw("failed to create default function", "name", def.Name, "err", err)
		}
	}

	if _, err := s.Load(ctx); err != nil {
		return fmt.Errorf("refresh after bootstrap: %w", err)
	}
	return nil
}

// reset drops per-session state after sign-out.
func (s *Synchronizer) reset() {
	s.mu.Lock()
	s.cache = nil
	s.loaded = false
	s.bootstrapAttempted = false
	s.mu.Unlock()
	s.log.Debugw("cache reset on sign-out")
}

func (s *Synchronizer) requireLoaded() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNotLoaded
	}
	return nil
}

// authenticated reports whether responses may still be applied. Caller
// holds s.mu; SessionState implementations must not call back into the
// synchronizer.
func (s *Synchronizer) authenticated() bool {
	return s.session == nil || s.session.IsAuthenticated()
}

func (s *Synchronizer) indexByIDLocked(id string) int {
	for i := range s.cache {
		if s.cache[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Synchronizer) indexByDraftKeyLocked(key string) int {
	for i := range s.cache {
		if s.cache[i].DraftKey == key {
			return i
		}
	}
	return -1
}

func (s *Synchronizer) removeByDraftKeyLocked(key string) {
	if i := s.indexByDraftKeyLocked(key); i >= 0 {
		s.cache = append(s.cache[:i], s.cache[i+1:]...)
	}
}

func (s *Synchronizer) persist(funcs []platform.Function) {
	if s.snap == nil {
		return
	}
	s.snap.Put(s.name, funcs)
}

// lockEntity acquires the per-entity mutation lock. A mutation on an id
// already in flight queues behind the prior one's reconciliation rather
// than racing it.
func (s *Synchronizer) lockEntity(key string) func() {
	s.entMu.Lock()
	l, ok := s.entities[key]
	if !ok {
		l = &entityLock{}
		s.entities[key] = l
	}
	l.refs++
	s.entMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.entMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.entities, key)
		}
		s.entMu.Unlock()
	}
}
