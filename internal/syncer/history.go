package syncer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"bridgenlp/internal/logging"
	"bridgenlp/internal/platform"
)

// HistorySource is the server side of the execution history.
// *platform.HistoryClient satisfies it.
type HistorySource interface {
	List(ctx context.Context) ([]platform.Execution, error)
	Repeat(ctx context.Context, executionID string) (result, newID string, err error)
}

// History caches the read-only execution history. Unlike the function
// collections there are no optimistic mutations: a repeat creates a new
// record server-side and the cache converges via a refresh.
type History struct {
	name    string
	source  HistorySource
	session SessionState
	snap    SnapshotStore
	log     *zap.SugaredLogger

	mu     sync.Mutex
	cache  []platform.Execution
	loaded bool
}

// NewHistory creates the history controller. The cache resets on sign-out.
func NewHistory(name string, source HistorySource, sess SessionState, snap SnapshotStore) *History {
	h := &History{
		name:    name,
		source:  source,
		session: sess,
		snap:    snap,
		log:     logging.Get(logging.CategorySync).With("collection", name),
	}
	if sess != nil {
		sess.Subscribe(func(authenticated bool) {
			if !authenticated {
				h.mu.Lock()
				h.cache = nil
				h.loaded = false
				h.mu.Unlock()
			}
		})
	}
	return h
}

// Records returns a copy of the cached executions.
func (h *History) Records() []platform.Execution {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]platform.Execution(nil), h.cache...)
}

// Filter returns the cached executions whose function name contains the
// query, case-insensitively.
func (h *History) Filter(query string) []platform.Execution {
	return platform.SearchExecutions(h.Records(), query)
}

// Cached returns the last snapshotted execution history, for display when
// the backend is unreachable.
func (h *History) Cached() ([]platform.Execution, bool) {
	if h.snap == nil {
		return nil, false
	}
	var execs []platform.Execution
	ok, err := h.snap.Get(h.name, &execs)
	if err != nil {
		h.log.Warnw("failed to read snapshot", "err", err)
		return nil, false
	}
	return execs, ok
}

// Loaded reports whether a Load has completed for the current session.
func (h *History) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded
}

// Load fetches the execution history and replaces the cache wholesale. A
// response that lands after sign-out is discarded.
func (h *History) Load(ctx context.Context) ([]platform.Execution, error) {
	execs, err := h.source.List(ctx)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.session != nil && !h.session.IsAuthenticated() {
		h.mu.Unlock()
		h.log.Infow("discarding history load that settled after sign-out")
		return nil, ErrSessionEnded
	}
	h.cache = append([]platform.Execution(nil), execs...)
	h.loaded = true
	snapshot := append([]platform.Execution(nil), h.cache...)
	h.mu.Unlock()

	if h.snap != nil {
		h.snap.Put(h.name, snapshot)
	}
	return snapshot, nil
}

// Repeat re-runs a past execution and refreshes the cache so the new record
// appears. The result is returned even when the refresh fails; the cache
// simply stays one record behind until the next Load.
func (h *History) Repeat(ctx context.Context, executionID string) (string, error) {
	result, newID, err := h.source.Repeat(ctx, executionID)
	if err != nil {
		return "", err
	}
	h.log.Infow("repeated execution", "source", executionID, "new", newID)

	if _, err := h.Load(ctx); err != nil {
		h.log.Warnw("refresh after repeat failed", "err", err)
	}
	return result, nil
}
