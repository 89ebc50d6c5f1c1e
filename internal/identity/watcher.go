package identity

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"bridgenlp/internal/logging"
)

// SessionWatcher watches the persisted session file so a sign-in or sign-out
// performed by another process on the same machine surfaces as a
// session-changed notification here. Events are debounced because editors
// and atomic writes produce bursts.
type SessionWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	provider *Provider
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewSessionWatcher creates a watcher for the provider's session file.
func NewSessionWatcher(p *Provider) (*SessionWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &SessionWatcher{
		watcher:  w,
		provider: p,
		debounce: 250 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watch loop runs in a goroutine
// until Stop is called or ctx is cancelled.
func (sw *SessionWatcher) Start(ctx context.Context) error {
	sw.mu.Lock()
	if sw.running {
		sw.mu.Unlock()
		return nil
	}
	sw.running = true
	sw.mu.Unlock()

	dir := filepath.Dir(sw.provider.sessionFile)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	// Watch the directory, not the file: the file may not exist yet and
	// atomic replaces change its inode.
	if err := sw.watcher.Add(dir); err != nil {
		return err
	}

	go sw.loop(ctx)
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (sw *SessionWatcher) Stop() {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return
	}
	sw.running = false
	sw.mu.Unlock()

	close(sw.stopCh)
	<-sw.doneCh
	_ = sw.watcher.Close()
}

func (sw *SessionWatcher) loop(ctx context.Context) {
	defer close(sw.doneCh)

	log := logging.Get(logging.CategorySession)
	target := sw.provider.sessionFile

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.stopCh:
			return
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(target) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(sw.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(sw.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			sw.provider.reloadFromDisk()
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			log.Warnw("session watcher error", "err", err)
		}
	}
}
