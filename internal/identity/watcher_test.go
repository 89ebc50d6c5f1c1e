package identity

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestSessionWatcherObservesExternalSignIn(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	sessionFile := filepath.Join(dir, "session.json")

	p := NewProvider(Config{
		APIKey:      "k",
		AccountsURL: "http://unused.invalid",
		TokenURL:    "http://unused.invalid/token",
		SessionFile: sessionFile,
	})

	signedIn := make(chan bool, 4)
	p.OnSessionChanged(func(v bool) { signedIn <- v })

	sw, err := NewSessionWatcher(p)
	if err != nil {
		t.Fatalf("NewSessionWatcher failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sw.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sw.Stop()

	// Simulate another process signing in by writing the session file.
	sess := Session{UID: "uid-x", Email: "x@example.com", RefreshToken: "refresh-x", SignedInAt: time.Now()}
	data, err := json.Marshal(&sess)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(sessionFile, data, 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case v := <-signedIn:
		if !v {
			t.Error("Expected signed-in notification")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for session-changed notification")
	}

	if u := p.CurrentUser(); u == nil || u.UID != "uid-x" {
		t.Errorf("CurrentUser = %+v, want uid-x", u)
	}

	// And the reverse: external sign-out removes the file.
	if err := os.Remove(sessionFile); err != nil {
		t.Fatal(err)
	}
	select {
	case v := <-signedIn:
		if v {
			t.Error("Expected signed-out notification")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for sign-out notification")
	}
}

func TestSessionWatcherStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewProvider(Config{SessionFile: filepath.Join(t.TempDir(), "session.json")})
	sw, err := NewSessionWatcher(p)
	if err != nil {
		t.Fatalf("NewSessionWatcher failed: %v", err)
	}
	if err := sw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sw.Stop()
	sw.Stop()
}
