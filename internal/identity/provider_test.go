package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// fakeIdentityServer serves both the accounts and token endpoints.
type fakeIdentityServer struct {
	*httptest.Server
	signIns        atomic.Int64
	tokenExchanges atomic.Int64
	rejectTokens   atomic.Bool
}

func newFakeIdentityServer(t *testing.T) *fakeIdentityServer {
	t.Helper()
	fs := &fakeIdentityServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/accounts:signInWithPassword", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if body.Password != "hunter2" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"INVALID_PASSWORD"}}`)
			return
		}
		fs.signIns.Add(1)
		fmt.Fprintf(w, `{"idToken":"id-initial","email":%q,"refreshToken":"refresh-1","localId":"uid-1"}`, body.Email)
	})
	mux.HandleFunc("/accounts:signUp", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"idToken":"id-new","email":"new@example.com","refreshToken":"refresh-new","localId":"uid-new"}`)
	})
	mux.HandleFunc("/accounts:sendOobCode", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RequestType string `json:"requestType"`
			Email       string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RequestType != "PASSWORD_RESET" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"INVALID_REQ_TYPE"}}`)
			return
		}
		if body.Email == "unknown@example.com" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"EMAIL_NOT_FOUND"}}`)
			return
		}
		fmt.Fprintf(w, `{"email":%q}`, body.Email)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if fs.rejectTokens.Load() {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"TOKEN_EXPIRED"}}`)
			return
		}
		n := fs.tokenExchanges.Add(1)
		fmt.Fprintf(w, `{"id_token":"id-%d","refresh_token":"refresh-1"}`, n)
	})

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Server.Close)
	return fs
}

func newTestProvider(t *testing.T, fs *fakeIdentityServer) *Provider {
	t.Helper()
	return NewProvider(Config{
		APIKey:      "test-key",
		AccountsURL: fs.URL,
		TokenURL:    fs.URL + "/token",
		SessionFile: filepath.Join(t.TempDir(), "session.json"),
	})
}

func TestSignInPersistsSessionAndNotifies(t *testing.T) {
	fs := newFakeIdentityServer(t)
	p := newTestProvider(t, fs)

	var fired int
	var observedSignedIn bool
	p.OnSessionChanged(func(signedIn bool) {
		fired++
		observedSignedIn = signedIn
	})

	res, err := p.SignInWithPassword(context.Background(), "a@example.com", "hunter2")
	if err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	if res.IDToken != "id-initial" {
		t.Errorf("Expected initial ID token, got %q", res.IDToken)
	}
	if fired != 1 {
		t.Errorf("Expected exactly one session-changed notification, got %d", fired)
	}
	if !observedSignedIn {
		t.Error("Listener should observe signed-in state")
	}

	// Session must already be readable when the listener has fired.
	user := p.CurrentUser()
	if user == nil || user.UID != "uid-1" {
		t.Fatalf("CurrentUser = %+v, want uid-1", user)
	}

	// Persisted session survives a new provider instance.
	p2 := NewProvider(Config{
		APIKey:      "test-key",
		AccountsURL: fs.URL,
		TokenURL:    fs.URL + "/token",
		SessionFile: p.sessionFile,
	})
	if u := p2.CurrentUser(); u == nil || u.Email != "a@example.com" {
		t.Errorf("Persisted session not loaded, got %+v", u)
	}

	// Session file must not be world-readable.
	info, err := os.Stat(p.sessionFile)
	if err != nil {
		t.Fatalf("Session file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Session file mode = %o, want 0600", perm)
	}
}

func TestRequestPasswordReset(t *testing.T) {
	fs := newFakeIdentityServer(t)
	p := newTestProvider(t, fs)

	if err := p.RequestPasswordReset(context.Background(), "a@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	err := p.RequestPasswordReset(context.Background(), "unknown@example.com")
	var credErr *CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("Expected CredentialError, got %v", err)
	}
	if credErr.Message != "EMAIL_NOT_FOUND" {
		t.Errorf("Message = %q, want EMAIL_NOT_FOUND", credErr.Message)
	}
}

func TestSignInRejected(t *testing.T) {
	fs := newFakeIdentityServer(t)
	p := newTestProvider(t, fs)

	_, err := p.SignInWithPassword(context.Background(), "a@example.com", "wrong")
	var ce *CredentialError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected CredentialError, got %v", err)
	}
	if ce.Message != "INVALID_PASSWORD" {
		t.Errorf("Expected INVALID_PASSWORD, got %q", ce.Message)
	}
	if p.CurrentUser() != nil {
		t.Error("Failed sign-in must not establish a session")
	}
}

func TestFreshTokenMintsPerCall(t *testing.T) {
	fs := newFakeIdentityServer(t)
	p := newTestProvider(t, fs)

	if _, err := p.SignInWithPassword(context.Background(), "a@example.com", "hunter2"); err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}

	t1, err := p.FreshToken(context.Background())
	if err != nil {
		t.Fatalf("FreshToken failed: %v", err)
	}
	t2, err := p.FreshToken(context.Background())
	if err != nil {
		t.Fatalf("FreshToken failed: %v", err)
	}
	if t1 == t2 {
		t.Errorf("Tokens must be minted per call, got %q twice", t1)
	}
	if got := fs.tokenExchanges.Load(); got != 2 {
		t.Errorf("Expected 2 token exchanges, got %d", got)
	}
}

func TestFreshTokenWithoutSession(t *testing.T) {
	fs := newFakeIdentityServer(t)
	p := newTestProvider(t, fs)

	_, err := p.FreshToken(context.Background())
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("Expected ErrNoSession, got %v", err)
	}
	if got := fs.tokenExchanges.Load(); got != 0 {
		t.Errorf("No network call expected, got %d exchanges", got)
	}
}

func TestFreshTokenRejected(t *testing.T) {
	fs := newFakeIdentityServer(t)
	p := newTestProvider(t, fs)

	if _, err := p.SignInWithPassword(context.Background(), "a@example.com", "hunter2"); err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	fs.rejectTokens.Store(true)

	_, err := p.FreshToken(context.Background())
	var ce *CredentialError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected CredentialError, got %v", err)
	}
	if ce.Op != "token" || ce.Message != "TOKEN_EXPIRED" {
		t.Errorf("Unexpected credential error: %+v", ce)
	}
}

func TestSignOutClearsSessionAndNotifies(t *testing.T) {
	fs := newFakeIdentityServer(t)
	p := newTestProvider(t, fs)

	if _, err := p.SignInWithPassword(context.Background(), "a@example.com", "hunter2"); err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}

	var signedOut bool
	p.OnSessionChanged(func(signedIn bool) { signedOut = !signedIn })

	if err := p.SignOut(); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if p.CurrentUser() != nil {
		t.Error("Session must be cleared after sign-out")
	}
	if !signedOut {
		t.Error("Listener should observe sign-out")
	}
	if _, err := os.Stat(p.sessionFile); !os.IsNotExist(err) {
		t.Error("Session file should be removed")
	}

	// Second sign-out is a no-op and must not re-fire listeners.
	signedOut = false
	if err := p.SignOut(); err != nil {
		t.Fatalf("Repeated SignOut failed: %v", err)
	}
	if signedOut {
		t.Error("Repeated sign-out must not notify again")
	}
}

func TestListenerDeregistration(t *testing.T) {
	fs := newFakeIdentityServer(t)
	p := newTestProvider(t, fs)

	var fired int
	unsubscribe := p.OnSessionChanged(func(bool) { fired++ })
	unsubscribe()

	if _, err := p.SignInWithPassword(context.Background(), "a@example.com", "hunter2"); err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	if fired != 0 {
		t.Errorf("Deregistered listener fired %d times", fired)
	}
}
