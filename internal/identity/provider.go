// Package identity wraps the identity provider (Google Identity Toolkit REST
// surface) behind the credential contract the rest of the client depends on:
// current-user lookup, fresh token minting, and session-changed notification.
//
// The signed-in session is persisted to disk so separate CLI invocations
// share it; the file never holds an ID token, only the refresh token used to
// mint short-lived ones.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bridgenlp/internal/logging"
)

// ErrNoSession is returned when an operation needs a signed-in user and
// there is none.
var ErrNoSession = errors.New("no user signed in")

// CredentialError means the identity provider could not mint or exchange a
// credential (expired refresh state, revoked session, rejected password).
type CredentialError struct {
	Op      string // "sign-in", "sign-up", "token"
	Status  int
	Message string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("identity provider rejected %s (status %d): %s", e.Op, e.Status, e.Message)
}

// User is the signed-in identity.
type User struct {
	UID   string
	Email string
}

// Session is the persisted sign-in state.
type Session struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	RefreshToken string    `json:"refreshToken"`
	SignedInAt   time.Time `json:"signedInAt"`
}

// SignInResult carries the ID token minted during sign-in or sign-up, which
// the caller forwards to the backend login/register exchange.
type SignInResult struct {
	User    User
	IDToken string
}

// Config configures a Provider.
type Config struct {
	APIKey      string
	AccountsURL string // identity toolkit base, e.g. https://identitytoolkit.googleapis.com/v1
	TokenURL    string // secure token endpoint, e.g. https://securetoken.googleapis.com/v1/token
	SessionFile string
	HTTPClient  *http.Client // optional
}

// Provider is the process-wide credential provider. Exactly one instance
// exists per process; it is constructed lazily by the session store.
type Provider struct {
	apiKey      string
	accountsURL string
	tokenURL    string
	sessionFile string
	http        *http.Client

	mu        sync.Mutex
	session   *Session
	listeners map[int]func(signedIn bool)
	nextID    int
}

// NewProvider creates a provider and loads any persisted session.
func NewProvider(cfg Config) *Provider {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	p := &Provider{
		apiKey:      cfg.APIKey,
		accountsURL: strings.TrimRight(cfg.AccountsURL, "/"),
		tokenURL:    cfg.TokenURL,
		sessionFile: cfg.SessionFile,
		http:        client,
		listeners:   map[int]func(bool){},
	}
	if sess, err := readSessionFile(cfg.SessionFile); err == nil {
		p.session = sess
	}
	return p
}

// CurrentUser returns the signed-in identity, or nil.
func (p *Provider) CurrentUser() *User {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	return &User{UID: p.session.UID, Email: p.session.Email}
}

// OnSessionChanged registers a listener invoked on every sign-in and
// sign-out. The returned function deregisters it.
func (p *Provider) OnSessionChanged(fn func(signedIn bool)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// FreshToken mints a brand-new short-lived ID token for the current user by
// exchanging the stored refresh token. The token is never cached: each
// outgoing backend request gets its own.
func (p *Provider) FreshToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.session == nil {
		p.mu.Unlock()
		return "", ErrNoSession
	}
	refreshToken := p.session.RefreshToken
	p.mu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, "POST", p.tokenURL+"?key="+url.QueryEscape(p.apiKey),
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		logging.Get(logging.CategoryAuth).Warnw("token exchange rejected",
			"status", resp.StatusCode)
		return "", &CredentialError{Op: "token", Status: resp.StatusCode, Message: toolkitMessage(body)}
	}

	var out struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("undecodable token response: %w", err)
	}

	// The provider may rotate the refresh token on exchange.
	if out.RefreshToken != "" && out.RefreshToken != refreshToken {
		p.mu.Lock()
		if p.session != nil && p.session.RefreshToken == refreshToken {
			p.session.RefreshToken = out.RefreshToken
			p.persistLocked()
		}
		p.mu.Unlock()
	}

	return out.IDToken, nil
}

// SignInWithPassword authenticates with email and password, persists the
// session and fires session-changed listeners before returning, so no
// dependent read can observe a stale signed-out state after a successful
// login.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*SignInResult, error) {
	return p.accountsCall(ctx, "sign-in", "accounts:signInWithPassword", email, password)
}

// SignUp creates a new account. Like the web client, signing up also signs
// the user in.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*SignInResult, error) {
	return p.accountsCall(ctx, "sign-up", "accounts:signUp", email, password)
}

func (p *Provider) accountsCall(ctx context.Context, op, endpoint, email, password string) (*SignInResult, error) {
	payload := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	reqURL := p.accountsURL + "/" + endpoint + "?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &CredentialError{Op: op, Status: resp.StatusCode, Message: toolkitMessage(body)}
	}

	var out struct {
		IDToken      string `json:"idToken"`
		Email        string `json:"email"`
		RefreshToken string `json:"refreshToken"`
		LocalID      string `json:"localId"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("undecodable %s response: %w", op, err)
	}

	sess := &Session{
		UID:          out.LocalID,
		Email:        out.Email,
		RefreshToken: out.RefreshToken,
		SignedInAt:   time.Now().UTC(),
	}
	p.setSession(sess)
	logging.Get(logging.CategoryAuth).Infow("signed in", "uid", sess.UID)

	return &SignInResult{
		User:    User{UID: out.LocalID, Email: out.Email},
		IDToken: out.IDToken,
	}, nil
}

// RequestPasswordReset asks the identity provider to email a password reset
// link. Does not require a session.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string) error {
	payload := map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	reqURL := p.accountsURL + "/accounts:sendOobCode?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("password reset failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &CredentialError{Op: "password reset", Status: resp.StatusCode, Message: toolkitMessage(body)}
	}
	return nil
}

// SignOut clears the session. The in-memory session is dropped and listeners
// fire even when removing the persisted file fails; the error is still
// returned so callers can surface it.
func (p *Provider) SignOut() error {
	p.mu.Lock()
	wasSignedIn := p.session != nil
	p.session = nil
	p.mu.Unlock()

	var err error
	if rmErr := os.Remove(p.sessionFile); rmErr != nil && !os.IsNotExist(rmErr) {
		err = fmt.Errorf("failed to remove session file: %w", rmErr)
	}

	if wasSignedIn {
		p.fireListeners(false)
	}
	return err
}

// setSession stores and persists the session, then notifies listeners.
func (p *Provider) setSession(sess *Session) {
	p.mu.Lock()
	p.session = sess
	p.persistLocked()
	p.mu.Unlock()

	p.fireListeners(sess != nil)
}

// reloadFromDisk re-reads the persisted session. Called by the session file
// watcher when another process signs in or out. Listeners fire only when the
// authenticated state or user actually changed.
func (p *Provider) reloadFromDisk() {
	sess, err := readSessionFile(p.sessionFile)
	if err != nil && !os.IsNotExist(err) {
		logging.Get(logging.CategoryAuth).Warnw("failed to reload session file", "err", err)
		return
	}

	p.mu.Lock()
	changed := (p.session == nil) != (sess == nil) ||
		(p.session != nil && sess != nil && p.session.UID != sess.UID)
	p.session = sess
	p.mu.Unlock()

	if changed {
		logging.Get(logging.CategorySession).Infow("session changed externally", "signedIn", sess != nil)
		p.fireListeners(sess != nil)
	}
}

func (p *Provider) fireListeners(signedIn bool) {
	p.mu.Lock()
	fns := make([]func(bool), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(signedIn)
	}
}

// persistLocked writes the session file. Caller holds p.mu.
func (p *Provider) persistLocked() {
	if p.session == nil {
		return
	}
	data, err := json.MarshalIndent(p.session, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(p.sessionFile), 0700); err != nil {
		logging.Get(logging.CategoryAuth).Warnw("failed to create session dir", "err", err)
		return
	}
	if err := os.WriteFile(p.sessionFile, data, 0600); err != nil {
		logging.Get(logging.CategoryAuth).Warnw("failed to persist session", "err", err)
	}
}

func readSessionFile(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	if sess.RefreshToken == "" {
		return nil, errors.New("session file missing refresh token")
	}
	return &sess, nil
}

// toolkitMessage extracts the identity toolkit error code from an error body
// such as {"error":{"message":"INVALID_PASSWORD"}}.
func toolkitMessage(body []byte) string {
	var out struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Error.Message == "" {
		return strings.TrimSpace(string(body))
	}
	return out.Error.Message
}
