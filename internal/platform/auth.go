package platform

import (
	"context"
	"net/http"

	"bridgenlp/internal/api"
	"bridgenlp/internal/identity"
	"bridgenlp/internal/logging"
)

// AuthClient runs the two-step sign-in flows: authenticate against the
// identity provider, then exchange the minted ID token with the backend so
// it can establish its own user records. The exchange requests carry the
// token in the body, not the Authorization header.
type AuthClient struct {
	api      *api.Client
	provider *identity.Provider
}

// NewAuth returns the auth flow client.
func NewAuth(c *api.Client, p *identity.Provider) *AuthClient {
	return &AuthClient{api: c, provider: p}
}

// Login signs in with email and password and performs the backend login
// exchange. The local session is established (and listeners fired) before
// the exchange, mirroring the web client.
func (a *AuthClient) Login(ctx context.Context, email, password string) (*identity.User, error) {
	res, err := a.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}

	req := map[string]string{"idToken": res.IDToken}
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := a.api.DoPublic(ctx, http.MethodPost, "api/login/", req, &out); err != nil {
		logging.Get(logging.CategoryAuth).Warnw("backend login exchange failed", "err", err)
		return nil, err
	}
	return &res.User, nil
}

// Register creates an account with the identity provider and performs the
// backend register exchange, which seeds the server-side profile.
func (a *AuthClient) Register(ctx context.Context, email, password string) (*identity.User, error) {
	res, err := a.provider.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}

	req := map[string]string{"idToken": res.IDToken}
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := a.api.DoPublic(ctx, http.MethodPost, "api/register/", req, &out); err != nil {
		logging.Get(logging.CategoryAuth).Warnw("backend register exchange failed", "err", err)
		return nil, err
	}
	return &res.User, nil
}

// RequestPasswordReset asks the backend to send a reset email. Returns the
// server's confirmation message.
func (a *AuthClient) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	req := map[string]string{"email": email}
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := a.api.DoPublic(ctx, http.MethodPost, "api/password-reset-request/", req, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}
