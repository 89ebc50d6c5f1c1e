// Package api is the stateless HTTP client for the BridgeNLP backend. Every
// authenticated request is gated behind a freshly minted credential and
// failures are normalized into a small error taxonomy; retry policy belongs
// to callers, since not every operation is idempotent.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bridgenlp/internal/identity"
	"bridgenlp/internal/logging"
)

// TokenSource mints a fresh bearer credential for the current user.
// *identity.Provider satisfies it.
type TokenSource interface {
	FreshToken(ctx context.Context) (string, error)
}

// Client talks to the BridgeNLP backend.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// NewClient creates a backend client. baseURL is the server root, with or
// without a trailing slash.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// Do issues an authenticated request. A fresh token is fetched for this one
// request; if the provider reports no session the request fails with
// ErrUnauthenticated without touching the network. body is JSON-encoded when
// non-nil; out, when non-nil, receives the decoded 2xx response body.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.tokens.FreshToken(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrNoSession) {
			return ErrUnauthenticated
		}
		// Credential errors (provider could not mint a token) pass through.
		return fmt.Errorf("fresh token: %w", err)
	}
	return c.dispatch(ctx, method, path, token, body, out)
}

// DoPublic issues a request without a credential. Used for the login and
// register exchanges, where the identity token travels in the body.
func (c *Client) DoPublic(ctx context.Context, method, path string, body, out any) error {
	return c.dispatch(ctx, method, path, "", body, out)
}

func (c *Client) dispatch(ctx context.Context, method, path, token string, body, out any) error {
	log := logging.Get(logging.CategoryAPI)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		// The backend reads the raw ID token from the Authorization header.
		req.Header.Set("Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warnw("request failed", "method", method, "path", path, "err", err)
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{Status: resp.StatusCode, Message: serverMessage(data)}
		log.Debugw("server rejected request", "method", method, "path", path,
			"status", resp.StatusCode, "message", httpErr.Message)
		return httpErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			log.Warnw("undecodable response body", "method", method, "path", path, "err", err)
			return fmt.Errorf("%w: %v", ErrProtocol, err)
		}
	}
	return nil
}

// serverMessage extracts the human-readable error from a backend error body.
// The backend is inconsistent about the field name.
func serverMessage(data []byte) string {
	var body struct {
		Error   string   `json:"error"`
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	switch {
	case body.Error != "":
		return body.Error
	case body.Message != "":
		return body.Message
	case len(body.Errors) > 0:
		return strings.Join(body.Errors, "; ")
	}
	return ""
}
