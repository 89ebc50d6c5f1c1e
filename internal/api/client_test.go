package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgenlp/internal/identity"
)

// stubTokens mints deterministic tokens, one per call.
type stubTokens struct {
	calls atomic.Int32
	err   error
}

func (s *stubTokens) FreshToken(ctx context.Context) (string, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("token-%d", n), nil
}

func TestDoAttachesFreshTokenPerRequest(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer srv.Close()

	tokens := &stubTokens{}
	c := NewClient(srv.URL, 5*time.Second, tokens)

	for i := 0; i < 2; i++ {
		var out struct {
			OK bool `json:"ok"`
		}
		require.NoError(t, c.Do(context.Background(), http.MethodGet, "api/ping/", nil, &out))
		assert.True(t, out.OK)
	}

	require.Len(t, seen, 2)
	assert.Equal(t, "token-1", seen[0], "raw token, no Bearer prefix")
	assert.Equal(t, "token-2", seen[1], "each request mints its own token")
	assert.Equal(t, int32(2), tokens.calls.Load())
}

func TestDoWithoutSessionSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, &stubTokens{err: identity.ErrNoSession})
	err := c.Do(context.Background(), http.MethodGet, "api/ping/", nil, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, int32(0), hits.Load(), "no request may leave the client without a credential")
}

func TestDoCredentialErrorPassesThrough(t *testing.T) {
	credErr := &identity.CredentialError{Op: "refresh", Status: 400, Message: "TOKEN_EXPIRED"}
	c := NewClient("http://127.0.0.1:0", time.Second, &stubTokens{err: credErr})

	err := c.Do(context.Background(), http.MethodGet, "api/ping/", nil, nil)
	var got *identity.CredentialError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "TOKEN_EXPIRED", got.Message)
}

func TestDoEncodesBodyAndDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["message"])
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		fmt.Fprint(w, `{"status": "success", "response": "hi"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", 5*time.Second, &stubTokens{})
	var out struct {
		Status   string `json:"status"`
		Response string `json:"response"`
	}
	require.NoError(t, c.Do(context.Background(), http.MethodPost, "/api/get_response/",
		map[string]string{"message": "hello"}, &out))
	assert.Equal(t, "hi", out.Response)
}

func TestDoMapsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error": "not yours"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, &stubTokens{})
	err := c.Do(context.Background(), http.MethodPost, "api/toggle_function_visibility/", nil, nil)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.Status)
	assert.Equal(t, "not yours", httpErr.Message)
}

func TestDoMapsNetworkErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL, time.Second, &stubTokens{})
	err := c.Do(context.Background(), http.MethodGet, "api/ping/", nil, nil)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestDoMapsUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>not json</html>`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, &stubTokens{})
	var out map[string]any
	err := c.Do(context.Background(), http.MethodGet, "api/ping/", nil, &out)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDoPublicSendsNoCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"success": true}`)
	}))
	defer srv.Close()

	tokens := &stubTokens{}
	c := NewClient(srv.URL, 5*time.Second, tokens)
	var out struct {
		Success bool `json:"success"`
	}
	require.NoError(t, c.DoPublic(context.Background(), http.MethodPost, "api/login/",
		map[string]string{"idToken": "abc"}, &out))
	assert.True(t, out.Success)
	assert.Equal(t, int32(0), tokens.calls.Load(), "public calls never mint a token")
}

func TestServerMessageFieldVariants(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"error field", `{"error": "bad"}`, "bad"},
		{"message field", `{"message": "nope"}`, "nope"},
		{"errors list", `{"errors": ["a", "b"]}`, "a; b"},
		{"empty", `{}`, ""},
		{"not json", `oops`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, serverMessage([]byte(tc.body)))
		})
	}
}

func TestHTTPErrorMessage(t *testing.T) {
	err := &HTTPError{Status: 404, Message: "missing"}
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "missing")

	bare := &HTTPError{Status: 500}
	assert.Contains(t, bare.Error(), "500")
	assert.False(t, errors.Is(bare, ErrNetwork))
}
