package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgenlp/internal/api"
)

type staticTokens struct{}

func (staticTokens) FreshToken(ctx context.Context) (string, error) { return "test-token", nil }

// backend is a scripted httptest server: one handler per endpoint path.
type backend struct {
	t        *testing.T
	handlers map[string]http.HandlerFunc
	requests []recordedRequest
}

type recordedRequest struct {
	Path string
	Body map[string]any
}

func newBackend(t *testing.T) (*backend, *api.Client) {
	t.Helper()
	b := &backend{t: t, handlers: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		b.requests = append(b.requests, recordedRequest{Path: r.URL.Path, Body: body})
		h, ok := b.handlers[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request to %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return b, api.NewClient(srv.URL, 5*time.Second, staticTokens{})
}

func (b *backend) respond(path, body string) {
	b.handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}
}

func (b *backend) lastBody() map[string]any {
	require.NotEmpty(b.t, b.requests)
	return b.requests[len(b.requests)-1].Body
}

func TestFunctionClientList(t *testing.T) {
	b, client := newBackend(t)
	b.respond("/api/get_user_functions/", `{"functions": [
		{"id": "fn-1", "userId": "u1", "name": "alpha", "description": "d", "code": "pass", "language": "python", "isPublic": false},
		{"id": "fn-2", "userId": "u1", "name": "beta", "code": "pass", "language": "python", "isPublic": true}
	]}`)

	funcs, err := NewUserFunctions(client).List(context.Background())
	require.NoError(t, err)
	require.Len(t, funcs, 2)
	assert.Equal(t, "fn-1", funcs[0].ID)
	assert.Equal(t, "u1", funcs[0].OwnerID)
	assert.True(t, funcs[1].IsPublic)
}

func TestPublicFunctionClientListPath(t *testing.T) {
	b, client := newBackend(t)
	b.respond("/api/get_public_functions/", `{"functions": []}`)

	funcs, err := NewPublicFunctions(client).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, funcs)
}

func TestFunctionClientSave(t *testing.T) {
	b, client := newBackend(t)
	c := NewUserFunctions(client)

	t.Run("create omits functionId", func(t *testing.T) {
		b.respond("/api/save_user_function/", `{"success": true, "message": "ok", "id": "fn-9"}`)
		saved, err := c.Save(context.Background(), Function{Name: "new", Code: "pass", Language: "python"})
		require.NoError(t, err)
		assert.Equal(t, "fn-9", saved.ID)
		_, sent := b.lastBody()["functionId"]
		assert.False(t, sent, "create must not send a functionId")
	})

	t.Run("update sends functionId", func(t *testing.T) {
		b.respond("/api/save_user_function/", `{"success": true, "message": "ok", "id": "fn-9"}`)
		_, err := c.Save(context.Background(), Function{ID: "fn-9", Name: "edited", Code: "pass"})
		require.NoError(t, err)
		assert.Equal(t, "fn-9", b.lastBody()["functionId"])
	})

	t.Run("server rejection", func(t *testing.T) {
		b.respond("/api/save_user_function/", `{"success": false, "error": "name taken"}`)
		_, err := c.Save(context.Background(), Function{Name: "dup"})
		var rej *RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, "name taken", rej.Message)
	})
}

func TestFunctionClientToggleVisibility(t *testing.T) {
	b, client := newBackend(t)
	c := NewUserFunctions(client)

	t.Run("returns authoritative flag", func(t *testing.T) {
		b.respond("/api/toggle_function_visibility/", `{"success": true, "isPublic": true}`)
		public, err := c.ToggleVisibility(context.Background(), "fn-1")
		require.NoError(t, err)
		assert.True(t, public)
		assert.Equal(t, "fn-1", b.lastBody()["functionId"])
	})

	t.Run("application rejection", func(t *testing.T) {
		b.respond("/api/toggle_function_visibility/", `{"success": false, "error": "not yours"}`)
		_, err := c.ToggleVisibility(context.Background(), "fn-2")
		var rej *RejectedError
		require.ErrorAs(t, err, &rej)
	})
}

func TestFunctionClientDelete(t *testing.T) {
	b, client := newBackend(t)
	c := NewUserFunctions(client)

	b.respond("/api/delete_user_function/", `{"success": true}`)
	require.NoError(t, c.Delete(context.Background(), "fn-1"))
	assert.Equal(t, "fn-1", b.lastBody()["functionId"])

	b.respond("/api/delete_user_function/", `{"success": false, "error": "missing"}`)
	var rej *RejectedError
	require.ErrorAs(t, c.Delete(context.Background(), "fn-404"), &rej)
}

func TestFunctionClientAddToLibrary(t *testing.T) {
	b, client := newBackend(t)
	c := NewPublicFunctions(client)

	b.respond("/api/add_public_function_to_library/", `{"success": true, "message": "added", "newFunctionId": "fn-33"}`)
	msg, err := c.AddToLibrary(context.Background(), "fn-3")
	require.NoError(t, err)
	assert.Equal(t, "added", msg)
	assert.Equal(t, "fn-3", b.lastBody()["functionId"])

	// Duplicate copies come back as a 4xx, surfaced as an HTTP error.
	b.handlers["/api/add_public_function_to_library/"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "already in library"}`)
	}
	_, err = c.AddToLibrary(context.Background(), "fn-3")
	var httpErr *api.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
}

func TestHistoryClient(t *testing.T) {
	b, client := newBackend(t)
	c := NewHistory(client)

	b.respond("/api/get_execution_history/", `{"executions": [
		{"execution_id": "exec-1", "function_name": "alpha", "parameters": {"x": 1},
		 "timestamp": "2026-08-30T10:00:00Z", "result": "42", "code": "pass", "status": "completed"}
	]}`)
	records, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "alpha", records[0].FunctionName)

	b.respond("/api/repeat_execution/", `{"success": true, "result": "42", "execution_id": "exec-2"}`)
	result, newID, err := c.Repeat(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "42", result)
	assert.Equal(t, "exec-2", newID)
	assert.Equal(t, "exec-1", b.lastBody()["execution_id"])

	b.respond("/api/repeat_execution/", `{"success": false, "error": "gone"}`)
	_, _, err = c.Repeat(context.Background(), "exec-404")
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
}

func TestProfileClient(t *testing.T) {
	b, client := newBackend(t)
	c := NewProfile(client)

	b.respond("/api/get_user_data/", `{"success": true, "data": {"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com"}}`)
	p, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Profile{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}, p)

	b.respond("/api/save_user_data/", `{"success": true}`)
	require.NoError(t, c.Save(context.Background(), "Ada", "King"))
	body := b.lastBody()
	assert.Equal(t, "Ada", body["firstName"])
	assert.Equal(t, "King", body["lastName"])
}

func TestChatClient(t *testing.T) {
	b, client := newBackend(t)
	c := NewChat(client)

	b.respond("/api/get_response/", `{"status": "success", "response": "ran alpha", "user_id": "u1"}`)
	reply, err := c.Send(context.Background(), "run alpha")
	require.NoError(t, err)
	assert.Equal(t, "ran alpha", reply)
	assert.Equal(t, "run alpha", b.lastBody()["message"])

	b.respond("/api/get_response/", `{"status": "error", "message": "no such function"}`)
	_, err = c.Send(context.Background(), "run missing")
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Error(), "no such function")
}
