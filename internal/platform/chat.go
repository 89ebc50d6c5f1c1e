package platform

import (
	"context"
	"net/http"

	"bridgenlp/internal/api"
)

// ChatClient sends messages to the NLP agent. The agent itself (intent
// analysis, function discovery, execution) lives server-side; the client
// only ships text and receives text.
type ChatClient struct {
	api *api.Client
}

// NewChat returns the chat client.
func NewChat(c *api.Client) *ChatClient {
	return &ChatClient{api: c}
}

// Send delivers one message and returns the agent's reply.
func (c *ChatClient) Send(ctx context.Context, message string) (string, error) {
	req := map[string]string{"message": message}
	var out struct {
		Status   string `json:"status"`
		Response string `json:"response"`
		Message  string `json:"message"`
	}
	if err := c.api.Do(ctx, http.MethodPost, "api/get_response/", req, &out); err != nil {
		return "", err
	}
	if out.Status != "success" {
		return "", &RejectedError{Op: "chat", Message: out.Message}
	}
	return out.Response, nil
}
