package platform

import (
	"context"
	"net/http"

	"bridgenlp/internal/api"
)

// HistoryClient binds the execution history endpoints.
type HistoryClient struct {
	api *api.Client
}

// NewHistory returns the execution history client.
func NewHistory(c *api.Client) *HistoryClient {
	return &HistoryClient{api: c}
}

// List fetches the user's execution records.
func (c *HistoryClient) List(ctx context.Context) ([]Execution, error) {
	var out struct {
		Executions []Execution `json:"executions"`
	}
	if err := c.api.Do(ctx, http.MethodGet, "api/get_execution_history/", nil, &out); err != nil {
		return nil, err
	}
	return out.Executions, nil
}

// Repeat re-runs a past execution server-side, producing a new record.
// Returns the new execution's result and id.
func (c *HistoryClient) Repeat(ctx context.Context, executionID string) (result, newID string, err error) {
	req := map[string]string{"execution_id": executionID}
	var out struct {
		Success     bool   `json:"success"`
		Error       string `json:"error"`
		Result      string `json:"result"`
		ExecutionID string `json:"execution_id"`
	}
	if err := c.api.Do(ctx, http.MethodPost, "api/repeat_execution/", req, &out); err != nil {
		return "", "", err
	}
	if !out.Success {
		return "", "", &RejectedError{Op: "repeat execution", Message: out.Error}
	}
	return out.Result, out.ExecutionID, nil
}
