package platform

import (
	"context"
	"net/http"

	"bridgenlp/internal/api"
)

// FunctionClient binds the function endpoints for one collection: the
// signed-in user's library or the public store. Both share the mutation
// endpoints; ownership is enforced server-side.
type FunctionClient struct {
	api      *api.Client
	listPath string
}

// NewUserFunctions returns the client for the user's own library.
func NewUserFunctions(c *api.Client) *FunctionClient {
	return &FunctionClient{api: c, listPath: "api/get_user_functions/"}
}

// NewPublicFunctions returns the client for the public store.
func NewPublicFunctions(c *api.Client) *FunctionClient {
	return &FunctionClient{api: c, listPath: "api/get_public_functions/"}
}

// List fetches the authoritative collection.
func (c *FunctionClient) List(ctx context.Context) ([]Function, error) {
	var out struct {
		Functions []Function `json:"functions"`
	}
	if err := c.api.Do(ctx, http.MethodGet, c.listPath, nil, &out); err != nil {
		return nil, err
	}
	return out.Functions, nil
}

type saveRequest struct {
	FunctionID  string `json:"functionId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Code        string `json:"code"`
	Language    string `json:"language"`
	IsPublic    bool   `json:"isPublic"`
}

// Save creates the function when fn.ID is empty, updates it otherwise. The
// returned function is the persisted entity (the input with the
// server-assigned id filled in).
func (c *FunctionClient) Save(ctx context.Context, fn Function) (Function, error) {
	req := saveRequest{
		FunctionID:  fn.ID,
		Name:        fn.Name,
		Description: fn.Description,
		Code:        fn.Code,
		Language:    fn.Language,
		IsPublic:    fn.IsPublic,
	}
	var out struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		ID      string `json:"id"`
	}
	if err := c.api.Do(ctx, http.MethodPost, "api/save_user_function/", req, &out); err != nil {
		return Function{}, err
	}
	if !out.Success {
		return Function{}, &RejectedError{Op: "save function", Message: out.Error}
	}
	fn.ID = out.ID
	return fn, nil
}

// ToggleVisibility flips a function's public flag server-side and returns
// the authoritative resulting value, which may differ from a simple local
// flip when a concurrent change landed first.
func (c *FunctionClient) ToggleVisibility(ctx context.Context, id string) (bool, error) {
	req := map[string]string{"functionId": id}
	var out struct {
		Success  bool   `json:"success"`
		Error    string `json:"error"`
		IsPublic bool   `json:"isPublic"`
	}
	if err := c.api.Do(ctx, http.MethodPost, "api/toggle_function_visibility/", req, &out); err != nil {
		return false, err
	}
	if !out.Success {
		return false, &RejectedError{Op: "toggle visibility", Message: out.Error}
	}
	return out.IsPublic, nil
}

// Delete removes a function.
func (c *FunctionClient) Delete(ctx context.Context, id string) error {
	req := map[string]string{"functionId": id}
	var out struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.api.Do(ctx, http.MethodPost, "api/delete_user_function/", req, &out); err != nil {
		return err
	}
	if !out.Success {
		return &RejectedError{Op: "delete function", Message: out.Error}
	}
	return nil
}

// AddToLibrary copies a public function into the caller's library as a
// private function. Returns the server's confirmation message.
func (c *FunctionClient) AddToLibrary(ctx context.Context, id string) (string, error) {
	req := map[string]string{"functionId": id}
	var out struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := c.api.Do(ctx, http.MethodPost, "api/add_public_function_to_library/", req, &out); err != nil {
		return "", err
	}
	if !out.Success {
		return "", &RejectedError{Op: "add to library", Message: out.Error}
	}
	return out.Message, nil
}
