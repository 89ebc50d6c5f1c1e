package platform

import (
	"context"
	"net/http"

	"bridgenlp/internal/api"
)

// ProfileClient reads and writes the user profile.
type ProfileClient struct {
	api *api.Client
}

// NewProfile returns the profile client.
func NewProfile(c *api.Client) *ProfileClient {
	return &ProfileClient{api: c}
}

// Get fetches the profile.
func (c *ProfileClient) Get(ctx context.Context) (Profile, error) {
	var out struct {
		Success bool    `json:"success"`
		Error   string  `json:"error"`
		Data    Profile `json:"data"`
	}
	if err := c.api.Do(ctx, http.MethodGet, "api/get_user_data/", nil, &out); err != nil {
		return Profile{}, err
	}
	if !out.Success {
		return Profile{}, &RejectedError{Op: "get profile", Message: out.Error}
	}
	return out.Data, nil
}

// Save updates the profile's name fields.
func (c *ProfileClient) Save(ctx context.Context, firstName, lastName string) error {
	req := map[string]string{"firstName": firstName, "lastName": lastName}
	var out struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.api.Do(ctx, http.MethodPost, "api/save_user_data/", req, &out); err != nil {
		return err
	}
	if !out.Success {
		return &RejectedError{Op: "save profile", Message: out.Error}
	}
	return nil
}
