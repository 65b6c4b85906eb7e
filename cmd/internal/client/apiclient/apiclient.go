// Package apiclient exposes the notebox endpoints as typed calls over a session client.
package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"notebox/cmd/internal/client/sessionclient"
	v1 "notebox/shared/contracts/auth/v1"
)

// API issues typed calls. Login and register are sent without a token; everything else
// goes through the refreshing pipeline.
type API struct {
	c *sessionclient.Client
}

// New wraps c.
func New(c *sessionclient.Client) *API { return &API{c: c} }

// Session returns the underlying session client.
func (a *API) Session() *sessionclient.Client { return a.c }

func (a *API) Register(ctx context.Context, in v1.RegisterRequest) (v1.SessionResponse, error) {
	var out v1.SessionResponse
	err := a.c.DoPublic(ctx, http.MethodPost, v1.PathRegister, in, &out)
	return out, err
}

func (a *API) Login(ctx context.Context, in v1.LoginRequest) (v1.SessionResponse, error) {
	var out v1.SessionResponse
	err := a.c.DoPublic(ctx, http.MethodPost, v1.PathLogin, in, &out)
	return out, err
}

func (a *API) Profile(ctx context.Context) (v1.User, error) {
	var out v1.User
	err := a.c.Do(ctx, http.MethodGet, v1.PathProfile, nil, &out)
	return out, err
}

func (a *API) UpdateProfile(ctx context.Context, in v1.UpdateProfileRequest) (v1.User, error) {
	var out v1.ProfileResponse
	if err := a.c.Do(ctx, http.MethodPut, v1.PathProfile, in, &out); err != nil {
		return v1.User{}, err
	}
	return out.User, nil
}

func (a *API) ChangePassword(ctx context.Context, in v1.ChangePasswordRequest) error {
	return a.c.Do(ctx, http.MethodPost, v1.PathChangePassword, in, nil)
}

func (a *API) DeleteAccount(ctx context.Context) error {
	return a.c.Do(ctx, http.MethodDelete, v1.PathProfile, nil, nil)
}

func (a *API) Folders(ctx context.Context) ([]v1.Folder, error) {
	var out v1.FoldersResponse
	if err := a.c.Do(ctx, http.MethodGet, v1.PathFolders, nil, &out); err != nil {
		return nil, err
	}
	return out.Folders, nil
}

func (a *API) CreateFolder(ctx context.Context, name string) (v1.Folder, error) {
	var out v1.FolderResponse
	if err := a.c.Do(ctx, http.MethodPost, v1.PathFolders, v1.CreateFolderRequest{Name: name}, &out); err != nil {
		return v1.Folder{}, err
	}
	return out.Folder, nil
}

func (a *API) DeleteFolder(ctx context.Context, id string) error {
	return a.c.Do(ctx, http.MethodDelete, v1.PathFolders+"/"+url.PathEscape(id), nil, nil)
}
