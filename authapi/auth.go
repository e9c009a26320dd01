// Package authapi wraps the backend's /auth endpoints on top of an apiclient.Client.
// Login and the OAuth callback populate the client's token store; everything else
// relies on the client to attach and refresh the session.
package authapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/jrsteele09/go-api-client/apiclient"
	apierrors "github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/users"
)

const (
	pathRegister  = "auth/register"
	pathLogin     = "auth/login"
	pathMe        = "auth/me"
	pathAdminTest = "auth/admin/test"
	pathUsers     = "auth/users"
)

type AuthAPI struct {
	client *apiclient.Client
}

func New(client *apiclient.Client) *AuthAPI {
	return &AuthAPI{client: client}
}

// NewClient builds the underlying apiclient.Client and the AuthAPI over it in one step.
func NewClient(cfg apiclient.Config, options ...apiclient.Option) (*AuthAPI, error) {
	c, err := apiclient.New(cfg, options...)
	if err != nil {
		return nil, err
	}
	return New(c), nil
}

// Client returns the underlying client for calls to non-auth endpoints.
func (a *AuthAPI) Client() *apiclient.Client {
	return a.client
}

func (a *AuthAPI) Register(ctx context.Context, data users.UserCreate) (*users.User, error) {
	if err := data.Validate(); err != nil {
		return nil, apierrors.Wrapf(apierrors.ErrInvalidInput, "AuthAPI.Register: %s", err)
	}
	var u users.User
	if err := a.client.Post(ctx, pathRegister, data, &u); err != nil {
		return nil, fmt.Errorf("AuthAPI.Register: %w", err)
	}
	return &u, nil
}

// Login authenticates with the password form and stores both returned tokens.
func (a *AuthAPI) Login(ctx context.Context, req LoginRequest) (*Token, error) {
	form := url.Values{}
	form.Set("username", req.Username)
	form.Set("password", req.Password)

	var tok Token
	if err := a.client.PostForm(ctx, pathLogin, form, &tok); err != nil {
		return nil, fmt.Errorf("AuthAPI.Login: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, apierrors.Wrapf(apierrors.ErrInvalidToken, "AuthAPI.Login: no access_token in response")
	}
	if err := a.client.SetTokens(tok.AccessToken, tok.RefreshToken); err != nil {
		return nil, fmt.Errorf("AuthAPI.Login: %w", err)
	}
	return &tok, nil
}

// Me returns the current user. It is the usual way to check whether the stored session is still valid.
func (a *AuthAPI) Me(ctx context.Context) (*users.User, error) {
	var u users.User
	if err := a.client.Get(ctx, pathMe, &u); err != nil {
		return nil, fmt.Errorf("AuthAPI.Me: %w", err)
	}
	return &u, nil
}

func (a *AuthAPI) UpdateProfile(ctx context.Context, data users.ProfileUpdate) (*users.User, error) {
	var u users.User
	if err := a.client.Patch(ctx, pathMe, data, &u); err != nil {
		return nil, fmt.Errorf("AuthAPI.UpdateProfile: %w", err)
	}
	return &u, nil
}

// Refresh calls the refresh endpoint directly with refreshToken and stores the new access token.
// Unlike the automatic recovery, a failure here leaves the stored session untouched.
func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (*AccessTokenResponse, error) {
	var out AccessTokenResponse
	if err := a.client.Post(ctx, a.client.RefreshPath(), RefreshTokenRequest{RefreshToken: refreshToken}, &out); err != nil {
		return nil, fmt.Errorf("AuthAPI.Refresh: %w", err)
	}
	if out.AccessToken == "" {
		return nil, apierrors.Wrapf(apierrors.ErrInvalidToken, "AuthAPI.Refresh: no access_token in response")
	}
	if err := a.client.SetTokens(out.AccessToken, out.RefreshToken); err != nil {
		return nil, fmt.Errorf("AuthAPI.Refresh: %w", err)
	}
	return &out, nil
}

// Logout drops the local session. The backend keeps no server-side session to revoke.
func (a *AuthAPI) Logout() error {
	return a.client.ClearTokens()
}

// OAuthURL returns the provider's authorization URL to send the user to.
func (a *AuthAPI) OAuthURL(ctx context.Context, provider OAuthProvider) (string, error) {
	switch provider {
	case ProviderGoogle, ProviderGithub:
	default:
		return "", apierrors.Wrapf(apierrors.ErrUnsupported, "AuthAPI.OAuthURL provider %q", provider)
	}
	var out OAuthURLResponse
	if err := a.client.Get(ctx, "auth/"+string(provider), &out); err != nil {
		return "", fmt.Errorf("AuthAPI.OAuthURL %s: %w", provider, err)
	}
	return out.AuthURL, nil
}

func (a *AuthAPI) GoogleAuthURL(ctx context.Context) (string, error) {
	return a.OAuthURL(ctx, ProviderGoogle)
}

func (a *AuthAPI) GithubAuthURL(ctx context.Context) (string, error) {
	return a.OAuthURL(ctx, ProviderGithub)
}

// HandleOAuthCallback stores the tokens the backend put on the callback redirect URL.
// It reports false, and stores nothing, unless both access_token and refresh_token are present.
func (a *AuthAPI) HandleOAuthCallback(callbackURL string) (bool, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return false, apierrors.Wrapf(apierrors.ErrInvalidInput, "AuthAPI.HandleOAuthCallback: %s", err)
	}
	q := u.Query()
	access, refresh := q.Get("access_token"), q.Get("refresh_token")
	if access == "" || refresh == "" {
		return false, nil
	}
	if err := a.client.SetTokens(access, refresh); err != nil {
		return false, fmt.Errorf("AuthAPI.HandleOAuthCallback: %w", err)
	}
	return true, nil
}

// Admin endpoints

func (a *AuthAPI) TestAdminAccess(ctx context.Context) (*AdminTestResponse, error) {
	var out AdminTestResponse
	if err := a.client.Get(ctx, pathAdminTest, &out); err != nil {
		return nil, fmt.Errorf("AuthAPI.TestAdminAccess: %w", err)
	}
	return &out, nil
}

func (a *AuthAPI) ListUsers(ctx context.Context) ([]users.User, error) {
	var out []users.User
	if err := a.client.Get(ctx, pathUsers, &out); err != nil {
		return nil, fmt.Errorf("AuthAPI.ListUsers: %w", err)
	}
	return out, nil
}

func (a *AuthAPI) UpdateUserRole(ctx context.Context, userID int, role users.RoleType) (*users.User, error) {
	if !role.Valid() {
		return nil, apierrors.Wrapf(apierrors.ErrInvalidInput, "AuthAPI.UpdateUserRole role %q", role)
	}
	var u users.User
	path := pathUsers + "/" + strconv.Itoa(userID) + "/role"
	if err := a.client.Patch(ctx, path, roleUpdate{Role: role}, &u); err != nil {
		return nil, fmt.Errorf("AuthAPI.UpdateUserRole: %w", err)
	}
	return &u, nil
}
