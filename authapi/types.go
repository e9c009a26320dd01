package authapi

import "github.com/jrsteele09/go-api-client/users"

// Token is the login response.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// LoginRequest is sent as an OAuth2 password form (username, password).
type LoginRequest struct {
	Username string
	Password string
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AccessTokenResponse is the refresh response. The backend does not rotate the refresh token,
// but RefreshToken is honoured if it ever does.
type AccessTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type OAuthURLResponse struct {
	AuthURL string `json:"auth_url"`
}

// OAuthProvider names a social login provider supported by the backend.
type OAuthProvider string

const (
	ProviderGoogle OAuthProvider = "google"
	ProviderGithub OAuthProvider = "github"
)

type AdminTestResponse struct {
	Message string          `json:"message"`
	User    AdminTestCaller `json:"user"`
}

type AdminTestCaller struct {
	ID       string         `json:"id"`
	Username string         `json:"username"`
	Role     users.RoleType `json:"role"`
}

type roleUpdate struct {
	Role users.RoleType `json:"role"`
}
