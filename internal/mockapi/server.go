// Package mockapi is an in-memory stand-in for the backend's /auth API. It backs the
// client's integration tests and the CLI's serve-mock command for local development.
package mockapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	apierrors "github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Server struct {
	mux    *http.ServeMux
	routes []string
	users  *userStore
	tokens *tokenIssuer
	logger zerolog.Logger

	oauthBaseURL string
	refreshCalls atomic.Int64
}

type options struct {
	secret       []byte
	accessTTL    time.Duration
	refreshTTL   time.Duration
	nowFunc      func() time.Time
	logger       zerolog.Logger
	oauthBaseURL string
}

type Option func(*options)

func WithTokenExpiry(accessTTL, refreshTTL time.Duration) Option {
	return func(o *options) {
		o.accessTTL = accessTTL
		o.refreshTTL = refreshTTL
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(o *options) {
		o.nowFunc = now
	}
}

func WithSecret(secret string) Option {
	return func(o *options) {
		o.secret = []byte(secret)
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithOAuthBaseURL sets the origin used to build the fake provider authorization URLs.
func WithOAuthBaseURL(u string) Option {
	return func(o *options) {
		o.oauthBaseURL = u
	}
}

func New(opts ...Option) *Server {
	o := options{
		secret:       []byte("mockapi-secret"),
		accessTTL:    15 * time.Minute,
		refreshTTL:   7 * 24 * time.Hour,
		nowFunc:      time.Now,
		logger:       log.Logger.With().Str("component", "mockapi").Logger(),
		oauthBaseURL: "https://oauth.example.com",
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		mux:          http.NewServeMux(),
		users:        newUserStore(),
		tokens:       newTokenIssuer(o.secret, o.accessTTL, o.refreshTTL, o.nowFunc),
		logger:       o.logger,
		oauthBaseURL: o.oauthBaseURL,
	}
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, ChainMiddleware(handler, s.LoggingMiddleware, s.RecoverMiddleware))
}

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("POST /auth/register", s.handleRegister)
	s.RegisterRouteFunc("POST /auth/login", s.handleLogin)
	s.RegisterRouteFunc("POST /auth/refresh", s.handleRefresh)
	s.RegisterRouteFunc("GET /auth/me", ChainMiddleware(s.handleMe, s.RequireAuth))
	s.RegisterRouteFunc("PATCH /auth/me", ChainMiddleware(s.handleUpdateMe, s.RequireAuth))
	s.RegisterRouteFunc("GET /auth/google", s.handleOAuthURL("google"))
	s.RegisterRouteFunc("GET /auth/github", s.handleOAuthURL("github"))

	admin := []func(http.HandlerFunc) http.HandlerFunc{s.RequireAuth, s.RequireRole(users.RoleAdmin)}
	s.RegisterRouteFunc("GET /auth/admin/test", ChainMiddleware(s.handleAdminTest, admin...))
	s.RegisterRouteFunc("GET /auth/users", ChainMiddleware(s.handleListUsers, admin...))
	s.RegisterRouteFunc("PATCH /auth/users/{id}/role", ChainMiddleware(s.handleUpdateRole, admin...))
}

// AddUser seeds an account, e.g. an admin for local development.
func (s *Server) AddUser(uc users.UserCreate, role users.RoleType) (*users.User, error) {
	return s.users.Create(uc, role)
}

func (s *Server) DeactivateUser(id int) error {
	return s.users.SetActive(id, false)
}

// ExpireAccessTokens makes every access token issued so far be rejected with 401.
func (s *Server) ExpireAccessTokens() {
	s.tokens.ExpireAccessTokens()
}

func (s *Server) RevokeRefreshTokens() {
	s.tokens.RevokeRefreshTokens()
}

// RefreshCalls counts requests to the refresh endpoint, successful or not.
func (s *Server) RefreshCalls() int {
	return int(s.refreshCalls.Load())
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var uc users.UserCreate
	if err := json.NewDecoder(r.Body).Decode(&uc); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	if err := uc.Validate(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	u, err := s.users.Create(uc, users.RoleUser)
	if errors.Is(err, apierrors.ErrUserExists) {
		writeDetail(w, http.StatusBadRequest, "Email or username already registered")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("register failed")
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid form body")
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	u, err := s.users.Authenticate(username, password)
	switch {
	case errors.Is(err, apierrors.ErrInactiveUser):
		writeDetail(w, http.StatusBadRequest, "Inactive user")
		return
	case err != nil:
		unauthorized(w, "Incorrect username or password")
		return
	}

	access, err := s.tokens.CreateAccessToken(u.ID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	refresh, err := s.tokens.CreateRefreshToken(u.ID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "refresh_token is required")
		return
	}

	userID, err := s.tokens.UseRefreshToken(body.RefreshToken)
	if err != nil {
		unauthorized(w, "Invalid refresh token")
		return
	}
	if u, err := s.users.GetByID(userID); err != nil || !u.IsActive {
		unauthorized(w, "Invalid refresh token")
		return
	}

	access, err := s.tokens.CreateAccessToken(userID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": access,
		"token_type":   "bearer",
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFromContext(r.Context()))
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var upd users.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	u, err := s.users.Update(userFromContext(r.Context()).ID, upd)
	if errors.Is(err, apierrors.ErrUserExists) {
		writeDetail(w, http.StatusBadRequest, "Email or username already registered")
		return
	}
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleOAuthURL(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := url.Values{}
		q.Set("response_type", "code")
		q.Set("client_id", "mockapi")
		q.Set("redirect_uri", "http://"+r.Host+"/auth/"+provider+"/callback")
		writeJSON(w, http.StatusOK, map[string]string{
			"auth_url": s.oauthBaseURL + "/" + provider + "/authorize?" + q.Encode(),
		})
	}
}

func (s *Server) handleAdminTest(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Admin access granted",
		"user": map[string]any{
			"id":       strconv.Itoa(u.ID),
			"username": u.Username,
			"role":     u.Role,
		},
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.users.List())
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid user id")
		return
	}
	var body struct {
		Role users.RoleType `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !body.Role.Valid() {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid role")
		return
	}

	u, err := s.users.SetRole(id, body.Role)
	if errors.Is(err, apierrors.ErrUserNotFound) {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Error().Err(err).Msg("request failed")
	writeDetail(w, http.StatusInternalServerError, "Internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, detail)
}
