// Package apiclient is an HTTP client for the backend API which attaches the stored
// bearer token to every request and transparently recovers from an expired access token.
//
// When a request comes back 401 and a refresh token is stored, the client exchanges the
// refresh token for a new access token and replays the request once. Concurrent requests
// which hit the same expiry share a single refresh call. If the refresh fails the session
// is cleared, the OnAuthRecoveryFailed callback fires, and the request fails with
// [ErrAuthRecoveryFailed].
//
// It is safe to use a Client concurrently from multiple goroutines.
package apiclient

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	apierrors "github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/tokens"
	"github.com/jrsteele09/go-api-client/tokens/memstore"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultRefreshPath = "auth/refresh"
	DefaultUserAgent   = "go-api-client"
)

// Config holds the recognised client options.
type Config struct {
	// BaseURL is the origin/prefix for all requests, e.g. "http://localhost:8000".
	BaseURL string
	// Headers are sent with every request. Content-Type defaults to application/json.
	Headers map[string]string
	// Timeout bounds each outbound request. Zero means DefaultTimeout.
	Timeout time.Duration
	// OnAuthRecoveryFailed is called once per failed refresh cycle, after the tokens are cleared.
	// It runs on the goroutine performing the refresh and should return quickly.
	OnAuthRecoveryFailed func()
}

type Client struct {
	baseURL              string
	headers              map[string]string
	timeout              time.Duration
	onAuthRecoveryFailed func()

	refreshPath string
	userAgent   string
	store       tokens.Store
	httpClient  *http.Client
	logger      zerolog.Logger
	metrics     *Metrics

	refreshGroup  singleflight.Group
	refreshCycles atomic.Uint64 // completed refresh calls, successful or not
}

type Option func(*Client)

// WithStore sets where the session tokens live. Defaults to a fresh in-memory store.
func WithStore(store tokens.Store) Option {
	return func(c *Client) {
		c.store = store
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client's logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRefreshPath overrides the refresh endpoint path, relative to the base URL.
func WithRefreshPath(path string) Option {
	return func(c *Client) {
		c.refreshPath = normalisePath(path)
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func New(cfg Config, options ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, apierrors.ErrMissingBaseURL
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apierrors.Wrapf(apierrors.ErrInvalidConfig, "apiclient.New base URL %q", cfg.BaseURL)
	}

	c := &Client{
		baseURL:              base,
		headers:              map[string]string{"Content-Type": "application/json"},
		timeout:              cfg.Timeout,
		onAuthRecoveryFailed: cfg.OnAuthRecoveryFailed,
		refreshPath:          DefaultRefreshPath,
		userAgent:            DefaultUserAgent,
		logger:               zerolog.Nop(),
	}
	for k, v := range cfg.Headers {
		c.headers[http.CanonicalHeaderKey(k)] = v
	}

	for _, opt := range options {
		opt(c)
	}

	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.store == nil {
		c.store = memstore.New()
	}
	if c.httpClient == nil {
		c.httpClient = cleanhttp.DefaultPooledClient()
	}
	return c, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) RefreshPath() string {
	return c.refreshPath
}

// SetTokens stores the access token, and the refresh token only when one is given,
// so refreshing the access token alone keeps the existing refresh token.
func (c *Client) SetTokens(accessToken, refreshToken string) error {
	if err := c.store.Set(tokens.AccessTokenKey, accessToken); err != nil {
		return apierrors.Wrapf(err, "Client.SetTokens access token")
	}
	if refreshToken != "" {
		if err := c.store.Set(tokens.RefreshTokenKey, refreshToken); err != nil {
			return apierrors.Wrapf(err, "Client.SetTokens refresh token")
		}
	}
	return nil
}

// ClearTokens removes both tokens. Clearing an empty session is a no-op.
func (c *Client) ClearTokens() error {
	return errors.Join(
		c.store.Remove(tokens.AccessTokenKey),
		c.store.Remove(tokens.RefreshTokenKey),
	)
}

func (c *Client) AccessToken() (string, bool) {
	return c.token(tokens.AccessTokenKey)
}

func (c *Client) RefreshToken() (string, bool) {
	return c.token(tokens.RefreshTokenKey)
}

// token treats a store read failure as an absent token.
func (c *Client) token(key string) (string, bool) {
	v, ok, err := c.store.Get(key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("token store read failed")
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func normalisePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.Trim(path, "/")
}
