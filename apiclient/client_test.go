package apiclient_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/go-api-client/apiclient"
	apierrors "github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/tokens/filestore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

const (
	staleToken   = "tok1"
	freshToken   = "tok2"
	testRefresh  = "ref1"
	refreshRoute = "/auth/refresh"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
	Header http.Header
}

// fakeBackend accepts validToken on every route except the refresh route, which exchanges
// refreshToken for issueToken. It is configured before the server starts and is read-only afterwards.
type fakeBackend struct {
	validToken         string
	refreshToken       string
	issueToken         string
	rotateTo           string
	refreshStatus      int    // non-zero forces the refresh response status
	beforeRefresh      func() // runs at the start of each refresh call
	beforeUnauthorized func() // runs before each 401 is written

	srv          *httptest.Server
	refreshCalls atomic.Int32
	unauthorized atomic.Int32

	lock     sync.Mutex
	requests []recordedRequest
}

func newFakeBackend(t *testing.T, configure ...func(*fakeBackend)) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		validToken:   freshToken,
		refreshToken: testRefresh,
		issueToken:   freshToken,
	}
	for _, fn := range configure {
		fn(b)
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serveHTTP))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) URL() string {
	return b.srv.URL
}

func (b *fakeBackend) Requests(path string) []recordedRequest {
	b.lock.Lock()
	defer b.lock.Unlock()
	var out []recordedRequest
	for _, r := range b.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (b *fakeBackend) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.lock.Lock()
	b.requests = append(b.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Body:   string(body),
		Header: r.Header.Clone(),
	})
	b.lock.Unlock()

	if r.URL.Path == refreshRoute {
		b.serveRefresh(w, body)
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+b.validToken {
		b.unauthorized.Add(1)
		if b.beforeUnauthorized != nil {
			b.beforeUnauthorized()
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": r.URL.Path, "method": r.Method})
}

func (b *fakeBackend) serveRefresh(w http.ResponseWriter, body []byte) {
	b.refreshCalls.Add(1)
	if b.beforeRefresh != nil {
		b.beforeRefresh()
	}
	if b.refreshStatus != 0 {
		writeJSON(w, b.refreshStatus, map[string]string{"detail": "refresh unavailable"})
		return
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.RefreshToken != b.refreshToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid refresh token"})
		return
	}
	resp := map[string]string{"access_token": b.issueToken, "token_type": "bearer"}
	if b.rotateTo != "" {
		resp["refresh_token"] = b.rotateTo
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type recoveryCounter struct {
	calls atomic.Int32
}

func (rc *recoveryCounter) callback() {
	rc.calls.Add(1)
}

func newClient(t *testing.T, baseURL string, cfg apiclient.Config, opts ...apiclient.Option) *apiclient.Client {
	t.Helper()
	cfg.BaseURL = baseURL
	opts = append([]apiclient.Option{apiclient.WithLogger(zerolog.Nop())}, opts...)
	c, err := apiclient.New(cfg, opts...)
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := apiclient.New(apiclient.Config{})
	require.ErrorIs(t, err, apierrors.ErrMissingBaseURL)

	_, err = apiclient.New(apiclient.Config{BaseURL: "localhost"})
	require.ErrorIs(t, err, apierrors.ErrInvalidConfig)

	c, err := apiclient.New(apiclient.Config{BaseURL: " http://localhost:8000/api/ "})
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000/api", c.BaseURL())
	require.Equal(t, apiclient.DefaultRefreshPath, c.RefreshPath())

	c, err = apiclient.New(apiclient.Config{BaseURL: "http://localhost:8000"}, apiclient.WithRefreshPath("/v2/token/refresh/"))
	require.NoError(t, err)
	require.Equal(t, "v2/token/refresh", c.RefreshPath())
}

func TestNew_DefaultLoggerIsSilent(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.TraceLevel)
	t.Cleanup(func() { log.Logger = prev })

	b := newFakeBackend(t)
	c, err := apiclient.New(apiclient.Config{BaseURL: b.URL()})
	require.NoError(t, err)
	require.NoError(t, c.SetTokens(staleToken, testRefresh))
	require.NoError(t, c.Get(t.Context(), "items", nil))

	require.EqualValues(t, 1, b.refreshCalls.Load())
	require.Zero(t, buf.Len())
}

func TestTokens(t *testing.T) {
	c := newClient(t, "http://localhost:8000", apiclient.Config{})

	_, ok := c.AccessToken()
	require.False(t, ok)

	require.NoError(t, c.SetTokens(staleToken, testRefresh))
	access, ok := c.AccessToken()
	require.True(t, ok)
	require.Equal(t, staleToken, access)

	// An empty refresh token leaves the stored one in place.
	require.NoError(t, c.SetTokens(freshToken, ""))
	access, _ = c.AccessToken()
	refresh, ok := c.RefreshToken()
	require.Equal(t, freshToken, access)
	require.True(t, ok)
	require.Equal(t, testRefresh, refresh)

	require.NoError(t, c.ClearTokens())
	require.NoError(t, c.ClearTokens())
	_, ok = c.AccessToken()
	require.False(t, ok)
	_, ok = c.RefreshToken()
	require.False(t, ok)
}

func TestClient_FileStorePersistsRefreshedSession(t *testing.T) {
	b := newFakeBackend(t)
	path := filepath.Join(t.TempDir(), "session.json")

	store, err := filestore.Open(path)
	require.NoError(t, err)
	c := newClient(t, b.URL(), apiclient.Config{}, apiclient.WithStore(store))
	require.NoError(t, c.SetTokens(staleToken, testRefresh))

	require.NoError(t, c.Get(t.Context(), "items", nil))

	// A second process picking up the same file sees the refreshed session.
	reopened, err := filestore.Open(path)
	require.NoError(t, err)
	c2 := newClient(t, b.URL(), apiclient.Config{}, apiclient.WithStore(reopened))
	access, _ := c2.AccessToken()
	refresh, _ := c2.RefreshToken()
	require.Equal(t, freshToken, access)
	require.Equal(t, testRefresh, refresh)
}
