package main

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-api-client/apiclient"
	"github.com/jrsteele09/go-api-client/internal/config"
	"github.com/jrsteele09/go-api-client/tokens/filestore"
	"github.com/jrsteele09/go-api-client/tokens/memstore"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "recovery failed",
			err:  fmt.Errorf("AuthAPI.Me: %w", &apiclient.AuthRecoveryError{Err: errors.New("boom")}),
			want: "session expired, log in again",
		},
		{
			name: "unauthorized with detail",
			err:  &apiclient.HTTPError{StatusCode: http.StatusUnauthorized, Body: []byte(`{"detail":"Incorrect username or password"}`)},
			want: "unauthorized: Incorrect username or password",
		},
		{
			name: "unauthorized",
			err:  &apiclient.HTTPError{StatusCode: http.StatusUnauthorized},
			want: "unauthorized: log in first",
		},
		{
			name: "forbidden",
			err:  &apiclient.HTTPError{StatusCode: http.StatusForbidden, Body: []byte(`{"detail":"Not enough permissions"}`)},
			want: "Not enough permissions (HTTP 403)",
		},
		{
			name: "timeout",
			err:  &apiclient.TimeoutError{Timeout: 5 * time.Second},
			want: "API did not respond within 5s",
		},
		{
			name: "other",
			err:  errors.New("boom"),
			want: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.EqualError(t, describe(tt.err), tt.want)
		})
	}
}

func TestOpenStore(t *testing.T) {
	t.Setenv("API_TOKEN_STORE", "memory")
	s, err := openStore(config.New())
	require.NoError(t, err)
	require.IsType(t, &memstore.MemStore{}, s)

	t.Setenv("API_TOKEN_STORE", "file")
	t.Setenv("API_TOKEN_FILE", filepath.Join(t.TempDir(), "session.json"))
	s, err = openStore(config.New())
	require.NoError(t, err)
	require.IsType(t, &filestore.FileStore{}, s)
}

func TestNewApp_Commands(t *testing.T) {
	app := newApp()
	for _, name := range []string{
		"login", "logout", "me", "register", "update-profile", "refresh", "status",
		"oauth-url", "oauth-callback", "users", "set-role", "serve-mock", "version",
	} {
		require.NotNil(t, app.Command(name), name)
	}
}
