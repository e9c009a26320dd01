package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-api-client/internal/config"
	apierrors "github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNew_Defaults(t *testing.T) {
	t.Setenv("API_URL", "")
	t.Setenv("API_TIMEOUT", "")
	t.Setenv("API_TOKEN_STORE", "")
	t.Setenv("API_REFRESH_PATH", "")

	c := config.New()
	require.Equal(t, config.DefaultAPIURL, c.GetAPIURL())
	require.Equal(t, config.DefaultTimeout, c.GetTimeout())
	require.Equal(t, "auth/refresh", c.GetRefreshPath())
	require.Equal(t, config.TokenStoreFile, c.GetTokenStore())
	require.Equal(t, "DEV", c.GetEnv())
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("API_URL", "https://api.example.com/")
	t.Setenv("API_TIMEOUT", "5s")
	t.Setenv("API_TOKEN_STORE", "MEMORY")
	t.Setenv("API_TOKEN_FILE", "/tmp/session.json")

	c := config.New()
	require.Equal(t, "https://api.example.com", c.GetAPIURL())
	require.Equal(t, 5*time.Second, c.GetTimeout())
	require.Equal(t, config.TokenStoreMemory, c.GetTokenStore())
	require.Equal(t, "/tmp/session.json", c.GetTokenFile())
}

func TestNew_BadTimeoutFallsBack(t *testing.T) {
	t.Setenv("API_TIMEOUT", "soon")
	require.Equal(t, config.DefaultTimeout, config.New().GetTimeout())
}

func TestLoad(t *testing.T) {
	t.Run("file values", func(t *testing.T) {
		t.Setenv("API_URL", "")
		t.Setenv("API_TIMEOUT", "")
		t.Setenv("API_TOKEN_STORE", "")
		path := writeConfig(t, "api_url: http://file.example.com\ntimeout: 10s\ntoken_store: memory\n")

		c, err := config.Load(path)
		require.NoError(t, err)
		require.Equal(t, "http://file.example.com", c.GetAPIURL())
		require.Equal(t, 10*time.Second, c.GetTimeout())
		require.Equal(t, config.TokenStoreMemory, c.GetTokenStore())
	})

	t.Run("env wins over file", func(t *testing.T) {
		t.Setenv("API_URL", "http://env.example.com")
		path := writeConfig(t, "api_url: http://file.example.com\n")

		c, err := config.Load(path)
		require.NoError(t, err)
		require.Equal(t, "http://env.example.com", c.GetAPIURL())
	})

	t.Run("invalid timeout", func(t *testing.T) {
		path := writeConfig(t, "timeout: later\n")
		_, err := config.Load(path)
		require.ErrorIs(t, err, apierrors.ErrInvalidConfig)
	})

	t.Run("invalid store", func(t *testing.T) {
		path := writeConfig(t, "token_store: cookie\n")
		_, err := config.Load(path)
		require.ErrorIs(t, err, apierrors.ErrInvalidConfig)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("empty path", func(t *testing.T) {
		c, err := config.Load("")
		require.NoError(t, err)
		require.NotNil(t, c)
	})
}
