package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

const (
	apiURLVar      = "API_URL"
	timeoutVar     = "API_TIMEOUT"
	refreshPathVar = "API_REFRESH_PATH"
	tokenStoreVar  = "API_TOKEN_STORE"
	tokenFileVar   = "API_TOKEN_FILE"

	DefaultAPIURL      = "http://localhost:8000"
	DefaultTimeout     = 30 * time.Second
	DefaultRefreshPath = "auth/refresh"
)

// TokenStoreType selects where session tokens are persisted.
type TokenStoreType string

const (
	TokenStoreMemory TokenStoreType = "memory"
	TokenStoreFile   TokenStoreType = "file"
)

func (t TokenStoreType) Valid() bool {
	switch t {
	case TokenStoreMemory, TokenStoreFile:
		return true
	}
	return false
}

// Client resolves client settings from env vars first, then the config file, then defaults.
type Client struct {
	file FileValues
}

var _ ClientConfig = Client{}

func (c Client) GetAPIURL() string {
	return strings.TrimRight(c.lookup(apiURLVar, c.file.APIURL, DefaultAPIURL), "/")
}

func (c Client) GetTimeout() time.Duration {
	raw := c.lookup(timeoutVar, c.file.Timeout, "")
	if raw == "" {
		return DefaultTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return DefaultTimeout
	}
	return d
}

func (c Client) GetRefreshPath() string {
	return strings.Trim(c.lookup(refreshPathVar, c.file.RefreshPath, DefaultRefreshPath), "/")
}

func (c Client) GetTokenStore() TokenStoreType {
	t := TokenStoreType(strings.ToLower(c.lookup(tokenStoreVar, c.file.TokenStore, string(TokenStoreFile))))
	if !t.Valid() {
		return TokenStoreFile
	}
	return t
}

// GetTokenFile defaults to $XDG_CONFIG_HOME/go-api-client/session.json
func (c Client) GetTokenFile() string {
	if f := c.lookup(tokenFileVar, c.file.TokenFile, ""); f != "" {
		return f
	}
	return filepath.Join(xdg.ConfigHome, "go-api-client", "session.json")
}

func (c Client) lookup(envVar, fileValue, defaultValue string) string {
	if fileValue != "" {
		defaultValue = fileValue
	}
	return GetEnv(envVar, defaultValue)
}
