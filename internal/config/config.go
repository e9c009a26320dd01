package config

import (
	"fmt"
	"os"
	"time"

	apierrors "github.com/jrsteele09/go-api-client/internal/errors"
	"gopkg.in/yaml.v3"
)

type Config interface {
	EnvConfig
	ClientConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type ClientConfig interface {
	GetAPIURL() string
	GetTimeout() time.Duration
	GetRefreshPath() string
	GetTokenStore() TokenStoreType
	GetTokenFile() string
}

type mainConfig struct {
	EnvVars
	Client
}

// New returns a configuration built from defaults and environment variables.
func New() Config {
	return mainConfig{Client: Client{}}
}

// Load reads an optional YAML file and layers environment variables on top of it.
// An empty path behaves like New.
func Load(path string) (Config, error) {
	if path == "" {
		return New(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load read %s: %w", path, err)
	}
	var fv FileValues
	if err := yaml.Unmarshal(data, &fv); err != nil {
		return nil, fmt.Errorf("config.Load parse %s: %w", path, err)
	}
	if err := fv.validate(); err != nil {
		return nil, fmt.Errorf("config.Load %s: %w", path, err)
	}
	return mainConfig{Client: Client{file: fv}}, nil
}

// FileValues is the YAML shape of the configuration file.
type FileValues struct {
	APIURL      string `yaml:"api_url"`
	Timeout     string `yaml:"timeout"`
	RefreshPath string `yaml:"refresh_path"`
	TokenStore  string `yaml:"token_store"`
	TokenFile   string `yaml:"token_file"`
}

func (fv FileValues) validate() error {
	if fv.Timeout != "" {
		if _, err := time.ParseDuration(fv.Timeout); err != nil {
			return apierrors.Wrapf(apierrors.ErrInvalidConfig, "timeout %q", fv.Timeout)
		}
	}
	if fv.TokenStore != "" && !TokenStoreType(fv.TokenStore).Valid() {
		return apierrors.Wrapf(apierrors.ErrInvalidConfig, "token_store %q", fv.TokenStore)
	}
	return nil
}
