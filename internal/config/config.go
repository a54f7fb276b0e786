// Package config handles the configuration directory, settings file and credentials.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AppName is the application directory name.
	AppName = "sheetrow"

	// SettingsFile holds user settings and the API key.
	SettingsFile = "config.yaml"

	// StateFile holds the resumable task slot.
	StateFile = "state.json"

	// OAuthClientFile is the Google OAuth client credentials filename.
	OAuthClientFile = "oauth_client.json"

	// TokenFile is the stored Google OAuth token filename.
	TokenFile = "token.json"

	// DefaultAPIURL is the compute service base URL.
	DefaultAPIURL = "https://api.sheetrow.dev/v1"

	// DefaultEncoding is the tokenizer used for input size estimates.
	DefaultEncoding = "o200k_base"

	// Environment overrides.
	EnvAPIKey = "SHEETROW_API_KEY"
	EnvAPIURL = "SHEETROW_API_URL"
)

// ErrNoCredential means no API key is configured. It is reported before any
// network call is made.
var ErrNoCredential = errors.New("no API key configured (run: sheetrow key <api-key> or set " + EnvAPIKey + ")")

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// Debug enables debug logging.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool

	// Settings is the parsed config.yaml, or defaults if it does not exist.
	Settings Settings

	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Settings is the content of config.yaml.
type Settings struct {
	APIURL         string  `yaml:"api-url,omitempty"`
	APIKey         string  `yaml:"api-key,omitempty"`
	Poll           Poll    `yaml:"poll,omitempty"`
	MaxInputTokens int     `yaml:"max-input-tokens,omitempty"`
	Encoding       string  `yaml:"encoding,omitempty"`
	RequestsPerSec float64 `yaml:"requests-per-second,omitempty"`
}

// Poll overrides the polling policy. Zero fields keep the defaults.
type Poll struct {
	Initial    time.Duration `yaml:"initial,omitempty"`
	Multiplier float64       `yaml:"multiplier,omitempty"`
	Max        time.Duration `yaml:"max,omitempty"`
	Budget     time.Duration `yaml:"budget,omitempty"`
}

// New creates a new Config with the default or specified config directory
// and loads config.yaml from it if present.
// If configDir is empty, uses XDG_CONFIG_HOME/sheetrow or $HOME/.config/sheetrow.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	cfg := &Config{Dir: dir}
	if err := cfg.loadSettings(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

func (c *Config) loadSettings() error {
	data, err := os.ReadFile(c.SettingsPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", SettingsFile, err)
	}
	if err := yaml.Unmarshal(data, &c.Settings); err != nil {
		return fmt.Errorf("parse %s: %w", SettingsFile, err)
	}
	return nil
}

// SaveSettings writes config.yaml with mode 0600.
func (c *Config) SaveSettings() error {
	if err := c.EnsureDir(); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(&c.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return os.WriteFile(c.SettingsPath(), data, 0600)
}

// Credential returns the API key: the environment wins over config.yaml.
// Returns "" when none is configured.
func (c *Config) Credential() string {
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		return key
	}
	return strings.TrimSpace(c.Settings.APIKey)
}

// APIURL returns the compute service base URL.
func (c *Config) APIURL() string {
	if u := strings.TrimSpace(os.Getenv(EnvAPIURL)); u != "" {
		return u
	}
	if c.Settings.APIURL != "" {
		return c.Settings.APIURL
	}
	return DefaultAPIURL
}

// Encoding returns the tokenizer encoding name.
func (c *Config) Encoding() string {
	if c.Settings.Encoding != "" {
		return c.Settings.Encoding
	}
	return DefaultEncoding
}

// Log returns the configured logger, or one that discards everything.
func (c *Config) Log() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// SettingsPath returns the path to config.yaml.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Dir, SettingsFile)
}

// StatePath returns the path to the resumable task state file.
func (c *Config) StatePath() string {
	return filepath.Join(c.Dir, StateFile)
}

// OAuthClientPath returns the path to the OAuth client credentials file.
func (c *Config) OAuthClientPath() string {
	return filepath.Join(c.Dir, OAuthClientFile)
}

// TokenPath returns the path to the stored OAuth token file.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Dir, TokenFile)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// HasOAuthClient checks if the OAuth client credentials file exists.
func (c *Config) HasOAuthClient() bool {
	_, err := os.Stat(c.OAuthClientPath())
	return err == nil
}

// HasToken checks if the token file exists.
func (c *Config) HasToken() bool {
	_, err := os.Stat(c.TokenPath())
	return err == nil
}

// RemoveToken deletes the token file.
func (c *Config) RemoveToken() error {
	return os.Remove(c.TokenPath())
}
