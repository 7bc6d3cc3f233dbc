// Package config loads trainsync settings from flags, COROS_* environment
// variables, a trainsync.toml file and built-in defaults, in that order.
//
// The resulting Config is built once in main and passed explicitly to every
// component; nothing below the command layer reads the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/nametoa/ai-sport-training/internal/coros"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "COROS"

// FileName is the base name of the config file, without extension.
const FileName = "trainsync"

// ErrMissingToken is returned by Validate when no access token is configured.
var ErrMissingToken = errors.New("COROS_ACCESS_TOKEN not set; run 'trainsync config init' or export it")

// Config is the complete runtime configuration.
type Config struct {
	// Vendor credentials
	BaseURL      string `mapstructure:"base_url"`
	AccessToken  string `mapstructure:"access_token"`
	CookieWBKFRo string `mapstructure:"cookie_wbkfro"`
	CookieRegion string `mapstructure:"cookie_region"`
	UserID       string `mapstructure:"user_id"`

	// Sync behavior
	PageSize    int           `mapstructure:"page_size"`
	PageDelay   time.Duration `mapstructure:"page_delay"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	// Local paths
	DataDir      string `mapstructure:"data_dir"`
	KnowledgeDir string `mapstructure:"knowledge_dir"`
	LogFile      string `mapstructure:"log_file"`

	// serve
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	Port         int           `mapstructure:"port"`

	// Error reporting
	SentryDSN string `mapstructure:"sentry_dsn"`
	SentryEnv string `mapstructure:"sentry_env"`

	// coach
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key"`
	CoachModel      string        `mapstructure:"coach_model"`
	ContextTTL      time.Duration `mapstructure:"context_ttl"`
	GitHubRepo      string        `mapstructure:"github_repo"`
	GitHubBranch    string        `mapstructure:"github_branch"`
	GitHubToken     string        `mapstructure:"github_token"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:      coros.DefaultBaseURL,
		CookieRegion: "2",
		PageSize:     20,
		PageDelay:    300 * time.Millisecond,
		HTTPTimeout:  30 * time.Second,
		DataDir:      "data",
		KnowledgeDir: "knowledge",
		SyncInterval: 6 * time.Hour,
		Port:         8080,
		CoachModel:   "claude-sonnet-4-5",
		ContextTTL:   time.Hour,
		GitHubBranch: "main",
	}
}

// NewViper returns a viper instance wired with defaults, environment binding
// and the config file search path.
func NewViper() *viper.Viper {
	v := viper.New()

	d := DefaultConfig()
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("access_token", "")
	v.SetDefault("cookie_wbkfro", "")
	v.SetDefault("cookie_region", d.CookieRegion)
	v.SetDefault("user_id", "")
	v.SetDefault("page_size", d.PageSize)
	v.SetDefault("page_delay", d.PageDelay)
	v.SetDefault("http_timeout", d.HTTPTimeout)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("knowledge_dir", d.KnowledgeDir)
	v.SetDefault("log_file", "")
	v.SetDefault("sync_interval", d.SyncInterval)
	v.SetDefault("port", d.Port)
	v.SetDefault("sentry_dsn", "")
	v.SetDefault("sentry_env", "")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("coach_model", d.CoachModel)
	v.SetDefault("context_ttl", d.ContextTTL)
	v.SetDefault("github_repo", "")
	v.SetDefault("github_branch", d.GitHubBranch)
	v.SetDefault("github_token", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// The API key keeps its conventional unprefixed name.
	_ = v.BindEnv("anthropic_api_key", "COROS_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")

	v.SetConfigName(FileName)
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	if dir, err := UserConfigDir(); err == nil {
		v.AddConfigPath(dir)
	}
	return v
}

// UserConfigDir returns $HOME/.config/trainsync.
func UserConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", FileName), nil
}

// Load reads the config file (if any) into v and decodes the result.
// A missing config file is not an error.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize replaces out-of-range values with defaults.
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.PageDelay < 0 {
		c.PageDelay = 0
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = d.HTTPTimeout
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.CookieRegion == "" {
		c.CookieRegion = d.CookieRegion
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = d.SyncInterval
	}
	if c.ContextTTL <= 0 {
		c.ContextTTL = d.ContextTTL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Validate checks the settings required to talk to the vendor API.
func (c Config) Validate() error {
	if strings.TrimSpace(c.AccessToken) == "" {
		return ErrMissingToken
	}
	if c.PageSize > 200 {
		return fmt.Errorf("page_size %d out of range (1-200)", c.PageSize)
	}
	return nil
}

// Client returns the backend client settings derived from c.
func (c Config) Client() coros.Config {
	return coros.Config{
		BaseURL:      c.BaseURL,
		AccessToken:  c.AccessToken,
		CookieWBKFRo: c.CookieWBKFRo,
		Region:       c.CookieRegion,
		UserID:       c.UserID,
		Timeout:      c.HTTPTimeout,
	}
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	c.AccessToken = mask(c.AccessToken)
	c.CookieWBKFRo = mask(c.CookieWBKFRo)
	c.AnthropicAPIKey = mask(c.AnthropicAPIKey)
	c.GitHubToken = mask(c.GitHubToken)
	c.SentryDSN = mask(c.SentryDSN)
	return c
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "****" + s[len(s)-2:]
	}
}

// fileConfig is the on-disk form; durations are written as strings.
type fileConfig struct {
	BaseURL         string `toml:"base_url"`
	AccessToken     string `toml:"access_token"`
	CookieWBKFRo    string `toml:"cookie_wbkfro"`
	CookieRegion    string `toml:"cookie_region"`
	UserID          string `toml:"user_id"`
	PageSize        int    `toml:"page_size"`
	PageDelay       string `toml:"page_delay"`
	HTTPTimeout     string `toml:"http_timeout"`
	DataDir         string `toml:"data_dir"`
	KnowledgeDir    string `toml:"knowledge_dir"`
	LogFile         string `toml:"log_file,omitempty"`
	SyncInterval    string `toml:"sync_interval"`
	Port            int    `toml:"port"`
	SentryDSN       string `toml:"sentry_dsn,omitempty"`
	SentryEnv       string `toml:"sentry_env,omitempty"`
	AnthropicAPIKey string `toml:"anthropic_api_key,omitempty"`
	CoachModel      string `toml:"coach_model"`
	ContextTTL      string `toml:"context_ttl"`
	GitHubRepo      string `toml:"github_repo,omitempty"`
	GitHubBranch    string `toml:"github_branch,omitempty"`
	GitHubToken     string `toml:"github_token,omitempty"`
}

// toFile converts c to its on-disk form.
func toFile(c Config) fileConfig {
	return fileConfig{
		BaseURL:         c.BaseURL,
		AccessToken:     c.AccessToken,
		CookieWBKFRo:    c.CookieWBKFRo,
		CookieRegion:    c.CookieRegion,
		UserID:          c.UserID,
		PageSize:        c.PageSize,
		PageDelay:       c.PageDelay.String(),
		HTTPTimeout:     c.HTTPTimeout.String(),
		DataDir:         c.DataDir,
		KnowledgeDir:    c.KnowledgeDir,
		LogFile:         c.LogFile,
		SyncInterval:    c.SyncInterval.String(),
		Port:            c.Port,
		SentryDSN:       c.SentryDSN,
		SentryEnv:       c.SentryEnv,
		AnthropicAPIKey: c.AnthropicAPIKey,
		CoachModel:      c.CoachModel,
		ContextTTL:      c.ContextTTL.String(),
		GitHubRepo:      c.GitHubRepo,
		GitHubBranch:    c.GitHubBranch,
		GitHubToken:     c.GitHubToken,
	}
}

// Encode writes c to w in the config file format.
func Encode(w io.Writer, c Config) error {
	if err := toml.NewEncoder(w).Encode(toFile(c)); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// WriteFile writes c as TOML to path with owner-only permissions.
// The write goes through a temp file so a crash never leaves a partial file.
func WriteFile(path string, c Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := Encode(f, c); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename config file: %w", err)
	}
	return nil
}
