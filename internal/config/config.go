package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied when a field is missing from the config file.
const (
	DefaultServerURL      = "http://localhost:8787"
	DefaultPushDebounceMS = 2000
	DefaultRequestTimeout = 15 * time.Second
)

// Config represents ~/.mneme/config.toml.
type Config struct {
	ServerURL        string `toml:"server_url"`
	SyncEnabled      bool   `toml:"sync_enabled"`
	PushDebounceMS   int    `toml:"push_debounce_ms"`
	RequestTimeoutMS int    `toml:"request_timeout_ms"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		ServerURL:      DefaultServerURL,
		SyncEnabled:    true,
		PushDebounceMS: DefaultPushDebounceMS,
	}
}

// Load reads config from the given path. Returns error if file missing.
// Fields absent from the file keep their Default() values, so a partial
// file cannot flip sync_enabled off.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	if cfg.PushDebounceMS <= 0 {
		cfg.PushDebounceMS = DefaultPushDebounceMS
	}
	return cfg, nil
}

// LoadOrDefault reads config from path, falling back to defaults when the
// file does not exist yet.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// PushDebounce returns the debounce window as a duration.
func (c *Config) PushDebounce() time.Duration {
	return time.Duration(c.PushDebounceMS) * time.Millisecond
}

// RequestTimeout returns the per-request timeout for remote store calls.
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutMS <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}
