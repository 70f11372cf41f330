package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.remedygo/config.toml.
type Config struct {
	DefaultProfile string  `toml:"default_profile"`
	Backend        Backend `toml:"backend"`
	Assist         Assist  `toml:"assist"`
	Tuning         Tuning  `toml:"tuning"`
}

// Backend holds connection settings for the hosted platform.
type Backend struct {
	BaseURL     string `toml:"base_url"`
	FeedURL     string `toml:"feed_url"`
	APIKey      string `toml:"api_key"`
	AccessToken string `toml:"access_token"`
}

// Assist holds the LLM settings for product Q&A.
type Assist struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

// Tuning holds timing knobs. Zero values fall back to defaults at the call site.
type Tuning struct {
	// BackgroundThresholdMin separates a short backgrounding from a long one
	// when the app returns to foreground. Default 10.
	BackgroundThresholdMin int `toml:"background_threshold_min"`
	// DrainIntervalSec is the periodic offline-queue drain cadence. Default 30.
	DrainIntervalSec int `toml:"drain_interval_sec"`
	// TypingLeaseSec is how long a typing broadcast stays live without
	// renewal. Default 6.
	TypingLeaseSec int `toml:"typing_lease_sec"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
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
