// Package config loads ragdeck's configuration: a YAML file, an optional
// .env file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Search  SearchConfig  `yaml:"search"`
	Index   IndexConfig   `yaml:"index"`
	Models  ModelsConfig  `yaml:"models"`
	UI      UIConfig      `yaml:"ui"`
	Storage StorageConfig `yaml:"storage"`
}

// APIConfig locates the backend.
type APIConfig struct {
	BaseURL     string  `yaml:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst       int     `yaml:"burst"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	MaxResults      int  `yaml:"max_results"`
	IncludeMetadata bool `yaml:"include_metadata"`
}

// IndexConfig holds index defaults. Empty Extensions leaves the choice to the backend.
type IndexConfig struct {
	Extensions []string `yaml:"extensions,omitempty"`
}

// ModelsConfig selects how confirmed model changes are sent: "index" or "model-endpoint".
type ModelsConfig struct {
	ChangeStrategy string `yaml:"change_strategy"`
}

// UIConfig holds TUI preferences.
type UIConfig struct {
	Trace    bool `yaml:"trace"`
	RingSize int  `yaml:"ring_size"`
}

// StorageConfig locates local files. Empty Dir means ~/.ragdeck.
type StorageConfig struct {
	Dir            string `yaml:"dir,omitempty"`
	HistoryDays    int    `yaml:"history_days"`
	DisableHistory bool   `yaml:"disable_history"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:     "http://localhost:8000",
			TimeoutSecs: 30,
			Burst:       1,
		},
		Search: SearchConfig{
			MaxResults:      5,
			IncludeMetadata: true,
		},
		Models: ModelsConfig{ChangeStrategy: "index"},
		UI:     UIConfig{RingSize: 1024},
		Storage: StorageConfig{
			HistoryDays: 30,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./ragdeck.yaml, then ~/.ragdeck/config.yaml. If neither
// exists the defaults are written to the latter. Returns the path used.
func LoadDefault() (*Config, string, error) {
	cwdPath := "ragdeck.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	dir, err := HomeDir()
	if err != nil {
		return nil, "", err
	}
	userPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes cfg to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadDotEnv loads KEY=value pairs from the given files (default ".env")
// into the process environment without overriding existing variables.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from environment variables read through getenv.
// RAGDECK_API_URL wins over VITE_API_URL.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("VITE_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := getenv("RAGDECK_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := getenv("RAGDECK_API_TIMEOUT"); v != "" {
		secs, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("RAGDECK_API_TIMEOUT: %w", err)
		}
		c.API.TimeoutSecs = secs
	}
	if v := getenv("RAGDECK_MODEL_CHANGE"); v != "" {
		c.Models.ChangeStrategy = v
	}
	if v := getenv("RAGDECK_TRACE"); v != "" {
		c.UI.Trace = true
	}
	if v := getenv("RAGDECK_HOME"); v != "" {
		c.Storage.Dir = v
	}
	return nil
}

// parseSeconds accepts "45" or a duration such as "1m30s".
func parseSeconds(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", v)
	}
	return int(d.Seconds()), nil
}

// Validate checks ranges the backend and client enforce.
func (c *Config) Validate() error {
	var errs []error
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL))
	}
	if c.API.TimeoutSecs <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout_secs must be positive"))
	}
	if c.API.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("api.rate_limit must not be negative"))
	}
	if c.Search.MaxResults < 1 || c.Search.MaxResults > 20 {
		errs = append(errs, fmt.Errorf("search.max_results must be between 1 and 20"))
	}
	switch strings.ToLower(c.Models.ChangeStrategy) {
	case "", "index", "model-endpoint", "endpoint":
	default:
		errs = append(errs, fmt.Errorf("models.change_strategy must be index or model-endpoint"))
	}
	return errors.Join(errs...)
}

// Timeout returns the request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// HomeDir returns ~/.ragdeck.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".ragdeck"), nil
}

// Dir returns the storage directory.
func (c *Config) Dir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	return HomeDir()
}

// HistoryPath is the SQLite history database.
func (c *Config) HistoryPath() (string, error) {
	dir, err := c.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// EventLogPath is the JSONL event log.
func (c *Config) EventLogPath() (string, error) {
	dir, err := c.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ragdeck.events.jsonl"), nil
}

// LogDir holds the dated diagnostic logs.
func (c *Config) LogDir() (string, error) {
	dir, err := c.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}
