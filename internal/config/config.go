// Package config resolves CivicPulse directories and loads per-source
// YAML definitions. Directory guessing lives here, at the wiring
// layer; the ledger and extraction packages always receive explicit
// paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Source describes one scraped portal: where it lives, which domains
// it may download from, and how the batch stage should summarize it.
type Source struct {
	SourceID       string   `yaml:"source_id"`
	CityName       string   `yaml:"city_name"`
	BaseURL        string   `yaml:"base_url"`
	AllowedDomains []string `yaml:"allowed_domains"`
	Keywords       []string `yaml:"keywords"`
	RequestDelayMS int      `yaml:"request_delay_ms"`
}

// LoadSource reads and validates a source config file.
func LoadSource(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var src Source
	if err := yaml.Unmarshal(data, &src); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &src, nil
}

// Validate checks the fields every pipeline stage depends on.
func (s *Source) Validate() error {
	if s.SourceID == "" {
		return fmt.Errorf("missing required field: source_id")
	}
	if len(s.AllowedDomains) == 0 {
		return fmt.Errorf("missing required field: allowed_domains")
	}
	if s.RequestDelayMS < 0 {
		return fmt.Errorf("request_delay_ms must be non-negative, got %d", s.RequestDelayMS)
	}
	return nil
}

// Delay returns the configured inter-request delay.
func (s *Source) Delay() time.Duration {
	return time.Duration(s.RequestDelayMS) * time.Millisecond
}

// GetDataDir returns the directory holding the database and downloaded
// documents. CIVICPULSE_DATA_DIR overrides the default under the home
// directory.
func GetDataDir() (string, error) {
	if dir := os.Getenv("CIVICPULSE_DATA_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".civicpulse"), nil
}

// GetConfigDir returns the directory holding source config files.
func GetConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve config directory: %w", err)
	}
	return filepath.Join(base, "civicpulse"), nil
}

// DefaultDBPath returns the default ledger database location.
func DefaultDBPath() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "civicpulse.db"), nil
}
