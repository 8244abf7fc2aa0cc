package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

const defaultConfigPath = "/etc/mancorpus/config.json"

// Config holds the settings shared by the ingest and query commands.
type Config struct {
	DatabaseURL     string   `json:"database_url"`
	Driver          string   `json:"driver"` // "postgres" or "sqlite"; inferred from the URL when empty
	Locale          string   `json:"locale"`
	Distro          string   `json:"distro"`
	ManRoot         string   `json:"man_root"`
	MandocBinary    string   `json:"mandoc_binary"`
	Concurrency     int      `json:"concurrency"`
	ContentPackages []string `json:"content_packages"`
}

func DefaultPath() string {
	if path := os.Getenv("MANCORPUS_CONFIG_FILE"); path != "" {
		return path
	}
	return defaultConfigPath
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Locale == "" {
		c.Locale = "en"
	}
	if c.ManRoot == "" {
		c.ManRoot = "/usr/share/man"
	}
	if c.MandocBinary == "" {
		c.MandocBinary = "mandoc"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.Driver == "" {
		c.Driver = DriverForURL(c.DatabaseURL)
	}
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("config database_url is required")
	}
	if c.Distro == "" {
		return errors.New("config distro is required")
	}
	if c.Driver != "postgres" && c.Driver != "sqlite" {
		return fmt.Errorf("config driver %q is not supported", c.Driver)
	}
	return nil
}

// DriverForURL infers the store backend from a database URL: postgres://
// URLs use the Postgres backend, anything else is treated as a SQLite
// file path.
func DriverForURL(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}
