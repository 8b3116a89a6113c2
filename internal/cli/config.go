// Package cli provides shared configuration and utilities for the ogo-authz CLI.
package cli

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the ogo-authz configuration from ogo-authz.yaml.
type Config struct {
	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Fallback is the policy for entity kinds without a permission
	// handler: "allow" (historical default) or "deny".
	Fallback string `mapstructure:"fallback"`
}

// DatabaseConfig holds database connection settings. URL wins over the
// individual fields when both are given.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the connection string for database/sql, assembled from the
// URL or the individual fields.
func (c DatabaseConfig) DSN() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	if c.Host == "" || c.Name == "" {
		return "", fmt.Errorf("no database configured: set database.url or database.host and database.name")
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// LoadConfig discovers and loads configuration with proper precedence:
// flags > env > config file > defaults. Flags are applied by the commands
// themselves after loading.
//
// Returns the loaded config and the path of the config file used (empty if
// none was found; a missing config file is not an error).
func LoadConfig(explicitPath string) (*Config, string, error) {
	v := viper.New()
	v.SetConfigName("ogo-authz")
	v.SetConfigType("yaml")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("fallback", "allow")

	v.SetEnvPrefix("OGO_AUTHZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// DATABASE_URL is conventional enough to honor without the prefix.
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		v.SetDefault("database.url", dsn)
	}

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ogo-authz"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine during discovery; everything
		// else (unreadable file, bad YAML) is surfaced.
		var notFound viper.ConfigFileNotFoundError
		if explicitPath != "" || !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, v.ConfigFileUsed(), nil
}
