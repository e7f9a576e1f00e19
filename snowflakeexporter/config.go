// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package snowflakeexporter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultPort         = 8000
	defaultInterval     = 60 * time.Second
	defaultRateLimitQPS = 10
	defaultLogLevel     = "info"
)

// Table/column name whitelist regex (alphanumeric, underscore, dot)
var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_\.]+$`)

type Config struct {
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	Account   string `mapstructure:"account"`
	Warehouse string `mapstructure:"warehouse"`
	Database  string `mapstructure:"database"`
	Schema    string `mapstructure:"schema"`
	Role      string `mapstructure:"role"`

	Port         int    `mapstructure:"port"`           // Default: 8000
	Interval     string `mapstructure:"interval"`       // Default: "60s"
	RateLimitQPS int    `mapstructure:"rate_limit_qps"` // Default: 10
	LogLevel     string `mapstructure:"log_level"`      // Default: "info"
}

// envBindings maps config keys to the environment variables the exporter
// has always been configured with.
var envBindings = []struct {
	key      string
	env      string
	required bool
}{
	{"user", "SNOWFLAKE_USERNAME", true},
	{"password", "SNOWFLAKE_PASSWORD", true},
	{"account", "SNOWFLAKE_ACCOUNT", true},
	{"warehouse", "SNOWFLAKE_WAREHOUSE", true},
	{"database", "SNOWFLAKE_DATABASE", true},
	{"schema", "SNOWFLAKE_SCHEMA", true},
	{"role", "SNOWFLAKE_ROLE", false},
	{"port", "EXPORTER_PORT", false},
	{"interval", "EXPORTER_INTERVAL", false},
	{"rate_limit_qps", "EXPORTER_RATE_LIMIT_QPS", false},
	{"log_level", "EXPORTER_LOG_LEVEL", false},
}

// RegisterFlags adds the command line flags understood by LoadConfig.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to an optional YAML configuration file")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
}

// LoadConfig reads configuration from (in decreasing priority) flags,
// environment variables, the optional YAML file named by --config and
// built-in defaults. The result is validated; any problem is a *ConfigError.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", defaultPort)
	v.SetDefault("interval", defaultInterval.String())
	v.SetDefault("rate_limit_qps", defaultRateLimitQPS)
	v.SetDefault("log_level", defaultLogLevel)

	for _, b := range envBindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, &ConfigError{Err: fmt.Errorf("failed to bind %s: %w", b.env, err)}
		}
	}

	if fs != nil {
		if f := fs.Lookup("log-level"); f != nil {
			if err := v.BindPFlag("log_level", f); err != nil {
				return nil, &ConfigError{Err: fmt.Errorf("failed to bind log-level flag: %w", err)}
			}
		}
		if path, err := fs.GetString("config"); err == nil && path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, &ConfigError{Err: fmt.Errorf("failed to read config file %s: %w", path, err)}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("cannot decode config: %w", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the configuration is complete. Every missing required
// value is reported at once.
func (cfg *Config) Validate() error {
	values := map[string]string{
		"user":      cfg.User,
		"password":  cfg.Password,
		"account":   cfg.Account,
		"warehouse": cfg.Warehouse,
		"database":  cfg.Database,
		"schema":    cfg.Schema,
	}

	var missing []string
	for _, b := range envBindings {
		if b.required && strings.TrimSpace(values[b.key]) == "" {
			missing = append(missing, b.env)
		}
	}

	var errs []error
	for _, id := range []struct{ name, value string }{
		{"warehouse", cfg.Warehouse},
		{"database", cfg.Database},
		{"schema", cfg.Schema},
		{"role", cfg.Role},
	} {
		if id.value == "" {
			continue
		}
		if err := validateIdentifier(id.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id.name, err))
		}
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", cfg.Port))
	}
	if cfg.Interval != "" {
		d, err := time.ParseDuration(cfg.Interval)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid interval: %w", err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("interval must be positive, got %s", d))
		}
	}
	if cfg.RateLimitQPS < 0 {
		errs = append(errs, fmt.Errorf("rate_limit_qps must not be negative, got %d", cfg.RateLimitQPS))
	}

	if len(missing) == 0 && len(errs) == 0 {
		return nil
	}
	return &ConfigError{Missing: missing, Err: errors.Join(errs...)}
}

// validateIdentifier validates identifiers that are interpolated into
// session context statements.
func validateIdentifier(identifier string) error {
	if !identifierRegex.MatchString(identifier) {
		return fmt.Errorf("invalid identifier: %s (must be alphanumeric with underscores/dots only)", identifier)
	}
	return nil
}

// SanitizedDSN returns a DSN string with the password redacted for safe logging
func (cfg *Config) SanitizedDSN() string {
	return fmt.Sprintf("%s:***@%s/%s/%s?warehouse=%s",
		cfg.User,
		cfg.Account,
		cfg.Database,
		cfg.Schema,
		cfg.Warehouse,
	)
}

// Helper methods with defaults

func (cfg *Config) GetInterval() time.Duration {
	if cfg.Interval == "" {
		return defaultInterval
	}
	d, err := time.ParseDuration(cfg.Interval)
	if err != nil || d <= 0 {
		return defaultInterval
	}
	return d
}

func (cfg *Config) GetRateLimitQPS() int {
	if cfg.RateLimitQPS <= 0 {
		return defaultRateLimitQPS
	}
	return cfg.RateLimitQPS
}

func (cfg *Config) GetListenAddress() string {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf(":%d", port)
}
