// Package config handles loading and validating Mlinzi configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Mlinzi.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.mlinzi. Override: MLINZI_DATA_DIR.
	Op            OpConfig             `json:"op" yaml:"op"`
	Audit         AuditConfig          `json:"audit" yaml:"audit"`
	Log           LogConfig            `json:"log" yaml:"log"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Diagnostics   *DiagnosticsConfig   `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`     // nil = diagnostics server disabled
}

// OpConfig configures the 1Password CLI invocation.
type OpConfig struct {
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`           // op binary name or path. Default: "op". Override: MLINZI_OP_PATH.
	Timeout  string `json:"timeout,omitempty" yaml:"timeout,omitempty"`     // Duration string, e.g. "30s". Default: 30s. Override: MLINZI_OP_TIMEOUT.
	TokenRef string `json:"token_ref,omitempty" yaml:"token_ref,omitempty"` // Credential reference: env://VAR or file:///path. Default: env://OP_SERVICE_ACCOUNT_TOKEN. Override: MLINZI_OP_TOKEN_REF.
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	LogPath string `json:"log_path,omitempty" yaml:"log_path,omitempty"` // JSONL audit log. Default: <data_dir>/audit.jsonl. Override: MLINZI_AUDIT_LOG.
	DBPath  string `json:"db_path,omitempty" yaml:"db_path,omitempty"`   // Optional SQLite history. Empty = disabled. Override: MLINZI_AUDIT_DB.
	Disable bool   `json:"disable,omitempty" yaml:"disable,omitempty"`   // Disable auditing entirely.
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`   // debug, info, warn, error. Default: info. Override: MLINZI_LOG_LEVEL.
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // text or json. Default: text.
}

// ObservabilityConfig enables metrics, tracing, and anomaly detection.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Anomaly *AnomalyConfig `json:"anomaly,omitempty" yaml:"anomaly,omitempty"`
}

// MetricsConfig enables Prometheus metrics collection.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	ServiceName string  `json:"service_name,omitempty" yaml:"service_name,omitempty"` // Default: "mlinzi".
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`         // OTLP endpoint, e.g. "localhost:4317".
	Protocol    string  `json:"protocol,omitempty" yaml:"protocol,omitempty"`         // "grpc" (default) or "http".
	Insecure    bool    `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	SampleRate  float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"` // 0 < rate <= 1. Default: 1.0.
}

// AnomalyConfig enables threshold-based failure-rate alerting on op
// invocations.
type AnomalyConfig struct {
	Enabled              bool    `json:"enabled" yaml:"enabled"`
	WindowSeconds        int     `json:"window_seconds,omitempty" yaml:"window_seconds,omitempty"`               // Sliding window size. Default: 300.
	ErrorRateThreshold   float64 `json:"error_rate_threshold,omitempty" yaml:"error_rate_threshold,omitempty"`   // 0..1. Default: 0.5.
	AuthFailureThreshold int     `json:"auth_failure_threshold,omitempty" yaml:"auth_failure_threshold,omitempty"` // Auth failures per window. Default: 3.
}

// DiagnosticsConfig configures the localhost diagnostics HTTP server.
// It serves metrics and health only; no vault data and no item identifiers.
type DiagnosticsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"` // Default: "127.0.0.1:9464".
}

// DefaultConfigPath returns the default config file path (~/.mlinzi/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".mlinzi", "config.yaml")
}

// Load reads the config file at path (YAML or JSON by extension), applies
// environment variable overrides, fills defaults, and validates. A missing
// file is not an error: the defaults plus environment are a complete
// configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	var cfg Config
	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
		case ".yml", ".yaml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
			}
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
			}
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	// Environment variable overrides — env vars take precedence over config values.
	if env := os.Getenv("MLINZI_DATA_DIR"); env != "" {
		cfg.DataDir = env
	}
	if env := os.Getenv("MLINZI_OP_PATH"); env != "" {
		cfg.Op.Path = env
	}
	if env := os.Getenv("MLINZI_OP_TIMEOUT"); env != "" {
		cfg.Op.Timeout = env
	}
	if env := os.Getenv("MLINZI_OP_TOKEN_REF"); env != "" {
		cfg.Op.TokenRef = env
	}
	if env := os.Getenv("MLINZI_AUDIT_LOG"); env != "" {
		cfg.Audit.LogPath = env
	}
	if env := os.Getenv("MLINZI_AUDIT_DB"); env != "" {
		cfg.Audit.DBPath = env
	}
	if env := os.Getenv("MLINZI_LOG_LEVEL"); env != "" {
		cfg.Log.Level = env
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".mlinzi")
	} else {
		resolved, err := resolvePath(c.DataDir)
		if err != nil {
			return fmt.Errorf("resolving data dir %s: %w", c.DataDir, err)
		}
		c.DataDir = resolved
	}

	if c.Op.Path == "" {
		c.Op.Path = "op"
	}
	if c.Op.Timeout == "" {
		c.Op.Timeout = "30s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if !c.Audit.Disable && c.Audit.LogPath == "" {
		c.Audit.LogPath = filepath.Join(c.DataDir, "audit.jsonl")
	}
	if c.Diagnostics != nil && c.Diagnostics.Enabled && c.Diagnostics.Addr == "" {
		c.Diagnostics.Addr = "127.0.0.1:9464"
	}
	return nil
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.Op.Timeout); err != nil {
		return fmt.Errorf("invalid op.timeout %q: %w", c.Op.Timeout, err)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q (want debug, info, warn, or error)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q (want text or json)", c.Log.Format)
	}
	if t := c.Tracing(); t != nil && t.Enabled {
		if t.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
		switch t.Protocol {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("invalid observability.tracing.protocol %q (want grpc or http)", t.Protocol)
		}
	}
	return nil
}

// OpTimeout returns the parsed op invocation timeout.
func (c *Config) OpTimeout() time.Duration {
	d, err := time.ParseDuration(c.Op.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// MetricsEnabled reports whether Prometheus metrics are on.
func (c *Config) MetricsEnabled() bool {
	return c.Observability != nil && c.Observability.Metrics != nil && c.Observability.Metrics.Enabled
}

// Tracing returns the tracing section, or nil when disabled.
func (c *Config) Tracing() *TracingConfig {
	if c.Observability == nil {
		return nil
	}
	return c.Observability.Tracing
}

// resolvePath expands a leading ~ to the user's home directory.
func resolvePath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/")), nil
	}
	return path, nil
}
