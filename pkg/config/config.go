package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/sws/pkg/adapter/web"
	"github.com/marmos91/sws/pkg/api"
	"github.com/spf13/viper"
)

// Config represents the complete SWS configuration.
//
// This structure captures all configurable aspects of the server including:
//   - Logging configuration
//   - Listener and connection handling settings
//   - Admission control tunables and list persistence
//   - Credential and permission files
//   - Content store selection and configuration (store-specific)
//   - Prometheus metrics and the admin API
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (SWS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type. The Config
// struct contains type-specific sections (e.g., content.s3,
// admission.store.badger) and only the section matching the selected type is
// decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains the listener and connection handling settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Admission contains the throttling heuristic and address lists
	Admission AdmissionConfig `mapstructure:"admission" yaml:"admission"`

	// Auth locates the credential and permission files
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Content specifies the content store type and type-specific configuration
	Content ContentConfig `mapstructure:"content" yaml:"content"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Admin configures the admin HTTP API
	Admin api.Config `mapstructure:"admin" yaml:"admin"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains the listener settings.
//
// The web adapter configuration is inlined, so its fields sit directly under
// "server" (server.port, server.workers, ...).
type ServerConfig struct {
	web.WebConfig `mapstructure:",squash" yaml:",inline"`

	// Root is the directory (or key prefix for s3) served
	Root string `mapstructure:"root" yaml:"root" validate:"required"`

	// ShutdownTimeout bounds the drain of admitted connections on shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
}

// AdmissionConfig configures the connection admission controller.
type AdmissionConfig struct {
	// SampleSize is how many later connections each arrival is tracked for
	SampleSize int `mapstructure:"sample_size" yaml:"sample_size" validate:"min=1"`

	// TimeThreshold is the average gap at or below which an address is denied
	TimeThreshold time.Duration `mapstructure:"time_threshold" yaml:"time_threshold" validate:"min=0"`

	// Whitelist is applied at startup; these addresses bypass tracking
	Whitelist []string `mapstructure:"whitelist" yaml:"whitelist" validate:"dive,ip"`

	// Blacklist is applied at startup; these addresses are always refused
	Blacklist []string `mapstructure:"blacklist" yaml:"blacklist" validate:"dive,ip"`

	// Store selects where the lists are persisted
	Store ListStoreConfig `mapstructure:"store" yaml:"store"`
}

// ListStoreConfig selects the address list persistence.
type ListStoreConfig struct {
	// Type specifies which list store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`
}

// AuthConfig locates the credential files. Both are read once at startup.
type AuthConfig struct {
	// PasswdFile holds one "username secret" pair per line
	PasswdFile string `mapstructure:"passwd_file" yaml:"passwd_file"`

	// PermissionsFile holds whitespace-separated "path:user1,user2" tokens
	PermissionsFile string `mapstructure:"permissions_file" yaml:"permissions_file"`
}

// ContentConfig specifies content store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type ContentConfig struct {
	// Type specifies which content store implementation to use
	// Valid values: filesystem, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=filesystem s3"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
}

// MetricsConfig configures the Prometheus metrics server.
type MetricsConfig struct {
	// Enabled starts the metrics server
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port to listen on for scrapes
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// envKeys are bound explicitly so that environment overrides work even when
// the key is absent from the configuration file.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.port",
	"server.bind_address",
	"server.root",
	"server.workers",
	"server.queue_size",
	"server.read_timeout",
	"server.write_timeout",
	"server.shutdown_timeout",
	"admission.sample_size",
	"admission.time_threshold",
	"admission.store.type",
	"auth.passwd_file",
	"auth.permissions_file",
	"content.type",
	"metrics.enabled",
	"metrics.port",
	"admin.enabled",
	"admin.port",
	"admin.rate_limit",
	"admin.global_rate_limit",
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SWS_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use SWS_ prefix and underscores
	// Example: SWS_SERVER_PORT=8080
	v.SetEnvPrefix("SWS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/sws/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		// An explicit path that does not exist is reported by the OS
		if configPath != "" && os.IsNotExist(err) {
			return fmt.Errorf("config file %s does not exist", configPath)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "sws")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "sws")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
