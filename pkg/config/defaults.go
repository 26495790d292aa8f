package config

import (
	"strings"
	"time"

	"github.com/marmos91/sws/pkg/admission"
	"github.com/marmos91/sws/pkg/api"
	"github.com/marmos91/sws/pkg/credentials"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyAdmissionDefaults(&cfg.Admission)
	applyAuthDefaults(&cfg.Auth)
	applyContentDefaults(&cfg.Content)
	applyMetricsDefaults(&cfg.Metrics)
	applyAdminDefaults(&cfg.Admin)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets listener defaults.
//
// Port 0 is replaced with 8080 here; the adapter itself treats 0 as "pick an
// ephemeral port", which is only reachable from code.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if cfg.Workers == 0 {
		cfg.Workers = 10
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 64
	}
	if cfg.DefaultDocument == "" {
		cfg.DefaultDocument = "index.html"
	}
	if cfg.Realm == "" {
		cfg.Realm = "sws"
	}
	if cfg.UnauthorizedDocument == "" {
		cfg.UnauthorizedDocument = "401.html"
	}
	if cfg.ForbiddenDocument == "" {
		cfg.ForbiddenDocument = "403.html"
	}
	if cfg.ReservedNames == nil {
		cfg.ReservedNames = append([]string(nil), credentials.DefaultReservedNames...)
	}

	// ReadTimeout and WriteTimeout default to 0 (no timeout)

	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyAdmissionDefaults sets admission defaults.
func applyAdmissionDefaults(cfg *AdmissionConfig) {
	if cfg.SampleSize == 0 {
		cfg.SampleSize = admission.DefaultSampleSize
	}
	if cfg.TimeThreshold == 0 {
		cfg.TimeThreshold = admission.DefaultTimeThreshold
	}
	if cfg.Whitelist == nil {
		cfg.Whitelist = []string{}
	}
	if cfg.Blacklist == nil {
		cfg.Blacklist = []string{}
	}

	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}
	if cfg.Store.Badger == nil {
		cfg.Store.Badger = make(map[string]any)
	}
	if _, ok := cfg.Store.Badger["db_path"]; !ok {
		cfg.Store.Badger["db_path"] = "/tmp/sws-admission"
	}
}

// applyAuthDefaults sets the credential file locations.
func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.PasswdFile == "" {
		cfg.PasswdFile = "passwd.txt"
	}
	if cfg.PermissionsFile == "" {
		cfg.PermissionsFile = "permissions.txt"
	}
}

// applyContentDefaults sets content store defaults.
func applyContentDefaults(cfg *ContentConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
	if _, ok := cfg.S3["region"]; !ok {
		cfg.S3["region"] = "us-east-1"
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyAdminDefaults sets admin API defaults.
func applyAdminDefaults(cfg *api.Config) {
	if cfg.Port == 0 {
		cfg.Port = 8081
	}
	if cfg.BindAddress == "" {
		cfg.BindAddress = "127.0.0.1"
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
	}
	if cfg.Burst == 0 {
		cfg.Burst = 10
	}
	if cfg.GlobalRateLimit == 0 {
		cfg.GlobalRateLimit = 50
	}
	if cfg.GlobalBurst == 0 {
		cfg.GlobalBurst = 100
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
