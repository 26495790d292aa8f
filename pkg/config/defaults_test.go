package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "warn"
	cfg.Server.Port = 9999
	cfg.Server.Workers = 3
	cfg.Server.ReservedNames = []string{}
	cfg.Admission.SampleSize = 2
	cfg.Admission.Store.Badger = map[string]any{"db_path": "/data"}
	cfg.Admin.RateLimit = 1

	ApplyDefaults(cfg)

	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Server.Workers)
	assert.Empty(t, cfg.Server.ReservedNames, "an explicit empty list disables reserved names")
	assert.Equal(t, 2, cfg.Admission.SampleSize)
	assert.Equal(t, "/data", cfg.Admission.Store.Badger["db_path"])
	assert.Equal(t, 1.0, cfg.Admin.RateLimit)
}

func TestApplyDefaults_ReservedNamesAreCopied(t *testing.T) {
	a := GetDefaultConfig()
	b := GetDefaultConfig()

	a.Server.ReservedNames[0] = "changed"
	assert.Equal(t, "passwd", b.Server.ReservedNames[0])
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 5*time.Minute, cfg.Server.MetricsLogInterval)
	assert.Equal(t, "127.0.0.1", cfg.Admin.BindAddress)
	assert.Equal(t, 8081, cfg.Admin.Port)
	assert.Equal(t, 50.0, cfg.Admin.GlobalRateLimit)
	assert.Equal(t, 100, cfg.Admin.GlobalBurst)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "us-east-1", cfg.Content.S3["region"])
}
