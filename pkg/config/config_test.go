package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv keeps Load away from the user's config and SWS_ variables.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range envKeys {
		t.Setenv(envName(key), "")
		_ = os.Unsetenv(envName(key))
	}
}

func envName(key string) string {
	out := []byte("SWS_")
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c == '.':
			out = append(out, '_')
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load(writeConfig(t, `
logging:
  level: "info"

server:
  root: "/srv/www"
`))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, "/srv/www", cfg.Server.Root)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.Workers)
	assert.Equal(t, "index.html", cfg.Server.DefaultDocument)
	assert.Equal(t, []string{"passwd", "permission"}, cfg.Server.ReservedNames)
	assert.Zero(t, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 5, cfg.Admission.SampleSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Admission.TimeThreshold)
	assert.Equal(t, "memory", cfg.Admission.Store.Type)
	assert.Equal(t, "filesystem", cfg.Content.Type)
	assert.Equal(t, "passwd.txt", cfg.Auth.PasswdFile)
	assert.False(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Admin.Enabled)
}

func TestLoad_NoConfigFile(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.Server.Root)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	isolateEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_FullConfig(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load(writeConfig(t, `
server:
  port: 9000
  bind_address: "127.0.0.1"
  workers: 4
  queue_size: 8
  read_timeout: 5s
  realm: "intranet"
  shutdown_timeout: 10s
admission:
  sample_size: 3
  time_threshold: 250ms
  whitelist: ["10.0.0.1"]
  blacklist: ["10.0.0.2"]
  store:
    type: badger
    badger:
      db_path: /var/lib/sws
content:
  type: s3
  s3:
    bucket: docs
    region: eu-west-1
    key_prefix: site
metrics:
  enabled: true
  port: 9191
admin:
  enabled: true
  port: 9292
  rate_limit: 2
  global_rate_limit: 20
  global_burst: 40
`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.BindAddress)
	assert.Equal(t, 4, cfg.Server.Workers)
	assert.Equal(t, 8, cfg.Server.QueueSize)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "intranet", cfg.Server.Realm)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 3, cfg.Admission.SampleSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Admission.TimeThreshold)
	assert.Equal(t, []string{"10.0.0.1"}, cfg.Admission.Whitelist)
	assert.Equal(t, "badger", cfg.Admission.Store.Type)
	assert.Equal(t, "/var/lib/sws", cfg.Admission.Store.Badger["db_path"])
	assert.Equal(t, "docs", cfg.Content.S3["bucket"])
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9191, cfg.Metrics.Port)
	assert.Equal(t, 9292, cfg.Admin.Port)
	assert.Equal(t, 2.0, cfg.Admin.RateLimit)
	assert.Equal(t, 20.0, cfg.Admin.GlobalRateLimit)
	assert.Equal(t, 40, cfg.Admin.GlobalBurst)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("SWS_SERVER_PORT", "9500")
	t.Setenv("SWS_LOGGING_LEVEL", "debug")
	t.Setenv("SWS_ADMISSION_SAMPLE_SIZE", "7")

	cfg, err := Load(writeConfig(t, `
server:
  port: 9000
`))
	require.NoError(t, err)

	assert.Equal(t, 9500, cfg.Server.Port)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, 7, cfg.Admission.SampleSize)
}

func TestLoad_InvalidConfig(t *testing.T) {
	isolateEnv(t)

	_, err := Load(writeConfig(t, `
logging:
  level: "verbose"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Config.Logging.Level")
}

func TestConfigExists(t *testing.T) {
	isolateEnv(t)
	assert.False(t, ConfigExists())

	_, err := InitConfig(false)
	require.NoError(t, err)
	assert.True(t, ConfigExists())
	assert.FileExists(t, filepath.Join(GetConfigDir(), "config.yaml"))
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/xdg")
	assert.Equal(t, filepath.Join("/custom/xdg", "sws"), GetConfigDir())
	assert.Equal(t, filepath.Join("/custom/xdg", "sws", "config.yaml"), GetDefaultConfigPath())
}
