package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "Config.Logging.Format",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "Port",
		},
		{
			name:    "zero sample size",
			mutate:  func(c *Config) { c.Admission.SampleSize = 0 },
			wantErr: "Config.Admission.SampleSize",
		},
		{
			name:    "invalid whitelist address",
			mutate:  func(c *Config) { c.Admission.Whitelist = []string{"example.com"} },
			wantErr: "Config.Admission.Whitelist[0]",
		},
		{
			name: "address on both lists",
			mutate: func(c *Config) {
				c.Admission.Whitelist = []string{"10.0.0.1"}
				c.Admission.Blacklist = []string{"10.0.0.1"}
			},
			wantErr: "also whitelisted",
		},
		{
			name:    "unknown list store",
			mutate:  func(c *Config) { c.Admission.Store.Type = "redis" },
			wantErr: "Config.Admission.Store.Type",
		},
		{
			name:    "unknown content store",
			mutate:  func(c *Config) { c.Content.Type = "memory" },
			wantErr: "Config.Content.Type",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Content.Type = "s3" },
			wantErr: "content.s3.bucket",
		},
		{
			name: "metrics port collides with web port",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = c.Server.Port
			},
			wantErr: "metrics.port",
		},
		{
			name: "admin port collides with metrics port",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Admin.Enabled = true
				c.Admin.Port = c.Metrics.Port
			},
			wantErr: "admin.port",
		},
		{
			name: "disabled listeners may share ports",
			mutate: func(c *Config) {
				c.Admin.Port = c.Server.Port
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
