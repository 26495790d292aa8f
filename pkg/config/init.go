package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# SWS Configuration File
#
# Every key can be overridden with an environment variable named after its
# path, e.g. SWS_SERVER_PORT=9000 or SWS_LOGGING_LEVEL=DEBUG.
#
# content.type selects where documents come from:
#   filesystem - server.root is a local directory
#   s3         - server.root is a key prefix inside content.s3.bucket
#
# admission.store.type selects where the white/blacklists are kept:
#   memory - lost on restart
#   badger - persisted under admission.store.badger.db_path

`

// InitConfig writes the default configuration to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the default configuration to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := RenderDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// RenderDefaultConfig returns the commented YAML rendering of
// GetDefaultConfig.
func RenderDefaultConfig() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(GetDefaultConfig()); err != nil {
		return nil, fmt.Errorf("failed to render default config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to render default config: %w", err)
	}
	return buf.Bytes(), nil
}
