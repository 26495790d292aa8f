package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// An address cannot be both allowed and denied
	allowed := make(map[string]bool, len(cfg.Admission.Whitelist))
	for _, addr := range cfg.Admission.Whitelist {
		allowed[net.ParseIP(addr).String()] = true
	}
	for i, addr := range cfg.Admission.Blacklist {
		if allowed[net.ParseIP(addr).String()] {
			return fmt.Errorf("admission.blacklist[%d]: %s is also whitelisted", i, addr)
		}
	}

	if cfg.Content.Type == "s3" {
		if bucket, _ := cfg.Content.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("content.s3.bucket: required when content.type is s3")
		}
	}

	// The metrics and admin listeners must not collide with the web port
	ports := map[int]string{cfg.Server.Port: "server.port"}
	if cfg.Metrics.Enabled {
		if other, ok := ports[cfg.Metrics.Port]; ok {
			return fmt.Errorf("metrics.port: %d already used by %s", cfg.Metrics.Port, other)
		}
		ports[cfg.Metrics.Port] = "metrics.port"
	}
	if cfg.Admin.Enabled {
		if other, ok := ports[cfg.Admin.Port]; ok {
			return fmt.Errorf("admin.port: %d already used by %s", cfg.Admin.Port, other)
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
