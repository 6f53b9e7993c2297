package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
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
	if !filepath.IsAbs(cfg.Control.SocketPath) {
		return fmt.Errorf("control.socket_path: must be absolute, got %q", cfg.Control.SocketPath)
	}

	if cfg.Settings.Path != "" && !filepath.IsAbs(cfg.Settings.Path) {
		return fmt.Errorf("settings.path: must be absolute, got %q", cfg.Settings.Path)
	}

	names := make(map[string]bool)
	mailMounts := 0
	for i, m := range cfg.Mounts {
		if names[m.Name] {
			return fmt.Errorf("mounts[%d]: duplicate mount name %q", i, m.Name)
		}
		names[m.Name] = true

		switch m.Type {
		case "local":
			if root, _ := m.Options["root"].(string); root == "" {
				return fmt.Errorf("mounts[%d]: local mount %q needs a root option", i, m.Name)
			}
		case "mail":
			// Every mail mount has the same canonical descriptor.
			mailMounts++
			if mailMounts > 1 {
				return fmt.Errorf("mounts[%d]: only one mail mount can be configured", i)
			}
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
