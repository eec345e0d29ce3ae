package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers Gatewire-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// duration: a Go duration string such as "30s" or "1m30s", or "0".
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

// validateDuration accepts any value time.ParseDuration accepts, plus "0".
func validateDuration(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "0" {
		return true
	}
	d, err := time.ParseDuration(s)
	return err == nil && d >= 0
}

// Validate validates the Config using struct tags and cross-field rules,
// returning actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	// Cross-field: a TLS cert without a key (or vice versa) is always a
	// deployment mistake.
	if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		return errors.New("server.tls: cert_file and key_file must be set together")
	}
	return nil
}

// formatValidationErrors rewrites validator's error list into one
// readable message per failed field.
func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "hostname_port":
			msgs = append(msgs, fmt.Sprintf("%s must be a host:port address, got %q", field, fe.Value()))
		case "duration":
			msgs = append(msgs, fmt.Sprintf("%s must be a duration such as \"30s\", got %q", field, fe.Value()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value()))
		case "file":
			msgs = append(msgs, fmt.Sprintf("%s: file %q does not exist", field, fe.Value()))
		case "dir":
			msgs = append(msgs, fmt.Sprintf("%s: directory %q does not exist", field, fe.Value()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s, got %v", field, fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
