package line2d

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by every ConfigError.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInsufficientFeatures is wrapped by EncodeError.
	ErrInsufficientFeatures = errors.New("insufficient features")

	// ErrLevelMismatch reports templates and query maps built with different
	// pyramid geometry.
	ErrLevelMismatch = errors.New("pyramid level mismatch")
)

// ConfigError describes an option rejected before any work starts.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// EncodeError reports a template level that produced too few features. It is
// recoverable: batch builders skip the template and continue.
type EncodeError struct {
	Label    string
	Level    int
	Found    int
	Required int
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("template %q level %d: found %d features, need at least %d",
		e.Label, e.Level, e.Found, e.Required)
}

func (e *EncodeError) Unwrap() error { return ErrInsufficientFeatures }
