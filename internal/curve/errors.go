package curve

import (
	"errors"
	"fmt"
)

// ErrConfig is the sentinel every map, boundary and driver setter wraps when
// it rejects its input. Callers test with errors.Is.
var ErrConfig = errors.New("invalid configuration")

// ConfigError describes which setter rejected which field.
type ConfigError struct {
	Op     string // setter that failed, e.g. "chart.SetCurves"
	Field  string // offending argument
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

// NewConfigError builds a ConfigError with a formatted reason.
func NewConfigError(op, field, format string, args ...any) error {
	return &ConfigError{Op: op, Field: field, Reason: fmt.Sprintf(format, args...)}
}
