package rules

import (
	"errors"
	"fmt"
)

// ConfigErrorCode categorizes rule-file configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeUnknownPredicate indicates a trigger or skip condition names
	// a kind outside the closed predicate vocabulary.
	ErrCodeUnknownPredicate ConfigErrorCode = "UNKNOWN_PREDICATE"

	// ErrCodeUnknownAction indicates a rule names an action kind outside
	// the closed action vocabulary.
	ErrCodeUnknownAction ConfigErrorCode = "UNKNOWN_ACTION"

	// ErrCodeBadMonitoredUser indicates a monitored-user config with an
	// unsupported type (only static is supported).
	ErrCodeBadMonitoredUser ConfigErrorCode = "BAD_MONITORED_USER"

	// ErrCodeMissingSection indicates a required rule section is absent.
	ErrCodeMissingSection ConfigErrorCode = "MISSING_SECTION"
)

// ConfigError is a configuration problem scoped to one rule or section.
// A ConfigError on a single rule disables that rule, not the run; a
// ConfigError on the base config (missing section, unparseable file)
// is fatal.
type ConfigError struct {
	Code    ConfigErrorCode
	Message string
	Rule    string // rule name, when scoped to one rule
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s: %s (rule %q)", e.Code, e.Message, e.Rule)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
