package order

import (
	"errors"
	"fmt"
	"strings"
)

// ConnectionError means the mail server could not be reached or refused
// the credentials. It aborts the current poll cycle; retry cadence is the
// caller's concern.
type ConnectionError struct {
	Op   string // "dial", "login", "fetch", ...
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error (%s %s): %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ConfigurationError means the supplied settings cannot work without user
// correction (unknown mailbox, bad sender filter, invalid config value).
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DecodeWarning describes a message that was only partially decoded. It
// never aborts a cycle.
type DecodeWarning struct {
	MessageRef string
	Problems   []string
}

func (w *DecodeWarning) Error() string {
	return fmt.Sprintf("message %s decoded with problems: %s", w.MessageRef, strings.Join(w.Problems, "; "))
}

// Add records a problem.
func (w *DecodeWarning) Add(format string, args ...any) {
	w.Problems = append(w.Problems, fmt.Sprintf(format, args...))
}

// Empty reports whether nothing went wrong.
func (w *DecodeWarning) Empty() bool {
	return w == nil || len(w.Problems) == 0
}

// IsConnectionError reports whether err (or any error in its chain) is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// IsConfigurationError reports whether err (or any error in its chain) is
// a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
