package webhookq

import (
	"github.com/outflowhq/outflow/errors"
)

// terminalError marks an error for which retrying can never succeed, e.g. a
// malformed or unsupported payload. Classification is total: any handler
// error not wrapped by Terminal is retryable.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return "terminal: " + e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal wraps err so the queue runner fails the event permanently instead
// of scheduling a retry. Returns nil for a nil err.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// Terminalf creates a terminal error from a format string.
func Terminalf(format string, args ...interface{}) error {
	return &terminalError{err: errors.Newf(format, args...)}
}

// IsTerminal reports whether err is or wraps a terminal error.
func IsTerminal(err error) bool {
	var te *terminalError
	return errors.As(err, &te)
}
