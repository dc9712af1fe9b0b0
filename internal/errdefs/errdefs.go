// Package errdefs defines the error kinds shared by the LOD pipeline and the
// meshlet system.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkerUnavailable marks a worker that could not be started. The
	// meshlet system logs it once and serves requests in fallback mode.
	ErrWorkerUnavailable = errors.New("meshlet worker unavailable")

	// ErrDisposed is returned for requests made or pending after Dispose.
	ErrDisposed = errors.New("meshlet system disposed")
)

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Configf builds a ConfigError with a formatted reason.
func Configf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// WorkerError wraps a runtime failure reported by the worker. It fails every
// request that was in flight when the worker reported it.
type WorkerError struct {
	Err error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("meshlet worker error: %v", e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a response that does not match its request.
type ProtocolError struct {
	RequestID uint64
	Reason    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on request %d: %s", e.RequestID, e.Reason)
}

// IsConfig reports whether err is a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
