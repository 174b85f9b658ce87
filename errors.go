package assistme

import (
	"errors"
	"fmt"
	"time"

	"github.com/ferro-labs/assistme/providers"
)

// ConfigError reports a missing credential or collaborator. The assistant
// degrades to local answers instead of surfacing it as a server error.
type ConfigError struct {
	Component string
	Message   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s not configured: %s", e.Component, e.Message)
}

// UpstreamHTTPError wraps a non-200 provider answer. It is never retried.
type UpstreamHTTPError struct {
	Err *providers.StatusError
}

func (e *UpstreamHTTPError) Error() string { return e.Err.Error() }
func (e *UpstreamHTTPError) Unwrap() error { return e.Err }

// StatusCode returns the upstream HTTP status.
func (e *UpstreamHTTPError) StatusCode() int { return e.Err.StatusCode }

// TransientStreamError is a connection-level failure that may succeed on a
// fresh attempt.
type TransientStreamError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *TransientStreamError) Error() string {
	return fmt.Sprintf("%s stream failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *TransientStreamError) Unwrap() error { return e.Err }

// RateLimitExceeded is returned before any upstream call when a client is
// over its window.
type RateLimitExceeded struct {
	RetryAfter time.Duration
}

func (e *RateLimitExceeded) Error() string {
	return "Rate limit exceeded. Please wait a moment before trying again."
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (e *RateLimitExceeded) RetryAfterSeconds() int {
	s := int((e.RetryAfter + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// ValidationError rejects a malformed request before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ErrInjectionDetected marks a message refused by the prompt-injection guard.
var ErrInjectionDetected = errors.New("prompt injection detected")

// InjectionDetected carries the guard pattern that matched.
type InjectionDetected struct {
	Pattern string
}

func (e *InjectionDetected) Error() string {
	return fmt.Sprintf("%v: %s", ErrInjectionDetected, e.Pattern)
}

func (e *InjectionDetected) Is(target error) bool { return target == ErrInjectionDetected }
