package model

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrStorageUnavailable  = errors.New("storage unavailable")

	ErrNotFound          = errors.New("not found")
	ErrIllegalTransition = errors.New("illegal job transition")
	ErrJobNotQueued      = errors.New("job is not queued")

	ErrUnsupportedFormat = errors.New("unsupported media format")
	ErrConversion        = errors.New("media conversion failed")

	ErrRateLimited         = errors.New("upstream rate limited")
	ErrInvalidRequest      = errors.New("upstream rejected request")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrProtocol            = errors.New("upstream protocol error")
	ErrTransport           = errors.New("upstream transport error")
)

// ValidationError reports a bad input field. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether the caller may retry the same operation later.
// Only infrastructure unavailability qualifies.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// IsUpstream reports whether err came from an external API or media step.
func IsUpstream(err error) bool {
	for _, target := range []error{
		ErrRateLimited, ErrInvalidRequest, ErrUpstreamUnavailable,
		ErrProtocol, ErrTransport, ErrUnsupportedFormat, ErrConversion,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
