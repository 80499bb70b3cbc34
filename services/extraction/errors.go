package extraction

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies extraction failures for callers. These values appear on
// the wire in terminal error events.
type Kind string

const (
	KindInvalidParams       Kind = "invalid_params"
	KindNavigationError     Kind = "navigation_error"
	KindChallengeUnresolved Kind = "challenge_unresolved"
	KindPatternNotFound     Kind = "pattern_not_found"
	KindTimeout             Kind = "timeout"
	KindResourceExhausted   Kind = "resource_exhausted"
	KindOriginFailure       Kind = "origin_failure"
	KindCanceled            Kind = "canceled"
	KindInternal            Kind = "internal"
)

// Error is the engine's failure type. Message is short and user-visible;
// Debug carries structured detail for support.
type Error struct {
	Kind    Kind
	Message string
	Debug   map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// E builds an extraction error.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a cause to an extraction error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDebug attaches structured debug detail.
func (e *Error) WithDebug(key string, value any) *Error {
	if e.Debug == nil {
		e.Debug = map[string]any{}
	}
	e.Debug[key] = value
	return e
}

// KindOf extracts the failure kind from any error chain; plain context
// errors map to canceled/timeout, anything unknown maps to internal.
func KindOf(err error) Kind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}
