package game

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to the client. Recoverable kinds leave the connection
// usable; KindProtocolViolation is fatal to the connection.
const (
	KindIllegalTransition = "illegal_transition"
	KindNotReady          = "not_ready"
	KindAlreadyActive     = "already_active"
	KindNoActiveRound     = "no_active_round"
	KindNotFound          = "not_found"
	KindUpstreamError     = "upstream_error"
	KindUpstreamTimeout   = "upstream_timeout"
	KindProtocolViolation = "protocol_violation"
)

// Error is a game-level failure with a stable kind string.
type Error struct {
	Kind    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a game error with a formatted message.
func NewError(kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind to an underlying error.
func WrapError(kind string, err error) *Error {
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// KindOf extracts the error kind, falling back to upstream_error for
// unclassified failures.
func KindOf(err error) string {
	var gameErr *Error
	if errors.As(err, &gameErr) {
		return gameErr.Kind
	}
	return KindUpstreamError
}

// IsFatal reports whether the error should close the connection.
func IsFatal(err error) bool {
	return KindOf(err) == KindProtocolViolation
}
