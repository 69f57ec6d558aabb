// Package toolerr defines the stable error kinds carried across the
// protocol boundary and the result envelope both halves agree on.
package toolerr

import (
	"errors"
	"fmt"
)

// Kind identifies a failure class. Kinds are part of the wire contract
// and must stay stable across releases.
type Kind string

const (
	KindInvalidIdentifier    Kind = "InvalidIdentifier"
	KindInvalidEnvironment   Kind = "InvalidEnvironment"
	KindPathTraversal        Kind = "PathTraversalRejected"
	KindCredentialUnavailable Kind = "CredentialUnavailable"
	KindInvalidParameters    Kind = "InvalidParameters"
	KindExecutionTimeout     Kind = "ExecutionTimeout"
	KindConfigurationError   Kind = "ConfigurationError"
	KindProviderAuthError    Kind = "ProviderAuthError"
	KindResourceConflict     Kind = "ResourceConflict"
	KindUnknownExecution     Kind = "UnknownExecutionError"
	KindWorkspaceBusy        Kind = "WorkspaceBusy"
	KindConfirmationRequired Kind = "ConfirmationRequired"
	KindToolNotFound         Kind = "ToolNotFound"
	KindHandshakeFailed      Kind = "HandshakeFailed"
	KindUnsupportedVersion   Kind = "UnsupportedVersion"
	KindCallTimeout          Kind = "CallTimeout"
	KindConnectionClosed     Kind = "ConnectionClosed"
)

// Error is a typed error carrying a Kind and a user-safe message.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a typed error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error. The underlying error text
// becomes the message, so callers must pre-redact anything sensitive.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return &Error{Kind: kind}
	}
	return &Error{Kind: kind, Message: err.Error(), cause: err}
}

// KindOf extracts the kind from an error chain. The second return is
// false when the chain carries no typed error.
func KindOf(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Retryable reports whether a failure of this kind may be retried by the
// client. Only transient transport-level failures qualify; tool-level and
// validation failures are returned to the caller as-is.
func Retryable(kind Kind) bool {
	switch kind {
	case KindConnectionClosed, KindHandshakeFailed:
		return true
	default:
		return false
	}
}
