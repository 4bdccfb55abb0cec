package types

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the relay core can surface. The set is
// closed; transport errors are mapped onto it structurally, never by
// matching message text.
type Kind string

const (
	KindInvalidInput       Kind = "InvalidInput"
	KindInvalidTransaction Kind = "InvalidTransaction"
	KindUnknownChain       Kind = "UnknownChain"
	KindRateLimited        Kind = "RateLimited"
	KindQueueFull          Kind = "QueueFull"
	KindDuplicate          Kind = "Duplicate"
	KindNetwork            Kind = "Network"
	KindRpcTransient       Kind = "RpcTransient"
	KindRpcSemantic        Kind = "RpcSemantic"
	KindCircuitOpen        Kind = "CircuitOpen"
	KindRetryExhausted     Kind = "RetryExhausted"
	KindOverallTimeout     Kind = "OverallTimeout"
	KindIntegrityViolation Kind = "IntegrityViolation"
	KindConfigInvalid      Kind = "ConfigInvalid"
)

// Retryable reports whether the retry manager may re-attempt after this kind
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindRpcTransient
}

// Error is the relay's discriminated error value
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E constructs a relay error of the given kind
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Ef constructs a relay error with a formatted message
func Ef(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs a relay error wrapping an underlying cause
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetail attaches a key/value detail and returns the error
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// KindOf extracts the relay kind from an error chain. Errors that never
// passed through classification report an empty kind.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsKind reports whether any error in the chain carries the given kind
func IsKind(err error, kind Kind) bool {
	for e := err; e != nil; {
		var re *Error
		if !errors.As(e, &re) {
			return false
		}
		if re.Kind == kind {
			return true
		}
		e = re.Err
	}
	return false
}

// Retryable reports whether the error chain is retryable. Unclassified
// errors are treated as non-retryable.
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}
