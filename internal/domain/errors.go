package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the engine matches exactly one of
// these through errors.Is.
var (
	ErrValidation             = errors.New("validation error")
	ErrNotFound               = errors.New("not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrLedgerIntegrity        = errors.New("ledger integrity error")
	ErrExternalDependency     = errors.New("external dependency error")
	ErrInternal               = errors.New("internal error")
)

// ErrDuplicateKey is returned by repositories when a unique index rejects a write.
var ErrDuplicateKey = errors.New("duplicate key")

// Error carries a kind, a caller-facing message and an optional cause.
type Error struct {
	Kind    error  // One of the Err* kinds above
	Message string // Human readable detail
	Err     error  // Underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around cause.
func Wrap(kind error, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the taxonomy kind of err, ErrInternal for anything unclassified.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation,
		ErrNotFound,
		ErrUnauthorized,
		ErrInsufficientFunds,
		ErrInvalidStateTransition,
		ErrLedgerIntegrity,
		ErrExternalDependency,
		ErrInternal,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInternal
}

// MessageOf returns the caller-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
