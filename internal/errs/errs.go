// Package errs implements the error taxonomy of spec §7: every error the
// billing core produces carries a machine-readable Kind, and the RPC
// boundary maps Kind to a gRPC status code exactly once, per §9's
// "replace the pervasive exception-for-every-case idiom with a result type
// that carries the error kind" instruction.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the RPC boundary and for monitoring.
type Kind string

const (
	KindAuth        Kind = "auth"
	KindValidation  Kind = "validation"
	KindBalance     Kind = "balance"
	KindReservation Kind = "reservation"
	KindPricing     Kind = "pricing"
	KindExternal    Kind = "external"
)

// Error is a typed error carrying a Kind plus a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

func newErr(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Auth wraps an authentication failure (missing/expired/invalid bearer or
// admin key) — surfaced as UNAUTHENTICATED.
func Auth(msg string) error { return newErr(KindAuth, msg) }

// Validation wraps a §4.2 predicate failure — surfaced as INVALID_ARGUMENT.
func Validation(msg string) error { return newErr(KindValidation, msg) }

// Balance wraps a debit that would drive balance below zero — surfaced as
// FAILED_PRECONDITION("insufficient_balance").
func Balance(msg string) error { return newErr(KindBalance, msg) }

// Reservation wraps a missing/expired/already-committed reservation or a
// creation conflict — surfaced as NOT_FOUND or FAILED_PRECONDITION.
func Reservation(msg string) error { return newErr(KindReservation, msg) }

// Pricing wraps an unknown model/endpoint or invalid feed data — surfaced
// as FAILED_PRECONDITION.
func Pricing(msg string) error { return newErr(KindPricing, msg) }

// External wraps a substrate RPC failure or feed fetch failure — surfaced
// as INTERNAL.
func External(msg string, cause error) error {
	return &Error{Kind: KindExternal, Message: msg, Wrapped: cause}
}

// As extracts the Kind of err, returning ("", false) if err is not one of
// ours (e.g. a raw substrate error that must be coerced to INTERNAL per
// §7's "internal-only exceptions... coerced to a generic INTERNAL").
func As(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
