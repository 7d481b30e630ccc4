// Package errs defines the error taxonomy shared by every engine operation.
//
// Every rejected operation maps onto exactly one kind:
//
//   - Validation: malformed or contradictory input (bad signature, stale
//     nonce, unknown market, quantity below the market minimum, ...)
//   - Insufficiency: balances or margin cannot support the operation
//   - Conflict: the operation races with existing state (duplicate
//     withdrawal, order overfilled, upgrade already in progress, ...)
//   - Arithmetic: overflow or division by zero; these indicate a broken
//     invariant and are escalated to a panic rather than returned upward
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a rejection.
type Kind int

const (
	KindValidation Kind = iota
	KindInsufficiency
	KindConflict
	KindArithmetic
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInsufficiency:
		return "insufficiency"
	case KindConflict:
		return "conflict"
	case KindArithmetic:
		return "arithmetic"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error carries a kind and a stable, human-readable reason string. The reason
// is part of the engine's contract: callers and tests match on it.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

// Validation builds a KindValidation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

// Insufficiency builds a KindInsufficiency error.
func Insufficiency(format string, args ...any) error {
	return &Error{Kind: KindInsufficiency, Reason: fmt.Sprintf(format, args...)}
}

// Conflict builds a KindConflict error.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Reason: fmt.Sprintf(format, args...)}
}

// Arithmetic builds a KindArithmetic error.
func Arithmetic(format string, args ...any) error {
	return &Error{Kind: KindArithmetic, Reason: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err (or anything it wraps) is an Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// KindOf returns the kind of err, or ok=false when err carries no taxonomy.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
