// Package apperr carries the error taxonomy shared by every module:
// validation failures caught before a write, store failures from the backend,
// and rejections of well-formed attempts that a business rule refuses.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindStore
	KindRejected
	KindNotFound
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStore:
		return "store"
	case KindRejected:
		return "rejected"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error is the single concrete error type. Reason is user-facing for
// validation and rejection; Err holds the underlying cause for store errors.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": " + e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(op, reason string) error {
	return &Error{Kind: KindValidation, Op: op, Reason: reason}
}

// Store wraps a backend failure. A nil err yields nil so call sites can wrap
// unconditionally.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStore, Op: op, Err: err}
}

func Rejected(op, reason string) error {
	return &Error{Kind: KindRejected, Op: op, Reason: reason}
}

func NotFound(op, what string) error {
	return &Error{Kind: KindNotFound, Op: op, Reason: what + " not found"}
}

func Unauthorized(op, reason string) error {
	return &Error{Kind: KindUnauthorized, Op: op, Reason: reason}
}

func Forbidden(op, reason string) error {
	return &Error{Kind: KindForbidden, Op: op, Reason: reason}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// ReasonOf returns the reason of the first *Error in err's chain.
func ReasonOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}

// OpOf returns the operation of the first *Error in err's chain.
func OpOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Op
	}
	return ""
}

func IsValidation(err error) bool { return err != nil && KindOf(err) == KindValidation }
func IsStore(err error) bool      { return err != nil && KindOf(err) == KindStore }
func IsRejected(err error) bool   { return err != nil && KindOf(err) == KindRejected }
func IsNotFound(err error) bool   { return err != nil && KindOf(err) == KindNotFound }
