package engine

import (
	"errors"
	"fmt"
)

// AccessDeniedError is an authorization refusal. It is fatal for the
// request and never downgraded to a conflict.
type AccessDeniedError struct {
	// Code identifies the refusal category.
	Code AccessDeniedCode

	// Message is a human-readable description.
	Message string

	OwnerID string
	StoreID string
}

// AccessDeniedCode categorizes access refusals raised by the engine and its
// policies.
type AccessDeniedCode string

const (
	// CodeUnauthenticated indicates no identity was presented.
	CodeUnauthenticated AccessDeniedCode = "UNAUTHENTICATED"

	// CodeBlocked indicates the identity is on a deny list.
	CodeBlocked AccessDeniedCode = "BLOCKED"

	// CodeResetForbidden indicates a reset attempted in production.
	CodeResetForbidden AccessDeniedCode = "RESET_FORBIDDEN"
)

func (e *AccessDeniedError) Error() string {
	if e.StoreID != "" {
		return fmt.Sprintf("%s: %s (owner=%s, store=%s)", e.Code, e.Message, e.OwnerID, e.StoreID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AccessDenied marks the error as belonging to the access-denied class.
func (e *AccessDeniedError) AccessDenied() bool { return true }

// ErrResetForbidden is returned by Reset on a production engine.
var ErrResetForbidden = &AccessDeniedError{
	Code:    CodeResetForbidden,
	Message: "store reset is disabled in production",
}

// IsAccessDenied returns true if err is or wraps any access-denied error,
// including ownership refusals. Uses errors.As to handle wrapped errors.
func IsAccessDenied(err error) bool {
	var ad interface{ AccessDenied() bool }
	if errors.As(err, &ad) {
		return ad.AccessDenied()
	}
	return false
}

// RequestError is a malformed push or pull request.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// IsRequestError returns true if err is or wraps a RequestError.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

func badRequest(field, format string, args ...any) *RequestError {
	return &RequestError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
