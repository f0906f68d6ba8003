// Package apperr defines the error kinds surfaced by the marketplace core.
//
// Every error returned from a negotiation or rating operation wraps exactly one
// of the sentinels below, so callers can branch with errors.Is and map each
// kind to a stable category.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("conflict")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyRated     = errors.New("already rated")
	ErrAlreadyResponded = errors.New("already responded")
	ErrUnauthorized     = errors.New("unauthorized")
)

// Code categories exposed to transports.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeForbidden        = "FORBIDDEN"
	CodeConflict         = "CONFLICT"
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyRated     = "ALREADY_RATED"
	CodeAlreadyResponded = "ALREADY_RESPONDED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInternal         = "INTERNAL_ERROR"
)

// MsgOfferUnavailable is reported when an offer moved under the caller.
const MsgOfferUnavailable = "offer no longer available"

func wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

func Validation(format string, args ...interface{}) error {
	return wrap(ErrValidation, format, args...)
}

func Forbidden(format string, args ...interface{}) error {
	return wrap(ErrForbidden, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return wrap(ErrConflict, format, args...)
}

func Unauthorized(format string, args ...interface{}) error {
	return wrap(ErrUnauthorized, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return wrap(ErrNotFound, format, args...)
}

func AlreadyRated(format string, args ...interface{}) error {
	return wrap(ErrAlreadyRated, format, args...)
}

func AlreadyResponded(format string, args ...interface{}) error {
	return wrap(ErrAlreadyResponded, format, args...)
}

// Code returns the stable category for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrAlreadyRated):
		return CodeAlreadyRated
	case errors.Is(err, ErrAlreadyResponded):
		return CodeAlreadyResponded
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// Retryable reports whether the caller should re-fetch state and decide again.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
