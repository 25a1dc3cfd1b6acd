// Package errors wraps errors.AppError with a couple of constructors
// used by lower-level internal packages that don't want a direct
// dependency on request/HTTP concerns.
package errors

import (
	"github.com/pollrelay/pollengine/errors"
)

// NewUnauthorizedError creates a new unauthorized error.
func NewUnauthorizedError(message string) *errors.AppError {
	return &errors.AppError{
		Type:    errors.AuthError,
		Message: message,
	}
}

// NewOperationFailedError wraps a lower-level failure (marshal, publish) as a server error.
func NewOperationFailedError(message string, err error) *errors.AppError {
	detail := ""
	if err != nil {
		detail = err.Error()
	}

	return &errors.AppError{
		Type:    errors.ServerError,
		Message: message,
		Details: detail,
	}
}
