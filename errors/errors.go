package errors

import (
	"fmt"
	"net/http"

	"github.com/pollrelay/pollengine/logger"
)

type ErrorType string

const (
	ValidationError      ErrorType = "VALIDATION_ERROR"
	NotFoundError        ErrorType = "NOT_FOUND"
	AuthError            ErrorType = "AUTHENTICATION_ERROR"
	AuthorizationError   ErrorType = "AUTHORIZATION_ERROR"
	ConflictError        ErrorType = "CONFLICT"
	UnprocessableError   ErrorType = "UNPROCESSABLE_ENTITY"
	RateLimitError       ErrorType = "RATE_LIMIT_EXCEEDED"
	ServiceUnavailable   ErrorType = "SERVICE_UNAVAILABLE"
	DatabaseError        ErrorType = "DATABASE_ERROR"
	ServerError          ErrorType = "SERVER_ERROR"
	ExternalServiceError ErrorType = "EXTERNAL_SERVICE_ERROR"
)

// Wire error codes returned in the "errorCode" field of the error envelope.
// These are the machine-readable identifiers a poll client branches on.
const (
	CodePollInactive             = "POLL_INACTIVE"
	CodePollExpired              = "POLL_EXPIRED"
	CodeAlreadyVoted             = "ALREADY_VOTED"
	CodeDuplicateEmailVote       = "DUPLICATE_EMAIL_VOTE"
	CodeSlotFull                 = "SLOT_FULL"
	CodeAlreadySignedUp          = "ALREADY_SIGNED_UP"
	CodeRequiresLogin            = "REQUIRES_LOGIN"
	CodeEmailBelongsToAnotherUsr = "EMAIL_BELONGS_TO_ANOTHER_USER"
	CodeWithdrawalNotAllowed     = "WITHDRAWAL_NOT_ALLOWED"
	CodeNoVotesFound             = "NO_VOTES_FOUND"
	CodeReminderLimitReached     = "REMINDER_LIMIT_REACHED"
	CodeReminderTooSoon          = "REMINDER_TOO_SOON"
)

// AppError represents a structured application error carrying both the
// legacy type/status classification and the wire-level error envelope
// fields (errorCode, details, retryAfter) described by the poll API.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	ErrorCode  string                 `json:"errorCode,omitempty"`
	Message    string                 `json:"message"`
	Detail     string                 `json:"detail,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	RetryAfter int                    `json:"retryAfter,omitempty"`
	HTTPStatus int                    `json:"-"`
	Raw        error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// GetHTTPStatus returns the status code to send for this error, falling
// back to the type-based default if HTTPStatus was never set explicitly.
func (e *AppError) GetHTTPStatus() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return getHTTPStatus(e.Type)
}

// New creates a new AppError.
func New(errType ErrorType, message string, detail string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     detail,
		HTTPStatus: getHTTPStatus(errType),
	}
}

// Wrap wraps a raw error with AppError context.
func Wrap(err error, errType ErrorType, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     err.Error(),
		HTTPStatus: getHTTPStatus(errType),
		Raw:        err,
	}
}

func NotFound(entity string, id interface{}) *AppError {
	return &AppError{
		Type:       NotFoundError,
		Message:    fmt.Sprintf("%s not found", entity),
		Detail:     fmt.Sprintf("ID: %v", id),
		HTTPStatus: http.StatusNotFound,
	}
}

func ValidationFailed(message string, details string) *AppError {
	return &AppError{
		Type:       ValidationError,
		Message:    message,
		Detail:     details,
		HTTPStatus: http.StatusBadRequest,
	}
}

func AuthenticationFailed(message string) *AppError {
	return &AppError{
		Type:       AuthError,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func NewDatabaseError(err error) *AppError {
	logger.GetLogger().Errorw("Database error", "error", err)
	return &AppError{
		Type:       DatabaseError,
		Message:    "Database operation failed",
		Detail:     "Please try again later",
		HTTPStatus: http.StatusInternalServerError,
		Raw:        err,
	}
}

func InternalServerError(message string) *AppError {
	return &AppError{
		Type:       ServerError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

func Forbidden(message string, details string) *AppError {
	return &AppError{
		Type:       AuthorizationError,
		Message:    message,
		Detail:     details,
		HTTPStatus: http.StatusForbidden,
	}
}

func Unprocessable(message string, details string) *AppError {
	return &AppError{
		Type:       UnprocessableError,
		Message:    message,
		Detail:     details,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

func NewConflictError(message string, detail string) *AppError {
	return &AppError{
		Type:       ConflictError,
		Message:    message,
		Detail:     detail,
		HTTPStatus: http.StatusConflict,
	}
}

// NewConflict builds a 409 that also carries a wire errorCode, the shape
// most Vote Engine outcomes (ALREADY_VOTED, SLOT_FULL, ...) need.
func NewConflict(code, message string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:       ConflictError,
		ErrorCode:  code,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusConflict,
	}
}

// RequiresLogin builds the 409 REQUIRES_LOGIN response from the
// voter-identity email-ownership rule.
func RequiresLogin(message string) *AppError {
	return &AppError{
		Type:       ConflictError,
		ErrorCode:  CodeRequiresLogin,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// EmailBelongsToAnotherUser builds the 403 raised when an authenticated
// voter supplies an email address owned by a different account.
func EmailBelongsToAnotherUser(message string) *AppError {
	return &AppError{
		Type:       AuthorizationError,
		ErrorCode:  CodeEmailBelongsToAnotherUsr,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// ResultsPrivate builds the 403 returned when a non-admin, non-creator
// reader asks for results on a poll whose results are not public.
func ResultsPrivate() *AppError {
	return &AppError{
		Type:       AuthorizationError,
		Message:    "Results for this poll are private",
		Details:    map[string]interface{}{"resultsPrivate": true},
		HTTPStatus: http.StatusForbidden,
	}
}

// TooManyRequests builds the 429 returned by the rate limiter, including
// the Retry-After seconds the caller should wait.
func TooManyRequests(message string, retryAfterSeconds int) *AppError {
	return &AppError{
		Type:       RateLimitError,
		Message:    message,
		RetryAfter: retryAfterSeconds,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

func Unauthorized(code, message string) error {
	return NewError(AuthError, code, message, http.StatusUnauthorized)
}

func getHTTPStatus(errType ErrorType) int {
	switch errType {
	case ValidationError:
		return http.StatusBadRequest
	case NotFoundError:
		return http.StatusNotFound
	case AuthError:
		return http.StatusUnauthorized
	case AuthorizationError:
		return http.StatusForbidden
	case ConflictError:
		return http.StatusConflict
	case UnprocessableError:
		return http.StatusUnprocessableEntity
	case RateLimitError:
		return http.StatusTooManyRequests
	case ServiceUnavailable:
		return http.StatusServiceUnavailable
	case DatabaseError:
		return http.StatusInternalServerError
	case ExternalServiceError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func NewError(errType ErrorType, code string, message string, status int) error {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}
