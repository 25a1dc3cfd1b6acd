package middleware

import (
	"runtime/debug"

	"github.com/pollrelay/pollengine/errors"
	"github.com/pollrelay/pollengine/logger"
	"github.com/gin-gonic/gin"
)

// errorEnvelope is the §6 wire error shape: { error, errorCode?,
// details?, retryAfter? }.
type errorEnvelope struct {
	Error      string      `json:"error"`
	ErrorCode  string      `json:"errorCode,omitempty"`
	Details    interface{} `json:"details,omitempty"`
	RetryAfter int         `json:"retryAfter,omitempty"`
}

// ErrorHandler is the central error mapper of §4.9/C9: every handler
// is wrapped by it, translating whatever was pushed onto c.Errors into
// the wire error envelope and an appropriate HTTP status.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stackTrace := debug.Stack()
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		log := logger.GetLogger()
		requestID := c.GetString(RequestIDKey)

		if appErr, ok := err.(*errors.AppError); ok {
			log.Errorw("request error",
				"type", appErr.Type,
				"errorCode", appErr.ErrorCode,
				"message", appErr.Message,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"requestId", requestID,
			)
			c.JSON(appErr.GetHTTPStatus(), errorEnvelope{
				Error:      appErr.Message,
				ErrorCode:  appErr.ErrorCode,
				Details:    appErr.Details,
				RetryAfter: appErr.RetryAfter,
			})
			return
		}

		if c.Errors.Last().Type == gin.ErrorTypeBind {
			log.Warnw("request binding error", "error", err, "path", c.Request.URL.Path)
			c.JSON(400, errorEnvelope{Error: "invalid request body"})
			return
		}

		if c.Errors.Last().Type == gin.ErrorTypePublic {
			log.Warnw("public error", "error", err, "path", c.Request.URL.Path)
			c.JSON(400, errorEnvelope{Error: err.Error()})
			return
		}

		log.Errorw("unexpected error",
			"error", err,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"stackTrace", string(stackTrace),
		)
		logger.LogHTTPError(c, err, 500, "unexpected error")
		c.JSON(500, errorEnvelope{Error: "internal server error"})
	}
}
