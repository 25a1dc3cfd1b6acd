package middleware

import (
	"context"
	"strings"

	stderrors "errors"

	apperrors "github.com/pollrelay/pollengine/errors"
	"github.com/pollrelay/pollengine/internal/auth"
	"github.com/pollrelay/pollengine/logger"
	"github.com/gin-gonic/gin"
)

// OptionalAuth resolves a session JWT when present but never blocks the
// request: most routes in this API (voting, results, live) are open to
// anonymous participants per §4.4's resolver, which only consults an
// authenticated session as its first-choice identity source. A missing or
// invalid token simply leaves the request anonymous.
func OptionalAuth(validator Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractToken(c)
		if err != nil || token == "" {
			c.Next()
			return
		}

		claims, err := validator.ValidateAndGetClaims(token)
		if err != nil {
			logger.GetLogger().Debugw("optional auth: token present but invalid, continuing anonymously",
				"path", c.Request.URL.Path, "error", err)
			c.Next()
			return
		}

		setAuthenticatedContext(c, claims.UserID, claims.Email)
		c.Next()
	}
}

// RequireAuth rejects the request with 401 unless it carries a valid
// session token. Used for the creator-scoped my-polls/shared-polls routes.
func RequireAuth(validator Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractToken(c)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		claims, err := validator.ValidateAndGetClaims(token)
		if err != nil {
			if stderrors.Is(err, auth.ErrTokenExpired) {
				_ = c.Error(apperrors.Unauthorized("token_expired", "invalid or expired token"))
			} else {
				_ = c.Error(apperrors.Unauthorized("invalid_token", "invalid or expired token"))
			}
			c.Abort()
			return
		}

		if claims.UserID == "" {
			_ = c.Error(apperrors.Unauthorized("invalid_token", "token carries no subject"))
			c.Abort()
			return
		}

		setAuthenticatedContext(c, claims.UserID, claims.Email)
		c.Next()
	}
}

func setAuthenticatedContext(c *gin.Context, userID, email string) {
	c.Set(string(UserIDKey), userID)
	c.Set(string(UserEmailKey), strings.ToLower(email))

	newCtx := context.WithValue(c.Request.Context(), UserIDKey, userID)
	newCtx = context.WithValue(newCtx, UserEmailKey, strings.ToLower(email))
	c.Request = c.Request.WithContext(newCtx)
}

// extractToken extracts the session JWT from the Authorization header, or
// from the `token` query parameter on a WebSocket upgrade request (browsers
// cannot set custom headers on a WebSocket-style upgrade). No cookie is read.
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token != "" {
				return token, nil
			}
			return "", apperrors.Unauthorized("invalid_auth_format", "invalid authorization header format")
		}
		return "", apperrors.Unauthorized("invalid_auth_format", "invalid authorization header format")
	}

	isUpgrade := strings.EqualFold(strings.TrimSpace(c.GetHeader("Connection")), "upgrade") &&
		strings.EqualFold(strings.TrimSpace(c.GetHeader("Upgrade")), "websocket")
	if isUpgrade {
		if tokenFromQuery := c.Query("token"); tokenFromQuery != "" {
			return tokenFromQuery, nil
		}
		return "", nil
	}

	return "", apperrors.Unauthorized("token_missing", "authorization header missing")
}
