package handlers

import (
	"net/http"
	"strconv"

	"github.com/pollrelay/pollengine/errors"
	"github.com/pollrelay/pollengine/middleware"
	"github.com/gin-gonic/gin"
)

// bindJSONOrError binds the request body into req, reporting a
// validation_failed AppError through gin's error chain on failure.
func bindJSONOrError(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		_ = c.Error(errors.ValidationFailed("invalid request body", err.Error()))
		return false
	}
	return true
}

// getUserIDFromContext returns the authenticated user id set by
// middleware.OptionalAuth/RequireAuth, empty for anonymous requests.
func getUserIDFromContext(c *gin.Context) string {
	return c.GetString(string(middleware.UserIDKey))
}

func getUserEmailFromContext(c *gin.Context) string {
	return c.GetString(string(middleware.UserEmailKey))
}

type paginationParams struct {
	Limit  int
	Offset int
}

func getPaginationParams(c *gin.Context, defaultLimit, defaultOffset int) paginationParams {
	limit := defaultLimit
	offset := defaultOffset
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return paginationParams{Limit: limit, Offset: offset}
}

// requestInfoFromContext builds identity.RequestInfo from the inbound
// gin request: authenticated user id, device cookie, user agent.
func requestInfoFromContext(c *gin.Context) (authenticatedUserID, deviceCookie, userAgent string) {
	authenticatedUserID = getUserIDFromContext(c)
	deviceCookie, _ = c.Cookie(deviceCookieName)
	userAgent = c.Request.UserAgent()
	return
}

const deviceCookieName = "deviceToken"

func applyDeviceCookie(c *gin.Context, cookie *http.Cookie) {
	if cookie == nil {
		return
	}
	http.SetCookie(c.Writer, cookie)
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
