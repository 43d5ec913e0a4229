package middleware

// identity.go holds the context keys JWTAuth fills in and the accessors
// handlers and other middleware use to read them back.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// Cookie names shared by the auth handlers and JWTAuth.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// UserID returns the authenticated user's id, if any.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ContextUserID).(uint64)
	return id, ok && id != 0
}

// Role returns the authenticated user's role, or "" for anonymous requests.
func Role(c echo.Context) string {
	r, _ := c.Get(ContextRole).(string)
	return r
}

// identityKey is the rate-limit identity of the caller: its user id when
// authenticated, "anon" otherwise.
func identityKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
