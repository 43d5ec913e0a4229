package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/utils"
)

// AccessVerifier checks an access token and returns its claims.
// *utils.Signer implements it.
type AccessVerifier interface {
	ParseAccessToken(raw string) (*utils.AccessClaims, error)
}

// JWTAuth validates the access token and stores the subject and role in the
// request context (see UserID and Role).  The token is read from the
// accessToken cookie first and from an "Authorization: Bearer" header
// otherwise, so both browsers and service clients can call protected
// routes.
func JWTAuth(v AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := accessToken(c)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Token is missing")
			}
			claims, err := v.ParseAccessToken(raw)
			if errors.Is(err, utils.ErrKeyUnavailable) {
				return echo.NewHTTPError(http.StatusInternalServerError, "Signing key is unavailable").SetInternal(err)
			}
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token").SetInternal(err)
			}
			uid, err := claims.UserID()
			if err != nil || uid == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}
			c.Set(ContextUserID, uid)
			c.Set(ContextRole, claims.Role)
			return next(c)
		}
	}
}

func accessToken(c echo.Context) string {
	if ck, err := c.Cookie(AccessTokenCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
