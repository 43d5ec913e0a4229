package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/service"
)

func authCookie(cfg config.CookieConfig, name, value string, ttl time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cfg.Domain,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if ttl > 0 {
		ck.MaxAge = int(ttl / time.Second)
		ck.Expires = time.Now().Add(ttl).UTC()
	} else {
		// Max-Age=0 tells the browser to drop it now
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0).UTC()
	}
	return ck
}

// setAuthCookies hands a freshly issued pair to the client: the access
// token for one hour, the refresh token for one year.
func setAuthCookies(c echo.Context, cfg config.CookieConfig, pair service.TokenPair) {
	c.SetCookie(authCookie(cfg, middleware.AccessTokenCookie, pair.AccessToken, pair.AccessTTL))
	c.SetCookie(authCookie(cfg, middleware.RefreshTokenCookie, pair.RefreshToken, pair.RefreshTTL))
}

func clearAuthCookies(c echo.Context, cfg config.CookieConfig) {
	c.SetCookie(authCookie(cfg, middleware.AccessTokenCookie, "", 0))
	c.SetCookie(authCookie(cfg, middleware.RefreshTokenCookie, "", 0))
}
