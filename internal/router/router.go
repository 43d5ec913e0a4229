package router // package router wires handlers and middleware onto echo

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/handler"
	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/model"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	e.GET("/healthz", health)
}

// RegisterAuth registers /auth.  Credential endpoints (register, login,
// refresh) sit behind the rate limiter; logout never needs a session; self
// and sessions require a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, authn, limiter echo.MiddlewareFunc) {
	g := e.Group("/auth")
	g.POST("/register", a.Register, limiter)
	g.POST("/login", a.Login, limiter)
	g.POST("/refresh", a.Refresh, limiter)
	g.POST("/logout", a.Logout)

	g.GET("/self", a.Self, authn)
	g.GET("/sessions", a.Sessions, authn)
	g.DELETE("/sessions", a.RevokeSessions, authn)
}

// RegisterAdmin registers tenant and user management, restricted to admins.
func RegisterAdmin(e *echo.Echo, users *handler.UserHandler, tenants *handler.TenantHandler, authn echo.MiddlewareFunc) {
	adminOnly := middleware.RequireRole(model.RoleAdmin)

	t := e.Group("/tenants", authn, adminOnly)
	t.POST("", tenants.Create)
	t.GET("", tenants.List)
	t.GET("/:id", tenants.Get)
	t.PATCH("/:id", tenants.Update)
	t.DELETE("/:id", tenants.Delete)

	u := e.Group("/users", authn, adminOnly)
	u.POST("", users.Create)
	u.GET("", users.List)
	u.GET("/:id", users.Get)
	u.PATCH("/:id", users.Update)
	u.DELETE("/:id", users.Delete)
}

// RegisterJWKS publishes the verification key set behind the response
// cache.
func RegisterJWKS(e *echo.Echo, jwks echo.HandlerFunc, cache echo.MiddlewareFunc) {
	e.GET("/.well-known/jwks.json", jwks, cache)
}
