package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/resource-reservation/internal/handler"    // handlers that implement each endpoint
	"github.com/iliyamo/resource-reservation/internal/middleware" // JWT authentication and role enforcement
	"github.com/iliyamo/resource-reservation/internal/model"      // role names
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance: the liveness check and, when deps is not
// empty, a readiness check pinging them.
func RegisterRoutes(e *echo.Echo, deps map[string]handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if len(deps) > 0 {
		e.GET("/readyz", handler.Ready(deps))
	}
}

// protected returns a /v1 group requiring a valid access token with one of
// roles.
func protected(e *echo.Echo, jwtSecret string, roles ...string) *echo.Group {
	return e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(roles...))
}

// RegisterAuth registers all authentication-related routes.  Login,
// refresh and logout live under /v1/auth without a session; creating
// accounts is reserved to admins.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// Logout accepts either a refresh token in the body or a bearer token,
	// so it does not go through JWTAuth.
	g.POST("/logout", a.Logout)
	g.POST("/register", a.Register, middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))

	auth := protected(e, jwtSecret, model.RoleAdmin, model.RoleManager)
	auth.GET("/me", a.Me)
}
