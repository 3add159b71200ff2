package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/resource-reservation/internal/model"
)

// RequireRole lets through callers whose role claim (stored by JWTAuth
// under KeyRole) is one of roles, compared case-insensitively.  A manager
// token without a padalinys claim is treated as malformed.  Everything
// else gets 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[strings.ToUpper(r)] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(KeyRole).(string)
			role = strings.ToUpper(role)
			if !allowed[role] || (role == model.RoleManager && c.Get(KeyPadalinysID) == nil) {
				zerolog.Ctx(c.Request().Context()).Debug().
					Str("role", role).Str("path", c.Path()).Msg("role denied")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
