package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/resource-reservation/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects its claims into the request context: "user_id" (uint64),
// "role" (string) and, for managers, "padalinys_id" (uint64).  The request
// logger is enriched with the user id.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			uid, _ := claims.UserID()

			c.Set(KeyUserID, uid)
			c.Set(KeyRole, claims.Role)
			if claims.Padalinys != nil {
				c.Set(KeyPadalinysID, *claims.Padalinys)
			}

			ctx := c.Request().Context()
			l := zerolog.Ctx(ctx).With().Uint64("user_id", uid).Logger()
			c.SetRequest(c.Request().WithContext(l.WithContext(ctx)))
			return next(c)
		}
	}
}
