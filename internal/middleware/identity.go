package middleware

// identity.go holds the context keys set by JWTAuth and the helpers that
// read them back.  The rate limiter and the response cache use them to
// build per-user and per-tenant keys.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys populated by JWTAuth.
const (
	KeyUserID      = "user_id"
	KeyRole        = "role"
	KeyPadalinysID = "padalinys_id"
)

// UserID returns the authenticated user id.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(KeyUserID).(uint64)
	return id, ok && id > 0
}

// Role returns the authenticated role, or "" for anonymous requests.
func Role(c echo.Context) string {
	r, _ := c.Get(KeyRole).(string)
	return r
}

// PadalinysID returns the tenant of a manager.  Admins and anonymous
// callers get nil.
func PadalinysID(c echo.Context) *uint64 {
	if id, ok := c.Get(KeyPadalinysID).(uint64); ok {
		return &id
	}
	return nil
}

// userKey identifies the caller in rate-limit keys.
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}

// tenantKey identifies the caller's data scope in cache keys.
func tenantKey(c echo.Context) string {
	if pad := PadalinysID(c); pad != nil {
		return "p" + strconv.FormatUint(*pad, 10)
	}
	if Role(c) != "" {
		return "all"
	}
	return "public"
}
