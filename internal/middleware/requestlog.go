package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestLogger attaches a request-scoped logger carrying request_id to
// the request context and logs one line per completed request.  An
// incoming X-Request-ID header is reused; otherwise a UUID is generated.
func RequestLogger(base zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, rid)

			l := base.With().Str("request_id", rid).Logger()
			c.SetRequest(req.WithContext(l.WithContext(req.Context())))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			ev := zerolog.Ctx(c.Request().Context()).Info()
			if status >= http.StatusInternalServerError {
				ev = zerolog.Ctx(c.Request().Context()).Error().Err(err)
			}
			ev.Str("method", req.Method).
				Str("path", c.Path()).
				Str("uri", req.RequestURI).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("ip", c.RealIP()).
				Msg("request")
			return nil
		}
	}
}

// Recover turns a panic in a handler into a 500 response and logs the
// stack through the request logger.
func Recover() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if r == http.ErrAbortHandler {
						panic(r)
					}
					zerolog.Ctx(c.Request().Context()).Error().
						Str("panic", fmt.Sprint(r)).
						Bytes("stack", debug.Stack()).
						Msg("handler panicked")
					err = c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
				}
			}()
			return next(c)
		}
	}
}
