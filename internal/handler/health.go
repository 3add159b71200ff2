package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"net/http" // net/http provides status codes and response helpers
	"time"

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Health is a simple health-check endpoint used by load balancers and
// monitoring systems to verify that the service is running.  It returns
// a plain text "ok" message with an HTTP 200 status code.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Pinger checks one dependency, such as (*sql.DB).PingContext.
type Pinger func(ctx context.Context) error

// Ready reports 200 only when every dependency answers a ping within two
// seconds.  Failing dependencies are listed in the body.
func Ready(deps map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		out := make(map[string]string, len(deps))
		for name, ping := range deps {
			if ping == nil {
				continue
			}
			if err := ping(ctx); err != nil {
				out[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			out[name] = "ok"
		}
		return c.JSON(status, out)
	}
}
