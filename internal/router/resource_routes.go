package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/resource-reservation/internal/handler"
	"github.com/iliyamo/resource-reservation/internal/model"
)

// RegisterResources registers resource CRUD, the capacity endpoints and
// the padaliniai list.  cache wraps the padaliniai list only; pass nil to
// serve it uncached.
func RegisterResources(e *echo.Echo, h *handler.ResourceHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	g := protected(e, jwtSecret, model.RoleAdmin, model.RoleManager)

	// ---- Resources ----
	g.POST("/resources", h.Create)
	g.GET("/resources", h.List)
	g.GET("/resources/:id", h.Get)
	g.PUT("/resources/:id", h.Update)
	g.PATCH("/resources/:id", h.Update)
	g.DELETE("/resources/:id", h.Delete)

	// ---- Capacity ----
	g.GET("/resources/:id/capacity", h.Timeline)
	g.GET("/resources/:id/left-capacity", h.LeftCapacity)

	// ---- Tenants ----
	if cache != nil {
		g.GET("/padaliniai", h.Padaliniai, cache)
	} else {
		g.GET("/padaliniai", h.Padaliniai)
	}
}
