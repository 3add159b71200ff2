package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/resource-reservation/internal/handler"
	"github.com/iliyamo/resource-reservation/internal/model"
)

// RegisterReservations registers reservation endpoints and the state
// transitions of single allocations.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string) {
	g := protected(e, jwtSecret, model.RoleAdmin, model.RoleManager)

	// ---- Reservations ----
	g.POST("/reservations", h.Create)
	g.GET("/reservations", h.List)
	g.GET("/reservations/capacity", h.Capacity)
	g.GET("/reservations/:id", h.Get)
	g.POST("/reservations/:id/resources", h.AddResource)
	g.POST("/reservations/:id/complete", h.Complete)
	g.DELETE("/reservations/:id", h.Delete)

	// ---- Allocations ----
	g.GET("/reservation-resources/:id", h.GetAllocation)
	g.POST("/reservation-resources/:id/:event", h.Transition)
}
