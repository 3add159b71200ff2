package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/resource-reservation/internal/capacity"
	"github.com/iliyamo/resource-reservation/internal/model"
	"github.com/iliyamo/resource-reservation/internal/repository"
	"github.com/iliyamo/resource-reservation/internal/service"
	"github.com/iliyamo/resource-reservation/internal/state"
)

type reservationWorkflow interface {
	Create(ctx context.Context, in service.CreateReservationInput, actor service.Actor) (*model.Reservation, error)
	AddResource(ctx context.Context, reservationID string, req service.ResourceRequest, actor service.Actor) (*model.ReservationResource, error)
	Transition(ctx context.Context, pivotID uint64, event state.Event, actor service.Actor) (*service.Transition, error)
	Get(ctx context.Context, id string, actor service.Actor) (*model.Reservation, error)
	GetAllocation(ctx context.Context, id uint64, actor service.Actor) (*model.ReservationResource, error)
	List(ctx context.Context, f repository.ReservationFilter, actor service.Actor) ([]*model.Reservation, int64, error)
	Complete(ctx context.Context, id string, actor service.Actor) (*model.Reservation, error)
	Delete(ctx context.Context, id string, actor service.Actor) error
}

// ReservationHandler serves reservations, their allocations and the
// capacity overview shown while a reservation is being created.
type ReservationHandler struct {
	Reservations reservationWorkflow
	Capacities   capacityReader
	now          func() time.Time
}

// NewReservationHandler panics if any dependency is nil.
func NewReservationHandler(reservations reservationWorkflow, capacities capacityReader) *ReservationHandler {
	if reservations == nil || capacities == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Reservations: reservations, Capacities: capacities, now: time.Now}
}

type resourceLineReq struct {
	ResourceID string `json:"resource_id" validate:"required,uuid"`
	Quantity   int    `json:"quantity"`
	StartTime  string `json:"start_time,omitempty"`
	EndTime    string `json:"end_time,omitempty"`
}

type createReservationReq struct {
	Name        string            `json:"name" validate:"required,max=255"`
	Description string            `json:"description" validate:"max=2000"`
	StartTime   string            `json:"start_time" validate:"required"`
	EndTime     string            `json:"end_time" validate:"required"`
	Resources   []resourceLineReq `json:"resources" validate:"required,min=1,dive"`
	ManagerIDs  []uint64          `json:"manager_ids" validate:"omitempty,dive,gt=0"`
}

// toRequest converts a body line.  Quantities are checked by the
// allocator so they come back as invalid_quantity.
func (l resourceLineReq) toRequest() (service.ResourceRequest, error) {
	req := service.ResourceRequest{ResourceID: l.ResourceID, Quantity: l.Quantity}
	if l.StartTime == "" && l.EndTime == "" {
		return req, nil
	}
	from, to, err := capacity.ParseWindow(l.StartTime, l.EndTime)
	if err != nil {
		return req, err
	}
	req.StartTime, req.EndTime = &from, &to
	return req, nil
}

// Create handles POST /v1/reservations.  Times accept a millisecond epoch
// or a date-time string.
func (h *ReservationHandler) Create(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	var req createReservationReq
	if err := bindValid(c, &req); err != nil {
		return writeError(c, err)
	}
	from, to, err := capacity.ParseWindow(req.StartTime, req.EndTime)
	if err != nil {
		return writeError(c, err)
	}
	in := service.CreateReservationInput{
		Name:        req.Name,
		Description: req.Description,
		StartTime:   from,
		EndTime:     to,
		ManagerIDs:  req.ManagerIDs,
	}
	for _, line := range req.Resources {
		r, err := line.toRequest()
		if err != nil {
			return writeError(c, err)
		}
		in.Resources = append(in.Resources, r)
	}

	res, err := h.Reservations.Create(c.Request().Context(), in, act)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toReservationDTO(res))
}

// List handles GET /v1/reservations?q=&page=&page_size=.
func (h *ReservationHandler) List(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	f := repository.ReservationFilter{Text: strings.TrimSpace(c.QueryParam("q")), Page: pageFrom(c)}
	if pad, ok := queryUint(c, "padalinys_id"); ok {
		f.PadalinysID = &pad
	}
	items, total, err := h.Reservations.List(c.Request().Context(), f, act)
	if err != nil {
		return writeError(c, err)
	}
	out := listDTO[reservationDTO]{Items: make([]reservationDTO, 0, len(items)), Total: total}
	out.Page, out.PageSize = f.Page.Page, f.Page.PageSize
	for _, r := range items {
		out.Items = append(out.Items, toReservationDTO(r))
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	res, err := h.Reservations.Get(c.Request().Context(), c.Param("id"), act)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationDTO(res))
}

// Capacity handles GET /v1/reservations/capacity?start=&end=, the
// per-resource timelines behind the reservation form.  Without a window
// it covers tomorrow 09:00 to 17:00 five days out.
func (h *ReservationHandler) Capacity(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	from, to, err := windowFrom(c, "start", "end", h.now())
	if err != nil {
		return writeError(c, err)
	}
	rows, err := h.Capacities.Overview(c.Request().Context(), act.PadalinysID, from, to)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]capacityDTO, 0, len(rows))
	for _, rc := range rows {
		out = append(out, toCapacityDTO(rc))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"start":     capacity.Millis(from),
		"end":       capacity.Millis(to),
		"resources": out,
	})
}

// AddResource handles POST /v1/reservations/:id/resources.
func (h *ReservationHandler) AddResource(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	var line resourceLineReq
	if err := bindValid(c, &line); err != nil {
		return writeError(c, err)
	}
	req, err := line.toRequest()
	if err != nil {
		return writeError(c, err)
	}
	rr, err := h.Reservations.AddResource(c.Request().Context(), c.Param("id"), req, act)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toAllocationDTO(rr))
}

// Complete handles POST /v1/reservations/:id/complete.
func (h *ReservationHandler) Complete(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	res, err := h.Reservations.Complete(c.Request().Context(), c.Param("id"), act)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationDTO(res))
}

// Delete handles DELETE /v1/reservations/:id.
func (h *ReservationHandler) Delete(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.Reservations.Delete(c.Request().Context(), c.Param("id"), act); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetAllocation handles GET /v1/reservation-resources/:id.
func (h *ReservationHandler) GetAllocation(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := paramUint(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	rr, err := h.Reservations.GetAllocation(c.Request().Context(), id, act)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toAllocationDTO(rr))
}

// Transition handles POST /v1/reservation-resources/:id/:event where
// event is progress, approve, reject or cancel.  Events the current state
// ignores answer 200 with changed=false.
func (h *ReservationHandler) Transition(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := paramUint(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ev, err := state.ParseEvent(c.Param("event"))
	if err != nil {
		return writeError(c, err)
	}
	tr, err := h.Reservations.Transition(c.Request().Context(), id, ev, act)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"allocation": toAllocationDTO(tr.Allocation),
		"from":       tr.From,
		"to":         tr.To,
		"changed":    tr.Changed,
	})
}
