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
)

type resourceStore interface {
	Create(ctx context.Context, res *model.Resource) error
	GetByID(ctx context.Context, id string) (*model.Resource, error)
	List(ctx context.Context, f repository.ResourceFilter) ([]*model.Resource, int64, error)
	Update(ctx context.Context, res *model.Resource) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

type padalinysLookup interface {
	List(ctx context.Context) ([]*model.Padalinys, error)
	GetByID(ctx context.Context, id uint64) (*model.Padalinys, error)
}

type capacityReader interface {
	Timeline(ctx context.Context, resourceID string, from, to time.Time) (*model.Resource, *capacity.Timeline, error)
	Left(ctx context.Context, resourceID string) (*model.Resource, int, error)
	Overview(ctx context.Context, padalinysID *uint64, from, to time.Time) ([]service.ResourceCapacity, error)
}

// ResourceHandler serves resource CRUD and the capacity read endpoints.
// Managers only see and edit resources of their own padalinys.
type ResourceHandler struct {
	Resources  resourceStore
	Tenants    padalinysLookup
	Capacities capacityReader
	now        func() time.Time
}

// NewResourceHandler panics if any dependency is nil.
func NewResourceHandler(resources resourceStore, padaliniai padalinysLookup, capacities capacityReader) *ResourceHandler {
	if resources == nil || padaliniai == nil || capacities == nil {
		panic("nil dependency passed to NewResourceHandler")
	}
	return &ResourceHandler{
		Resources:  resources,
		Tenants:    padaliniai,
		Capacities: capacities,
		now:        time.Now,
	}
}

type resourceReq struct {
	Name         string  `json:"name" validate:"required,max=255"`
	Description  string  `json:"description" validate:"max=2000"`
	Location     string  `json:"location" validate:"max=255"`
	Capacity     *int    `json:"capacity" validate:"required,min=0"`
	PadalinysID  *uint64 `json:"padalinys_id"`
	IsReservable *bool   `json:"is_reservable"`
}

// padalinysFor resolves the tenant a resource is written to.  Managers
// always write to their own padalinys; admins must name an existing one.
func (h *ResourceHandler) padalinysFor(ctx context.Context, act service.Actor, requested *uint64) (uint64, error) {
	if act.PadalinysID != nil {
		if requested != nil && *requested != *act.PadalinysID {
			return 0, repository.ErrForbidden
		}
		return *act.PadalinysID, nil
	}
	if requested == nil {
		return 0, errPadalinysRequired
	}
	if _, err := h.Tenants.GetByID(ctx, *requested); err != nil {
		return 0, err
	}
	return *requested, nil
}

// loadOwned returns the resource at :id when the actor's tenant owns it.
func (h *ResourceHandler) loadOwned(c echo.Context, act service.Actor) (*model.Resource, error) {
	res, err := h.Resources.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if !act.Owns(res.PadalinysID) {
		return nil, repository.ErrForbidden
	}
	return res, nil
}

// Create handles POST /v1/resources.
func (h *ResourceHandler) Create(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	var req resourceReq
	if err := bindValid(c, &req); err != nil {
		return writeError(c, err)
	}
	ctx := c.Request().Context()
	pad, err := h.padalinysFor(ctx, act, req.PadalinysID)
	if err != nil {
		return writeError(c, err)
	}
	res := &model.Resource{
		Name:         strings.TrimSpace(req.Name),
		Description:  strings.TrimSpace(req.Description),
		Location:     strings.TrimSpace(req.Location),
		Capacity:     *req.Capacity,
		PadalinysID:  pad,
		IsReservable: req.IsReservable == nil || *req.IsReservable,
	}
	if err := h.Resources.Create(ctx, res); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toResourceDTO(res))
}

// List handles GET /v1/resources?q=&padalinys_id=&reservable=&page=&page_size=.
func (h *ResourceHandler) List(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	f := repository.ResourceFilter{
		Text:           strings.TrimSpace(c.QueryParam("q")),
		PadalinysID:    act.PadalinysID,
		ReservableOnly: c.QueryParam("reservable") == "1" || c.QueryParam("reservable") == "true",
		Page:           pageFrom(c),
	}
	if f.PadalinysID == nil {
		if pad, ok := queryUint(c, "padalinys_id"); ok {
			f.PadalinysID = &pad
		}
	}
	items, total, err := h.Resources.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	out := listDTO[resourceDTO]{Items: make([]resourceDTO, 0, len(items)), Total: total}
	out.Page, out.PageSize = f.Page.Page, f.Page.PageSize
	for _, r := range items {
		out.Items = append(out.Items, toResourceDTO(r))
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /v1/resources/:id.
func (h *ResourceHandler) Get(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	res, err := h.loadOwned(c, act)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toResourceDTO(res))
}

// Update handles PUT/PATCH /v1/resources/:id.  Capacity changes are not
// checked against existing allocations; the capacity timeline shows the
// resulting shortage.
func (h *ResourceHandler) Update(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	var req resourceReq
	if err := bindValid(c, &req); err != nil {
		return writeError(c, err)
	}
	res, err := h.loadOwned(c, act)
	if err != nil {
		return writeError(c, err)
	}
	ctx := c.Request().Context()
	if req.PadalinysID != nil && *req.PadalinysID != res.PadalinysID {
		if res.PadalinysID, err = h.padalinysFor(ctx, act, req.PadalinysID); err != nil {
			return writeError(c, err)
		}
	}
	res.Name = strings.TrimSpace(req.Name)
	res.Description = strings.TrimSpace(req.Description)
	res.Location = strings.TrimSpace(req.Location)
	res.Capacity = *req.Capacity
	if req.IsReservable != nil {
		res.IsReservable = *req.IsReservable
	}
	if err := h.Resources.Update(ctx, res); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toResourceDTO(res))
}

// Delete handles DELETE /v1/resources/:id.  Resources still lent out or
// reserved yield 409.
func (h *ResourceHandler) Delete(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	res, err := h.loadOwned(c, act)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.Resources.SoftDelete(c.Request().Context(), res.ID, h.now().UTC()); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Timeline handles GET /v1/resources/:id/capacity?start_time=&end_time=.
// Both ends accept a millisecond epoch or a date-time string.
func (h *ResourceHandler) Timeline(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	from, to, err := windowFrom(c, "start_time", "end_time", h.now())
	if err != nil {
		return writeError(c, err)
	}
	res, tl, err := h.Capacities.Timeline(c.Request().Context(), c.Param("id"), from, to)
	if err != nil {
		return writeError(c, err)
	}
	if !act.Owns(res.PadalinysID) {
		return writeError(c, repository.ErrForbidden)
	}
	return c.JSON(http.StatusOK, capacityDTO{Resource: toResourceDTO(res), Timeline: tl, Lowest: tl.Lowest()})
}

// LeftCapacity handles GET /v1/resources/:id/left-capacity: capacity
// minus every active allocation regardless of time.
func (h *ResourceHandler) LeftCapacity(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	res, left, err := h.Capacities.Left(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if !act.Owns(res.PadalinysID) {
		return writeError(c, repository.ErrForbidden)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"resource_id":   res.ID,
		"capacity":      res.Capacity,
		"left_capacity": left,
	})
}

// Padaliniai handles GET /v1/padaliniai.  Managers get their own tenant
// only.
func (h *ResourceHandler) Padaliniai(c echo.Context) error {
	act, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	items, err := h.Tenants.List(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]padalinysDTO, 0, len(items))
	for _, p := range items {
		if !act.Owns(p.ID) {
			continue
		}
		out = append(out, padalinysDTO{ID: p.ID, Shortname: p.Shortname, Fullname: p.Fullname, Alias: p.Alias})
	}
	return c.JSON(http.StatusOK, out)
}
