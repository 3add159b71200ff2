// Package handler exposes the HTTP endpoints of the reservation service.
// Handlers translate requests into service calls and map domain errors to
// status codes; they hold no business rules of their own.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/resource-reservation/internal/capacity"
	"github.com/iliyamo/resource-reservation/internal/middleware"
	"github.com/iliyamo/resource-reservation/internal/repository"
	"github.com/iliyamo/resource-reservation/internal/service"
	"github.com/iliyamo/resource-reservation/internal/state"
)

var (
	errBadBody           = errors.New("invalid request body")
	errPadalinysRequired = errors.New("padalinys_id is required")
)

// actor builds the service actor from the claims stored by JWTAuth.
func actor(c echo.Context) (service.Actor, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		return service.Actor{}, false
	}
	return service.Actor{UserID: uid, PadalinysID: middleware.PadalinysID(c)}, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// bindValid decodes the body into dst and runs the registered validator.
func bindValid(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errBadBody
	}
	return c.Validate(dst)
}

func paramUint(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func queryUint(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.QueryParam(name), 10, 64)
	return id, err == nil && id > 0
}

// pageFrom reads ?page=&page_size=.  Bad values fall back to defaults.
func pageFrom(c echo.Context) repository.Page {
	p, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	return repository.Page{Page: p, PageSize: size}
}

// defaultWindow is the window the reservation form opens with: tomorrow
// 09:00 until 17:00 five days from now, in UTC.
func defaultWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	y, m, d := now.Date()
	from := time.Date(y, m, d+1, 9, 0, 0, 0, time.UTC)
	to := time.Date(y, m, d+5, 17, 0, 0, 0, time.UTC)
	return from, to
}

// windowFrom reads a query window.  When both ends are absent the
// default window is used.
func windowFrom(c echo.Context, fromKey, toKey string, now time.Time) (time.Time, time.Time, error) {
	fromRaw, toRaw := c.QueryParam(fromKey), c.QueryParam(toKey)
	if fromRaw == "" && toRaw == "" {
		from, to := defaultWindow(now)
		return from, to, nil
	}
	return capacity.ParseWindow(fromRaw, toRaw)
}

// writeError maps err to a JSON error response.  Unexpected errors are
// logged and reported as 500 without details.
func writeError(c echo.Context, err error) error {
	var (
		shortage *capacity.ShortageError
		verrs    validator.ValidationErrors
	)
	switch {
	case errors.Is(err, errBadBody):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "validation failed", "kind": "invalid_body", "fields": fields})
	case errors.Is(err, errPadalinysRequired):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error(), "kind": "invalid_body"})
	case errors.As(err, &shortage):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error":       err.Error(),
			"kind":        "invalid_quantity",
			"resource_id": shortage.ResourceID,
			"requested":   shortage.Requested,
			"available":   shortage.Available,
		})
	case errors.Is(err, capacity.ErrInvalidRange):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error(), "kind": "invalid_range"})
	case errors.Is(err, capacity.ErrInvalidQuantity):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error(), "kind": "invalid_quantity"})
	case errors.Is(err, capacity.ErrInvalidCapacity):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error(), "kind": "invalid_capacity"})
	case errors.Is(err, service.ErrUnknownManager):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error(), "kind": "unknown_manager"})
	case errors.Is(err, capacity.ErrInvalidInstant), errors.Is(err, state.ErrUnknownEvent):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrNoChange),
		errors.Is(err, service.ErrResourceNotReservable):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	zerolog.Ctx(c.Request().Context()).Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}
