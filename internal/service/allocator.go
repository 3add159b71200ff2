package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/iliyamo/resource-reservation/internal/capacity"
	"github.com/iliyamo/resource-reservation/internal/model"
	"github.com/iliyamo/resource-reservation/internal/state"
)

// ErrResourceNotReservable is returned when a request names a resource
// whose is_reservable flag is off.
var ErrResourceNotReservable = errors.New("resource is not reservable")

// ResourceRequest asks for Quantity units of one resource.  StartTime and
// EndTime narrow the allocation window; when nil the reservation's own
// window is used.
type ResourceRequest struct {
	ResourceID string     `json:"resource_id" validate:"required"`
	Quantity   int        `json:"quantity" validate:"required,min=1"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
}

type resourceLocker interface {
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Resource, error)
}

type allocationWriter interface {
	ActiveInWindowTx(ctx context.Context, tx *sql.Tx, resourceID string, from, to time.Time) ([]capacity.Allocation, error)
	CreateBulkTx(ctx context.Context, tx *sql.Tx, rows []*model.ReservationResource) error
}

// Allocator attaches resources to a reservation inside the caller's
// transaction.  Resource rows are locked in id order, so two allocators
// touching the same resources serialize instead of deadlocking.  With
// enforcement off the requested quantities are written without looking
// at what is left, and concurrent requests may overbook a resource.
type Allocator struct {
	resources   resourceLocker
	allocations allocationWriter
	enforce     bool
}

func NewAllocator(resources resourceLocker, allocations allocationWriter, enforce bool) *Allocator {
	return &Allocator{resources: resources, allocations: allocations, enforce: enforce}
}

// Allocate creates one reservation_resource row per request in state
// created.  Rows carry the joined resource name and padalinys so callers
// can check tenancy before committing.
func (a *Allocator) Allocate(ctx context.Context, tx *sql.Tx, res *model.Reservation, reqs []ResourceRequest) ([]*model.ReservationResource, error) {
	if res.EndTime.Before(res.StartTime) {
		return nil, fmt.Errorf("%w: reservation ends before it starts", capacity.ErrInvalidRange)
	}

	rows := make([]*model.ReservationResource, 0, len(reqs))
	byResource := make(map[string][]*model.ReservationResource)
	for _, req := range reqs {
		if req.Quantity < 1 {
			return nil, fmt.Errorf("%w: %d for resource %s", capacity.ErrInvalidQuantity, req.Quantity, req.ResourceID)
		}
		start, end := res.StartTime.UTC(), res.EndTime.UTC()
		if req.StartTime != nil {
			start = req.StartTime.UTC()
		}
		if req.EndTime != nil {
			end = req.EndTime.UTC()
		}
		if end.Before(start) || start.Before(res.StartTime) || end.After(res.EndTime) {
			return nil, fmt.Errorf("%w: allocation of %s must lie within the reservation", capacity.ErrInvalidRange, req.ResourceID)
		}
		rr := &model.ReservationResource{
			ReservationID: res.ID,
			ResourceID:    req.ResourceID,
			Quantity:      req.Quantity,
			StartTime:     start,
			EndTime:       end,
			State:         state.Initial(),
		}
		rows = append(rows, rr)
		byResource[req.ResourceID] = append(byResource[req.ResourceID], rr)
	}

	ids := make([]string, 0, len(byResource))
	for id := range byResource {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		resource, err := a.resources.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", id, err)
		}
		if !resource.IsReservable {
			return nil, fmt.Errorf("%w: %s", ErrResourceNotReservable, resource.Name)
		}
		pending := byResource[id]
		for _, rr := range pending {
			rr.ResourceName, rr.PadalinysID = resource.Name, resource.PadalinysID
		}
		if err := a.check(ctx, tx, res, resource, pending); err != nil {
			return nil, err
		}
	}

	if err := a.allocations.CreateBulkTx(ctx, tx, rows); err != nil {
		return nil, fmt.Errorf("insert allocations: %w", err)
	}
	return rows, nil
}

// check fails with a ShortageError when the pending rows do not fit.
// A single row larger than the total capacity never fits, whether or
// not the window is enforced.
func (a *Allocator) check(ctx context.Context, tx *sql.Tx, res *model.Reservation, resource *model.Resource, pending []*model.ReservationResource) error {
	requested := 0
	for _, rr := range pending {
		requested += rr.Quantity
		if rr.Quantity > resource.Capacity {
			return &capacity.ShortageError{ResourceID: resource.ID, Requested: rr.Quantity, Available: resource.Capacity}
		}
	}
	if !a.enforce {
		return nil
	}

	existing, err := a.allocations.ActiveInWindowTx(ctx, tx, resource.ID, res.StartTime, res.EndTime)
	if err != nil {
		return fmt.Errorf("load allocations of %s: %w", resource.ID, err)
	}
	own := make([]capacity.Allocation, 0, len(pending))
	for _, rr := range pending {
		own = append(own, rr.Allocation())
	}
	tl, err := capacity.Compute(resource.Capacity, res.StartTime, res.EndTime, append(slices.Clone(existing), own...))
	if err != nil {
		return err
	}

	// Only instants where a pending row is in effect matter; an overbooking
	// elsewhere in the window is not this request's doing.
	available, short := resource.Capacity, false
	for e := range tl.All() {
		if capacity.LeftCapacityAt(0, own, e.At, capacity.StartsAtOrBefore, capacity.EndsAfter) == 0 {
			continue
		}
		available = min(available, capacity.LeftCapacityAt(resource.Capacity, existing, e.At, capacity.StartsAtOrBefore, capacity.EndsAfter))
		if e.After < 0 {
			short = true
		}
	}
	if short {
		return &capacity.ShortageError{ResourceID: resource.ID, Requested: requested, Available: max(available, 0)}
	}
	return nil
}
