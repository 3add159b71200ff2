package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/resource-reservation/internal/capacity"
	"github.com/iliyamo/resource-reservation/internal/model"
)

type resourceReader interface {
	GetByID(ctx context.Context, id string) (*model.Resource, error)
	ListReservable(ctx context.Context, padalinysID *uint64) ([]*model.Resource, error)
}

type allocationReader interface {
	ActiveInWindow(ctx context.Context, resourceID string, from, to time.Time) ([]capacity.Allocation, error)
	ActiveByResource(ctx context.Context, resourceID string) ([]capacity.Allocation, error)
}

// ResourceCapacity pairs a resource with its timeline over a window.
type ResourceCapacity struct {
	Resource *model.Resource
	Timeline *capacity.Timeline
	Lowest   int
}

// CapacityService answers capacity questions for the admin UI.  All
// values are recomputed from active allocation rows; the optional cache
// only saves the recomputation while nothing was written.
type CapacityService struct {
	resources   resourceReader
	allocations allocationReader
	cache       *TimelineCache
}

func NewCapacityService(resources resourceReader, allocations allocationReader, cache *TimelineCache) *CapacityService {
	return &CapacityService{resources: resources, allocations: allocations, cache: cache}
}

func checkRange(from, to time.Time) error {
	if from.After(to) {
		return fmt.Errorf("%w: %s is after %s", capacity.ErrInvalidRange, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	}
	return nil
}

// Timeline returns the resource and its capacity timeline over [from, to].
func (s *CapacityService) Timeline(ctx context.Context, resourceID string, from, to time.Time) (*model.Resource, *capacity.Timeline, error) {
	if err := checkRange(from, to); err != nil {
		return nil, nil, err
	}
	res, err := s.resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, nil, err
	}
	tl, err := s.timeline(ctx, res, from, to)
	if err != nil {
		return nil, nil, err
	}
	return res, tl, nil
}

func (s *CapacityService) timeline(ctx context.Context, res *model.Resource, from, to time.Time) (*capacity.Timeline, error) {
	from, to = from.UTC(), to.UTC()
	gen, cacheable := s.cache.Generation(ctx, res.ID)
	if cacheable {
		if tl, ok := s.cache.Get(ctx, res.ID, gen, from, to); ok && tl.Capacity == res.Capacity {
			return tl, nil
		}
	}

	allocs, err := s.allocations.ActiveInWindow(ctx, res.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load allocations of %s: %w", res.ID, err)
	}
	tl, err := capacity.Compute(res.Capacity, from, to, allocs)
	if err != nil {
		return nil, err
	}
	if cacheable {
		s.cache.Set(ctx, res.ID, gen, from, to, tl)
	}
	return tl, nil
}

// Left returns the capacity of a resource minus every active allocation,
// ignoring time.
func (s *CapacityService) Left(ctx context.Context, resourceID string) (*model.Resource, int, error) {
	res, err := s.resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, 0, err
	}
	allocs, err := s.allocations.ActiveByResource(ctx, res.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("load allocations of %s: %w", res.ID, err)
	}
	return res, capacity.Left(res.Capacity, allocs), nil
}

// Overview computes the timeline of every reservable resource, optionally
// limited to one padalinys.  It backs the reservation creation form.
func (s *CapacityService) Overview(ctx context.Context, padalinysID *uint64, from, to time.Time) ([]ResourceCapacity, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	resources, err := s.resources.ListReservable(ctx, padalinysID)
	if err != nil {
		return nil, err
	}
	out := make([]ResourceCapacity, 0, len(resources))
	for _, res := range resources {
		tl, err := s.timeline(ctx, res, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, ResourceCapacity{Resource: res, Timeline: tl, Lowest: tl.Lowest()})
	}
	return out, nil
}
