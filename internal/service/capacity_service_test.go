package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/resource-reservation/internal/capacity"
	"github.com/iliyamo/resource-reservation/internal/model"
	"github.com/iliyamo/resource-reservation/internal/repository"
	"github.com/iliyamo/resource-reservation/internal/state"
)

func TestTimelineRejectsReversedWindow(t *testing.T) {
	resources, allocations := &resourceStoreMock{}, &allocationStoreMock{}
	_, _, err := NewCapacityService(resources, allocations, nil).Timeline(context.Background(), "r1", t10, t0)
	assert.ErrorIs(t, err, capacity.ErrInvalidRange)
	resources.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestTimelineMissingResource(t *testing.T) {
	resources, allocations := &resourceStoreMock{}, &allocationStoreMock{}
	resources.On("GetByID", mock.Anything, "gone").Return(nil, repository.ErrNotFound)

	_, _, err := NewCapacityService(resources, allocations, nil).Timeline(context.Background(), "gone", t0, t10)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTimelineCachedUntilInvalidated(t *testing.T) {
	_, rdb := newRedis(t)
	cache := NewTimelineCache(rdb, time.Minute)
	resources, allocations := &resourceStoreMock{}, &allocationStoreMock{}
	resources.On("GetByID", mock.Anything, "r1").Return(tent("r1", 5), nil)
	allocations.On("ActiveInWindow", mock.Anything, "r1", t0, t10).Return([]capacity.Allocation{
		{ID: 1, ReservationID: "res-1", Quantity: 3, Start: at(1), End: at(4), State: state.Reserved},
	}, nil).Once()

	svc := NewCapacityService(resources, allocations, cache)
	ctx := context.Background()

	_, first, err := svc.Timeline(ctx, "r1", t0, t10)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Lowest())

	_, cached, err := svc.Timeline(ctx, "r1", t0, t10)
	require.NoError(t, err)
	assert.Equal(t, first.Entries(), cached.Entries())
	allocations.AssertNumberOfCalls(t, "ActiveInWindow", 1)

	cache.Invalidate(ctx, "r1")
	allocations.On("ActiveInWindow", mock.Anything, "r1", t0, t10).Return([]capacity.Allocation(nil), nil).Once()
	_, fresh, err := svc.Timeline(ctx, "r1", t0, t10)
	require.NoError(t, err)
	assert.Equal(t, 5, fresh.Lowest())
	allocations.AssertNumberOfCalls(t, "ActiveInWindow", 2)
}

func TestTimelineWithoutRedis(t *testing.T) {
	resources, allocations := &resourceStoreMock{}, &allocationStoreMock{}
	resources.On("GetByID", mock.Anything, "r1").Return(tent("r1", 5), nil)
	allocations.On("ActiveInWindow", mock.Anything, "r1", t0, t0).Return([]capacity.Allocation(nil), nil)

	svc := NewCapacityService(resources, allocations, NewTimelineCache(nil, time.Minute))
	_, tl, err := svc.Timeline(context.Background(), "r1", t0, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, tl.Len())
	assert.Equal(t, 5, tl.Lowest())
}

func TestTimelineLoadError(t *testing.T) {
	resources, allocations := &resourceStoreMock{}, &allocationStoreMock{}
	resources.On("GetByID", mock.Anything, "r1").Return(tent("r1", 5), nil)
	boom := errors.New("boom")
	allocations.On("ActiveInWindow", mock.Anything, "r1", t0, t10).Return(nil, boom)

	_, _, err := NewCapacityService(resources, allocations, nil).Timeline(context.Background(), "r1", t0, t10)
	assert.ErrorIs(t, err, boom)
}

func TestLeft(t *testing.T) {
	resources, allocations := &resourceStoreMock{}, &allocationStoreMock{}
	resources.On("GetByID", mock.Anything, "r1").Return(tent("r1", 5), nil)
	allocations.On("ActiveByResource", mock.Anything, "r1").Return([]capacity.Allocation{
		{Quantity: 2, State: state.Lent},
		{Quantity: 4, State: state.Created},
	}, nil)

	_, left, err := NewCapacityService(resources, allocations, nil).Left(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, -1, left)
}

func TestOverview(t *testing.T) {
	resources, allocations := &resourceStoreMock{}, &allocationStoreMock{}
	pad := ptr(uint64(3))
	resources.On("ListReservable", mock.Anything, pad).Return([]*model.Resource{tent("r1", 5), tent("r2", 1)}, nil)
	allocations.On("ActiveInWindow", mock.Anything, "r1", t0, t10).Return([]capacity.Allocation(nil), nil)
	allocations.On("ActiveInWindow", mock.Anything, "r2", t0, t10).Return([]capacity.Allocation{
		{Quantity: 1, Start: at(3), End: at(5), State: state.Created},
	}, nil)

	out, err := NewCapacityService(resources, allocations, nil).Overview(context.Background(), pad, t0, t10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 5, out[0].Lowest)
	assert.Equal(t, 0, out[1].Lowest)
	assert.Equal(t, 4, out[1].Timeline.Len())

	_, err = NewCapacityService(resources, allocations, nil).Overview(context.Background(), nil, t10, t0)
	assert.ErrorIs(t, err, capacity.ErrInvalidRange)
}
