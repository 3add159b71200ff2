package capacity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/resource-reservation/internal/state"
)

var t0 = time.Date(2023, 7, 1, 9, 0, 0, 0, time.UTC)

func hours(n int) time.Duration { return time.Duration(n) * time.Hour }

func alloc(id uint64, qty int, start, end time.Time) Allocation {
	return Allocation{ID: id, ReservationID: "res", Quantity: qty, Start: start, End: end, State: state.Created}
}

func TestComputeWithoutAllocations(t *testing.T) {
	tl, err := Compute(5, t0, t0.Add(hours(8)), nil)
	require.NoError(t, err)

	require.Equal(t, 2, tl.Len())
	for e := range tl.All() {
		assert.Equal(t, 5, e.Before)
		assert.Equal(t, 5, e.After)
		assert.Empty(t, e.Allocations)
	}
	assert.Equal(t, 5, tl.Lowest())
}

func TestComputeSingleInstantWindow(t *testing.T) {
	tl, err := Compute(5, t0, t0, nil)
	require.NoError(t, err)

	entries := tl.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, e.At.Equal(t0))
		assert.Equal(t, 5, e.Before)
		assert.Equal(t, 5, e.After)
	}
	assert.Equal(t, 5, tl.Lowest())
}

func TestComputeSingleReservationInsideWindow(t *testing.T) {
	t1 := t0.Add(hours(4))
	tl, err := Compute(5, t0.Add(-time.Millisecond), t1.Add(time.Millisecond), []Allocation{alloc(1, 3, t0, t1)})
	require.NoError(t, err)

	entries := tl.Entries()
	require.Len(t, entries, 4)

	start := entries[1]
	assert.True(t, start.At.Equal(t0))
	assert.True(t, start.Start)
	assert.Equal(t, 5, start.Before)
	assert.Equal(t, 2, start.After)

	end := entries[2]
	assert.True(t, end.At.Equal(t1))
	assert.True(t, end.End)
	assert.Equal(t, 2, end.Before)
	assert.Equal(t, 5, end.After)
	require.Len(t, end.Allocations, 1)
	assert.Equal(t, uint64(1), end.Allocations[0].ID)

	assert.Equal(t, 2, tl.Lowest())
}

func TestComputeOverbookingIsNotClamped(t *testing.T) {
	t1 := t0.Add(hours(2))
	allocs := []Allocation{alloc(1, 3, t0, t1), alloc(2, 3, t0, t1)}
	tl, err := Compute(5, t0.Add(-hours(1)), t1.Add(hours(1)), allocs)
	require.NoError(t, err)

	assert.Equal(t, -1, tl.Lowest())
}

func TestComputeMergesSharedBoundaries(t *testing.T) {
	t1 := t0.Add(hours(2))
	t2 := t0.Add(hours(4))
	allocs := []Allocation{alloc(1, 1, t0, t1), alloc(2, 2, t1, t2)}
	tl, err := Compute(4, t0.Add(-hours(1)), t2.Add(hours(1)), allocs)
	require.NoError(t, err)

	var shared *Entry
	for e := range tl.All() {
		if e.At.Equal(t1) {
			shared = &e
		}
	}
	require.NotNil(t, shared)
	assert.True(t, shared.Start)
	assert.True(t, shared.End)
	assert.Len(t, shared.Allocations, 2)
	// allocation 1 still counts just before t1, allocation 2 just after it
	assert.Equal(t, 3, shared.Before)
	assert.Equal(t, 2, shared.After)
	assert.Equal(t, 5, tl.Len())
}

func TestComputeClampsToWindow(t *testing.T) {
	from := t0.Add(hours(1))
	to := t0.Add(hours(2))
	tl, err := Compute(3, from, to, []Allocation{alloc(1, 2, t0, t0.Add(hours(5)))})
	require.NoError(t, err)

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Start)
	assert.True(t, entries[1].End)
	assert.Equal(t, 1, entries[0].Before)
	assert.Equal(t, 1, entries[0].After)
	assert.Equal(t, 1, entries[1].Before)
	assert.Equal(t, 1, tl.Lowest())
}

func TestComputeIgnoresInactiveAndDisjoint(t *testing.T) {
	cancelled := alloc(1, 4, t0, t0.Add(hours(1)))
	cancelled.State = state.Cancelled
	returned := alloc(2, 4, t0, t0.Add(hours(1)))
	returned.State = state.Returned
	before := alloc(3, 4, t0.Add(-hours(5)), t0.Add(-hours(4)))

	tl, err := Compute(5, t0, t0.Add(hours(2)), []Allocation{cancelled, returned, before})
	require.NoError(t, err)
	assert.Equal(t, 2, tl.Len())
	assert.Equal(t, 5, tl.Lowest())
}

func TestComputeInvalidInput(t *testing.T) {
	_, err := Compute(5, t0.Add(time.Second), t0, nil)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Compute(-1, t0, t0, nil)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestComputeIsIdempotent(t *testing.T) {
	allocs := []Allocation{alloc(1, 1, t0, t0.Add(hours(3))), alloc(2, 2, t0.Add(hours(1)), t0.Add(hours(2)))}
	a, err := Compute(5, t0, t0.Add(hours(4)), allocs)
	require.NoError(t, err)
	b, err := Compute(5, t0, t0.Add(hours(4)), allocs)
	require.NoError(t, err)
	assert.Equal(t, a.Entries(), b.Entries())
}

func TestCancellationDoesNotMutateReturnedTimeline(t *testing.T) {
	allocs := []Allocation{alloc(1, 2, t0, t0.Add(hours(3)))}
	before, err := Compute(5, t0, t0.Add(hours(4)), allocs)
	require.NoError(t, err)
	assert.Equal(t, 3, before.Lowest())

	allocs[0].State = state.Apply(allocs[0].State, state.Cancel)
	after, err := Compute(5, t0, t0.Add(hours(4)), allocs)
	require.NoError(t, err)

	assert.Equal(t, 5, after.Lowest())
	assert.Equal(t, 3, before.Lowest())
	assert.Equal(t, state.Created, before.Entries()[0].Allocations[0].State)
}

func TestLowestNeverExceedsCapacity(t *testing.T) {
	allocs := []Allocation{alloc(1, 1, t0, t0.Add(hours(1)))}
	tl, err := Compute(2, t0.Add(-hours(1)), t0.Add(hours(2)), allocs)
	require.NoError(t, err)
	assert.LessOrEqual(t, tl.Lowest(), tl.Capacity)
}

func TestLeft(t *testing.T) {
	cancelled := alloc(3, 10, t0, t0)
	cancelled.State = state.Cancelled
	allocs := []Allocation{alloc(1, 2, t0, t0.Add(hours(1))), alloc(2, 1, t0.Add(hours(5)), t0.Add(hours(6))), cancelled}
	assert.Equal(t, 2, Left(5, allocs))
}

func TestLeftCapacityAtOperators(t *testing.T) {
	allocs := []Allocation{alloc(1, 2, t0, t0.Add(hours(1)))}
	assert.Equal(t, 5, LeftCapacityAt(5, allocs, t0, StartsBefore, EndsAtOrAfter))
	assert.Equal(t, 3, LeftCapacityAt(5, allocs, t0, StartsAtOrBefore, EndsAfter))
}

func TestTimelineJSONRoundTrip(t *testing.T) {
	tl, err := Compute(5, t0, t0.Add(hours(4)), []Allocation{alloc(7, 2, t0.Add(hours(1)), t0.Add(hours(2)))})
	require.NoError(t, err)

	raw, err := json.Marshal(tl)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"lowest":3`)

	var back Timeline
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, tl.Lowest(), back.Lowest())
	assert.Equal(t, tl.Len(), back.Len())
	assert.True(t, back.From.Equal(tl.From))
	assert.Equal(t, uint64(7), back.Entries()[1].Allocations[0].ID)
}
