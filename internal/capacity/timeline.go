// Package capacity computes how much of a resource is left over time.
//
// A resource has a fixed total capacity.  Every active allocation of the
// resource subtracts its quantity for the duration of its window.  Nothing
// is stored: the left capacity is always recomputed from the allocation
// rows handed in by the caller.
package capacity

import (
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/iliyamo/resource-reservation/internal/state"
)

// Allocation is the part of a reservation_resource row the engine needs.
type Allocation struct {
	ID            uint64
	ReservationID string
	Quantity      int
	Start         time.Time
	End           time.Time
	State         state.State
}

// Entry is the capacity reading at one instant of a timeline.  Before is
// the capacity just before the instant (allocations starting at At are not
// counted yet, allocations ending at At still are); After is the capacity
// just after it.  Start and End tell whether an allocation boundary falls
// on At, and Allocations lists the allocations owning those boundaries.
type Entry struct {
	At          time.Time
	Before      int
	After       int
	Start       bool
	End         bool
	Allocations []Allocation
}

// Timeline is the ordered list of readings for one resource over
// [From, To].  It always holds an entry for From and one for To.
type Timeline struct {
	Capacity int
	From     time.Time
	To       time.Time
	entries  []Entry
}

// CompareFunc compares an allocation boundary with the instant being read.
type CompareFunc func(boundary, at time.Time) bool

// Boundary comparisons used by the Before and After readings.
var (
	StartsBefore     CompareFunc = func(b, at time.Time) bool { return b.Before(at) }
	StartsAtOrBefore CompareFunc = func(b, at time.Time) bool { return !b.After(at) }
	EndsAtOrAfter    CompareFunc = func(b, at time.Time) bool { return !b.Before(at) }
	EndsAfter        CompareFunc = func(b, at time.Time) bool { return b.After(at) }
)

// LeftCapacityAt returns capacity minus the quantity of every active
// allocation whose start satisfies startOp and whose end satisfies endOp
// relative to at.  The result may be negative when the resource is
// overbooked.
func LeftCapacityAt(capacity int, allocs []Allocation, at time.Time, startOp, endOp CompareFunc) int {
	used := 0
	for _, a := range allocs {
		if !state.IsActive(a.State) {
			continue
		}
		if startOp(a.Start, at) && endOp(a.End, at) {
			used += a.Quantity
		}
	}
	return capacity - used
}

// Left returns capacity minus every active allocation regardless of time.
func Left(capacity int, allocs []Allocation) int {
	used := 0
	for _, a := range allocs {
		if state.IsActive(a.State) {
			used += a.Quantity
		}
	}
	return capacity - used
}

// Compute builds the timeline of a resource with the given capacity over
// [from, to].  Inactive allocations and allocations not intersecting the
// window are ignored.  Allocation boundaries are clamped to the window.
// When several boundaries fall on the same instant their allocations are
// merged into one entry; a start boundary joins the first entry at that
// instant and an end boundary the last one.
func Compute(capacity int, from, to time.Time, allocs []Allocation) (*Timeline, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	from, to = from.UTC(), to.UTC()
	if from.After(to) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	active := make([]Allocation, 0, len(allocs))
	for _, a := range allocs {
		if !state.IsActive(a.State) || a.Start.After(to) || a.End.Before(from) {
			continue
		}
		active = append(active, a)
	}

	head := &Entry{At: from}
	tail := &Entry{At: to}
	inner := make(map[int64]*Entry)
	entryAt := func(t time.Time, first bool) *Entry {
		switch {
		case first && t.Equal(from):
			return head
		case !first && t.Equal(to):
			return tail
		case t.Equal(from):
			return head
		case t.Equal(to):
			return tail
		}
		k := t.UnixNano()
		e, ok := inner[k]
		if !ok {
			e = &Entry{At: t.UTC()}
			inner[k] = e
		}
		return e
	}

	for _, a := range active {
		start := a.Start
		if start.Before(from) {
			start = from
		}
		end := a.End
		if end.After(to) {
			end = to
		}
		s := entryAt(start, true)
		s.Start = true
		s.Allocations = append(s.Allocations, a)
		e := entryAt(end, false)
		e.End = true
		if e != s {
			e.Allocations = append(e.Allocations, a)
		}
	}

	entries := make([]Entry, 0, len(inner)+2)
	entries = append(entries, *head)
	mid := make([]Entry, 0, len(inner))
	for _, e := range inner {
		mid = append(mid, *e)
	}
	slices.SortFunc(mid, func(a, b Entry) int { return a.At.Compare(b.At) })
	entries = append(entries, mid...)
	entries = append(entries, *tail)

	for i := range entries {
		at := entries[i].At
		entries[i].Before = LeftCapacityAt(capacity, active, at, StartsBefore, EndsAtOrAfter)
		entries[i].After = LeftCapacityAt(capacity, active, at, StartsAtOrBefore, EndsAfter)
	}

	return &Timeline{Capacity: capacity, From: from, To: to, entries: entries}, nil
}

// All yields the entries in ascending order.  The sequence can be ranged
// over any number of times.
func (t *Timeline) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range t.entries {
			if !yield(cloneEntry(e)) {
				return
			}
		}
	}
}

// Entries returns a copy of the entries.
func (t *Timeline) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

// Len returns the number of entries.
func (t *Timeline) Len() int { return len(t.entries) }

// Lowest returns the smallest After reading, or the capacity when that is
// lower.  A negative result means the resource is overbooked somewhere in
// the window; it is not clamped.
func (t *Timeline) Lowest() int {
	lowest := t.Capacity
	for _, e := range t.entries {
		if e.After < lowest {
			lowest = e.After
		}
	}
	return lowest
}

func cloneEntry(e Entry) Entry {
	e.Allocations = slices.Clone(e.Allocations)
	return e
}

// JSON form used by the admin UI and the timeline cache.  Instants are
// millisecond epochs.

type allocationJSON struct {
	ID            uint64 `json:"id"`
	ReservationID string `json:"reservation_id"`
	Quantity      int    `json:"quantity"`
	StartTime     int64  `json:"start_time"`
	EndTime       int64  `json:"end_time"`
	State         string `json:"state"`
}

type entryJSON struct {
	At           int64            `json:"at"`
	Before       int              `json:"before"`
	After        int              `json:"after"`
	Start        bool             `json:"start,omitempty"`
	End          bool             `json:"end,omitempty"`
	Reservations []allocationJSON `json:"reservations,omitempty"`
}

type timelineJSON struct {
	Capacity int         `json:"capacity"`
	From     int64       `json:"from"`
	To       int64       `json:"to"`
	Lowest   int         `json:"lowest"`
	Entries  []entryJSON `json:"entries"`
}

func (t *Timeline) MarshalJSON() ([]byte, error) {
	out := timelineJSON{
		Capacity: t.Capacity,
		From:     Millis(t.From),
		To:       Millis(t.To),
		Lowest:   t.Lowest(),
		Entries:  make([]entryJSON, 0, len(t.entries)),
	}
	for _, e := range t.entries {
		ej := entryJSON{At: Millis(e.At), Before: e.Before, After: e.After, Start: e.Start, End: e.End}
		for _, a := range e.Allocations {
			ej.Reservations = append(ej.Reservations, allocationJSON{
				ID:            a.ID,
				ReservationID: a.ReservationID,
				Quantity:      a.Quantity,
				StartTime:     Millis(a.Start),
				EndTime:       Millis(a.End),
				State:         string(a.State),
			})
		}
		out.Entries = append(out.Entries, ej)
	}
	return json.Marshal(out)
}

func (t *Timeline) UnmarshalJSON(b []byte) error {
	var in timelineJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	t.Capacity = in.Capacity
	t.From = FromMillis(in.From)
	t.To = FromMillis(in.To)
	t.entries = make([]Entry, 0, len(in.Entries))
	for _, ej := range in.Entries {
		e := Entry{At: FromMillis(ej.At), Before: ej.Before, After: ej.After, Start: ej.Start, End: ej.End}
		for _, a := range ej.Reservations {
			e.Allocations = append(e.Allocations, Allocation{
				ID:            a.ID,
				ReservationID: a.ReservationID,
				Quantity:      a.Quantity,
				Start:         FromMillis(a.StartTime),
				End:           FromMillis(a.EndTime),
				State:         state.State(a.State),
			})
		}
		t.entries = append(t.entries, e)
	}
	return nil
}
