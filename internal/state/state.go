// Package state defines the lifecycle of a resource allocated to a
// reservation.  Each allocation row carries one State and moves between
// states only through the four events accepted by Apply.  Events a state
// does not handle leave it unchanged, which makes the terminal states
// (cancelled, rejected, returned) absorbing.
package state

import (
	"errors"
	"fmt"
)

// State is the persisted value of reservation_resource.state.
type State string

const (
	Created   State = "created"
	Updated   State = "updated"
	Reserved  State = "reserved"
	Lent      State = "lent"
	Returned  State = "returned"
	Rejected  State = "rejected"
	Cancelled State = "cancelled"
)

// Event names an action requested on an allocation.
type Event string

const (
	Progress Event = "progress"
	Approve  Event = "approve"
	Reject   Event = "reject"
	Cancel   Event = "cancel"
)

var (
	ErrUnknownState = errors.New("unknown state")
	ErrUnknownEvent = errors.New("unknown event")
)

// transitions lists the handled (state, event) pairs.  Anything missing
// is a no-op.
var transitions = map[State]map[Event]State{
	Created: {
		Progress: Reserved,
		Approve:  Reserved,
		Reject:   Rejected,
		Cancel:   Cancelled,
	},
	Updated: {
		Progress: Reserved,
		Approve:  Reserved,
		Reject:   Rejected,
		Cancel:   Cancelled,
	},
	Reserved: {
		Progress: Lent,
		Reject:   Rejected,
		Cancel:   Cancelled,
	},
	Lent: {
		Progress: Returned,
	},
	Returned:  {},
	Rejected:  {},
	Cancelled: {},
}

var colors = map[State]string{
	Created:   "gray",
	Updated:   "gray",
	Reserved:  "blue",
	Lent:      "orange",
	Returned:  "green",
	Rejected:  "red",
	Cancelled: "red",
}

// Initial is the state every new allocation starts in.
func Initial() State { return Created }

// Apply returns the state reached from s after e.  Unknown states and
// unhandled events return s unchanged.
func Apply(s State, e Event) State {
	if next, ok := transitions[s][e]; ok {
		return next
	}
	return s
}

// IsActive reports whether an allocation in state s consumes capacity.
func IsActive(s State) bool {
	switch s {
	case Created, Updated, Reserved, Lent:
		return true
	}
	return false
}

// ActiveStates returns the states counted by IsActive, in a fixed order
// suitable for building SQL IN clauses.
func ActiveStates() []State {
	return []State{Created, Updated, Reserved, Lent}
}

// Terminal reports whether no event can move s any further.
func Terminal(s State) bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s State) String() string { return string(s) }

// Color is the badge colour used by the admin UI for s.
func Color(s State) string {
	if c, ok := colors[s]; ok {
		return c
	}
	return "gray"
}

// Parse converts a stored or user-supplied value to a State.
func Parse(v string) (State, error) {
	s := State(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, v)
	}
	return s, nil
}

// ParseEvent converts a path segment such as "approve" to an Event.
func ParseEvent(v string) (Event, error) {
	switch e := Event(v); e {
	case Progress, Approve, Reject, Cancel:
		return e, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEvent, v)
}
