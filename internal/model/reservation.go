package model

import (
	"time"

	"github.com/iliyamo/resource-reservation/internal/capacity"
	"github.com/iliyamo/resource-reservation/internal/state"
)

// Reservation groups the resources borrowed for one event.  The window
// [StartTime, EndTime] is copied onto every allocation row when the
// resource is attached.
//
// Fields:
//  ID          – UUID primary key.
//  Name        – short title shown in lists.
//  Description – optional free text.
//  StartTime   – start of the window (UTC).
//  EndTime     – end of the window (UTC).
//  CompletedAt – set once every resource was returned (nullable).
//  Resources   – allocations, loaded by GetByID only.
//  ManagerIDs  – users managing the reservation, loaded by GetByID only.
type Reservation struct {
	ID          string     // reservations.id
	Name        string     // reservations.name
	Description string     // reservations.description
	StartTime   time.Time  // reservations.start_time
	EndTime     time.Time  // reservations.end_time
	CompletedAt *time.Time // reservations.completed_at (nullable)
	CreatedAt   time.Time  // reservations.created_at
	UpdatedAt   time.Time  // reservations.updated_at
	Resources   []ReservationResource
	ManagerIDs  []uint64
}

// ReservationResource is one row of the reservation_resource pivot: a
// quantity of a resource borrowed by a reservation together with the
// lifecycle state of that loan.
type ReservationResource struct {
	ID            uint64      // reservation_resource.id
	ReservationID string      // reservation_resource.reservation_id
	ResourceID    string      // reservation_resource.resource_id
	ResourceName  string      // resources.name (joined, read only)
	PadalinysID   uint64      // resources.padalinys_id (joined, read only)
	Quantity      int         // reservation_resource.quantity
	StartTime     time.Time   // reservation_resource.start_time
	EndTime       time.Time   // reservation_resource.end_time
	State         state.State // reservation_resource.state
	CreatedAt     time.Time   // reservation_resource.created_at
	UpdatedAt     time.Time   // reservation_resource.updated_at
}

// Allocation converts the row to the input of the capacity engine.
func (rr ReservationResource) Allocation() capacity.Allocation {
	return capacity.Allocation{
		ID:            rr.ID,
		ReservationID: rr.ReservationID,
		Quantity:      rr.Quantity,
		Start:         rr.StartTime,
		End:           rr.EndTime,
		State:         rr.State,
	}
}
