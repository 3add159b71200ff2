// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

import "time"

// ReservationQueueName is the durable queue carrying ReservationEvent.
const ReservationQueueName = "reservation.events"

// Event types published by the reservation service.
const (
	EventReservationCreated   = "reservation.created"
	EventReservationCompleted = "reservation.completed"
	EventReservationDeleted   = "reservation.deleted"
	EventResourceAdded        = "reservation_resource.added"
	EventResourceTransitioned = "reservation_resource.state_changed"
)

// ReservationEvent is published after a reservation or one of its
// allocations changes.  It carries enough context for activity logging
// without querying the primary database.
type ReservationEvent struct {
	Type                  string    `json:"type"`
	ReservationID         string    `json:"reservation_id"`
	ReservationName       string    `json:"reservation_name,omitempty"`
	ReservationResourceID uint64    `json:"reservation_resource_id,omitempty"`
	ResourceID            string    `json:"resource_id,omitempty"`
	Quantity              int       `json:"quantity,omitempty"`
	FromState             string    `json:"from_state,omitempty"`
	ToState               string    `json:"to_state,omitempty"`
	ActorID               uint64    `json:"actor_id"`
	OccurredAt            time.Time `json:"occurred_at"`
}
