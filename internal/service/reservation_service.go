package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/resource-reservation/internal/capacity"
	"github.com/iliyamo/resource-reservation/internal/model"
	"github.com/iliyamo/resource-reservation/internal/queue"
	"github.com/iliyamo/resource-reservation/internal/repository"
	"github.com/iliyamo/resource-reservation/internal/state"
)

// ErrUnknownManager is returned when a reservation names manager ids that
// do not belong to active users.
var ErrUnknownManager = errors.New("unknown manager")

// Actor is the authenticated user performing an operation.  A nil
// PadalinysID means the actor is an admin and sees every tenant.
type Actor struct {
	UserID      uint64
	PadalinysID *uint64
}

// Owns reports whether the actor may act on rows of padalinysID.
func (a Actor) Owns(padalinysID uint64) bool {
	return a.PadalinysID == nil || *a.PadalinysID == padalinysID
}

type reservationStore interface {
	DB() *sql.DB
	CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error
	AddManagersTx(ctx context.Context, tx *sql.Tx, reservationID string, userIDs []uint64) error
	GetByID(ctx context.Context, id string) (*model.Reservation, error)
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Reservation, error)
	List(ctx context.Context, f repository.ReservationFilter) ([]*model.Reservation, int64, error)
	Complete(ctx context.Context, id string, at time.Time) error
	SoftDeleteTx(ctx context.Context, tx *sql.Tx, id string, at time.Time) error
}

type pivotStore interface {
	GetByID(ctx context.Context, id uint64) (*model.ReservationResource, error)
	GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.ReservationResource, error)
	UpdateStateTx(ctx context.Context, tx *sql.Tx, id uint64, s state.State) error
}

type userCounter interface {
	CountExisting(ctx context.Context, ids []uint64) (int, error)
}

// CreateReservationInput is the validated body of a reservation form.
type CreateReservationInput struct {
	Name        string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	Resources   []ResourceRequest
	ManagerIDs  []uint64
}

// Transition describes the outcome of applying an event to an allocation.
type Transition struct {
	Allocation *model.ReservationResource
	From       state.State
	To         state.State
	Changed    bool
}

// ReservationService runs the reservation workflows.  Writes happen in one
// transaction each; cache invalidation and event publishing follow the
// commit and never fail the operation.
type ReservationService struct {
	reservations reservationStore
	pivots       pivotStore
	users        userCounter
	allocator    *Allocator
	cache        *TimelineCache
	publisher    EventPublisher
	now          func() time.Time
}

func NewReservationService(reservations reservationStore, pivots pivotStore, users userCounter,
	allocator *Allocator, cache *TimelineCache, publisher EventPublisher) *ReservationService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &ReservationService{
		reservations: reservations,
		pivots:       pivots,
		users:        users,
		allocator:    allocator,
		cache:        cache,
		publisher:    publisher,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *ReservationService) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.reservations.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func (s *ReservationService) event(typ string, res *model.Reservation, actor Actor) queue.ReservationEvent {
	return queue.ReservationEvent{
		Type:            typ,
		ReservationID:   res.ID,
		ReservationName: res.Name,
		ActorID:         actor.UserID,
		OccurredAt:      s.now(),
	}
}

func resourceIDs(rows []*model.ReservationResource) []string {
	ids := make([]string, 0, len(rows))
	for _, rr := range rows {
		if !slices.Contains(ids, rr.ResourceID) {
			ids = append(ids, rr.ResourceID)
		}
	}
	return ids
}

func ownsAll(actor Actor, rows []*model.ReservationResource) error {
	for _, rr := range rows {
		if !actor.Owns(rr.PadalinysID) {
			return fmt.Errorf("%w: resource %s belongs to another padalinys", repository.ErrForbidden, rr.ResourceID)
		}
	}
	return nil
}

// Create stores a reservation, its managers and its allocations.  The
// actor always becomes one of the managers.
func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput, actor Actor) (*model.Reservation, error) {
	if in.EndTime.Before(in.StartTime) {
		return nil, fmt.Errorf("%w: reservation ends before it starts", capacity.ErrInvalidRange)
	}
	managers := []uint64{actor.UserID}
	for _, id := range in.ManagerIDs {
		if !slices.Contains(managers, id) {
			managers = append(managers, id)
		}
	}
	if len(managers) > 1 {
		n, err := s.users.CountExisting(ctx, managers[1:])
		if err != nil {
			return nil, err
		}
		if n != len(managers)-1 {
			return nil, ErrUnknownManager
		}
	}

	res := &model.Reservation{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		StartTime:   in.StartTime.UTC(),
		EndTime:     in.EndTime.UTC(),
	}
	var rows []*model.ReservationResource
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.reservations.CreateTx(ctx, tx, res); err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		if err := s.reservations.AddManagersTx(ctx, tx, res.ID, managers); err != nil {
			return fmt.Errorf("insert managers: %w", err)
		}
		var err error
		if rows, err = s.allocator.Allocate(ctx, tx, res, in.Resources); err != nil {
			return err
		}
		return ownsAll(actor, rows)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, resourceIDs(rows)...)
	log.Ctx(ctx).Info().Str("reservation_id", res.ID).Int("resources", len(rows)).Msg("reservation created")
	publishDetached(ctx, s.publisher, s.event(queue.EventReservationCreated, res, actor))
	return s.reservations.GetByID(ctx, res.ID)
}

// AddResource attaches one more resource to an existing reservation.
func (s *ReservationService) AddResource(ctx context.Context, reservationID string, req ResourceRequest, actor Actor) (*model.ReservationResource, error) {
	var (
		res  *model.Reservation
		rows []*model.ReservationResource
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if res, err = s.reservations.GetForUpdateTx(ctx, tx, reservationID); err != nil {
			return err
		}
		if res.CompletedAt != nil {
			return fmt.Errorf("%w: reservation is completed", repository.ErrConflict)
		}
		if rows, err = s.allocator.Allocate(ctx, tx, res, []ResourceRequest{req}); err != nil {
			return err
		}
		return ownsAll(actor, rows)
	})
	if err != nil {
		return nil, err
	}

	rr := rows[0]
	s.cache.Invalidate(ctx, rr.ResourceID)
	ev := s.event(queue.EventResourceAdded, res, actor)
	ev.ResourceID, ev.Quantity, ev.ToState = rr.ResourceID, rr.Quantity, string(rr.State)
	publishDetached(ctx, s.publisher, ev)
	return rr, nil
}

// Transition applies event to one allocation.  Events the current state
// does not handle leave the row untouched and report Changed false.
func (s *ReservationService) Transition(ctx context.Context, pivotID uint64, event state.Event, actor Actor) (*Transition, error) {
	var out Transition
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rr, err := s.pivots.GetByIDForUpdateTx(ctx, tx, pivotID)
		if err != nil {
			return err
		}
		if !actor.Owns(rr.PadalinysID) {
			return repository.ErrForbidden
		}
		out.From = rr.State
		out.To = state.Apply(rr.State, event)
		out.Changed = out.To != out.From
		if out.Changed {
			if err := s.pivots.UpdateStateTx(ctx, tx, rr.ID, out.To); err != nil {
				return err
			}
			rr.State = out.To
		}
		out.Allocation = rr
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !out.Changed {
		return &out, nil
	}

	rr := out.Allocation
	if state.IsActive(out.From) != state.IsActive(out.To) {
		s.cache.Invalidate(ctx, rr.ResourceID)
	}
	log.Ctx(ctx).Info().Uint64("reservation_resource_id", rr.ID).Str("event", string(event)).
		Str("from", string(out.From)).Str("to", string(out.To)).Msg("allocation state changed")
	publishDetached(ctx, s.publisher, queue.ReservationEvent{
		Type:                  queue.EventResourceTransitioned,
		ReservationID:         rr.ReservationID,
		ReservationResourceID: rr.ID,
		ResourceID:            rr.ResourceID,
		Quantity:              rr.Quantity,
		FromState:             string(out.From),
		ToState:               string(out.To),
		ActorID:               actor.UserID,
		OccurredAt:            s.now(),
	})
	return &out, nil
}

// authorize lets admins, managers of the reservation and managers of a
// padalinys owning one of its resources through.
func authorize(res *model.Reservation, actor Actor) error {
	if actor.PadalinysID == nil || slices.Contains(res.ManagerIDs, actor.UserID) {
		return nil
	}
	for _, rr := range res.Resources {
		if actor.Owns(rr.PadalinysID) {
			return nil
		}
	}
	return repository.ErrForbidden
}

// Get returns a reservation with its allocations and managers.
func (s *ReservationService) Get(ctx context.Context, id string, actor Actor) (*model.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(res, actor); err != nil {
		return nil, err
	}
	return res, nil
}

// GetAllocation returns one allocation of a padalinys the actor owns.
func (s *ReservationService) GetAllocation(ctx context.Context, id uint64, actor Actor) (*model.ReservationResource, error) {
	rr, err := s.pivots.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(rr.PadalinysID) {
		return nil, repository.ErrForbidden
	}
	return rr, nil
}

// List returns one page of reservations.  Non-admins only see
// reservations they manage or that borrow resources of their own
// padalinys, the same rule Get applies.
func (s *ReservationService) List(ctx context.Context, f repository.ReservationFilter, actor Actor) ([]*model.Reservation, int64, error) {
	if actor.PadalinysID != nil {
		uid := actor.UserID
		f.PadalinysID = actor.PadalinysID
		f.ManagerID = &uid
	}
	return s.reservations.List(ctx, f)
}

// Complete marks a reservation as completed.
func (s *ReservationService) Complete(ctx context.Context, id string, actor Actor) (*model.Reservation, error) {
	res, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	at := s.now()
	if err := s.reservations.Complete(ctx, id, at); err != nil {
		return nil, err
	}
	res.CompletedAt = &at
	publishDetached(ctx, s.publisher, s.event(queue.EventReservationCompleted, res, actor))
	return res, nil
}

// Delete soft-deletes a reservation and every allocation it holds.
func (s *ReservationService) Delete(ctx context.Context, id string, actor Actor) error {
	res, err := s.Get(ctx, id, actor)
	if err != nil {
		return err
	}
	if err := s.inTx(ctx, func(tx *sql.Tx) error {
		return s.reservations.SoftDeleteTx(ctx, tx, id, s.now())
	}); err != nil {
		return err
	}

	ids := make([]string, 0, len(res.Resources))
	for _, rr := range res.Resources {
		if !slices.Contains(ids, rr.ResourceID) {
			ids = append(ids, rr.ResourceID)
		}
	}
	s.cache.Invalidate(ctx, ids...)
	log.Ctx(ctx).Info().Str("reservation_id", id).Msg("reservation deleted")
	publishDetached(ctx, s.publisher, s.event(queue.EventReservationDeleted, res, actor))
	return nil
}
