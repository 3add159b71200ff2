package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/resource-reservation/internal/capacity"
	"github.com/iliyamo/resource-reservation/internal/model"
	"github.com/iliyamo/resource-reservation/internal/state"
)

// ReservationResourceRepo manages the reservation_resource pivot: which
// reservation borrows how many units of which resource, when, and in what
// state.  The capacity engine reads its active rows.
type ReservationResourceRepo struct {
	db *sql.DB
}

func NewReservationResourceRepo(db *sql.DB) *ReservationResourceRepo {
	return &ReservationResourceRepo{db: db}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// CreateBulkTx inserts all rows in one statement within tx.  An empty
// slice is a no-op.
func (r *ReservationResourceRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, rows []*model.ReservationResource) error {
	if len(rows) == 0 {
		return nil
	}
	query := `INSERT INTO reservation_resource (reservation_id, resource_id, quantity, start_time, end_time, state) VALUES `
	args := make([]any, 0, len(rows)*6)
	for i, rr := range rows {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?)"
		args = append(args, rr.ReservationID, rr.ResourceID, rr.Quantity, rr.StartTime.UTC(), rr.EndTime.UTC(), string(rr.State))
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func activeStateArgs() []any {
	active := state.ActiveStates()
	args := make([]any, 0, len(active))
	for _, s := range active {
		args = append(args, string(s))
	}
	return args
}

const allocationColumns = "id, reservation_id, quantity, start_time, end_time, state"

func queryAllocations(ctx context.Context, q querier, query string, args ...any) ([]capacity.Allocation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []capacity.Allocation
	for rows.Next() {
		var (
			a  capacity.Allocation
			st string
		)
		if err := rows.Scan(&a.ID, &a.ReservationID, &a.Quantity, &a.Start, &a.End, &st); err != nil {
			return nil, err
		}
		a.Start, a.End, a.State = a.Start.UTC(), a.End.UTC(), state.State(st)
		out = append(out, a)
	}
	return out, rows.Err()
}

func activeInWindow(ctx context.Context, q querier, resourceID string, from, to time.Time) ([]capacity.Allocation, error) {
	args := append([]any{resourceID}, activeStateArgs()...)
	args = append(args, to.UTC(), from.UTC())
	query := `SELECT ` + allocationColumns + ` FROM reservation_resource
	          WHERE resource_id = ? AND deleted_at IS NULL AND state IN (` + placeholders(len(state.ActiveStates())) + `)
	            AND start_time <= ? AND end_time >= ?
	          ORDER BY start_time, id`
	return queryAllocations(ctx, q, query, args...)
}

// ActiveInWindow returns the active allocations of a resource that
// intersect [from, to].
func (r *ReservationResourceRepo) ActiveInWindow(ctx context.Context, resourceID string, from, to time.Time) ([]capacity.Allocation, error) {
	return activeInWindow(ctx, r.db, resourceID, from, to)
}

// ActiveInWindowTx is ActiveInWindow inside tx.  The caller is expected
// to hold the resource row lock already.
func (r *ReservationResourceRepo) ActiveInWindowTx(ctx context.Context, tx *sql.Tx, resourceID string, from, to time.Time) ([]capacity.Allocation, error) {
	return activeInWindow(ctx, tx, resourceID, from, to)
}

// ActiveByResource returns every active allocation of a resource
// regardless of time.
func (r *ReservationResourceRepo) ActiveByResource(ctx context.Context, resourceID string) ([]capacity.Allocation, error) {
	args := append([]any{resourceID}, activeStateArgs()...)
	query := `SELECT ` + allocationColumns + ` FROM reservation_resource
	          WHERE resource_id = ? AND deleted_at IS NULL AND state IN (` + placeholders(len(state.ActiveStates())) + `)
	          ORDER BY start_time, id`
	return queryAllocations(ctx, r.db, query, args...)
}

const pivotColumns = `rr.id, rr.reservation_id, rr.resource_id, res.name, res.padalinys_id, rr.quantity,
	rr.start_time, rr.end_time, rr.state, rr.created_at, rr.updated_at`

func scanPivot(s rowScanner) (*model.ReservationResource, error) {
	var (
		rr model.ReservationResource
		st string
	)
	if err := s.Scan(&rr.ID, &rr.ReservationID, &rr.ResourceID, &rr.ResourceName, &rr.PadalinysID, &rr.Quantity,
		&rr.StartTime, &rr.EndTime, &st, &rr.CreatedAt, &rr.UpdatedAt); err != nil {
		return nil, err
	}
	rr.StartTime, rr.EndTime, rr.State = rr.StartTime.UTC(), rr.EndTime.UTC(), state.State(st)
	return &rr, nil
}

// ListByReservation returns the live allocations of one reservation with
// the resource names joined in.
func (r *ReservationResourceRepo) ListByReservation(ctx context.Context, reservationID string) ([]model.ReservationResource, error) {
	query := `SELECT ` + pivotColumns + `
	          FROM reservation_resource rr
	          JOIN resources res ON res.id = rr.resource_id
	          WHERE rr.reservation_id = ? AND rr.deleted_at IS NULL
	          ORDER BY res.name, rr.id`
	rows, err := r.db.QueryContext(ctx, query, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ReservationResource{}
	for rows.Next() {
		rr, err := scanPivot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rr)
	}
	return out, rows.Err()
}

// GetByID fetches one live allocation.
func (r *ReservationResourceRepo) GetByID(ctx context.Context, id uint64) (*model.ReservationResource, error) {
	query := `SELECT ` + pivotColumns + `
	          FROM reservation_resource rr
	          JOIN resources res ON res.id = rr.resource_id
	          WHERE rr.id = ? AND rr.deleted_at IS NULL`
	rr, err := scanPivot(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rr, err
}

// GetByIDForUpdateTx fetches one live allocation and locks its row (only
// the pivot row, not the joined resource) until tx ends.
func (r *ReservationResourceRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.ReservationResource, error) {
	query := `SELECT ` + pivotColumns + `
	          FROM reservation_resource rr
	          JOIN resources res ON res.id = rr.resource_id
	          WHERE rr.id = ? AND rr.deleted_at IS NULL
	          FOR UPDATE OF rr`
	rr, err := scanPivot(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rr, err
}

// UpdateStateTx persists a new state for one allocation.
func (r *ReservationResourceRepo) UpdateStateTx(ctx context.Context, tx *sql.Tx, id uint64, s state.State) error {
	res, err := tx.ExecContext(ctx, "UPDATE reservation_resource SET state = ? WHERE id = ? AND deleted_at IS NULL", string(s), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteByReservationTx hides every allocation of a reservation.
func (r *ReservationResourceRepo) SoftDeleteByReservationTx(ctx context.Context, tx *sql.Tx, reservationID string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE reservation_resource SET deleted_at = ? WHERE reservation_id = ? AND deleted_at IS NULL",
		at.UTC(), reservationID)
	return err
}
