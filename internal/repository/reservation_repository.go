package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/resource-reservation/internal/model"
)

// ReservationRepo provides CRUD operations for reservations and their
// managers.  Allocated resources live in reservation_resource and are
// handled by ReservationResourceRepo; GetByID joins them in.  All
// timestamps are stored in UTC.
type ReservationRepo struct {
	db     *sql.DB
	pivots *ReservationResourceRepo
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo {
	return &ReservationRepo{db: db, pivots: NewReservationResourceRepo(db)}
}

// DB exposes the pool so services can open transactions.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

// ReservationFilter narrows List.  When PadalinysID is set only
// reservations borrowing at least one resource of that padalinys match.
type ReservationFilter struct {
	Text        string
	PadalinysID *uint64
	// ManagerID widens a PadalinysID filter to reservations the user
	// manages.  On its own it restricts to those reservations.
	ManagerID *uint64
	Page
}

const reservationColumns = "id, name, description, start_time, end_time, completed_at, created_at, updated_at"

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		res         model.Reservation
		description sql.NullString
		completedAt sql.NullTime
	)
	if err := s.Scan(&res.ID, &res.Name, &description, &res.StartTime, &res.EndTime, &completedAt,
		&res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	res.Description = description.String
	res.StartTime, res.EndTime = res.StartTime.UTC(), res.EndTime.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		res.CompletedAt = &t
	}
	return &res, nil
}

// CreateTx inserts a new reservation within the scope of an existing
// transaction.  An empty ID is replaced with a new UUID.  The caller must
// commit or rollback the transaction.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	res.StartTime, res.EndTime = res.StartTime.UTC(), res.EndTime.UTC()
	const q = `INSERT INTO reservations (id, name, description, start_time, end_time) VALUES (?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, res.ID, res.Name, nullString(res.Description), res.StartTime, res.EndTime)
	return err
}

// AddManagersTx links users to a reservation.  Links that already exist
// are left alone.  Passing an empty slice has no effect.
func (r *ReservationRepo) AddManagersTx(ctx context.Context, tx *sql.Tx, reservationID string, userIDs []uint64) error {
	if len(userIDs) == 0 {
		return nil
	}
	query := `INSERT IGNORE INTO reservation_user (reservation_id, user_id) VALUES `
	args := make([]any, 0, len(userIDs)*2)
	for i, uid := range userIDs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?)"
		args = append(args, reservationID, uid)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetByID returns a live reservation together with its allocations and
// manager ids.  ErrNotFound is returned for missing or deleted rows.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	q := "SELECT " + reservationColumns + " FROM reservations WHERE id = ? AND deleted_at IS NULL"
	res, err := scanReservation(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if res.Resources, err = r.pivots.ListByReservation(ctx, id); err != nil {
		return nil, err
	}
	if res.ManagerIDs, err = r.managerIDs(ctx, id); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *ReservationRepo) managerIDs(ctx context.Context, reservationID string) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_id FROM reservation_user WHERE reservation_id = ? ORDER BY user_id", reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List returns one page of reservations, newest window first, and the
// total number of matches.
func (r *ReservationRepo) List(ctx context.Context, f ReservationFilter) ([]*model.Reservation, int64, error) {
	w := &where{}
	w.add("r.deleted_at IS NULL")
	if f.Text != "" {
		w.add("(LOWER(r.name) LIKE ? OR LOWER(r.description) LIKE ?)", likeArg(f.Text), likeArg(f.Text))
	}
	const borrowsFrom = `EXISTS (SELECT 1 FROM reservation_resource rr
                       JOIN resources res ON res.id = rr.resource_id
                       WHERE rr.reservation_id = r.id AND rr.deleted_at IS NULL AND res.padalinys_id = ?)`
	const managedBy = `EXISTS (SELECT 1 FROM reservation_user ru WHERE ru.reservation_id = r.id AND ru.user_id = ?)`
	switch {
	case f.PadalinysID != nil && f.ManagerID != nil:
		w.add("("+borrowsFrom+" OR "+managedBy+")", *f.PadalinysID, *f.ManagerID)
	case f.PadalinysID != nil:
		w.add(borrowsFrom, *f.PadalinysID)
	case f.ManagerID != nil:
		w.add(managedBy, *f.ManagerID)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations r WHERE "+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := f.Page.limitOffset()
	q := `SELECT r.id, r.name, r.description, r.start_time, r.end_time, r.completed_at, r.created_at, r.updated_at
          FROM reservations r WHERE ` + w.String() + `
          ORDER BY r.start_time DESC, r.id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, append(append([]any{}, w.args...), limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]*model.Reservation, 0, limit)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Complete stamps completed_at.  It returns ErrNotFound for unknown
// reservations and ErrNoChange when the reservation was already completed.
func (r *ReservationRepo) Complete(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE reservations SET completed_at = ? WHERE id = ? AND deleted_at IS NULL AND completed_at IS NULL",
		at.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists int
	err = r.db.QueryRowContext(ctx, "SELECT 1 FROM reservations WHERE id = ? AND deleted_at IS NULL", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrNoChange
}

// SoftDeleteTx hides a reservation and all of its allocations within tx.
func (r *ReservationRepo) SoftDeleteTx(ctx context.Context, tx *sql.Tx, id string, at time.Time) error {
	res, err := tx.ExecContext(ctx, "UPDATE reservations SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", at.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return r.pivots.SoftDeleteByReservationTx(ctx, tx, id, at)
}

// GetForUpdateTx reads a live reservation and locks it so
// concurrent deletes wait for the caller's transaction.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Reservation, error) {
	q := "SELECT " + reservationColumns + " FROM reservations WHERE id = ? AND deleted_at IS NULL FOR UPDATE"
	res, err := scanReservation(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}
