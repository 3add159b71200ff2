package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/resource-reservation/internal/model"
	"github.com/iliyamo/resource-reservation/internal/state"
)

// ResourceRepo encapsulates queries on the resources table.  Soft-deleted
// rows are invisible to every read.
type ResourceRepo struct {
	db *sql.DB
}

func NewResourceRepo(db *sql.DB) *ResourceRepo { return &ResourceRepo{db: db} }

// DB exposes the pool so services can open transactions spanning several
// repositories.
func (r *ResourceRepo) DB() *sql.DB { return r.db }

// ResourceFilter narrows List.  A nil PadalinysID lists every tenant.
type ResourceFilter struct {
	Text           string
	PadalinysID    *uint64
	ReservableOnly bool
	Page
}

const resourceColumns = "id, name, description, location, capacity, padalinys_id, is_reservable, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(s rowScanner) (*model.Resource, error) {
	var (
		res         model.Resource
		description sql.NullString
		location    sql.NullString
	)
	if err := s.Scan(&res.ID, &res.Name, &description, &location, &res.Capacity,
		&res.PadalinysID, &res.IsReservable, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	res.Description = description.String
	res.Location = location.String
	return &res, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts a resource.  An empty ID is replaced with a new UUID.
// Timestamps are read back so callers receive a fully populated record.
func (r *ResourceRepo) Create(ctx context.Context, res *model.Resource) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	const q = `INSERT INTO resources (id, name, description, location, capacity, padalinys_id, is_reservable)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, res.ID, res.Name, nullString(res.Description), nullString(res.Location),
		res.Capacity, res.PadalinysID, res.IsReservable); err != nil {
		return err
	}
	created, err := r.GetByID(ctx, res.ID)
	if err != nil {
		return err
	}
	*res = *created
	return nil
}

// GetByID fetches a live resource.  It returns ErrNotFound when the row
// is missing or soft-deleted.
func (r *ResourceRepo) GetByID(ctx context.Context, id string) (*model.Resource, error) {
	q := "SELECT " + resourceColumns + " FROM resources WHERE id = ? AND deleted_at IS NULL"
	res, err := scanResource(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// GetForUpdateTx reads a resource and takes a row lock on it for the rest
// of tx.  Allocations of the same resource serialise on this lock.
func (r *ResourceRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Resource, error) {
	q := "SELECT " + resourceColumns + " FROM resources WHERE id = ? AND deleted_at IS NULL FOR UPDATE"
	res, err := scanResource(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// List returns one page of resources ordered by name and the total number
// of matching rows.
func (r *ResourceRepo) List(ctx context.Context, f ResourceFilter) ([]*model.Resource, int64, error) {
	w := &where{}
	w.add("deleted_at IS NULL")
	if f.Text != "" {
		w.add("(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)", likeArg(f.Text), likeArg(f.Text))
	}
	if f.PadalinysID != nil {
		w.add("padalinys_id = ?", *f.PadalinysID)
	}
	if f.ReservableOnly {
		w.add("is_reservable = 1")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM resources WHERE "+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := f.Page.limitOffset()
	q := "SELECT " + resourceColumns + " FROM resources WHERE " + w.String() + " ORDER BY name, id LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, q, append(append([]any{}, w.args...), limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]*model.Resource, 0, limit)
	for rows.Next() {
		res, err := scanResource(rows)
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

// ListReservable returns every reservable resource, optionally restricted
// to one padalinys.  It feeds the reservation form, which shows all of
// them at once.
func (r *ResourceRepo) ListReservable(ctx context.Context, padalinysID *uint64) ([]*model.Resource, error) {
	w := &where{}
	w.add("deleted_at IS NULL")
	w.add("is_reservable = 1")
	if padalinysID != nil {
		w.add("padalinys_id = ?", *padalinysID)
	}
	rows, err := r.db.QueryContext(ctx, "SELECT "+resourceColumns+" FROM resources WHERE "+w.String()+" ORDER BY name, id", w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Update writes the editable fields.  The connection uses clientFoundRows
// so an unchanged row still counts as affected; zero rows means the
// resource does not exist.
func (r *ResourceRepo) Update(ctx context.Context, res *model.Resource) error {
	const q = `UPDATE resources
	           SET name = ?, description = ?, location = ?, capacity = ?, padalinys_id = ?, is_reservable = ?
	           WHERE id = ? AND deleted_at IS NULL`
	out, err := r.db.ExecContext(ctx, q, res.Name, nullString(res.Description), nullString(res.Location),
		res.Capacity, res.PadalinysID, res.IsReservable, res.ID)
	if err != nil {
		return err
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete hides a resource.  Resources that still have active
// allocations cannot be deleted and yield ErrConflict.  The resource row is
// locked first so no allocation can commit between the check and the
// update.
func (r *ResourceRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := r.GetForUpdateTx(ctx, tx, id); err != nil {
		return err
	}

	active := state.ActiveStates()
	args := []any{id}
	for _, s := range active {
		args = append(args, string(s))
	}
	q := `SELECT COUNT(*) FROM reservation_resource
	      WHERE resource_id = ? AND deleted_at IS NULL AND state IN (` + placeholders(len(active)) + `)`
	var n int
	if err := tx.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrConflict
	}

	out, err := tx.ExecContext(ctx, "UPDATE resources SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", at.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
