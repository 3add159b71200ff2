package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/resource-reservation/internal/model"
)

// PadalinysRepo reads tenants.  Tenants are managed outside this service.
type PadalinysRepo struct {
	db *sql.DB
}

func NewPadalinysRepo(db *sql.DB) *PadalinysRepo { return &PadalinysRepo{db: db} }

const padalinysColumns = "id, shortname, fullname, alias, created_at, updated_at"

// List returns every padalinys ordered by shortname.
func (r *PadalinysRepo) List(ctx context.Context) ([]*model.Padalinys, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+padalinysColumns+" FROM padaliniai ORDER BY shortname")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Padalinys
	for rows.Next() {
		p := new(model.Padalinys)
		if err := rows.Scan(&p.ID, &p.Shortname, &p.Fullname, &p.Alias, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetByID returns ErrNotFound for unknown ids.
func (r *PadalinysRepo) GetByID(ctx context.Context, id uint64) (*model.Padalinys, error) {
	p := new(model.Padalinys)
	err := r.db.QueryRowContext(ctx, "SELECT "+padalinysColumns+" FROM padaliniai WHERE id = ?", id).
		Scan(&p.ID, &p.Shortname, &p.Fullname, &p.Alias, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
