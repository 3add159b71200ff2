package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/resource-reservation/internal/model"
	"github.com/iliyamo/resource-reservation/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id, email, password_hash, role, padalinys_id, is_active, created_at, updated_at"

func scanUser(s rowScanner) (model.User, error) {
	var (
		u   model.User
		pad sql.NullInt64
	)
	err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &pad, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if pad.Valid {
		id := uint64(pad.Int64)
		u.PadalinysID = &id
	}
	return u, nil
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// Create hashes the password, inserts the user and returns its ID.
// Managers must belong to a padalinys; admins may not.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, padalinysID *uint64, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	var pad sql.NullInt64
	if padalinysID != nil && role != model.RoleAdmin {
		pad = sql.NullInt64{Int64: int64(*padalinysID), Valid: true}
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, padalinys_id) VALUES (?,?,?,?)",
		email, hash, role, pad)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// CountExisting returns how many of ids name existing active users.  The
// reservation form uses it to validate manager ids.
func (r *UserRepo) CountExisting(ctx context.Context, ids []uint64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE is_active = 1 AND id IN ("+placeholders(len(ids))+")", args...).Scan(&n)
	return n, err
}
