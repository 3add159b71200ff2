package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/resource-reservation/internal/model"
)

var (
	resourceCols = []string{"id", "name", "description", "location", "capacity", "padalinys_id", "is_reservable", "created_at", "updated_at"}
	stamp        = time.Date(2023, 6, 13, 19, 23, 44, 0, time.UTC)
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func resourceRow(id, name string, capacity int, pad uint64) *sqlmock.Rows {
	return sqlmock.NewRows(resourceCols).AddRow(id, name, nil, "Vilnius", capacity, pad, true, stamp, stamp)
}

func TestResourceGetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT (.+) FROM resources WHERE id = \? AND deleted_at IS NULL`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(resourceCols))

	_, err := NewResourceRepo(db).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResourceCreate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO resources`).
		WithArgs(sqlmock.AnyArg(), "Projector", nil, "Vilnius", 3, uint64(2), true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT (.+) FROM resources WHERE id = \?`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(resourceRow("generated", "Projector", 3, 2))

	res := &model.Resource{Name: "Projector", Location: "Vilnius", Capacity: 3, PadalinysID: 2, IsReservable: true}
	require.NoError(t, NewResourceRepo(db).Create(context.Background(), res))
	assert.Equal(t, "generated", res.ID)
	assert.Equal(t, stamp, res.CreatedAt)
	assert.Empty(t, res.Description)
}

func TestResourceGetForUpdateTx(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM resources WHERE id = \? AND deleted_at IS NULL FOR UPDATE`).
		WithArgs("r1").
		WillReturnRows(resourceRow("r1", "Tent", 5, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	res, err := NewResourceRepo(db).GetForUpdateTx(context.Background(), tx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Capacity)
	require.NoError(t, tx.Commit())
}

func TestResourceListFilters(t *testing.T) {
	db, mock := newMock(t)
	pad := uint64(7)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM resources WHERE deleted_at IS NULL AND \(LOWER\(name\) LIKE \? OR LOWER\(description\) LIKE \?\) AND padalinys_id = \?`).
		WithArgs("%tent%", "%tent%", pad).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery(`ORDER BY name, id LIMIT \? OFFSET \?`).
		WithArgs("%tent%", "%tent%", pad, 20, 20).
		WillReturnRows(resourceRow("r1", "Tent", 5, 7))

	out, total, err := NewResourceRepo(db).List(context.Background(), ResourceFilter{Text: " Tent ", PadalinysID: &pad, Page: Page{Page: 2}})
	require.NoError(t, err)
	assert.EqualValues(t, 21, total)
	require.Len(t, out, 1)
	assert.Equal(t, "Tent", out[0].Name)
}

func TestResourceListReservable(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`WHERE deleted_at IS NULL AND is_reservable = 1 ORDER BY name, id`).
		WillReturnRows(resourceRow("r1", "Tent", 5, 7).AddRow("r2", "Table", nil, nil, 10, 8, true, stamp, stamp))

	out, err := NewResourceRepo(db).ListReservable(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestResourceUpdateMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`UPDATE resources`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewResourceRepo(db).Update(context.Background(), &model.Resource{ID: "nope", Name: "x", Capacity: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResourceSoftDeleteRefusesActiveAllocations(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM resources WHERE id = \? AND deleted_at IS NULL FOR UPDATE`).
		WithArgs("r1").
		WillReturnRows(resourceRow("r1", "Tent", 5, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM reservation_resource WHERE resource_id = \? AND deleted_at IS NULL AND state IN \(\?,\?,\?,\?\)`).
		WithArgs("r1", "created", "updated", "reserved", "lent").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := NewResourceRepo(db).SoftDelete(context.Background(), "r1", stamp)
	assert.ErrorIs(t, err, ErrConflict)
}

// The row lock must be taken before counting so a concurrent allocation
// waits for the delete instead of slipping in after the count.
func TestResourceSoftDeleteLocksBeforeCounting(t *testing.T) {
	db, mock := newMock(t)
	mock.MatchExpectationsInOrder(true)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM resources WHERE id = \? AND deleted_at IS NULL FOR UPDATE`).
		WithArgs("r1").
		WillReturnRows(resourceRow("r1", "Tent", 5, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM reservation_resource`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`UPDATE resources SET deleted_at = \? WHERE id = \? AND deleted_at IS NULL`).
		WithArgs(stamp, "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewResourceRepo(db).SoftDelete(context.Background(), "r1", stamp))
}

func TestResourceSoftDeleteMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("gone").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := NewResourceRepo(db).SoftDelete(context.Background(), "gone", stamp)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPadalinysRepo(t *testing.T) {
	db, mock := newMock(t)
	cols := []string{"id", "shortname", "fullname", "alias", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM padaliniai ORDER BY shortname`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "VU SA", "Vilniaus universiteto Studentų atstovybė", "vusa", stamp, stamp))
	mock.ExpectQuery(`FROM padaliniai WHERE id = \?`).WithArgs(9).WillReturnRows(sqlmock.NewRows(cols))

	repo := NewPadalinysRepo(db)
	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "vusa", list[0].Alias)

	_, err = repo.GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}
