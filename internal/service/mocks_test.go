package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/resource-reservation/internal/capacity"
	"github.com/iliyamo/resource-reservation/internal/model"
	"github.com/iliyamo/resource-reservation/internal/queue"
	"github.com/iliyamo/resource-reservation/internal/repository"
	"github.com/iliyamo/resource-reservation/internal/state"
)

var (
	t0  = time.Date(2023, 7, 1, 9, 0, 0, 0, time.UTC)
	t10 = t0.Add(10 * time.Hour)
)

func at(h int) time.Time { return t0.Add(time.Duration(h) * time.Hour) }

func ptr[T any](v T) *T { return &v }

type resourceStoreMock struct{ mock.Mock }

func (m *resourceStoreMock) GetByID(ctx context.Context, id string) (*model.Resource, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*model.Resource)
	return res, args.Error(1)
}

func (m *resourceStoreMock) ListReservable(ctx context.Context, padalinysID *uint64) ([]*model.Resource, error) {
	args := m.Called(ctx, padalinysID)
	res, _ := args.Get(0).([]*model.Resource)
	return res, args.Error(1)
}

func (m *resourceStoreMock) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Resource, error) {
	args := m.Called(ctx, tx, id)
	res, _ := args.Get(0).(*model.Resource)
	return res, args.Error(1)
}

type allocationStoreMock struct{ mock.Mock }

func (m *allocationStoreMock) ActiveInWindow(ctx context.Context, resourceID string, from, to time.Time) ([]capacity.Allocation, error) {
	args := m.Called(ctx, resourceID, from, to)
	out, _ := args.Get(0).([]capacity.Allocation)
	return out, args.Error(1)
}

func (m *allocationStoreMock) ActiveByResource(ctx context.Context, resourceID string) ([]capacity.Allocation, error) {
	args := m.Called(ctx, resourceID)
	out, _ := args.Get(0).([]capacity.Allocation)
	return out, args.Error(1)
}

func (m *allocationStoreMock) ActiveInWindowTx(ctx context.Context, tx *sql.Tx, resourceID string, from, to time.Time) ([]capacity.Allocation, error) {
	args := m.Called(ctx, tx, resourceID, from, to)
	out, _ := args.Get(0).([]capacity.Allocation)
	return out, args.Error(1)
}

func (m *allocationStoreMock) CreateBulkTx(ctx context.Context, tx *sql.Tx, rows []*model.ReservationResource) error {
	return m.Called(ctx, tx, rows).Error(0)
}

type reservationStoreMock struct {
	mock.Mock
	db *sql.DB
}

func (m *reservationStoreMock) DB() *sql.DB { return m.db }

func (m *reservationStoreMock) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	return m.Called(ctx, tx, res).Error(0)
}

func (m *reservationStoreMock) AddManagersTx(ctx context.Context, tx *sql.Tx, reservationID string, userIDs []uint64) error {
	return m.Called(ctx, tx, reservationID, userIDs).Error(0)
}

func (m *reservationStoreMock) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*model.Reservation)
	return res, args.Error(1)
}

func (m *reservationStoreMock) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Reservation, error) {
	args := m.Called(ctx, tx, id)
	res, _ := args.Get(0).(*model.Reservation)
	return res, args.Error(1)
}

func (m *reservationStoreMock) List(ctx context.Context, f repository.ReservationFilter) ([]*model.Reservation, int64, error) {
	args := m.Called(ctx, f)
	out, _ := args.Get(0).([]*model.Reservation)
	return out, args.Get(1).(int64), args.Error(2)
}

func (m *reservationStoreMock) Complete(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *reservationStoreMock) SoftDeleteTx(ctx context.Context, tx *sql.Tx, id string, at time.Time) error {
	return m.Called(ctx, tx, id, at).Error(0)
}

type pivotStoreMock struct{ mock.Mock }

func (m *pivotStoreMock) GetByID(ctx context.Context, id uint64) (*model.ReservationResource, error) {
	args := m.Called(ctx, id)
	rr, _ := args.Get(0).(*model.ReservationResource)
	return rr, args.Error(1)
}

func (m *pivotStoreMock) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.ReservationResource, error) {
	args := m.Called(ctx, tx, id)
	rr, _ := args.Get(0).(*model.ReservationResource)
	return rr, args.Error(1)
}

func (m *pivotStoreMock) UpdateStateTx(ctx context.Context, tx *sql.Tx, id uint64, s state.State) error {
	return m.Called(ctx, tx, id, s).Error(0)
}

type userCounterMock struct{ mock.Mock }

func (m *userCounterMock) CountExisting(ctx context.Context, ids []uint64) (int, error) {
	args := m.Called(ctx, ids)
	return args.Int(0), args.Error(1)
}

type recordingPublisher struct {
	events []queue.ReservationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.ReservationEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, sm, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, sm.ExpectationsWereMet())
		db.Close()
	})
	return db, sm
}
