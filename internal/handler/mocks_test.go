package handler

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/resource-reservation/internal/capacity"
	"github.com/iliyamo/resource-reservation/internal/middleware"
	"github.com/iliyamo/resource-reservation/internal/model"
	"github.com/iliyamo/resource-reservation/internal/repository"
	"github.com/iliyamo/resource-reservation/internal/service"
	"github.com/iliyamo/resource-reservation/internal/state"
)

type resourceStoreMock struct{ mock.Mock }

func (m *resourceStoreMock) Create(ctx context.Context, res *model.Resource) error {
	return m.Called(ctx, res).Error(0)
}

func (m *resourceStoreMock) GetByID(ctx context.Context, id string) (*model.Resource, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*model.Resource)
	return res, args.Error(1)
}

func (m *resourceStoreMock) List(ctx context.Context, f repository.ResourceFilter) ([]*model.Resource, int64, error) {
	args := m.Called(ctx, f)
	items, _ := args.Get(0).([]*model.Resource)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *resourceStoreMock) Update(ctx context.Context, res *model.Resource) error {
	return m.Called(ctx, res).Error(0)
}

func (m *resourceStoreMock) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

type padalinysMock struct{ mock.Mock }

func (m *padalinysMock) List(ctx context.Context) ([]*model.Padalinys, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]*model.Padalinys)
	return items, args.Error(1)
}

func (m *padalinysMock) GetByID(ctx context.Context, id uint64) (*model.Padalinys, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*model.Padalinys)
	return p, args.Error(1)
}

type capacityMock struct{ mock.Mock }

func (m *capacityMock) Timeline(ctx context.Context, id string, from, to time.Time) (*model.Resource, *capacity.Timeline, error) {
	args := m.Called(ctx, id, from, to)
	res, _ := args.Get(0).(*model.Resource)
	tl, _ := args.Get(1).(*capacity.Timeline)
	return res, tl, args.Error(2)
}

func (m *capacityMock) Left(ctx context.Context, id string) (*model.Resource, int, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*model.Resource)
	return res, args.Int(1), args.Error(2)
}

func (m *capacityMock) Overview(ctx context.Context, pad *uint64, from, to time.Time) ([]service.ResourceCapacity, error) {
	args := m.Called(ctx, pad, from, to)
	rows, _ := args.Get(0).([]service.ResourceCapacity)
	return rows, args.Error(1)
}

type workflowMock struct{ mock.Mock }

func (m *workflowMock) Create(ctx context.Context, in service.CreateReservationInput, a service.Actor) (*model.Reservation, error) {
	args := m.Called(ctx, in, a)
	res, _ := args.Get(0).(*model.Reservation)
	return res, args.Error(1)
}

func (m *workflowMock) AddResource(ctx context.Context, id string, req service.ResourceRequest, a service.Actor) (*model.ReservationResource, error) {
	args := m.Called(ctx, id, req, a)
	rr, _ := args.Get(0).(*model.ReservationResource)
	return rr, args.Error(1)
}

func (m *workflowMock) Transition(ctx context.Context, id uint64, ev state.Event, a service.Actor) (*service.Transition, error) {
	args := m.Called(ctx, id, ev, a)
	tr, _ := args.Get(0).(*service.Transition)
	return tr, args.Error(1)
}

func (m *workflowMock) Get(ctx context.Context, id string, a service.Actor) (*model.Reservation, error) {
	args := m.Called(ctx, id, a)
	res, _ := args.Get(0).(*model.Reservation)
	return res, args.Error(1)
}

func (m *workflowMock) GetAllocation(ctx context.Context, id uint64, a service.Actor) (*model.ReservationResource, error) {
	args := m.Called(ctx, id, a)
	rr, _ := args.Get(0).(*model.ReservationResource)
	return rr, args.Error(1)
}

func (m *workflowMock) List(ctx context.Context, f repository.ReservationFilter, a service.Actor) ([]*model.Reservation, int64, error) {
	args := m.Called(ctx, f, a)
	items, _ := args.Get(0).([]*model.Reservation)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *workflowMock) Complete(ctx context.Context, id string, a service.Actor) (*model.Reservation, error) {
	args := m.Called(ctx, id, a)
	res, _ := args.Get(0).(*model.Reservation)
	return res, args.Error(1)
}

func (m *workflowMock) Delete(ctx context.Context, id string, a service.Actor) error {
	return m.Called(ctx, id, a).Error(0)
}

type userStoreMock struct{ mock.Mock }

func (m *userStoreMock) Create(ctx context.Context, email, password, role string, pad *uint64, cost int) (uint64, error) {
	args := m.Called(ctx, email, password, role, pad, cost)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *userStoreMock) GetByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *userStoreMock) GetByID(ctx context.Context, id uint64) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}

type tokenStoreMock struct{ mock.Mock }

func (m *tokenStoreMock) StoreRefresh(ctx context.Context, userID uint64, hash string, exp time.Time) error {
	return m.Called(ctx, userID, hash, exp).Error(0)
}

func (m *tokenStoreMock) ValidateRefresh(ctx context.Context, hash string) (uint64, error) {
	args := m.Called(ctx, hash)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *tokenStoreMock) RevokeByHash(ctx context.Context, hash string) error {
	return m.Called(ctx, hash).Error(0)
}

func (m *tokenStoreMock) RevokeAllForUser(ctx context.Context, userID uint64) error {
	return m.Called(ctx, userID).Error(0)
}

// Shared fixtures.

var (
	adminActor   = service.Actor{UserID: 1}
	managerPad   = uint64(3)
	managerActor = service.Actor{UserID: 2, PadalinysID: &managerPad}
	fixedNow     = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
)

const resID = "6f1c2a8e-5b1d-4c39-9a57-0a1b2c3d4e5f"

// newContext builds an echo context for a direct handler call.  body may
// be empty; a non-nil actor is stored the way JWTAuth would.
func newContext(method, target, body string, act *service.Actor) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if act != nil {
		c.Set(middleware.KeyUserID, act.UserID)
		if act.PadalinysID != nil {
			c.Set(middleware.KeyRole, model.RoleManager)
			c.Set(middleware.KeyPadalinysID, *act.PadalinysID)
		} else {
			c.Set(middleware.KeyRole, model.RoleAdmin)
		}
	}
	return c, rec
}

func withParams(c echo.Context, kv ...string) echo.Context {
	var names, values []string
	for i := 0; i+1 < len(kv); i += 2 {
		names = append(names, kv[i])
		values = append(values, kv[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	return c
}
