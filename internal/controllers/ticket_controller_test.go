package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"triage-system/internal/dto"
	"triage-system/pkg/customvalidator"
	apperrors "triage-system/pkg/errors"
	"triage-system/pkg/utils"
)

// fakeTicketService отдаёт заранее заданные ответы и ошибки.
type fakeTicketService struct {
	ticket dto.TicketDTO
	stats  dto.QueueStatsDTO
	err    error

	createdWith dto.CreateTicketDTO
	assignedID  uint64
}

func (f *fakeTicketService) CreateTicket(ctx context.Context, d dto.CreateTicketDTO) (dto.TicketDTO, error) {
	f.createdWith = d
	return f.ticket, f.err
}

func (f *fakeTicketService) AssignTicket(ctx context.Context, id uint64, d dto.AssignTicketDTO) (dto.TicketDTO, error) {
	f.assignedID = id
	return f.ticket, f.err
}

func (f *fakeTicketService) CompleteTicket(ctx context.Context, id uint64, d dto.CompleteTicketDTO) (dto.TicketDTO, error) {
	return f.ticket, f.err
}

func (f *fakeTicketService) FailTicket(ctx context.Context, id uint64, d dto.FailTicketDTO) (dto.TicketDTO, error) {
	return f.ticket, f.err
}

func (f *fakeTicketService) CancelTicket(ctx context.Context, id uint64) (dto.TicketDTO, error) {
	return f.ticket, f.err
}

func (f *fakeTicketService) RequeueTicket(ctx context.Context, id uint64) (dto.TicketDTO, error) {
	return f.ticket, f.err
}

func (f *fakeTicketService) FindTicket(ctx context.Context, id uint64) (dto.TicketDTO, error) {
	return f.ticket, f.err
}

func (f *fakeTicketService) GetTickets(ctx context.Context, filter dto.TicketFilterDTO) ([]dto.TicketDTO, uint64, error) {
	return []dto.TicketDTO{f.ticket}, 1, f.err
}

func (f *fakeTicketService) GetQueue(ctx context.Context, lane string) ([]dto.TicketDTO, error) {
	return []dto.TicketDTO{f.ticket}, f.err
}

func (f *fakeTicketService) GetNextTicket(ctx context.Context) (*dto.TicketDTO, error) {
	return &f.ticket, f.err
}

func (f *fakeTicketService) GetStats(ctx context.Context) (dto.QueueStatsDTO, error) {
	return f.stats, f.err
}

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	e := echo.New()
	v := validator.New()
	require.NoError(t, customvalidator.RegisterCustomValidations(v))
	e.Validator = utils.NewValidator(v)
	return e
}

func doRequest(t *testing.T, e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestTicketController_CreateTicket(t *testing.T) {
	svc := &fakeTicketService{ticket: dto.TicketDTO{ID: 1, Status: "OPEN", Priority: "HIGH"}}
	e := newTestEcho(t)
	ctrl := NewTicketController(svc, zap.NewNop())
	e.POST("/api/tickets", ctrl.CreateTicket)

	rec := doRequest(t, e, http.MethodPost, "/api/tickets", `{
		"title": "Не дозвонились до пациента",
		"description": "Просит перенести приём",
		"patient_id": 7,
		"priority": "HIGH",
		"created_by_id": 1
	}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Не дозвонились до пациента", svc.createdWith.Title)
	assert.Equal(t, uint64(7), svc.createdWith.PatientID)

	var resp utils.HttpResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Status)
}

func TestTicketController_CreateTicketValidation(t *testing.T) {
	svc := &fakeTicketService{}
	e := newTestEcho(t)
	ctrl := NewTicketController(svc, zap.NewNop())
	e.POST("/api/tickets", ctrl.CreateTicket)

	// Приоритет вне допустимого множества.
	rec := doRequest(t, e, http.MethodPost, "/api/tickets", `{
		"title": "Заголовок",
		"description": "Описание",
		"patient_id": 7,
		"priority": "URGENT",
		"created_by_id": 1
	}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.createdWith.Title, "сервис не должен вызываться при ошибке валидации")
}

func TestTicketController_DomainErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"не найдено", apperrors.NewNotFoundError("тикет не найден"), http.StatusNotFound},
		{"недопустимый переход", apperrors.NewInvalidStateError("нельзя"), http.StatusUnprocessableEntity},
		{"конфликт", apperrors.NewConflictError("уже закрыт"), http.StatusConflict},
		{"валидация", apperrors.NewValidationError("плохие данные"), http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeTicketService{err: tc.err}
			e := newTestEcho(t)
			ctrl := NewTicketController(svc, zap.NewNop())
			e.POST("/api/tickets/:id/assign", ctrl.AssignTicket)

			rec := doRequest(t, e, http.MethodPost, "/api/tickets/5/assign", `{"staff_id": 2}`)
			assert.Equal(t, tc.code, rec.Code)

			var resp utils.HttpResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Status)
			assert.Equal(t, tc.err.Error(), resp.Message)
		})
	}
}

func TestTicketController_BadTicketID(t *testing.T) {
	svc := &fakeTicketService{}
	e := newTestEcho(t)
	ctrl := NewTicketController(svc, zap.NewNop())
	e.POST("/api/tickets/:id/assign", ctrl.AssignTicket)

	rec := doRequest(t, e, http.MethodPost, "/api/tickets/abc/assign", `{"staff_id": 2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, svc.assignedID)
}

func TestTicketController_GetStats(t *testing.T) {
	svc := &fakeTicketService{stats: dto.QueueStatsDTO{Open: 3, InProgress: 1, Queue: 2, Retry: 1}}
	e := newTestEcho(t)
	ctrl := NewTicketController(svc, zap.NewNop())
	e.GET("/api/queue/stats", ctrl.GetStats)

	rec := doRequest(t, e, http.MethodGet, "/api/queue/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status bool               `json:"status"`
		Body   dto.QueueStatsDTO  `json:"body"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Body.Open)
	assert.Equal(t, 2, resp.Body.Queue)
}
