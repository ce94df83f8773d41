package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vaxslot/pkg/auth"
	apperrors "vaxslot/pkg/errors"
	httputil "vaxslot/pkg/http"
	"vaxslot/pkg/logger"
	"vaxslot/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAppointmentService struct {
	bookFunc   func(ctx context.Context, p model.Principal, req *model.BookingRequest) (*model.Appointment, error)
	cancelFunc func(ctx context.Context, p model.Principal, id string) error
	getAllFunc func(ctx context.Context, p model.Principal, status model.AppointmentStatus, limit int, offset int64) ([]*model.Appointment, int64, error)
}

func (m *mockAppointmentService) Book(ctx context.Context, p model.Principal, req *model.BookingRequest) (*model.Appointment, error) {
	return m.bookFunc(ctx, p, req)
}

func (m *mockAppointmentService) Cancel(ctx context.Context, p model.Principal, id string) error {
	return m.cancelFunc(ctx, p, id)
}

func (m *mockAppointmentService) UpdateStatus(ctx context.Context, p model.Principal, id string, req *model.StatusUpdateRequest) (*model.Appointment, error) {
	return nil, nil
}

func (m *mockAppointmentService) GetByID(ctx context.Context, p model.Principal, id string) (*model.AppointmentView, error) {
	return nil, nil
}

func (m *mockAppointmentService) ListMine(ctx context.Context, p model.Principal) ([]*model.AppointmentView, error) {
	return []*model.AppointmentView{}, nil
}

func (m *mockAppointmentService) GetAll(ctx context.Context, p model.Principal, status model.AppointmentStatus, limit int, offset int64) ([]*model.Appointment, int64, error) {
	return m.getAllFunc(ctx, p, status, limit, offset)
}

func (m *mockAppointmentService) CredentialImage(ctx context.Context, p model.Principal, id string) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func newRouter(svc *mockAppointmentService) *httprouter.Router {
	router := httprouter.New()
	NewAppointmentHandler(svc, logger.Discard()).RegisterRoutes(router)
	return router
}

func TestBook_PassesPrincipalAndBody(t *testing.T) {
	p := model.Principal{UserID: "user-1", Email: "a@example.com", Role: model.RolePatient}
	var got model.Principal
	svc := &mockAppointmentService{
		bookFunc: func(ctx context.Context, principal model.Principal, req *model.BookingRequest) (*model.Appointment, error) {
			got = principal
			return &model.Appointment{ID: "a-1", SlotID: req.SlotID, Status: model.StatusScheduled}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(`{"slot_id":"65f000000000000000000001"}`))
	req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	w := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, p, got)

	var body struct {
		Data model.Appointment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "65f000000000000000000001", body.Data.SlotID)
}

func TestBook_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		body       string
		wantStatus int
		wantCode   string
	}{
		{"slot full", apperrors.SlotFull("s"), `{"slot_id":"s"}`, http.StatusConflict, apperrors.CodeSlotFull},
		{"already booked", apperrors.AlreadyBooked("s"), `{"slot_id":"s"}`, http.StatusConflict, apperrors.CodeAlreadyBooked},
		{"slot not found", apperrors.SlotNotFound("s"), `{"slot_id":"s"}`, http.StatusNotFound, apperrors.CodeSlotNotFound},
		{"unauthenticated", apperrors.Unauthenticated("no"), `{"slot_id":"s"}`, http.StatusUnauthorized, apperrors.CodeUnauthenticated},
		{"contention", apperrors.Contention(nil), `{"slot_id":"s"}`, http.StatusServiceUnavailable, apperrors.CodeContention},
		{"unknown field", nil, `{"slot":"s"}`, http.StatusBadRequest, apperrors.CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAppointmentService{
				bookFunc: func(context.Context, model.Principal, *model.BookingRequest) (*model.Appointment, error) {
					return nil, tt.err
				},
			}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			newRouter(svc).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp httputil.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestCancel_NoContent(t *testing.T) {
	var cancelled string
	svc := &mockAppointmentService{
		cancelFunc: func(_ context.Context, _ model.Principal, id string) error {
			cancelled = id
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/appointments/id/a-42", nil)
	w := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "a-42", cancelled)
}

func TestGetAll_QueryParameters(t *testing.T) {
	var gotStatus model.AppointmentStatus
	var gotLimit int
	var gotOffset int64
	svc := &mockAppointmentService{
		getAllFunc: func(_ context.Context, _ model.Principal, status model.AppointmentStatus, limit int, offset int64) ([]*model.Appointment, int64, error) {
			gotStatus, gotLimit, gotOffset = status, limit, offset
			return []*model.Appointment{}, 0, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments?status=Completed&limit=5&offset=10", nil)
	w := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusCompleted, gotStatus)
	assert.Equal(t, 5, gotLimit)
	assert.EqualValues(t, 10, gotOffset)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/appointments?limit=abc", nil)
	w = httptest.NewRecorder()
	newRouter(svc).ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCredential_WritesPNG(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/id/a-1/credential", nil)
	w := httptest.NewRecorder()
	newRouter(&mockAppointmentService{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}
