package http

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	apierrors "captainpulse/internal/errors"
	"captainpulse/internal/services"
	"captainpulse/internal/shared/testutil"
	api "captainpulse/pkg/contracts/api/v1"
)

func newTestWarehouseHandler(t *testing.T, svc *MockWarehouseService) http.Handler {
	logger, _ := testutil.NewTestLogger(t)
	return NewWarehouseHandler(svc, newTestValidator(), 0, logger, newTestErrorHandler(t)).Routes()
}

func withSession(r *http.Request, id string) *http.Request {
	r.Header.Set(SessionIDHeader, id)
	return r
}

func TestWarehouseHandler_UploadMobileNumbers(t *testing.T) {
	svc := new(MockWarehouseService)
	svc.On("UploadMobileNumbers", "mobiles.csv", testutil.MobileNumbersCSV).Return(&api.MobileNumberUploadResponse{
		FunnelSessionID:   "f1",
		NumRows:           3,
		Columns:           []string{"mobile_number", "cohort"},
		HasCohort:         true,
		DuplicatesRemoved: 1,
	}, nil)

	body, contentType := multipartBody(t, "file", "mobiles.csv", testutil.MobileNumbersCSV)
	r := httptest.NewRequest(http.MethodPost, "/mobile-numbers", body)
	r.Header.Set("Content-Type", contentType)
	w := serveRoutes(newTestWarehouseHandler(t, svc), r)

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "f1", w.Header().Get(SessionIDHeader))
	assert.Contains(t, w.Body.String(), `"duplicates_removed":1`)
	svc.AssertExpectations(t)
}

func TestWarehouseHandler_CaptainIDs(t *testing.T) {
	tests := []struct {
		name           string
		setupMock      func(*MockWarehouseService)
		expectedStatus int
		expectedType   string
	}{
		{
			name: "resolved",
			setupMock: func(m *MockWarehouseService) {
				m.On("CaptainIDs", "f1").Return(&api.CaptainIDResponse{NumRows: 3, NumCaptainsFound: 2}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "warehouse not configured",
			setupMock: func(m *MockWarehouseService) {
				m.On("CaptainIDs", "f1").Return(nil, services.ErrWarehouseUnavailable)
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedType:   apierrors.TypeWarehouseDown,
		},
		{
			name: "query failed",
			setupMock: func(m *MockWarehouseService) {
				m.On("CaptainIDs", "f1").Return(nil, fmt.Errorf("%w: connection reset", services.ErrWarehouseQuery))
			},
			expectedStatus: http.StatusBadGateway,
			expectedType:   apierrors.TypeWarehouseQuery,
		},
		{
			name: "analysis session given",
			setupMock: func(m *MockWarehouseService) {
				m.On("CaptainIDs", "f1").Return(nil, services.ErrWrongSessionKind)
			},
			expectedStatus: http.StatusBadRequest,
			expectedType:   apierrors.TypeWrongSessionKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockWarehouseService)
			tt.setupMock(svc)

			w := serveRoutes(newTestWarehouseHandler(t, svc),
				withSession(httptest.NewRequest(http.MethodPost, "/captain-ids", nil), "f1"))

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, problemType(t, w))
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestWarehouseHandler_AOFunnel(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockWarehouseService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "pulls window",
			body: `{"start_date":"20250101","end_date":"20250131"}`,
			setupMock: func(m *MockWarehouseService) {
				m.On("AOFunnel", "f1", api.AOFunnelRequest{StartDate: "20250101", EndDate: "20250131"}).
					Return(&api.AOFunnelResponse{NumRows: 4, Metrics: []string{"ao_days"}, UniqueCaptainIDs: 2}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"unique_captain_ids":2`,
		},
		{
			name:           "dashed dates",
			body:           `{"start_date":"2025-01-01","end_date":"20250131"}`,
			setupMock:      func(m *MockWarehouseService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "start_date",
		},
		{
			name:           "missing end date",
			body:           `{"start_date":"20250101"}`,
			setupMock:      func(m *MockWarehouseService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "end_date",
		},
		{
			name:           "malformed json",
			body:           `{"start_date":`,
			setupMock:      func(m *MockWarehouseService) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockWarehouseService)
			tt.setupMock(svc)

			w := serveRoutes(newTestWarehouseHandler(t, svc),
				withSession(httptest.NewRequest(http.MethodPost, "/ao-funnel", strings.NewReader(tt.body)), "f1"))

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedBody != "" {
				assert.Contains(t, w.Body.String(), tt.expectedBody)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestWarehouseHandler_UseForAnalysis(t *testing.T) {
	svc := new(MockWarehouseService)
	svc.On("UseForAnalysis", "f1").Return(&api.UploadResponse{SessionID: "s7", NumRows: 4, Metrics: []string{"ao_days"}}, nil)
	svc.On("UseForAnalysis", "f2").Return(nil, services.ErrNoMetrics)
	h := newTestWarehouseHandler(t, svc)

	w := serveRoutes(h, withSession(httptest.NewRequest(http.MethodPost, "/use-for-analysis", nil), "f1"))
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "s7", w.Header().Get(SessionIDHeader))

	w = serveRoutes(h, withSession(httptest.NewRequest(http.MethodPost, "/use-for-analysis", nil), "f2"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apierrors.TypeNoData, problemType(t, w))
}

func TestWarehouseHandler_Export(t *testing.T) {
	svc := new(MockWarehouseService)
	svc.On("ExportCSV", "f1").Return("captain_id,ao_days\n7,3\n", nil)
	svc.On("ExportCSV", "f2").Return("", services.ErrSessionNotFound)
	h := newTestWarehouseHandler(t, svc)

	w := serveRoutes(h, httptest.NewRequest(http.MethodGet, "/export?session_id=f1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="ao_funnel_f1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "captain_id,ao_days\n7,3\n", w.Body.String())

	w = serveRoutes(h, withSession(httptest.NewRequest(http.MethodGet, "/export", nil), "f2"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	svc.AssertNotCalled(t, "UseForAnalysis", mock.Anything)
}
