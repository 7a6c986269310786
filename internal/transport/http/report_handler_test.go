package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	apierrors "captainpulse/internal/errors"
	"captainpulse/internal/report"
	"captainpulse/internal/services"
	"captainpulse/internal/shared/testutil"
	api "captainpulse/pkg/contracts/api/v1"
)

func newTestReportHandler(t *testing.T, svc *MockReportService) http.Handler {
	logger, _ := testutil.NewTestLogger(t)
	return NewReportHandler(svc, newTestValidator(), logger, newTestErrorHandler(t)).Routes()
}

func withReport(r *http.Request, id string) *http.Request {
	r.Header.Set(ReportIDHeader, id)
	return r
}

func TestReportHandler_Create(t *testing.T) {
	svc := new(MockReportService)
	svc.On("Create").Return(&api.ReportCreateResponse{ReportID: "r1"})

	w := serveRoutes(newTestReportHandler(t, svc), httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "r1", w.Header().Get(ReportIDHeader))
	assert.JSONEq(t, `{"report_id":"r1"}`, w.Body.String())
}

func TestReportHandler_AddItem(t *testing.T) {
	tests := []struct {
		name           string
		reportID       string
		body           string
		setupMock      func(*MockReportService)
		expectedStatus int
		expectedType   string
	}{
		{
			name:     "adds to existing report",
			reportID: "r1",
			body:     `{"type":"text","title":"Notes","content":{"text":"AO days up"}}`,
			setupMock: func(m *MockReportService) {
				m.On("AddItem", "r1", api.ReportAddRequest{Type: "text", Title: "Notes", Content: map[string]any{"text": "AO days up"}}).
					Return(&api.ReportAddResponse{ReportID: "r1", ItemID: "i1", NumItems: 2}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "starts a report without id",
			body: `{"type":"chart","title":"Trend"}`,
			setupMock: func(m *MockReportService) {
				m.On("AddItem", "", mock.Anything).Return(&api.ReportAddResponse{ReportID: "r9", ItemID: "i1", NumItems: 1}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "unknown item type",
			body:           `{"type":"video","title":"Clip"}`,
			setupMock:      func(m *MockReportService) {},
			expectedStatus: http.StatusBadRequest,
			expectedType:   apierrors.TypeValidation,
		},
		{
			name:           "missing title",
			body:           `{"type":"text"}`,
			setupMock:      func(m *MockReportService) {},
			expectedStatus: http.StatusBadRequest,
			expectedType:   apierrors.TypeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockReportService)
			tt.setupMock(svc)

			r := withReport(httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(tt.body)), tt.reportID)
			w := serveRoutes(newTestReportHandler(t, svc), r)

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedStatus == http.StatusCreated {
				assert.NotEmpty(t, w.Header().Get(ReportIDHeader))
			}
			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, problemType(t, w))
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestReportHandler_UpdateItem(t *testing.T) {
	svc := new(MockReportService)
	svc.On("UpdateComment", "r1", api.ReportUpdateCommentRequest{ItemID: "i1", Comment: "looks good"}).Return(nil)
	svc.On("UpdateTitle", "r1", api.ReportUpdateTitleRequest{ItemID: "i2", Title: "New"}).Return(services.ErrReportItemNotFound)
	svc.On("UpdateTitle", "r2", mock.Anything).Return(services.ErrReportNotFound)
	h := newTestReportHandler(t, svc)

	w := serveRoutes(h, withReport(httptest.NewRequest(http.MethodPut, "/items/comment",
		strings.NewReader(`{"item_id":"i1","comment":"looks good"}`)), "r1"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serveRoutes(h, withReport(httptest.NewRequest(http.MethodPut, "/items/title",
		strings.NewReader(`{"item_id":"i2","title":"New"}`)), "r1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apierrors.TypeReportItemMissing, problemType(t, w))

	w = serveRoutes(h, withReport(httptest.NewRequest(http.MethodPut, "/items/title",
		strings.NewReader(`{"item_id":"i2","title":"New"}`)), "r2"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apierrors.TypeReportNotFound, problemType(t, w))

	w = serveRoutes(h, withReport(httptest.NewRequest(http.MethodPut, "/items/comment",
		strings.NewReader(`{"comment":"orphan"}`)), "r1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "item_id")
}

func TestReportHandler_DeleteAndList(t *testing.T) {
	created := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	svc := new(MockReportService)
	svc.On("DeleteItem", "r1", "i1").Return(&api.ReportDeleteResponse{OK: true, NumItems: 0}, nil)
	svc.On("List", "r1").Return(&report.Report{ID: "r1", Items: []report.Item{}, CreatedAt: created, UpdatedAt: created})
	svc.On("Clear", "r1").Return(nil)
	h := newTestReportHandler(t, svc)

	w := serveRoutes(h, withReport(httptest.NewRequest(http.MethodDelete, "/items/i1", nil), "r1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"num_items":0}`, w.Body.String())

	w = serveRoutes(h, httptest.NewRequest(http.MethodGet, "/items?report_id=r1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"report_id":"r1"`)
	assert.Contains(t, w.Body.String(), `"items":[]`)

	w = serveRoutes(h, withReport(httptest.NewRequest(http.MethodDelete, "/", nil), "r1"))
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestReportHandler_Export(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		setupMock      func(*MockReportService)
		expectedStatus int
		expectedHeader string
	}{
		{
			name:  "html by default",
			query: "",
			setupMock: func(m *MockReportService) {
				m.On("Export", "r1", api.ReportExportRequest{}).Return(&services.ReportExport{
					ContentType: "text/html; charset=utf-8",
					Filename:    "experiment_report_20250304_050607.html",
					Body:        []byte("<html></html>"),
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedHeader: `attachment; filename="experiment_report_20250304_050607.html"`,
		},
		{
			name:  "titled xlsx",
			query: "?format=xlsx&title=Q1",
			setupMock: func(m *MockReportService) {
				m.On("Export", "r1", api.ReportExportRequest{Format: "xlsx", Title: "Q1"}).Return(&services.ReportExport{
					ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
					Filename:    "experiment_report_20250304_050607.xlsx",
					Body:        []byte("PK"),
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedHeader: `attachment; filename="experiment_report_20250304_050607.xlsx"`,
		},
		{
			name:           "unsupported format",
			query:          "?format=docx",
			setupMock:      func(m *MockReportService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:  "unknown report",
			query: "?format=csv",
			setupMock: func(m *MockReportService) {
				m.On("Export", "r1", mock.Anything).Return(nil, services.ErrReportNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockReportService)
			tt.setupMock(svc)

			w := serveRoutes(newTestReportHandler(t, svc),
				withReport(httptest.NewRequest(http.MethodGet, "/export"+tt.query, nil), "r1"))

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedHeader != "" {
				assert.Equal(t, tt.expectedHeader, w.Header().Get("Content-Disposition"))
			}
			svc.AssertExpectations(t)
		})
	}
}
