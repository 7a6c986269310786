package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "captainpulse/internal/errors"
	"captainpulse/internal/middleware"
	"captainpulse/internal/report"
	"captainpulse/internal/services"
	"captainpulse/internal/shared/testutil"
	"captainpulse/internal/stattest"
	api "captainpulse/pkg/contracts/api/v1"
)

// MockSessionService is a mock implementation of SessionServiceInterface
type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Upload(ctx context.Context, filename string, r io.Reader) (*api.UploadResponse, error) {
	body, _ := io.ReadAll(r)
	args := m.Called(filename, string(body))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.UploadResponse), args.Error(1)
}

func (m *MockSessionService) Meta(ctx context.Context, id string) (*api.UploadResponse, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.UploadResponse), args.Error(1)
}

func (m *MockSessionService) Delete(ctx context.Context, id string) error {
	return m.Called(id).Error(0)
}

func (m *MockSessionService) ExportCSV(ctx context.Context, id string, w io.Writer) error {
	args := m.Called(id)
	if s, ok := args.Get(0).(string); ok {
		_, _ = io.WriteString(w, s)
	}
	return args.Error(1)
}

// MockAnalysisService is a mock implementation of AnalysisServiceInterface
type MockAnalysisService struct {
	mock.Mock
}

func (m *MockAnalysisService) Metrics(ctx context.Context, sessionID string, req api.MetricsRequest) (*api.MetricsResponse, error) {
	args := m.Called(sessionID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.MetricsResponse), args.Error(1)
}

func (m *MockAnalysisService) Funnel(ctx context.Context, sessionID string, req api.FunnelRequest) (*api.FunnelResponse, error) {
	args := m.Called(sessionID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.FunnelResponse), args.Error(1)
}

func (m *MockAnalysisService) CaptainLevel(ctx context.Context, sessionID string, req api.CaptainLevelRequest) (*api.CaptainLevelResponse, error) {
	args := m.Called(sessionID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.CaptainLevelResponse), args.Error(1)
}

func (m *MockAnalysisService) CohortAggregation(ctx context.Context, sessionID string) (*api.CohortAggregationResponse, error) {
	args := m.Called(sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.CohortAggregationResponse), args.Error(1)
}

func (m *MockAnalysisService) StatTest(ctx context.Context, req api.StatTestRequest) (*stattest.Result, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stattest.Result), args.Error(1)
}

func (m *MockAnalysisService) StatTests() []stattest.Definition {
	return m.Called().Get(0).([]stattest.Definition)
}

// MockReportService is a mock implementation of ReportServiceInterface
type MockReportService struct {
	mock.Mock
}

func (m *MockReportService) Create(ctx context.Context) *api.ReportCreateResponse {
	return m.Called().Get(0).(*api.ReportCreateResponse)
}

func (m *MockReportService) AddItem(ctx context.Context, reportID string, req api.ReportAddRequest) (*api.ReportAddResponse, error) {
	args := m.Called(reportID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.ReportAddResponse), args.Error(1)
}

func (m *MockReportService) UpdateComment(ctx context.Context, reportID string, req api.ReportUpdateCommentRequest) error {
	return m.Called(reportID, req).Error(0)
}

func (m *MockReportService) UpdateTitle(ctx context.Context, reportID string, req api.ReportUpdateTitleRequest) error {
	return m.Called(reportID, req).Error(0)
}

func (m *MockReportService) DeleteItem(ctx context.Context, reportID, itemID string) (*api.ReportDeleteResponse, error) {
	args := m.Called(reportID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.ReportDeleteResponse), args.Error(1)
}

func (m *MockReportService) List(ctx context.Context, reportID string) *report.Report {
	return m.Called(reportID).Get(0).(*report.Report)
}

func (m *MockReportService) Clear(ctx context.Context, reportID string) error {
	return m.Called(reportID).Error(0)
}

func (m *MockReportService) Export(ctx context.Context, reportID string, req api.ReportExportRequest) (*services.ReportExport, error) {
	args := m.Called(reportID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ReportExport), args.Error(1)
}

// MockWarehouseService is a mock implementation of WarehouseServiceInterface
type MockWarehouseService struct {
	mock.Mock
}

func (m *MockWarehouseService) UploadMobileNumbers(ctx context.Context, filename string, r io.Reader) (*api.MobileNumberUploadResponse, error) {
	body, _ := io.ReadAll(r)
	args := m.Called(filename, string(body))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.MobileNumberUploadResponse), args.Error(1)
}

func (m *MockWarehouseService) CaptainIDs(ctx context.Context, sessionID string) (*api.CaptainIDResponse, error) {
	args := m.Called(sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.CaptainIDResponse), args.Error(1)
}

func (m *MockWarehouseService) AOFunnel(ctx context.Context, sessionID string, req api.AOFunnelRequest) (*api.AOFunnelResponse, error) {
	args := m.Called(sessionID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.AOFunnelResponse), args.Error(1)
}

func (m *MockWarehouseService) UseForAnalysis(ctx context.Context, sessionID string) (*api.UploadResponse, error) {
	args := m.Called(sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.UploadResponse), args.Error(1)
}

func (m *MockWarehouseService) ExportCSV(ctx context.Context, sessionID string, w io.Writer) error {
	args := m.Called(sessionID)
	if s, ok := args.Get(0).(string); ok {
		_, _ = io.WriteString(w, s)
	}
	return args.Error(1)
}

// MockHealthService is a mock implementation of HealthServiceInterface
type MockHealthService struct {
	mock.Mock
}

func (m *MockHealthService) Live(ctx context.Context) *api.HealthResponse {
	return m.Called().Get(0).(*api.HealthResponse)
}

func (m *MockHealthService) Ready(ctx context.Context) *api.HealthResponse {
	return m.Called().Get(0).(*api.HealthResponse)
}

func (m *MockHealthService) Version() string {
	return m.Called().String(0)
}

func newTestErrorHandler(t *testing.T) *apierrors.ErrorHandler {
	logger, _ := testutil.NewTestLogger(t)
	return apierrors.NewErrorHandler(logger, false)
}

func newTestValidator() *middleware.Validator {
	return middleware.NewValidator(0)
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(v))
	return &buf
}

func multipartBody(t *testing.T, field, filename, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// problemType decodes the type member of a problem response
func problemType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	typ, _ := body["type"].(string)
	return typ
}

func serveRoutes(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}
