package http

import (
	"context"
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
	"captainpulse/internal/stattest"
	"captainpulse/internal/table"
	api "captainpulse/pkg/contracts/api/v1"
)

func newTestAnalysisHandler(t *testing.T, svc *MockAnalysisService) http.Handler {
	logger, _ := testutil.NewTestLogger(t)
	return NewAnalysisHandler(svc, newTestValidator(), logger, newTestErrorHandler(t)).Routes()
}

func ptr(v float64) *float64 { return &v }

func TestAnalysisHandler_Metrics(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockAnalysisService)
		expectedStatus int
		expectedType   string
		expectedBody   string
	}{
		{
			name: "time series",
			body: `{"test_cohort":"treat","control_cohort":"ctrl","rolling_windows":[7]}`,
			setupMock: func(m *MockAnalysisService) {
				m.On("Metrics", "s1", api.MetricsRequest{TestCohort: "treat", ControlCohort: "ctrl", RollingWindows: []int{7}}).
					Return(&api.MetricsResponse{TimeSeries: []api.TimeSeriesPoint{{
						Date: "2025-01-01", Cohort: "treat", MetricValue: ptr(10), Rolling: map[int]*float64{7: ptr(10)},
					}}}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"metric_value_roll_7":10`,
		},
		{
			name:           "invalid aggregation",
			body:           `{"aggregations":["mode"]}`,
			setupMock:      func(m *MockAnalysisService) {},
			expectedStatus: http.StatusBadRequest,
			expectedType:   apierrors.TypeValidation,
		},
		{
			name:           "invalid period date",
			body:           `{"post_period":{"start_date":"03/01/2025"}}`,
			setupMock:      func(m *MockAnalysisService) {},
			expectedStatus: http.StatusBadRequest,
			expectedType:   apierrors.TypeValidation,
			expectedBody:   "post_period.start_date",
		},
		{
			name: "missing column",
			body: `{}`,
			setupMock: func(m *MockAnalysisService) {
				m.On("Metrics", "s1", api.MetricsRequest{}).
					Return(nil, &table.MissingColumnError{Columns: []string{"metric_value"}})
			},
			expectedStatus: http.StatusBadRequest,
			expectedType:   apierrors.TypeMissingColumns,
			expectedBody:   "metric_value",
		},
		{
			name: "unknown session",
			body: `{}`,
			setupMock: func(m *MockAnalysisService) {
				m.On("Metrics", "s1", api.MetricsRequest{}).Return(nil, services.ErrSessionNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedType:   apierrors.TypeSessionNotFound,
		},
		{
			name: "deadline exceeded",
			body: `{}`,
			setupMock: func(m *MockAnalysisService) {
				m.On("Metrics", "s1", api.MetricsRequest{}).
					Return(nil, fmt.Errorf("rolling means: %w", context.DeadlineExceeded))
			},
			expectedStatus: http.StatusGatewayTimeout,
			expectedType:   apierrors.TypeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAnalysisService)
			tt.setupMock(svc)

			r := httptest.NewRequest(http.MethodPost, "/metrics", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			r.Header.Set(SessionIDHeader, "s1")
			w := serveRoutes(newTestAnalysisHandler(t, svc), r)

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, problemType(t, w))
			}
			if tt.expectedBody != "" {
				assert.Contains(t, w.Body.String(), tt.expectedBody)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestAnalysisHandler_Funnel(t *testing.T) {
	svc := new(MockAnalysisService)
	svc.On("Funnel", "s1", api.FunnelRequest{Metric: "ao_days", Confirmed: "yes"}).
		Return(&api.FunnelResponse{Metric: "ao_days", MetricsAvailable: []string{"ao_days"}}, nil)
	svc.On("Funnel", "s2", mock.Anything).Return(nil, services.ErrNoMetrics)
	h := newTestAnalysisHandler(t, svc)

	r := httptest.NewRequest(http.MethodPost, "/funnel", jsonBody(t, api.FunnelRequest{Metric: "ao_days", Confirmed: "yes"}))
	r.Header.Set(SessionIDHeader, "s1")
	w := serveRoutes(h, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"metric":"ao_days"`)

	r = httptest.NewRequest(http.MethodPost, "/funnel", jsonBody(t, api.FunnelRequest{}))
	r.Header.Set(SessionIDHeader, "s2")
	w = serveRoutes(h, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apierrors.TypeNoData, problemType(t, w))
}

func TestAnalysisHandler_CaptainLevel(t *testing.T) {
	req := api.CaptainLevelRequest{
		TestCohort:         "treat",
		ControlCohort:      "ctrl",
		GroupByColumn:      "city",
		MetricAggregations: []api.MetricAggregation{{Column: "ao_days", AggFunc: "sum"}},
	}

	svc := new(MockAnalysisService)
	svc.On("CaptainLevel", "s1", req).Return(&api.CaptainLevelResponse{GroupByColumn: "city", Metrics: []string{"ao_days_sum"}}, nil)
	h := newTestAnalysisHandler(t, svc)

	r := httptest.NewRequest(http.MethodPost, "/captain-level", jsonBody(t, req))
	r.Header.Set(SessionIDHeader, "s1")
	w := serveRoutes(h, r)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"group_by_column":"city"`)

	r = httptest.NewRequest(http.MethodPost, "/captain-level", strings.NewReader(`{"test_cohort":"treat"}`))
	r.Header.Set(SessionIDHeader, "s1")
	w = serveRoutes(h, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "group_by_column")
	svc.AssertNumberOfCalls(t, "CaptainLevel", 1)
}

func TestAnalysisHandler_CohortAggregation(t *testing.T) {
	svc := new(MockAnalysisService)
	svc.On("CohortAggregation", "s1").Return(&api.CohortAggregationResponse{
		Data: []api.CohortAggregationRow{{Cohort: "treat", ExploredCaptains: 3, Visit2Click: 0.5}},
	}, nil)
	svc.On("CohortAggregation", "s2").Return(nil, &table.MissingColumnError{Columns: []string{"totalExpCaps", "visitedCaps"}})
	h := newTestAnalysisHandler(t, svc)

	r := httptest.NewRequest(http.MethodGet, "/cohort-aggregation", nil)
	r.Header.Set(SessionIDHeader, "s1")
	w := serveRoutes(h, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"exploredCaptains":3`)
	assert.Contains(t, w.Body.String(), `"Visit2Click":0.5`)

	r = httptest.NewRequest(http.MethodGet, "/cohort-aggregation", nil)
	r.Header.Set(SessionIDHeader, "s2")
	w = serveRoutes(h, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "visitedCaps")
}

func TestAnalysisHandler_StatTest(t *testing.T) {
	known := api.StatTestRequest{
		TestCategory: "parametric",
		TestName:     "welch_t_test",
		Data:         api.StatTestData{PostTest: []float64{1, 2, 3}, PostControl: []float64{2, 3, 4}},
	}
	unknown := api.StatTestRequest{TestCategory: "bayesian", TestName: "ab"}

	svc := new(MockAnalysisService)
	svc.On("StatTest", known).Return(&stattest.Result{Name: "welch_t_test", Category: "parametric", PValue: ptr(0.3), SampleSize: 6}, nil)
	svc.On("StatTest", unknown).Return(nil, fmt.Errorf("%w: bayesian/ab", services.ErrUnknownTest))
	h := newTestAnalysisHandler(t, svc)

	w := serveRoutes(h, httptest.NewRequest(http.MethodPost, "/statistical-test", jsonBody(t, known)))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"p_value":0.3`)

	w = serveRoutes(h, httptest.NewRequest(http.MethodPost, "/statistical-test", jsonBody(t, unknown)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apierrors.TypeUnknownTest, problemType(t, w))

	w = serveRoutes(h, httptest.NewRequest(http.MethodPost, "/statistical-test", strings.NewReader(`{"test_name":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "test_category")
}

func TestAnalysisHandler_StatTests(t *testing.T) {
	svc := new(MockAnalysisService)
	svc.On("StatTests").Return([]stattest.Definition{{Category: "causal", Name: "diff_in_diff"}})

	w := serveRoutes(newTestAnalysisHandler(t, svc), httptest.NewRequest(http.MethodGet, "/statistical-tests", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tests":[{"category":"causal","name":"diff_in_diff","description":""}]}`, w.Body.String())
}
