package middleware

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "captainpulse/internal/errors"
	"captainpulse/internal/infrastructure"
	"captainpulse/internal/shared/testutil"
	api "captainpulse/pkg/contracts/api/v1"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestID(t *testing.T) {
	var seen, traceID string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		traceID = infrastructure.GetTraceID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, traceID)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "given-id")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "given-id", seen)
}

func TestStructuredLogger(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	h := RequestID(StructuredLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/sessions/x", nil))

	assert.True(t, logs.ContainsMessage("request completed"))
	assert.True(t, logs.ContainsAttr("status", int64(http.StatusNotFound)))
}

func TestCorrelation(t *testing.T) {
	var sessionID, reportID interface{}
	h := Correlation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID = r.Context().Value(infrastructure.SessionIDContextKey)
		reportID = r.Context().Value(infrastructure.ReportIDContextKey)
	}))

	r := httptest.NewRequest(http.MethodGet, "/analysis/funnel?report_id=r9", nil)
	r.Header.Set("X-Session-ID", "s1")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "s1", sessionID)
	assert.Equal(t, "r9", reportID)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Nil(t, sessionID)
	assert.Nil(t, reportID)
}

func TestRateLimiter(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	h := NewRateLimiter(0.001, 1, logger).Handler(okHandler)

	request := func(addr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1:5000").Code)

	w := request("10.0.0.1:5001")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.True(t, logs.ContainsAttr("client", "10.0.0.1"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apierrors.TypeRateLimit, body["type"])

	assert.Equal(t, http.StatusOK, request("10.0.0.2:5000").Code, "other clients keep their own budget")
}

func TestTimeout(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	var deadline time.Time
	h := Timeout(time.Minute, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, _ = r.Context().Deadline()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestCORS(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}})(okHandler)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodOptions, "/", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSecureHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	DefaultSecureHeaders().Handler(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "img-src 'self' data:")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"), "HSTS is only sent over TLS")

	r := httptest.NewRequest(http.MethodGet, "https://captainpulse.local/", nil)
	r.TLS = &tls.ConnectionState{}
	w = httptest.NewRecorder()
	DefaultSecureHeaders().Handler(okHandler).ServeHTTP(w, r)
	assert.Equal(t, "max-age=63072000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))

	dev := DefaultSecureHeaders()
	dev.DevMode = true
	w = httptest.NewRecorder()
	dev.Handler(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestOTelMiddlewareRoutePattern(t *testing.T) {
	var route string
	router := chi.NewRouter()
	router.Use(NewOTelMiddleware(nil, nil).Handler)
	router.Get("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		route = routePattern(r)
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "/sessions/{id}", route)
	assert.Equal(t, "unmatched", routePattern(httptest.NewRequest(http.MethodGet, "/x", nil)))

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusCreated, rw.statusCode)
}

func TestValidatorDecodeJSON(t *testing.T) {
	v := NewValidator(0)

	tests := []struct {
		name      string
		body      string
		wantErr   bool
		wantCode  string
		wantField string
	}{
		{
			name: "valid",
			body: `{"test_cohort":"treat","control_cohort":"ctrl","group_by_column":"city","metric_aggregations":[{"column":"x","agg_func":"sum"}]}`,
		},
		{
			name:     "malformed",
			body:     `{"test_cohort":`,
			wantErr:  true,
			wantCode: apierrors.CodeInvalidJSON,
		},
		{
			name:      "missing field",
			body:      `{"control_cohort":"ctrl","group_by_column":"city","metric_aggregations":[{"column":"x","agg_func":"sum"}]}`,
			wantErr:   true,
			wantCode:  apierrors.CodeValidationFailed,
			wantField: "test_cohort",
		},
		{
			name:      "bad nested date",
			body:      `{"pre_period":{"start_date":"01/02/2025"},"test_cohort":"t","control_cohort":"c","group_by_column":"city","metric_aggregations":[{"column":"x","agg_func":"sum"}]}`,
			wantErr:   true,
			wantCode:  apierrors.CodeValidationFailed,
			wantField: "pre_period.start_date",
		},
		{
			name:      "bad aggregation",
			body:      `{"test_cohort":"t","control_cohort":"c","group_by_column":"city","metric_aggregations":[{"column":"x","agg_func":"mode"}]}`,
			wantErr:   true,
			wantCode:  apierrors.CodeValidationFailed,
			wantField: "metric_aggregations[0].agg_func",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var req api.CaptainLevelRequest
			err := v.DecodeJSON(httptest.NewRecorder(), r, &req)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "treat", req.TestCohort)
				return
			}
			var apiErr *apierrors.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
			if tt.wantField != "" {
				details := apiErr.Details.(apierrors.ValidationErrors)
				require.NotEmpty(t, details.Errors)
				assert.True(t, strings.HasSuffix(details.Errors[0].Field, tt.wantField), details.Errors[0].Field)
			}
		})
	}
}

func TestValidatorBodyLimit(t *testing.T) {
	v := NewValidator(16)
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"test_cohort":"a very long cohort name"}`))

	var req api.FunnelRequest
	err := v.DecodeJSON(httptest.NewRecorder(), r, &req)
	var tooLarge *http.MaxBytesError
	assert.ErrorAs(t, err, &tooLarge)
}

func TestValidatorEmptyBody(t *testing.T) {
	v := NewValidator(0)
	r := httptest.NewRequest(http.MethodPost, "/", nil)

	var req api.FunnelRequest
	assert.NoError(t, v.DecodeJSON(httptest.NewRecorder(), r.WithContext(context.Background()), &req))
}

func TestContentTypeValidator(t *testing.T) {
	h := ContentTypeValidator("application/json", "multipart/form-data")(okHandler)

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a,b"))
	r.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
