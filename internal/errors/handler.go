package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"captainpulse/internal/infrastructure"
	"captainpulse/internal/services"
	"captainpulse/internal/table"
)

// Common error types following RFC 7807
const (
	TypeValidation      = "/errors/validation"
	TypeNotFound        = "/errors/not-found"
	TypeRateLimit       = "/errors/rate-limit"
	TypeInternal        = "/errors/internal"
	TypeTimeout         = "/errors/timeout"
	TypePayloadTooLarge = "/errors/payload-too-large"
	TypeMethodNotAllow  = "/errors/method-not-allowed"
)

// Domain-specific error types
const (
	TypeSessionNotFound   = "/errors/session/not-found"
	TypeWrongSessionKind  = "/errors/session/wrong-kind"
	TypeReportNotFound    = "/errors/report/not-found"
	TypeReportItemMissing = "/errors/report/item-not-found"
	TypeMissingColumns    = "/errors/data/missing-columns"
	TypeUnknownColumn     = "/errors/data/unknown-column"
	TypeInvalidDates      = "/errors/data/invalid-dates"
	TypeInvalidDataset    = "/errors/data/invalid-dataset"
	TypeNoData            = "/errors/data/no-data"
	TypeUnknownTest       = "/errors/stattest/unknown-test"
	TypeWarehouseDown     = "/errors/warehouse/unavailable"
	TypeWarehouseQuery    = "/errors/warehouse/query-failed"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := requestID(r.Context())
	problem := h.ErrorToProblem(err, r)
	problem.WithExtension("trace_id", reqID)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	if h.includeStack && problem.Status >= http.StatusInternalServerError {
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	path := r.URL.Path

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			path,
		)
	}

	var problem *ProblemDetails
	if errors.As(err, &problem) {
		return problem
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return h.apiErrorToProblem(apiErr, r)
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return NewProblemDetails(
			http.StatusRequestEntityTooLarge,
			TypePayloadTooLarge,
			"Payload Too Large",
			"The request body exceeds the maximum allowed size",
			path,
		).WithExtension("max_bytes", tooLarge.Limit)
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make([]ValidationError, 0, len(validationErrs))
		for _, fe := range validationErrs {
			fields = append(fields, ValidationError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()),
			})
		}
		return NewProblemDetails(http.StatusBadRequest, TypeValidation, "Validation Failed", "Request validation failed", path).
			WithExtension("errors", fields)
	}

	if p := tableProblem(err, path); p != nil {
		return p
	}

	for _, m := range sentinelProblems {
		for _, target := range m.errs {
			if errors.Is(err, target) {
				return NewProblemDetails(m.status, m.problemType, m.title, err.Error(), path)
			}
		}
	}

	return NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred while processing your request",
		path,
	)
}

// sentinelProblem maps service sentinel errors onto one problem shape
type sentinelProblem struct {
	errs        []error
	status      int
	problemType string
	title       string
}

// sentinelProblems is checked in order; the first match wins.
var sentinelProblems = []sentinelProblem{
	{[]error{services.ErrSessionNotFound}, http.StatusNotFound, TypeSessionNotFound, "Session Not Found"},
	{[]error{services.ErrReportNotFound}, http.StatusNotFound, TypeReportNotFound, "Report Not Found"},
	{[]error{services.ErrReportItemNotFound}, http.StatusNotFound, TypeReportItemMissing, "Report Item Not Found"},
	{[]error{services.ErrWrongSessionKind}, http.StatusBadRequest, TypeWrongSessionKind, "Wrong Session Kind"},
	{[]error{services.ErrUnsupportedFormat, services.ErrEmptyDataset}, http.StatusBadRequest, TypeInvalidDataset, "Invalid Dataset"},
	{[]error{services.ErrNoMetrics, services.ErrNoCohortData, table.ErrEmptyResult}, http.StatusBadRequest, TypeNoData, "No Data"},
	{[]error{services.ErrUnknownTest}, http.StatusBadRequest, TypeUnknownTest, "Unknown Statistical Test"},
	{[]error{services.ErrInvalidRequest}, http.StatusBadRequest, TypeValidation, "Bad Request"},
	{[]error{services.ErrWarehouseUnavailable}, http.StatusServiceUnavailable, TypeWarehouseDown, "Warehouse Unavailable"},
	{[]error{services.ErrWarehouseQuery}, http.StatusBadGateway, TypeWarehouseQuery, "Warehouse Query Failed"},
}

// tableProblem maps dataset schema errors, carrying their fields as
// extensions so clients can point at the offending columns.
func tableProblem(err error, path string) *ProblemDetails {
	var missing *table.MissingColumnError
	if errors.As(err, &missing) {
		return NewProblemDetails(http.StatusBadRequest, TypeMissingColumns, "Missing Columns", err.Error(), path).
			WithExtension("missing_columns", missing.Columns).
			WithExtension("any_of", missing.AnyOf)
	}
	var unknown *table.UnknownColumnError
	if errors.As(err, &unknown) {
		return NewProblemDetails(http.StatusBadRequest, TypeUnknownColumn, "Unknown Column", err.Error(), path).
			WithExtension("column", unknown.Column)
	}
	var invalid *table.InvalidDateError
	if errors.As(err, &invalid) {
		return NewProblemDetails(http.StatusBadRequest, TypeInvalidDates, "Invalid Dates", err.Error(), path).
			WithExtension("column", invalid.Column).
			WithExtension("invalid_count", invalid.Count)
	}
	return nil
}

// apiErrorToProblem turns a request decoding failure into a validation
// problem, keeping its code and details as extensions.
func (h *ErrorHandler) apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problem := NewProblemDetails(
		apiErr.StatusCode,
		TypeValidation,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// HandlePanic responds to a recovered panic with a 500 problem
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := requestID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", reqID)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	).WithExtension("trace_id", requestID(r.Context()))

	render.Render(w, r, problem)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeMethodNotAllow,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	).WithExtension("trace_id", requestID(r.Context()))

	render.Render(w, r, problem)
}

// Recoverer returns middleware that turns panics into problem responses
func (h *ErrorHandler) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.HandlePanic(w, r, rec)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// JSON writes v with the given status
func (h *ErrorHandler) JSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func requestID(ctx context.Context) string {
	if id := infrastructure.GetTraceID(ctx); id != "" {
		return id
	}
	return middleware.GetReqID(ctx)
}

func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
