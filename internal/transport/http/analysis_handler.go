package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "captainpulse/internal/errors"
	"captainpulse/internal/middleware"
	api "captainpulse/pkg/contracts/api/v1"
)

// AnalysisHandler exposes the cohort analyses over the session dataset
type AnalysisHandler struct {
	service      AnalysisServiceInterface
	validator    *middleware.Validator
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(service AnalysisServiceInterface, validator *middleware.Validator, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *AnalysisHandler {
	return &AnalysisHandler{
		service:      service,
		validator:    validator,
		logger:       logger.With(slog.String("handler", "analysis")),
		errorHandler: errorHandler,
	}
}

// Routes returns the analysis routes
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/metrics", h.Metrics)
	r.Post("/funnel", h.Funnel)
	r.Post("/captain-level", h.CaptainLevel)
	r.Get("/cohort-aggregation", h.CohortAggregation)
	r.Post("/statistical-test", h.StatTest)
	r.Get("/statistical-tests", h.StatTests)

	return r
}

// Metrics handles POST /api/v1/analysis/metrics
func (h *AnalysisHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	var req api.MetricsRequest
	if err := h.validator.DecodeJSON(w, r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	resp, err := h.service.Metrics(r.Context(), sessionID(r), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// Funnel handles POST /api/v1/analysis/funnel
func (h *AnalysisHandler) Funnel(w http.ResponseWriter, r *http.Request) {
	var req api.FunnelRequest
	if err := h.validator.DecodeJSON(w, r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	resp, err := h.service.Funnel(r.Context(), sessionID(r), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// CaptainLevel handles POST /api/v1/analysis/captain-level
func (h *AnalysisHandler) CaptainLevel(w http.ResponseWriter, r *http.Request) {
	var req api.CaptainLevelRequest
	if err := h.validator.DecodeJSON(w, r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	resp, err := h.service.CaptainLevel(r.Context(), sessionID(r), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// CohortAggregation handles GET /api/v1/analysis/cohort-aggregation
func (h *AnalysisHandler) CohortAggregation(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.CohortAggregation(r.Context(), sessionID(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// StatTest handles POST /api/v1/analysis/statistical-test. It works on the
// samples in the body and needs no session.
func (h *AnalysisHandler) StatTest(w http.ResponseWriter, r *http.Request) {
	var req api.StatTestRequest
	if err := h.validator.DecodeJSON(w, r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	result, err := h.service.StatTest(r.Context(), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// StatTests handles GET /api/v1/analysis/statistical-tests
func (h *AnalysisHandler) StatTests(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{"tests": h.service.StatTests()})
}
