package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "captainpulse/internal/errors"
	"captainpulse/internal/middleware"
	api "captainpulse/pkg/contracts/api/v1"
)

// WarehouseHandler handles the mobile number to AO funnel pull. Every step
// after the upload works on the funnel session named by X-Session-ID.
// Without a configured warehouse the lookups answer 503.
type WarehouseHandler struct {
	service        WarehouseServiceInterface
	validator      *middleware.Validator
	logger         *slog.Logger
	errorHandler   *apierrors.ErrorHandler
	maxUploadBytes int64
}

// NewWarehouseHandler creates a new warehouse handler
func NewWarehouseHandler(service WarehouseServiceInterface, validator *middleware.Validator, maxUploadBytes int64, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *WarehouseHandler {
	return &WarehouseHandler{
		service:        service,
		validator:      validator,
		logger:         logger.With(slog.String("handler", "warehouse")),
		errorHandler:   errorHandler,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes returns the warehouse routes
func (h *WarehouseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/mobile-numbers", h.UploadMobileNumbers)
	r.Post("/captain-ids", h.CaptainIDs)
	r.Post("/ao-funnel", h.AOFunnel)
	r.Post("/use-for-analysis", h.UseForAnalysis)
	r.Get("/export", h.Export)

	return r
}

// UploadMobileNumbers handles POST /api/v1/warehouse/mobile-numbers
func (h *WarehouseHandler) UploadMobileNumbers(w http.ResponseWriter, r *http.Request) {
	file, err := formFile(w, r, h.maxUploadBytes)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer file.Close()

	resp, err := h.service.UploadMobileNumbers(r.Context(), file.name, file.body)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	w.Header().Set(SessionIDHeader, resp.FunnelSessionID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// CaptainIDs handles POST /api/v1/warehouse/captain-ids
func (h *WarehouseHandler) CaptainIDs(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.CaptainIDs(r.Context(), sessionID(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// AOFunnel handles POST /api/v1/warehouse/ao-funnel
func (h *WarehouseHandler) AOFunnel(w http.ResponseWriter, r *http.Request) {
	var req api.AOFunnelRequest
	if err := h.validator.DecodeJSON(w, r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	resp, err := h.service.AOFunnel(r.Context(), sessionID(r), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// UseForAnalysis handles POST /api/v1/warehouse/use-for-analysis. The
// response names the new analysis session.
func (h *WarehouseHandler) UseForAnalysis(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.UseForAnalysis(r.Context(), sessionID(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "funnel data promoted to analysis session",
		slog.String("funnel_session_id", sessionID(r)),
		slog.String("session_id", resp.SessionID))
	w.Header().Set(SessionIDHeader, resp.SessionID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// Export handles GET /api/v1/warehouse/export
func (h *WarehouseHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	err := writeCSV(w, "ao_funnel_"+id+".csv", func(out io.Writer) error {
		return h.service.ExportCSV(r.Context(), id, out)
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
	}
}
