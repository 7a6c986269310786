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

// ReportHandler handles experiment report requests. The report is
// addressed by the X-Report-ID header.
type ReportHandler struct {
	service      ReportServiceInterface
	validator    *middleware.Validator
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewReportHandler creates a new report handler
func NewReportHandler(service ReportServiceInterface, validator *middleware.Validator, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ReportHandler {
	return &ReportHandler{
		service:      service,
		validator:    validator,
		logger:       logger.With(slog.String("handler", "report")),
		errorHandler: errorHandler,
	}
}

// Routes returns the report routes
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/", h.Create)
	r.Delete("/", h.Clear)
	r.Get("/export", h.Export)

	r.Route("/items", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.AddItem)
		r.Put("/comment", h.UpdateComment)
		r.Put("/title", h.UpdateTitle)
		r.Delete("/{itemID}", h.DeleteItem)
	})

	return r
}

// Create handles POST /api/v1/reports
func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	resp := h.service.Create(r.Context())
	w.Header().Set(ReportIDHeader, resp.ReportID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// AddItem handles POST /api/v1/reports/items. Without a known report id a
// new report is started.
func (h *ReportHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req api.ReportAddRequest
	if err := h.validator.DecodeJSON(w, r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	resp, err := h.service.AddItem(r.Context(), reportID(r), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	w.Header().Set(ReportIDHeader, resp.ReportID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// UpdateComment handles PUT /api/v1/reports/items/comment
func (h *ReportHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	var req api.ReportUpdateCommentRequest
	if err := h.validator.DecodeJSON(w, r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if err := h.service.UpdateComment(r.Context(), reportID(r), req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, api.StatusResponse{OK: true})
}

// UpdateTitle handles PUT /api/v1/reports/items/title
func (h *ReportHandler) UpdateTitle(w http.ResponseWriter, r *http.Request) {
	var req api.ReportUpdateTitleRequest
	if err := h.validator.DecodeJSON(w, r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if err := h.service.UpdateTitle(r.Context(), reportID(r), req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, api.StatusResponse{OK: true})
}

// DeleteItem handles DELETE /api/v1/reports/items/{itemID}
func (h *ReportHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.DeleteItem(r.Context(), reportID(r), chi.URLParam(r, "itemID"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// List handles GET /api/v1/reports/items
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.List(r.Context(), reportID(r)))
}

// Clear handles DELETE /api/v1/reports
func (h *ReportHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context(), reportID(r)); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, api.StatusResponse{OK: true})
}

// Export handles GET /api/v1/reports/export?format=html|markdown|xlsx|csv
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := api.ReportExportRequest{
		Format: query.Get("format"),
		Title:  query.Get("title"),
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	doc, err := h.service.Export(r.Context(), reportID(r), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "report exported",
		slog.String("filename", doc.Filename),
		slog.Int("bytes", len(doc.Body)))
	writeAttachment(w, doc.ContentType, doc.Filename, doc.Body)
}
