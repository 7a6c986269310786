package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "captainpulse/internal/errors"
	api "captainpulse/pkg/contracts/api/v1"
)

// SessionHandler handles dataset upload and session lifecycle requests
type SessionHandler struct {
	service        SessionServiceInterface
	logger         *slog.Logger
	errorHandler   *apierrors.ErrorHandler
	maxUploadBytes int64
}

// NewSessionHandler creates a new session handler. A non-positive
// maxUploadBytes disables the upload limit.
func NewSessionHandler(service SessionServiceInterface, maxUploadBytes int64, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *SessionHandler {
	return &SessionHandler{
		service:        service,
		logger:         logger.With(slog.String("handler", "session")),
		errorHandler:   errorHandler,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes returns the session routes
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/", h.Upload)
	r.Delete("/", h.Delete)
	r.Get("/meta", h.Meta)
	r.Get("/export", h.Export)

	return r
}

// Upload handles POST /api/v1/sessions
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	file, err := formFile(w, r, h.maxUploadBytes)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer file.Close()

	resp, err := h.service.Upload(r.Context(), file.name, file.body)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "dataset uploaded",
		slog.String("session_id", resp.SessionID),
		slog.String("filename", file.name),
		slog.Int("rows", resp.NumRows))
	w.Header().Set(SessionIDHeader, resp.SessionID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// Meta handles GET /api/v1/sessions/meta
func (h *SessionHandler) Meta(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Meta(r.Context(), sessionID(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// Delete handles DELETE /api/v1/sessions
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), sessionID(r)); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, api.StatusResponse{OK: true})
}

// Export handles GET /api/v1/sessions/export
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	err := writeCSV(w, "session_"+id+".csv", func(out io.Writer) error {
		return h.service.ExportCSV(r.Context(), id, out)
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
	}
}
