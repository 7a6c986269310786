package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"captainpulse/internal/services"
	"captainpulse/pkg/contracts"
)

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	service HealthServiceInterface
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service HealthServiceInterface, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/v1/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.ReadinessCheck(w, r)
}

// ReadinessCheck handles GET /api/v1/health/ready. A degraded service still
// answers 200 so that uploads keep being routed to it.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	resp := h.service.Ready(r.Context())
	if resp.Status == services.StatusDegraded {
		h.logger.WarnContext(r.Context(), "readiness degraded", slog.Any("checks", resp.Checks))
	}
	render.JSON(w, r, resp)
}

// LivenessCheck handles GET /api/v1/health/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Live(r.Context()))
}

// Version handles GET /api/v1/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	info := contracts.GetVersionInfo()
	info.Version = h.service.Version()
	render.JSON(w, r, info)
}
