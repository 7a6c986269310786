package services

import (
	"context"
	"log/slog"
	"time"

	"captainpulse/internal/session"
	api "captainpulse/pkg/contracts/api/v1"
)

// Health states
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusDisabled  = "disabled"
	StatusUnhealthy = "unhealthy"
)

const warehousePingTimeout = 5 * time.Second

// Pinger checks the reachability of a dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReportCounter reports how many reports are held
type ReportCounter interface {
	Len() int
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	sessions  session.Store
	reports   ReportCounter
	warehouse Pinger
	startTime time.Time
	logger    *slog.Logger
}

// NewHealthService creates a health service. warehouse is nil when no
// warehouse is configured.
func NewHealthService(version string, sessions session.Store, reports ReportCounter, warehouse Pinger, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		sessions:  sessions,
		reports:   reports,
		warehouse: warehouse,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// Version returns the running version
func (s *HealthService) Version() string { return s.version }

// Uptime returns the time since the service started
func (s *HealthService) Uptime() time.Duration { return time.Since(s.startTime) }

// Live reports process liveness. It never touches dependencies.
func (s *HealthService) Live(ctx context.Context) *api.HealthResponse {
	return s.base(StatusHealthy)
}

// Ready checks the dependencies. The service is degraded, not down, when an
// enabled warehouse does not answer: uploads and analyses keep working.
func (s *HealthService) Ready(ctx context.Context) *api.HealthResponse {
	resp := s.base(StatusHealthy)
	resp.Checks = map[string]api.ComponentCheck{
		"sessions": {Status: StatusHealthy},
	}
	if s.warehouse == nil {
		resp.Checks["warehouse"] = api.ComponentCheck{Status: StatusDisabled}
		return resp
	}

	pingCtx, cancel := context.WithTimeout(ctx, warehousePingTimeout)
	defer cancel()
	if err := s.warehouse.Ping(pingCtx); err != nil {
		s.logger.WarnContext(ctx, "warehouse health check failed", slog.String("error", err.Error()))
		resp.Checks["warehouse"] = api.ComponentCheck{Status: StatusUnhealthy, Message: err.Error()}
		resp.Status = StatusDegraded
		return resp
	}
	resp.Checks["warehouse"] = api.ComponentCheck{Status: StatusHealthy}
	return resp
}

func (s *HealthService) base(status string) *api.HealthResponse {
	resp := &api.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Uptime:    s.Uptime().Truncate(time.Second).String(),
	}
	if s.sessions != nil {
		resp.Sessions = s.sessions.Len()
	}
	if s.reports != nil {
		resp.Reports = s.reports.Len()
	}
	return resp
}
