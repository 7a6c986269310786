package http

import (
	"context"
	"io"

	"captainpulse/internal/report"
	"captainpulse/internal/services"
	"captainpulse/internal/stattest"
	api "captainpulse/pkg/contracts/api/v1"
)

// SessionServiceInterface defines the dataset session operations
type SessionServiceInterface interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*api.UploadResponse, error)
	Meta(ctx context.Context, id string) (*api.UploadResponse, error)
	Delete(ctx context.Context, id string) error
	ExportCSV(ctx context.Context, id string, w io.Writer) error
}

// AnalysisServiceInterface defines the cohort analyses
type AnalysisServiceInterface interface {
	Metrics(ctx context.Context, sessionID string, req api.MetricsRequest) (*api.MetricsResponse, error)
	Funnel(ctx context.Context, sessionID string, req api.FunnelRequest) (*api.FunnelResponse, error)
	CaptainLevel(ctx context.Context, sessionID string, req api.CaptainLevelRequest) (*api.CaptainLevelResponse, error)
	CohortAggregation(ctx context.Context, sessionID string) (*api.CohortAggregationResponse, error)
	StatTest(ctx context.Context, req api.StatTestRequest) (*stattest.Result, error)
	StatTests() []stattest.Definition
}

// ReportServiceInterface defines the report builder operations
type ReportServiceInterface interface {
	Create(ctx context.Context) *api.ReportCreateResponse
	AddItem(ctx context.Context, reportID string, req api.ReportAddRequest) (*api.ReportAddResponse, error)
	UpdateComment(ctx context.Context, reportID string, req api.ReportUpdateCommentRequest) error
	UpdateTitle(ctx context.Context, reportID string, req api.ReportUpdateTitleRequest) error
	DeleteItem(ctx context.Context, reportID, itemID string) (*api.ReportDeleteResponse, error)
	List(ctx context.Context, reportID string) *report.Report
	Clear(ctx context.Context, reportID string) error
	Export(ctx context.Context, reportID string, req api.ReportExportRequest) (*services.ReportExport, error)
}

// WarehouseServiceInterface defines the warehouse pull operations
type WarehouseServiceInterface interface {
	UploadMobileNumbers(ctx context.Context, filename string, r io.Reader) (*api.MobileNumberUploadResponse, error)
	CaptainIDs(ctx context.Context, sessionID string) (*api.CaptainIDResponse, error)
	AOFunnel(ctx context.Context, sessionID string, req api.AOFunnelRequest) (*api.AOFunnelResponse, error)
	UseForAnalysis(ctx context.Context, sessionID string) (*api.UploadResponse, error)
	ExportCSV(ctx context.Context, sessionID string, w io.Writer) error
}

// HealthServiceInterface defines the health checks
type HealthServiceInterface interface {
	Live(ctx context.Context) *api.HealthResponse
	Ready(ctx context.Context) *api.HealthResponse
	Version() string
}
