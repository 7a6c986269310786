package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"captainpulse/internal/config"
	"captainpulse/internal/infrastructure"
	"captainpulse/internal/report"
	api "captainpulse/pkg/contracts/api/v1"
)

// Report export formats
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
	FormatXLSX     = "xlsx"
	FormatCSV      = "csv"
)

// ReportExport is a rendered report document
type ReportExport struct {
	ContentType string
	Filename    string
	Body        []byte
}

// ReportService builds and exports reports
type ReportService struct {
	store   *report.Store
	maxRows int
	metrics *infrastructure.AnalyticsMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewReportService creates a report service. metrics may be nil.
func NewReportService(store *report.Store, cfg config.AnalyticsConfig, metrics *infrastructure.AnalyticsMetrics, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{
		store:   store,
		maxRows: cfg.ReportTableRowLimit,
		metrics: metrics,
		logger:  logger.With(slog.String("service", "report")),
		now:     time.Now,
	}
}

// Create starts an empty report
func (s *ReportService) Create(ctx context.Context) *api.ReportCreateResponse {
	r := s.store.Create()
	s.logger.InfoContext(ctx, "report created", slog.String("report_id", r.ID))
	return &api.ReportCreateResponse{ReportID: r.ID}
}

// AddItem appends an item, creating the report when reportID is empty or
// unknown.
func (s *ReportService) AddItem(ctx context.Context, reportID string, req api.ReportAddRequest) (*api.ReportAddResponse, error) {
	r, item, err := s.store.AddItem(reportID, report.Item{
		Type:    report.ItemType(req.Type),
		Title:   req.Title,
		Content: req.Content,
		Comment: req.Comment,
	})
	if err != nil {
		return nil, mapReportError(err)
	}
	s.logger.InfoContext(ctx, "report item added",
		slog.String("report_id", r.ID),
		slog.String("item_id", item.ID),
		slog.String("type", req.Type))
	return &api.ReportAddResponse{ReportID: r.ID, ItemID: item.ID, NumItems: len(r.Items)}, nil
}

// UpdateComment replaces the comment of an item
func (s *ReportService) UpdateComment(ctx context.Context, reportID string, req api.ReportUpdateCommentRequest) error {
	return mapReportError(s.store.UpdateComment(reportID, req.ItemID, req.Comment))
}

// UpdateTitle replaces the title of an item
func (s *ReportService) UpdateTitle(ctx context.Context, reportID string, req api.ReportUpdateTitleRequest) error {
	return mapReportError(s.store.UpdateTitle(reportID, req.ItemID, req.Title))
}

// DeleteItem removes an item. Unknown items are ignored.
func (s *ReportService) DeleteItem(ctx context.Context, reportID, itemID string) (*api.ReportDeleteResponse, error) {
	left, err := s.store.DeleteItem(reportID, itemID)
	if err != nil {
		return nil, mapReportError(err)
	}
	return &api.ReportDeleteResponse{OK: true, NumItems: left}, nil
}

// List returns the items of a report. Unknown ids yield an empty report.
func (s *ReportService) List(ctx context.Context, reportID string) *report.Report {
	return s.store.List(reportID)
}

// Clear removes a report
func (s *ReportService) Clear(ctx context.Context, reportID string) error {
	return mapReportError(s.store.Clear(reportID))
}

// Len returns the number of reports held
func (s *ReportService) Len() int {
	return s.store.Len()
}

// Export renders a report. An empty format selects HTML.
func (s *ReportService) Export(ctx context.Context, reportID string, req api.ReportExportRequest) (*ReportExport, error) {
	format := req.Format
	if format == "" {
		format = FormatHTML
	}
	ctx, span := infrastructure.StartSpan(ctx, "report.export",
		attribute.String("report_id", reportID),
		attribute.String("format", format))
	defer span.End()

	r, err := s.store.Get(reportID)
	if err != nil {
		return nil, mapReportError(err)
	}

	now := s.now()
	opts := report.Options{Title: req.Title, GeneratedAt: now, MaxRows: s.maxRows}
	stamp := now.Format("20060102_150405")
	out := &ReportExport{}
	var buf bytes.Buffer
	switch format {
	case FormatHTML:
		err = report.RenderHTML(&buf, r, opts)
		out.ContentType, out.Filename = "text/html; charset=utf-8", "experiment_report_"+stamp+".html"
	case FormatMarkdown:
		err = report.RenderMarkdown(&buf, r, opts)
		out.ContentType, out.Filename = "text/markdown; charset=utf-8", "experiment_report_"+stamp+".md"
	case FormatXLSX:
		err = report.RenderXLSX(&buf, r, opts)
		out.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		out.Filename = "experiment_report_" + stamp + ".xlsx"
	case FormatCSV:
		err = report.RenderCSV(&buf, r)
		out.ContentType, out.Filename = "text/csv; charset=utf-8", "experiment_report_"+stamp+".csv"
	default:
		return nil, fmt.Errorf("%w: export format %q", ErrInvalidRequest, format)
	}
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return nil, err
	}
	out.Body = buf.Bytes()

	s.metrics.RecordReportExport(ctx, format)
	s.logger.InfoContext(ctx, "report exported",
		slog.String("report_id", reportID),
		slog.String("format", format),
		slog.Int("items", len(r.Items)),
		slog.Int("bytes", len(out.Body)))
	return out, nil
}

func mapReportError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, report.ErrReportNotFound):
		return ErrReportNotFound
	case errors.Is(err, report.ErrItemNotFound):
		return fmt.Errorf("%w: %w", ErrReportItemNotFound, err)
	case errors.Is(err, report.ErrInvalidItem):
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return err
}
