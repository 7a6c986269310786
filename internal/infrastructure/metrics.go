package infrastructure

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AnalyticsMetrics are the application instruments. A nil *AnalyticsMetrics
// is valid and records nothing.
type AnalyticsMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// Dataset metrics
	UploadsTotal   metric.Int64Counter
	RowsIngested   metric.Int64Counter
	ActiveSessions metric.Int64UpDownCounter

	// Analysis metrics
	AnalysesTotal    metric.Int64Counter
	AnalysisDuration metric.Float64Histogram
	AnalysisErrors   metric.Int64Counter

	// Warehouse and report metrics
	WarehousePulls metric.Int64Counter
	ReportExports  metric.Int64Counter
}

// CreateAnalyticsMetrics creates the application instruments on meter
func CreateAnalyticsMetrics(meter metric.Meter) (*AnalyticsMetrics, error) {
	var (
		m   AnalyticsMetrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.HTTPRequestsTotal, "http_requests_total", "Total number of HTTP requests"},
		{&m.UploadsTotal, "dataset_uploads_total", "Datasets stored in sessions"},
		{&m.RowsIngested, "dataset_rows_ingested_total", "Rows read from uploads and warehouse pulls"},
		{&m.AnalysesTotal, "analyses_total", "Analysis operations executed"},
		{&m.AnalysisErrors, "analysis_errors_total", "Analysis operations that failed"},
		{&m.WarehousePulls, "warehouse_pulls_total", "Warehouse queries executed"},
		{&m.ReportExports, "report_exports_total", "Reports exported"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
	}

	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.AnalysisDuration, err = meter.Float64Histogram(
		"analysis_duration_seconds",
		metric.WithDescription("Analysis operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	); err != nil {
		return nil, err
	}
	if m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	); err != nil {
		return nil, err
	}
	if m.ActiveSessions, err = meter.Int64UpDownCounter(
		"active_sessions",
		metric.WithDescription("Datasets currently held in memory"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordAnalysis records one analysis operation
func (m *AnalyticsMetrics) RecordAnalysis(ctx context.Context, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("operation", operation)}
	m.AnalysesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	status := attribute.String("status", "success")
	if err != nil {
		status = attribute.String("status", "failure")
		m.AnalysisErrors.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("error.type", fmt.Sprintf("%T", err)))...))
	}
	m.AnalysisDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(append(attrs, status)...))
}

// RecordUpload records a dataset stored from source ("upload", "warehouse")
func (m *AnalyticsMetrics) RecordUpload(ctx context.Context, source string, rows int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("source", source))
	m.UploadsTotal.Add(ctx, 1, attrs)
	m.RowsIngested.Add(ctx, int64(rows), attrs)
}

// RecordWarehousePull records one warehouse query
func (m *AnalyticsMetrics) RecordWarehousePull(ctx context.Context, query string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.WarehousePulls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("query", query),
		attribute.String("status", status),
	))
}

// RecordReportExport records one report export
func (m *AnalyticsMetrics) RecordReportExport(ctx context.Context, format string) {
	if m == nil {
		return
	}
	m.ReportExports.Add(ctx, 1, metric.WithAttributes(attribute.String("format", format)))
}

// RecordSessionChange tracks the number of live sessions
func (m *AnalyticsMetrics) RecordSessionChange(ctx context.Context, delta int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, int64(delta))
}

// RecordHTTPRequest records a finished HTTP request
func (m *AnalyticsMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
}
