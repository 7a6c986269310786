package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"captainpulse/internal/exporter"
	"captainpulse/internal/infrastructure"
	"captainpulse/internal/ingest"
	"captainpulse/internal/session"
	"captainpulse/internal/table"
	api "captainpulse/pkg/contracts/api/v1"
)

// SessionService manages uploaded datasets
type SessionService struct {
	store   session.Store
	metrics *infrastructure.AnalyticsMetrics
	logger  *slog.Logger
}

// NewSessionService creates a session service. metrics may be nil.
func NewSessionService(store session.Store, metrics *infrastructure.AnalyticsMetrics, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		store:   store,
		metrics: metrics,
		logger:  logger.With(slog.String("service", "session")),
	}
}

// Upload parses a CSV or XLSX upload, validates it and stores it in a new
// analysis session.
func (s *SessionService) Upload(ctx context.Context, filename string, r io.Reader) (*api.UploadResponse, error) {
	ctx, span := infrastructure.StartSpan(ctx, "session.upload", attribute.String("filename", filename))
	defer span.End()

	t, err := ingest.Parse(filename, r)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		switch {
		case errors.Is(err, ingest.ErrUnsupportedFormat):
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
		case errors.Is(err, ingest.ErrEmptyFile):
			return nil, fmt.Errorf("%w: %w", ErrEmptyDataset, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if t.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDataset, filename)
	}

	prepared, err := ingest.PrepareUpload(t)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return nil, err
	}
	sess, err := s.store.Create(session.KindAnalysis, filename, prepared)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordUpload(ctx, "upload", prepared.Len())
	infrastructure.SetSpanAttributes(ctx, map[string]interface{}{
		"session_id": sess.ID,
		"rows":       prepared.Len(),
		"columns":    prepared.Width(),
	})
	s.logger.InfoContext(ctx, "dataset uploaded",
		slog.String("session_id", sess.ID),
		slog.String("filename", filename),
		slog.Int("rows", prepared.Len()),
		slog.Int("columns", prepared.Width()))

	return describeSession(sess), nil
}

// FromTable validates a table produced elsewhere, such as a warehouse pull,
// and stores it in a new analysis session.
func (s *SessionService) FromTable(ctx context.Context, source string, t *table.Table) (*api.UploadResponse, error) {
	if t == nil || t.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDataset, source)
	}
	prepared, err := ingest.PrepareUpload(t)
	if err != nil {
		return nil, err
	}
	sess, err := s.store.Create(session.KindAnalysis, source, prepared)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordUpload(ctx, source, prepared.Len())
	return describeSession(sess), nil
}

// Meta describes the dataset held by an analysis session.
func (s *SessionService) Meta(ctx context.Context, id string) (*api.UploadResponse, error) {
	sess, err := resolveSession(s.store, id, session.KindAnalysis)
	if err != nil {
		return nil, err
	}
	return describeSession(sess), nil
}

// Delete removes a session. Unknown ids are ignored.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrSessionNotFound
	}
	if err := s.store.Delete(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.logger.DebugContext(ctx, "delete of unknown session", slog.String("session_id", id))
			return nil
		}
		return err
	}
	s.logger.InfoContext(ctx, "session deleted", slog.String("session_id", id))
	return nil
}

// ExportCSV writes the dataset of any session kind as CSV.
func (s *SessionService) ExportCSV(ctx context.Context, id string, w io.Writer) error {
	sess, err := resolveSession(s.store, id, "")
	if err != nil {
		return err
	}
	return exporter.WriteTable(w, sess.Table)
}

// resolveSession fetches a session and checks its kind. An empty kind
// accepts any session.
func resolveSession(store session.Store, id string, kind session.Kind) (*session.Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	sess, err := store.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
		}
		return nil, err
	}
	if kind != "" && sess.Kind != kind {
		return nil, fmt.Errorf("%w: session %q holds %s data, %s required", ErrWrongSessionKind, id, sess.Kind, kind)
	}
	return sess, nil
}

func describeSession(sess *session.Session) *api.UploadResponse {
	summary := ingest.Describe(sess.Table)
	return &api.UploadResponse{
		SessionID:          sess.ID,
		NumRows:            summary.Rows,
		Columns:            summary.Columns,
		Cohorts:            summary.Cohorts,
		DateMin:            summary.DateMin,
		DateMax:            summary.DateMax,
		Metrics:            summary.Metrics,
		CategoricalColumns: summary.CategoricalColumns,
	}
}

// previewRows returns up to n rows as JSON ready maps. Dates render as
// YYYY-MM-DD.
func previewRows(t *table.Table, n int) []map[string]any {
	if n > t.Len() {
		n = t.Len()
	}
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		row := t.Row(i)
		for k, v := range row {
			if d, ok := v.(time.Time); ok {
				row[k] = d.Format(table.DateLayout)
			}
		}
		rows = append(rows, row)
	}
	return rows
}
