package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"captainpulse/internal/config"
	"captainpulse/internal/infrastructure"
	"captainpulse/internal/ingest"
	"captainpulse/internal/session"
	"captainpulse/internal/table"
	"captainpulse/internal/warehouse"
	api "captainpulse/pkg/contracts/api/v1"
)

const (
	colMobileNumber = "mobile_number"
	colCity         = "city"

	mobilePreviewRows = 5
	funnelPreviewRows = 10
)

// identifierColumns are never reported as metrics of warehouse data
var identifierColumns = []string{
	colMobileNumber, table.ColCaptainID, table.ColCohort, colCity, table.ColTime, table.ColDate,
}

// WarehouseClient is the warehouse access used by WarehouseService
type WarehouseClient interface {
	CaptainIDs(ctx context.Context, mobiles []string) (*table.Table, error)
	AOFunnel(ctx context.Context, q warehouse.FunnelQuery) (*table.Table, error)
	Ping(ctx context.Context) error
}

// WarehouseService stages mobile number lists, enriches them from the
// warehouse and promotes the result to an analysis session.
type WarehouseService struct {
	store    session.Store
	client   WarehouseClient
	sessions *SessionService
	metrics  *infrastructure.AnalyticsMetrics
	logger   *slog.Logger
}

// NewWarehouseService creates a warehouse service. client is nil when no
// warehouse is configured; uploads and promotion still work.
func NewWarehouseService(store session.Store, client WarehouseClient, sessions *SessionService, metrics *infrastructure.AnalyticsMetrics, logger *slog.Logger) *WarehouseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WarehouseService{
		store:    store,
		client:   client,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger.With(slog.String("service", "warehouse")),
	}
}

// Ping checks the warehouse connection
func (s *WarehouseService) Ping(ctx context.Context) error {
	if s.client == nil {
		return ErrWarehouseUnavailable
	}
	return s.client.Ping(ctx)
}

// UploadMobileNumbers stores a mobile number list in a new funnel session.
// Duplicate (mobile_number[, cohort]) rows are dropped, keeping the first.
func (s *WarehouseService) UploadMobileNumbers(ctx context.Context, filename string, r io.Reader) (*api.MobileNumberUploadResponse, error) {
	ctx, span := infrastructure.StartSpan(ctx, "warehouse.upload_mobile_numbers", attribute.String("filename", filename))
	defer span.End()

	t, err := ingest.Parse(filename, r)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		if errors.Is(err, ingest.ErrUnsupportedFormat) {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := table.Require(t, colMobileNumber); err != nil {
		return nil, err
	}
	keys := []string{colMobileNumber}
	hasCohort := t.Has(table.ColCohort)
	if hasCohort {
		keys = append(keys, table.ColCohort)
	}
	for _, k := range keys {
		if c := t.Column(k); c.Kind() != table.Categorical {
			if t, err = t.WithColumn(c.ToCategorical()); err != nil {
				return nil, err
			}
		}
	}

	deduped, err := table.DropDuplicates(t, keys...)
	if err != nil {
		return nil, err
	}
	sess, err := s.store.Create(session.KindFunnel, filename, deduped)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordUpload(ctx, "mobile_numbers", deduped.Len())
	s.logger.InfoContext(ctx, "mobile numbers uploaded",
		slog.String("session_id", sess.ID),
		slog.Int("rows", deduped.Len()),
		slog.Int("duplicates_removed", t.Len()-deduped.Len()))

	return &api.MobileNumberUploadResponse{
		FunnelSessionID:   sess.ID,
		NumRows:           deduped.Len(),
		Columns:           deduped.Columns(),
		HasCohort:         hasCohort,
		Preview:           previewRows(deduped, mobilePreviewRows),
		DuplicatesRemoved: t.Len() - deduped.Len(),
	}, nil
}

// CaptainIDs looks up the captain id of every staged mobile number and
// left-joins it onto the session. Unmatched numbers keep a null captain_id.
func (s *WarehouseService) CaptainIDs(ctx context.Context, sessionID string) (_ *api.CaptainIDResponse, err error) {
	ctx, span := infrastructure.StartSpan(ctx, "warehouse.captain_ids", attribute.String("session_id", sessionID))
	defer span.End()
	defer func() { s.metrics.RecordWarehousePull(ctx, "captain_ids", err) }()

	if s.client == nil {
		return nil, ErrWarehouseUnavailable
	}
	sess, err := resolveSession(s.store, sessionID, session.KindFunnel)
	if err != nil {
		return nil, err
	}
	staged := sess.Table
	if err := table.Require(staged, colMobileNumber); err != nil {
		return nil, err
	}
	// a repeated lookup replaces the previous result
	staged = staged.Drop(table.ColCaptainID)

	found, err := s.client.CaptainIDs(ctx, nonNullStrings(staged.Column(colMobileNumber)))
	if err != nil {
		return nil, warehouseError(ctx, err)
	}
	infrastructure.AddSpanEvent(ctx, "warehouse.rows_returned", map[string]interface{}{"rows": found.Len()})
	found, err = found.Select(colMobileNumber, table.ColCaptainID)
	if err != nil {
		return nil, err
	}
	joined, err := table.Join(staged, found, colMobileNumber, table.LeftJoin)
	if err != nil {
		return nil, err
	}
	if err := s.store.Replace(sess.ID, joined); err != nil {
		return nil, err
	}

	numFound := len(distinctNonNull(joined.Column(table.ColCaptainID)))
	s.logger.InfoContext(ctx, "captain ids resolved",
		slog.String("session_id", sess.ID),
		slog.Int("rows", joined.Len()),
		slog.Int("captains_found", numFound))
	return &api.CaptainIDResponse{
		NumRows:          joined.Len(),
		NumCaptainsFound: numFound,
		Preview:          previewRows(joined, mobilePreviewRows),
	}, nil
}

// AOFunnel pulls the AO funnel for the session's captains and inner-joins it
// onto the staged rows. The result gets a date column and a default cohort.
func (s *WarehouseService) AOFunnel(ctx context.Context, sessionID string, req api.AOFunnelRequest) (_ *api.AOFunnelResponse, err error) {
	ctx, span := infrastructure.StartSpan(ctx, "warehouse.ao_funnel",
		attribute.String("session_id", sessionID),
		attribute.String("start_date", req.StartDate),
		attribute.String("end_date", req.EndDate))
	defer span.End()
	defer func() { s.metrics.RecordWarehousePull(ctx, "ao_funnel", err) }()

	if s.client == nil {
		return nil, ErrWarehouseUnavailable
	}
	sess, err := resolveSession(s.store, sessionID, session.KindFunnel)
	if err != nil {
		return nil, err
	}
	staged := sess.Table
	if err := table.Require(staged, table.ColCaptainID); err != nil {
		return nil, fmt.Errorf("%w: look up captain ids first", err)
	}
	ids := nonNullStrings(staged.Column(table.ColCaptainID))
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no valid captain ids in session", ErrInvalidRequest)
	}

	pulled, err := s.client.AOFunnel(ctx, warehouse.FunnelQuery{
		CaptainIDs: ids,
		Start:      req.StartDate,
		End:        req.EndDate,
		TimeLevel:  req.TimeLevel,
		TODLevel:   req.TODLevel,
	})
	if err != nil {
		return nil, warehouseError(ctx, err)
	}
	// keep the pulled measures when both sides carry a column
	var overlap []string
	for _, c := range pulled.Columns() {
		if c != table.ColCaptainID && staged.Has(c) {
			overlap = append(overlap, c)
		}
	}
	joined, err := table.Join(staged.Drop(overlap...), pulled, table.ColCaptainID, table.InnerJoin)
	if err != nil {
		return nil, err
	}
	dated, _, err := withFunnelDates(joined)
	switch {
	case err == nil:
		joined = dated
	case !isMissingDate(err):
		return nil, err
	}
	if joined, err = withDefaultCohort(joined); err != nil {
		return nil, err
	}
	if err := s.store.Replace(sess.ID, joined); err != nil {
		return nil, err
	}

	uniqueIDs := len(distinctNonNull(joined.Column(table.ColCaptainID)))
	s.logger.InfoContext(ctx, "AO funnel pulled",
		slog.String("session_id", sess.ID),
		slog.Int("rows", joined.Len()),
		slog.Int("captains", uniqueIDs))
	return &api.AOFunnelResponse{
		NumRows:          joined.Len(),
		Columns:          joined.Columns(),
		Preview:          previewRows(joined, funnelPreviewRows),
		Metrics:          metricColumns(joined),
		UniqueCaptainIDs: uniqueIDs,
	}, nil
}

// UseForAnalysis copies the funnel data into a new analysis session. Rows
// whose date cannot be read are dropped.
func (s *WarehouseService) UseForAnalysis(ctx context.Context, sessionID string) (*api.UploadResponse, error) {
	ctx, span := infrastructure.StartSpan(ctx, "warehouse.use_for_analysis", attribute.String("session_id", sessionID))
	defer span.End()

	sess, err := resolveSession(s.store, sessionID, session.KindFunnel)
	if err != nil {
		return nil, err
	}
	t, dropped, err := withFunnelDates(sess.Table)
	if err != nil {
		return nil, err
	}
	if t, err = withDefaultCohort(t); err != nil {
		return nil, err
	}
	if dropped > 0 {
		dates := t.Column(table.ColDate)
		t = t.Filter(func(row int) bool { return !dates.IsNull(row) })
		s.logger.WarnContext(ctx, "dropped rows with invalid dates",
			slog.String("session_id", sessionID),
			slog.Int("rows", dropped))
	}

	resp, err := s.sessions.FromTable(ctx, "warehouse", t)
	if err != nil {
		return nil, err
	}
	resp.Metrics = slices.DeleteFunc(resp.Metrics, func(c string) bool {
		return slices.Contains(identifierColumns, c)
	})
	return resp, nil
}

// ExportCSV writes the funnel session as CSV
func (s *WarehouseService) ExportCSV(ctx context.Context, sessionID string, w io.Writer) error {
	if _, err := resolveSession(s.store, sessionID, session.KindFunnel); err != nil {
		return err
	}
	return s.sessions.ExportCSV(ctx, sessionID, w)
}

// withFunnelDates derives a date column from time (YYYYMMDD) when no date
// column exists, or normalises the existing one. Unreadable cells become
// null and are counted.
func withFunnelDates(t *table.Table) (*table.Table, int, error) {
	var (
		col     *table.Column
		invalid int
	)
	switch {
	case t.Has(table.ColDate):
		col, invalid = table.CoerceDates(t.Column(table.ColDate), table.ColDate, table.ParseDate)
	case t.Has(table.ColTime):
		col, invalid = table.CoerceDates(t.Column(table.ColTime), table.ColDate, table.ParseCompactDate)
	default:
		return t, 0, &table.MissingColumnError{Columns: []string{table.ColDate, table.ColTime}, AnyOf: true}
	}
	out, err := t.WithColumn(col)
	if err != nil {
		return nil, 0, err
	}
	return out, invalid, nil
}

func isMissingDate(err error) bool {
	var missing *table.MissingColumnError
	return errors.As(err, &missing)
}

func withDefaultCohort(t *table.Table) (*table.Table, error) {
	if c := t.Column(table.ColCohort); c != nil {
		if c.Kind() == table.Categorical {
			return t, nil
		}
		return t.WithColumn(c.ToCategorical())
	}
	labels := make([]string, t.Len())
	for i := range labels {
		labels[i] = config.DefaultCohort
	}
	return t.WithColumn(table.NewCategorical(table.ColCohort, labels, nil))
}

func metricColumns(t *table.Table) []string {
	out := []string{}
	for _, c := range t.Columns() {
		if !slices.Contains(identifierColumns, c) {
			out = append(out, c)
		}
	}
	return out
}

func warehouseError(ctx context.Context, err error) error {
	infrastructure.RecordError(ctx, err)
	switch {
	case errors.Is(err, warehouse.ErrInvalidQuery), errors.Is(err, warehouse.ErrNoIdentifiers):
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	case errors.Is(err, warehouse.ErrNotConnected):
		return fmt.Errorf("%w: %w", ErrWarehouseUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrWarehouseQuery, err)
}

func nonNullStrings(c *table.Column) []string {
	out := make([]string, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		if !c.IsNull(i) {
			out = append(out, c.String(i))
		}
	}
	return out
}

func distinctNonNull(c *table.Column) []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) || seen[c.String(i)] {
			continue
		}
		seen[c.String(i)] = true
		out = append(out, c.String(i))
	}
	return out
}
