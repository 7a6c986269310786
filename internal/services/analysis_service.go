package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"captainpulse/internal/analytics"
	"captainpulse/internal/config"
	"captainpulse/internal/infrastructure"
	"captainpulse/internal/session"
	"captainpulse/internal/stattest"
	"captainpulse/internal/table"
	api "captainpulse/pkg/contracts/api/v1"
)

// Arm labels of captain level rows
const (
	CohortTypeTest    = "test"
	CohortTypeControl = "control"
)

// AnalysisService runs the analytics engine over analysis sessions
type AnalysisService struct {
	store   session.Store
	builder *analytics.FunnelBuilder
	cfg     config.AnalyticsConfig
	metrics *infrastructure.AnalyticsMetrics
	logger  *slog.Logger
}

// NewAnalysisService creates an analysis service. metrics may be nil.
func NewAnalysisService(store session.Store, cfg config.AnalyticsConfig, metrics *infrastructure.AnalyticsMetrics, logger *slog.Logger) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("service", "analysis"))
	return &AnalysisService{
		store:   store,
		builder: analytics.NewFunnelBuilder(cfg.MaxConcurrency, logger),
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// observe records the outcome of an operation on the span and the metrics.
func (s *AnalysisService) observe(ctx context.Context, op string, start time.Time, errp *error) {
	err := *errp
	if err != nil {
		infrastructure.RecordError(ctx, err)
		s.logger.DebugContext(ctx, "analysis failed", slog.String("operation", op), slog.String("error", err.Error()))
	}
	s.metrics.RecordAnalysis(ctx, op, time.Since(start), err)
}

// Metrics builds the metric_value time series with rolling means and
// normalised growth, plus pre and post test/control summaries.
func (s *AnalysisService) Metrics(ctx context.Context, sessionID string, req api.MetricsRequest) (_ *api.MetricsResponse, err error) {
	ctx, span := infrastructure.StartSpan(ctx, "analysis.metrics", attribute.String("session_id", sessionID))
	defer span.End()
	defer s.observe(ctx, "metrics", time.Now(), &err)

	sess, err := resolveSession(s.store, sessionID, session.KindAnalysis)
	if err != nil {
		return nil, err
	}
	pre, post, err := parsePeriods(req.Periods)
	if err != nil {
		return nil, err
	}
	kinds, err := s.aggKinds(req.Aggregations)
	if err != nil {
		return nil, err
	}
	windows := req.RollingWindows
	if windows == nil {
		windows = s.cfg.RollingWindows
	}
	var baseline *time.Time
	if req.NormalizedGrowthBaselineDate != "" {
		d, ok := table.ParseDate(req.NormalizedGrowthBaselineDate)
		if !ok {
			return nil, fmt.Errorf("%w: normalized_growth_baseline_date %q", ErrInvalidRequest, req.NormalizedGrowthBaselineDate)
		}
		baseline = &d
	}

	working := sess.Table
	if cohorts := nonEmpty(req.TestCohort, req.ControlCohort); len(cohorts) > 0 {
		if working, err = analytics.SubsetCohorts(working, cohorts); err != nil {
			return nil, err
		}
	}
	preData, err := analytics.FilterPeriod(working, table.ColDate, pre)
	if err != nil {
		return nil, err
	}
	postData, err := analytics.FilterPeriod(working, table.ColDate, post)
	if err != nil {
		return nil, err
	}

	ts, err := working.SortBy(table.ColCohort, table.ColDate)
	if err != nil {
		return nil, err
	}
	for _, w := range windows {
		if ts, err = analytics.Rolling(ts, table.ColMetricValue, w, []string{table.ColCohort}, table.ColDate); err != nil {
			return nil, err
		}
	}
	if ts, err = analytics.NormalizedGrowth(ts, table.ColMetricValue, baseline, []string{table.ColCohort}, table.ColDate); err != nil {
		return nil, err
	}

	summaries, err := analytics.ComparePeriods(preData, postData, req.TestCohort, req.ControlCohort, kinds)
	if err != nil {
		return nil, err
	}

	resp := &api.MetricsResponse{
		TimeSeries: timeSeriesPoints(ts, windows),
		Summaries:  make([]api.SummaryStats, 0, len(summaries)),
	}
	for _, sum := range summaries {
		resp.Summaries = append(resp.Summaries, api.SummaryStats{
			Period:         sum.Period,
			Aggregation:    string(sum.Aggregation),
			TestValue:      sum.TestValue,
			ControlValue:   sum.ControlValue,
			MeanDifference: sum.MeanDifference,
			PctChange:      sum.PctChange,
		})
	}
	s.logger.DebugContext(ctx, "metrics computed",
		slog.String("session_id", sessionID),
		slog.Int("points", len(resp.TimeSeries)),
		slog.Int("summaries", len(resp.Summaries)))
	return resp, nil
}

// Funnel builds the cohort funnel series, optionally split by a breakout
// column, and returns one metric over the pre and post periods.
func (s *AnalysisService) Funnel(ctx context.Context, sessionID string, req api.FunnelRequest) (_ *api.FunnelResponse, err error) {
	ctx, span := infrastructure.StartSpan(ctx, "analysis.funnel",
		attribute.String("session_id", sessionID),
		attribute.String("metric", req.Metric),
		attribute.String("series_breakout", req.SeriesBreakout))
	defer span.End()
	defer s.observe(ctx, "funnel", time.Now(), &err)

	sess, err := resolveSession(s.store, sessionID, session.KindAnalysis)
	if err != nil {
		return nil, err
	}
	pre, post, err := parsePeriods(req.Periods)
	if err != nil {
		return nil, err
	}
	agg := req.Agg
	if agg == "" {
		agg = string(analytics.AggSum)
	}
	kind, err := analytics.ParseAggKind(agg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	working, err := funnelWorkingSet(sess.Table, req)
	if err != nil {
		return nil, err
	}

	breakout := req.SeriesBreakout
	if breakout != "" {
		if err := table.RequireKnown(working, "series breakout", breakout); err != nil {
			return nil, err
		}
		if c := working.Column(breakout); c.NullCount() == c.Len() {
			return nil, fmt.Errorf("%w: series breakout column %q has no valid (non-null) values", ErrInvalidRequest, breakout)
		}
	}

	ts, err := s.builder.Build(ctx, working)
	if err != nil {
		return nil, err
	}
	available := seriesMetrics(ts)
	if len(available) == 0 {
		return nil, ErrNoMetrics
	}
	metric := req.Metric
	if metric == "" {
		metric = available[0]
	}

	switch {
	case breakout != "":
		if working.Has(metric) {
			ts, err = analytics.ComputeMetric(working, metric, kind, []string{breakout})
		} else {
			ts, err = s.builder.BuildByBreakout(ctx, working, breakout, metric)
		}
		if err != nil {
			if errors.Is(err, table.ErrEmptyResult) {
				return nil, fmt.Errorf("%w: cannot compute series breakout for metric %q: %w", ErrInvalidRequest, metric, err)
			}
			return nil, err
		}
	case !slices.Contains(available, metric):
		extra, err := analytics.ComputeMetric(working, metric, kind, nil)
		if err != nil {
			return nil, err
		}
		if ts, err = analytics.MergeMetric(ts, extra, metric); err != nil {
			return nil, err
		}
		available = seriesMetrics(ts)
	}

	preSeries, err := analytics.FilterPeriod(ts, table.ColDate, pre)
	if err != nil {
		return nil, err
	}
	postSeries, err := analytics.FilterPeriod(ts, table.ColDate, post)
	if err != nil {
		return nil, err
	}
	preSummary, err := metricSummary(preSeries, metric)
	if err != nil {
		return nil, err
	}
	postSummary, err := metricSummary(postSeries, metric)
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "funnel computed",
		slog.String("session_id", sessionID),
		slog.String("metric", metric),
		slog.Int("rows", ts.Len()))
	return &api.FunnelResponse{
		MetricsAvailable: available,
		Metric:           metric,
		PreSeries:        funnelPoints(preSeries, metric, breakout),
		PostSeries:       funnelPoints(postSeries, metric, breakout),
		PreSummary:       preSummary,
		PostSummary:      postSummary,
	}, nil
}

// funnelWorkingSet selects and labels the test and control arms. Without
// cohorts only the confirmation filter applies.
func funnelWorkingSet(t *table.Table, req api.FunnelRequest) (*table.Table, error) {
	testConf := firstNonEmpty(req.TestConfirmed, req.Confirmed)
	controlConf := firstNonEmpty(req.ControlConfirmed, req.Confirmed)

	switch {
	case req.TestCohort != "" && req.ControlCohort != "":
		testArm, err := labelledArm(t, req.TestCohort, testConf, analytics.TestLabelPrefix)
		if err != nil {
			return nil, err
		}
		controlArm, err := labelledArm(t, req.ControlCohort, controlConf, analytics.ControlLabelPrefix)
		if err != nil {
			return nil, err
		}
		return table.Concat(testArm, controlArm), nil
	case req.TestCohort != "":
		return labelledArm(t, req.TestCohort, testConf, analytics.TestLabelPrefix)
	case req.ControlCohort != "":
		return labelledArm(t, req.ControlCohort, controlConf, analytics.ControlLabelPrefix)
	case testConf != "":
		if err := table.RequireKnown(t, "confirmation", testConf); err != nil {
			return nil, err
		}
		col := t.Column(testConf)
		return t.Filter(func(row int) bool { return !col.IsNull(row) }), nil
	}
	return t, nil
}

func labelledArm(t *table.Table, cohort, confirmedCol, prefix string) (*table.Table, error) {
	arm, err := analytics.SelectCohort(t, cohort, confirmedCol)
	if err != nil {
		return nil, err
	}
	return analytics.RelabelCohorts(arm, prefix)
}

// CaptainLevel aggregates metric columns per (date, group value) for each
// arm and period, ordered pre test, post test, pre control, post control.
func (s *AnalysisService) CaptainLevel(ctx context.Context, sessionID string, req api.CaptainLevelRequest) (_ *api.CaptainLevelResponse, err error) {
	ctx, span := infrastructure.StartSpan(ctx, "analysis.captain_level",
		attribute.String("session_id", sessionID),
		attribute.String("group_by", req.GroupByColumn))
	defer span.End()
	defer s.observe(ctx, "captain_level", time.Now(), &err)

	sess, err := resolveSession(s.store, sessionID, session.KindAnalysis)
	if err != nil {
		return nil, err
	}
	pre, post, err := parsePeriods(req.Periods)
	if err != nil {
		return nil, err
	}
	working := sess.Table
	if err := table.Require(working, table.ColDate, table.ColCohort); err != nil {
		return nil, err
	}
	if err := table.RequireKnown(working, "group by", req.GroupByColumn); err != nil {
		return nil, err
	}

	specs := make([]analytics.AggSpec, 0, len(req.MetricAggregations))
	names := make([]string, 0, len(req.MetricAggregations))
	for _, ma := range req.MetricAggregations {
		if err := table.RequireKnown(working, "metric", ma.Column); err != nil {
			return nil, err
		}
		kind, err := analytics.ParseAggKind(ma.AggFunc)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		spec := analytics.AggSpec{Column: ma.Column, Kind: kind}
		spec.As = spec.OutputName()
		if slices.Contains(names, spec.As) {
			continue
		}
		specs = append(specs, spec)
		names = append(names, spec.As)
	}

	testArm, err := captainArm(working, req.TestCohort, req.TestConfirmed)
	if err != nil {
		return nil, err
	}
	if testArm.Len() == 0 {
		return nil, fmt.Errorf("%w: test cohort %q", ErrNoCohortData, req.TestCohort)
	}
	controlArm, err := captainArm(working, req.ControlCohort, req.ControlConfirmed)
	if err != nil {
		return nil, err
	}
	if controlArm.Len() == 0 {
		return nil, fmt.Errorf("%w: control cohort %q", ErrNoCohortData, req.ControlCohort)
	}

	resp := &api.CaptainLevelResponse{
		Data:          []api.CaptainLevelRow{},
		GroupByColumn: req.GroupByColumn,
		Metrics:       names,
	}
	for _, arm := range []struct {
		cohortType string
		data       *table.Table
	}{{CohortTypeTest, testArm}, {CohortTypeControl, controlArm}} {
		for _, p := range []struct {
			label  string
			period analytics.Period
		}{{analytics.PeriodPre, pre}, {analytics.PeriodPost, post}} {
			filtered, err := analytics.FilterPeriod(arm.data, table.ColDate, p.period)
			if err != nil {
				return nil, err
			}
			rows, err := captainRows(filtered, p.label, arm.cohortType, req.GroupByColumn, specs)
			if err != nil {
				return nil, err
			}
			resp.Data = append(resp.Data, rows...)
		}
	}
	return resp, nil
}

// captainArm selects one cohort. The confirmation filter is skipped when its
// column is absent.
func captainArm(t *table.Table, cohort, confirmedCol string) (*table.Table, error) {
	if confirmedCol != "" && !t.Has(confirmedCol) {
		confirmedCol = ""
	}
	return analytics.SelectCohort(t, cohort, confirmedCol)
}

func captainRows(t *table.Table, period, cohortType, groupCol string, specs []analytics.AggSpec) ([]api.CaptainLevelRow, error) {
	if t.Len() == 0 {
		return nil, nil
	}
	groups := t.Column(groupCol)
	t = t.Filter(func(row int) bool { return !groups.IsNull(row) })
	agg, err := analytics.AggregateMulti(t, []string{table.ColDate, groupCol}, specs)
	if err != nil {
		return nil, err
	}
	if agg, err = agg.SortBy(table.ColDate, groupCol); err != nil {
		return nil, err
	}

	rows := make([]api.CaptainLevelRow, 0, agg.Len())
	for i := 0; i < agg.Len(); i++ {
		values := make(map[string]float64, len(specs))
		for _, spec := range specs {
			v, _ := agg.Column(spec.As).Float(i)
			values[spec.As] = v
		}
		rows = append(rows, api.CaptainLevelRow{
			Period:       period,
			CohortType:   cohortType,
			Date:         agg.Column(table.ColDate).String(i),
			GroupValue:   agg.Column(groupCol).String(i),
			Aggregations: values,
		})
	}
	return rows, nil
}

// CohortAggregation summarises the exploration funnel per cohort.
func (s *AnalysisService) CohortAggregation(ctx context.Context, sessionID string) (_ *api.CohortAggregationResponse, err error) {
	ctx, span := infrastructure.StartSpan(ctx, "analysis.cohort_aggregation", attribute.String("session_id", sessionID))
	defer span.End()
	defer s.observe(ctx, "cohort_aggregation", time.Now(), &err)

	sess, err := resolveSession(s.store, sessionID, session.KindAnalysis)
	if err != nil {
		return nil, err
	}
	out, err := analytics.ExplorationSummary(sess.Table)
	if err != nil {
		return nil, err
	}

	resp := &api.CohortAggregationResponse{Data: make([]api.CohortAggregationRow, 0, out.Len())}
	for i := 0; i < out.Len(); i++ {
		v := func(col string) float64 {
			f, _ := out.Column(col).Float(i)
			return f
		}
		resp.Data = append(resp.Data, api.CohortAggregationRow{
			Cohort:                                out.Column(table.ColCohort).String(i),
			TotalExpCaps:                          v("totalExpCaps"),
			VisitedCaps:                           v("visitedCaps"),
			ClickedCaptain:                        v("clickedCaptain"),
			PitchCentreCardClicked:                v("count_captain_pitch_centre_card_clicked_city"),
			PitchCentreCardVisible:                v("count_captain_pitch_centre_card_visible_city"),
			ExploredCaptains:                      v("exploredCaptains"),
			ExploredCaptainsSubs:                  v("exploredCaptains_Subs"),
			ExploredCaptainsEPKM:                  v("exploredCaptains_EPKM"),
			ExploredCaptainsFlatCommission:        v("exploredCaptains_FlatCommission"),
			ExploredCaptainsCM:                    v("exploredCaptains_CM"),
			ConfirmedCaptains:                     v("confirmedCaptains"),
			ConfirmedCaptainsSubs:                 v("confirmedCaptains_Subs"),
			ConfirmedCaptainsSubsPurchased:        v("confirmedCaptains_Subs_purchased"),
			ConfirmedCaptainsSubsPurchasedWeekend: v("confirmedCaptains_Subs_purchased_weekend"),
			ConfirmedCaptainsEPKM:                 v("confirmedCaptains_EPKM"),
			ConfirmedCaptainsFlatCommission:       v("confirmedCaptains_FlatCommission"),
			ConfirmedCaptainsCM:                   v("confirmedCaptains_CM"),
			Visit2Click:                           v(analytics.RatioVisit2Click),
			Base2Visit:                            v(analytics.RatioBase2Visit),
			Click2Confirm:                         v(analytics.RatioClick2Confirm),
		})
	}
	return resp, nil
}

// StatTest runs a statistical test over caller supplied samples.
func (s *AnalysisService) StatTest(ctx context.Context, req api.StatTestRequest) (_ *stattest.Result, err error) {
	ctx, span := infrastructure.StartSpan(ctx, "analysis.stat_test",
		attribute.String("test_category", req.TestCategory),
		attribute.String("test_name", req.TestName))
	defer span.End()
	defer s.observe(ctx, "stat_test", time.Now(), &err)

	res, err := stattest.Run(stattest.Request{
		Category:   req.TestCategory,
		Name:       req.TestName,
		Parameters: req.Parameters,
		Data: stattest.Data{
			PreTest:     req.Data.PreTest,
			PostTest:    req.Data.PostTest,
			PreControl:  req.Data.PreControl,
			PostControl: req.Data.PostControl,
		},
	})
	if err != nil {
		if errors.Is(err, stattest.ErrUnknownTest) {
			return nil, fmt.Errorf("%w: %s/%s", ErrUnknownTest, req.TestCategory, req.TestName)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return res, nil
}

// StatTests lists the available statistical tests
func (s *AnalysisService) StatTests() []stattest.Definition {
	return stattest.Tests()
}

func (s *AnalysisService) aggKinds(names []string) ([]analytics.AggKind, error) {
	if names == nil {
		names = s.cfg.DefaultAggregations
	}
	kinds := make([]analytics.AggKind, 0, len(names))
	for _, n := range names {
		k, err := analytics.ParseAggKind(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func parsePeriods(p api.Periods) (pre, post analytics.Period, err error) {
	if p.PrePeriod != nil {
		if pre, err = analytics.ParsePeriod(p.PrePeriod.StartDate, p.PrePeriod.EndDate); err != nil {
			return pre, post, fmt.Errorf("%w: pre_period: %v", ErrInvalidRequest, err)
		}
	}
	if p.PostPeriod != nil {
		if post, err = analytics.ParsePeriod(p.PostPeriod.StartDate, p.PostPeriod.EndDate); err != nil {
			return pre, post, fmt.Errorf("%w: post_period: %v", ErrInvalidRequest, err)
		}
	}
	return pre, post, nil
}

func timeSeriesPoints(ts *table.Table, windows []int) []api.TimeSeriesPoint {
	dates := ts.Column(table.ColDate)
	cohorts := ts.Column(table.ColCohort)
	values := ts.Column(table.ColMetricValue)
	growth := ts.Column(table.ColMetricValue + "_pct_change")

	points := make([]api.TimeSeriesPoint, 0, ts.Len())
	for i := 0; i < ts.Len(); i++ {
		p := api.TimeSeriesPoint{
			Date:        dates.String(i),
			Cohort:      cohorts.String(i),
			MetricValue: floatAt(values, i),
			PctChange:   floatAt(growth, i),
		}
		if len(windows) > 0 {
			p.Rolling = make(map[int]*float64, len(windows))
			for _, w := range windows {
				p.Rolling[w] = floatAt(ts.Column(fmt.Sprintf("%s_roll_%d", table.ColMetricValue, w)), i)
			}
		}
		points = append(points, p)
	}
	return points
}

func funnelPoints(t *table.Table, metric, breakout string) []api.FunnelPoint {
	dates := t.Column(table.ColDate)
	cohorts := t.Column(table.ColCohort)
	values := t.Column(metric)
	var series *table.Column
	if breakout != "" {
		series = t.Column(breakout)
	}

	points := make([]api.FunnelPoint, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		p := api.FunnelPoint{
			Date:   dates.String(i),
			Cohort: cohorts.String(i),
			Metric: metric,
		}
		if values != nil {
			p.Value, _ = values.Float(i)
		}
		if series != nil {
			sv := series.String(i)
			p.SeriesValue = &sv
		}
		points = append(points, p)
	}
	return points
}

func metricSummary(t *table.Table, metric string) (map[string]float64, error) {
	if t.Len() == 0 || !t.Has(metric) {
		return map[string]float64{}, nil
	}
	return analytics.SumByCohort(t, metric)
}

// seriesMetrics lists the value columns of a funnel series
func seriesMetrics(ts *table.Table) []string {
	var out []string
	for _, c := range ts.Columns() {
		if c != table.ColDate && c != table.ColCohort {
			out = append(out, c)
		}
	}
	return out
}

func floatAt(c *table.Column, i int) *float64 {
	if c == nil {
		return nil
	}
	v, ok := c.Float(i)
	if !ok {
		return nil
	}
	return &v
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
