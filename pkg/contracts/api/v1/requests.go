// Package api contains the HTTP contract of the CaptainPulse analytics API.
// Version v1 represents the current stable API version.
package api

// Common request parameters

// DateRange is an inclusive date window. Either bound may be omitted.
type DateRange struct {
	StartDate string `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Periods carries the optional pre and post launch windows shared by the
// analysis requests.
type Periods struct {
	PrePeriod  *DateRange `json:"pre_period,omitempty"`
	PostPeriod *DateRange `json:"post_period,omitempty"`
}

// Analysis API Requests

// MetricsRequest asks for the metric_value time series of the test and
// control cohorts plus pre/post summaries. Nil Aggregations and
// RollingWindows take the configured defaults.
type MetricsRequest struct {
	Periods
	TestCohort                   string   `json:"test_cohort,omitempty"`
	ControlCohort                string   `json:"control_cohort,omitempty"`
	Aggregations                 []string `json:"aggregations,omitempty" validate:"omitempty,dive,oneof=sum mean count nunique median std min max"`
	RollingWindows               []int    `json:"rolling_windows,omitempty" validate:"omitempty,dive,min=1,max=366"`
	NormalizedGrowthBaselineDate string   `json:"normalized_growth_baseline_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// FunnelRequest asks for the cohort funnel time series of one metric.
// Confirmed is the legacy confirmation filter applied to both arms when the
// per-arm filters are empty.
type FunnelRequest struct {
	Periods
	TestCohort       string `json:"test_cohort,omitempty"`
	ControlCohort    string `json:"control_cohort,omitempty"`
	Metric           string `json:"metric,omitempty"`
	Confirmed        string `json:"confirmed,omitempty"`
	TestConfirmed    string `json:"test_confirmed,omitempty"`
	ControlConfirmed string `json:"control_confirmed,omitempty"`
	Agg              string `json:"agg,omitempty" validate:"omitempty,oneof=sum mean count nunique median std min max"`
	SeriesBreakout   string `json:"series_breakout,omitempty"`
}

// MetricAggregation pairs a column with an aggregation function.
type MetricAggregation struct {
	Column  string `json:"column" validate:"required"`
	AggFunc string `json:"agg_func" validate:"required,oneof=sum mean count nunique median std min max"`
}

// CaptainLevelRequest groups captain rows by date and a categorical column.
type CaptainLevelRequest struct {
	Periods
	TestCohort         string              `json:"test_cohort" validate:"required"`
	ControlCohort      string              `json:"control_cohort" validate:"required"`
	TestConfirmed      string              `json:"test_confirmed,omitempty"`
	ControlConfirmed   string              `json:"control_confirmed,omitempty"`
	GroupByColumn      string              `json:"group_by_column" validate:"required"`
	MetricAggregations []MetricAggregation `json:"metric_aggregations" validate:"required,min=1,dive"`
}

// StatTestData holds the four experiment samples.
type StatTestData struct {
	PreTest     []float64 `json:"pre_test"`
	PostTest    []float64 `json:"post_test"`
	PreControl  []float64 `json:"pre_control"`
	PostControl []float64 `json:"post_control"`
}

// StatTestRequest selects a statistical test by category and name.
type StatTestRequest struct {
	TestCategory string         `json:"test_category" validate:"required"`
	TestName     string         `json:"test_name" validate:"required"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Data         StatTestData   `json:"data"`
}

// Report API Requests

// ReportAddRequest adds an item to a report.
type ReportAddRequest struct {
	Type    string         `json:"type" validate:"required,oneof=chart table text"`
	Title   string         `json:"title" validate:"required,max=200"`
	Content map[string]any `json:"content"`
	Comment string         `json:"comment,omitempty"`
}

// ReportUpdateCommentRequest replaces the comment of a report item.
type ReportUpdateCommentRequest struct {
	ItemID  string `json:"item_id" validate:"required"`
	Comment string `json:"comment"`
}

// ReportUpdateTitleRequest replaces the title of a report item.
type ReportUpdateTitleRequest struct {
	ItemID string `json:"item_id" validate:"required"`
	Title  string `json:"title" validate:"required,max=200"`
}

// ReportExportRequest selects the export format.
type ReportExportRequest struct {
	Format string `json:"format" query:"format" validate:"omitempty,oneof=html markdown xlsx csv"`
	Title  string `json:"title,omitempty" query:"title" validate:"omitempty,max=200"`
}

// Warehouse API Requests

// AOFunnelRequest selects the AO funnel window, with dates as YYYYMMDD.
type AOFunnelRequest struct {
	StartDate string `json:"start_date" validate:"required,len=8,numeric"`
	EndDate   string `json:"end_date" validate:"required,len=8,numeric"`
	TimeLevel string `json:"time_level,omitempty" validate:"omitempty,oneof=daily weekly monthly"`
	TODLevel  string `json:"tod_level,omitempty" validate:"omitempty,oneof=daily morning afternoon evening night all"`
}
