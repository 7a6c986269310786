package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// Session API Responses

// UploadResponse describes a dataset stored in a session.
type UploadResponse struct {
	SessionID          string   `json:"session_id"`
	NumRows            int      `json:"num_rows"`
	Columns            []string `json:"columns"`
	Cohorts            []string `json:"cohorts"`
	DateMin            string   `json:"date_min,omitempty"`
	DateMax            string   `json:"date_max,omitempty"`
	Metrics            []string `json:"metrics"`
	CategoricalColumns []string `json:"categorical_columns"`
}

// Analysis API Responses

// TimeSeriesPoint is one (date, cohort) row of the metrics time series.
// Rolling holds one trailing mean per requested window and is flattened
// into metric_value_roll_{window} keys on the wire.
type TimeSeriesPoint struct {
	Date        string
	Cohort      string
	MetricValue *float64
	Rolling     map[int]*float64
	PctChange   *float64
}

// MarshalJSON flattens the rolling means into top level keys
func (p TimeSeriesPoint) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"date":                    p.Date,
		"cohort":                  p.Cohort,
		"metric_value":            p.MetricValue,
		"metric_value_pct_change": p.PctChange,
	}
	for w, v := range p.Rolling {
		m[fmt.Sprintf("metric_value_roll_%d", w)] = v
	}
	return json.Marshal(m)
}

// SummaryStats compares test and control for one aggregation and period.
type SummaryStats struct {
	Period         string   `json:"period"`
	Aggregation    string   `json:"aggregation"`
	TestValue      float64  `json:"test_value"`
	ControlValue   float64  `json:"control_value"`
	MeanDifference float64  `json:"mean_difference"`
	PctChange      *float64 `json:"pct_change"`
}

// MetricsResponse is the result of a metrics analysis.
type MetricsResponse struct {
	TimeSeries []TimeSeriesPoint `json:"time_series"`
	Summaries  []SummaryStats    `json:"summaries"`
}

// FunnelPoint is one value of the selected funnel metric.
type FunnelPoint struct {
	Date        string  `json:"date"`
	Cohort      string  `json:"cohort"`
	Metric      string  `json:"metric"`
	Value       float64 `json:"value"`
	SeriesValue *string `json:"series_value,omitempty"`
}

// FunnelResponse is the result of a funnel analysis.
type FunnelResponse struct {
	MetricsAvailable []string           `json:"metrics_available"`
	Metric           string             `json:"metric"`
	PreSeries        []FunnelPoint      `json:"pre_series"`
	PostSeries       []FunnelPoint      `json:"post_series"`
	PreSummary       map[string]float64 `json:"pre_summary"`
	PostSummary      map[string]float64 `json:"post_summary"`
}

// CaptainLevelRow is one (date, group value) aggregate of one arm and period.
type CaptainLevelRow struct {
	Period       string             `json:"period"`
	CohortType   string             `json:"cohort_type"`
	Date         string             `json:"date"`
	GroupValue   string             `json:"group_value"`
	Aggregations map[string]float64 `json:"aggregations"`
}

// CaptainLevelResponse is the result of a captain level aggregation.
type CaptainLevelResponse struct {
	Data          []CaptainLevelRow `json:"data"`
	GroupByColumn string            `json:"group_by_column"`
	Metrics       []string          `json:"metrics"`
}

// CohortAggregationRow is the exploration funnel of one cohort.
type CohortAggregationRow struct {
	Cohort                                string  `json:"cohort"`
	TotalExpCaps                          float64 `json:"totalExpCaps"`
	VisitedCaps                           float64 `json:"visitedCaps"`
	ClickedCaptain                        float64 `json:"clickedCaptain"`
	PitchCentreCardClicked                float64 `json:"pitch_centre_card_clicked"`
	PitchCentreCardVisible                float64 `json:"pitch_centre_card_visible"`
	ExploredCaptains                      float64 `json:"exploredCaptains"`
	ExploredCaptainsSubs                  float64 `json:"exploredCaptains_Subs"`
	ExploredCaptainsEPKM                  float64 `json:"exploredCaptains_EPKM"`
	ExploredCaptainsFlatCommission        float64 `json:"exploredCaptains_FlatCommission"`
	ExploredCaptainsCM                    float64 `json:"exploredCaptains_CM"`
	ConfirmedCaptains                     float64 `json:"confirmedCaptains"`
	ConfirmedCaptainsSubs                 float64 `json:"confirmedCaptains_Subs"`
	ConfirmedCaptainsSubsPurchased        float64 `json:"confirmedCaptains_Subs_purchased"`
	ConfirmedCaptainsSubsPurchasedWeekend float64 `json:"confirmedCaptains_Subs_purchased_weekend"`
	ConfirmedCaptainsEPKM                 float64 `json:"confirmedCaptains_EPKM"`
	ConfirmedCaptainsFlatCommission       float64 `json:"confirmedCaptains_FlatCommission"`
	ConfirmedCaptainsCM                   float64 `json:"confirmedCaptains_CM"`
	Visit2Click                           float64 `json:"Visit2Click"`
	Base2Visit                            float64 `json:"Base2Visit"`
	Click2Confirm                         float64 `json:"Click2Confirm"`
}

// CohortAggregationResponse lists cohorts by explored captains, largest
// first.
type CohortAggregationResponse struct {
	Data []CohortAggregationRow `json:"data"`
}

// Report API Responses

// ReportCreateResponse returns the id of a new report.
type ReportCreateResponse struct {
	ReportID string `json:"report_id"`
}

// ReportAddResponse acknowledges an added item.
type ReportAddResponse struct {
	ReportID string `json:"report_id"`
	ItemID   string `json:"item_id"`
	NumItems int    `json:"num_items"`
}

// ReportDeleteResponse acknowledges an item removal.
type ReportDeleteResponse struct {
	OK       bool `json:"ok"`
	NumItems int  `json:"num_items"`
}

// Warehouse API Responses

// MobileNumberUploadResponse describes an uploaded mobile number list.
type MobileNumberUploadResponse struct {
	FunnelSessionID   string           `json:"funnel_session_id"`
	NumRows           int              `json:"num_rows"`
	Columns           []string         `json:"columns"`
	HasCohort         bool             `json:"has_cohort"`
	Preview           []map[string]any `json:"preview"`
	DuplicatesRemoved int              `json:"duplicates_removed"`
}

// CaptainIDResponse describes the captain id lookup result.
type CaptainIDResponse struct {
	NumRows          int              `json:"num_rows"`
	NumCaptainsFound int              `json:"num_captains_found"`
	Preview          []map[string]any `json:"preview"`
}

// AOFunnelResponse describes the pulled AO funnel data.
type AOFunnelResponse struct {
	NumRows          int              `json:"num_rows"`
	Columns          []string         `json:"columns"`
	Preview          []map[string]any `json:"preview"`
	Metrics          []string         `json:"metrics"`
	UniqueCaptainIDs int              `json:"unique_captain_ids"`
}

// Common Responses

// StatusResponse is a bare acknowledgement.
type StatusResponse struct {
	OK bool `json:"ok"`
}

// HealthResponse reports service liveness and readiness.
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp time.Time                 `json:"timestamp"`
	Version   string                    `json:"version"`
	Uptime    string                    `json:"uptime"`
	Sessions  int                       `json:"sessions"`
	Reports   int                       `json:"reports"`
	Checks    map[string]ComponentCheck `json:"checks,omitempty"`
}

// ComponentCheck is the health of one dependency.
type ComponentCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
