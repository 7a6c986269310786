package analytics

import (
	"captainpulse/internal/table"
)

// Period labels carried by summaries
const (
	PeriodPre  = "pre"
	PeriodPost = "post"
)

// PeriodSummary compares the test and control cohorts for one aggregation
// over one period. PctChange is nil when the control value is zero.
type PeriodSummary struct {
	Period         string   `json:"period"`
	Aggregation    AggKind  `json:"aggregation"`
	TestValue      float64  `json:"test_value"`
	ControlValue   float64  `json:"control_value"`
	MeanDifference float64  `json:"mean_difference"`
	PctChange      *float64 `json:"pct_change"`
}

// ComparePeriods aggregates metric_value by cohort for each kind over the pre
// then the post table. A cohort absent from a period counts as 0.
func ComparePeriods(pre, post *table.Table, testCohort, controlCohort string, kinds []AggKind) ([]PeriodSummary, error) {
	summaries := make([]PeriodSummary, 0, 2*len(kinds))
	for _, p := range []struct {
		label string
		data  *table.Table
	}{{PeriodPre, pre}, {PeriodPost, post}} {
		for _, kind := range kinds {
			s, err := summarize(p.data, testCohort, controlCohort, kind)
			if err != nil {
				return nil, err
			}
			s.Period = p.label
			summaries = append(summaries, s)
		}
	}
	return summaries, nil
}

func summarize(t *table.Table, testCohort, controlCohort string, kind AggKind) (PeriodSummary, error) {
	agg, err := Aggregate(t, []string{table.ColCohort}, table.ColMetricValue, kind)
	if err != nil {
		return PeriodSummary{}, err
	}
	name := AggSpec{Column: table.ColMetricValue, Kind: kind}.OutputName()
	tv := CohortValue(agg, name, testCohort)
	cv := CohortValue(agg, name, controlCohort)

	s := PeriodSummary{
		Aggregation:    kind,
		TestValue:      tv,
		ControlValue:   cv,
		MeanDifference: tv - cv,
	}
	if cv != 0 {
		pct := s.MeanDifference / cv * 100
		s.PctChange = &pct
	}
	return s, nil
}

// CohortValue returns the first value of col for cohort, or 0 when the cohort
// has no row or the cell is null.
func CohortValue(t *table.Table, col, cohort string) float64 {
	cohorts := t.Column(table.ColCohort)
	values := t.Column(col)
	if cohorts == nil || values == nil {
		return 0
	}
	for i := 0; i < t.Len(); i++ {
		if !cohorts.IsNull(i) && cohorts.String(i) == cohort {
			v, _ := values.Float(i)
			return v
		}
	}
	return 0
}

// SumByCohort returns the per-cohort sum of col
func SumByCohort(t *table.Table, col string) (map[string]float64, error) {
	out := make(map[string]float64)
	if t.Len() == 0 {
		return out, nil
	}
	agg, err := Aggregate(t, []string{table.ColCohort}, col, AggSum)
	if err != nil {
		return nil, err
	}
	name := AggSpec{Column: col, Kind: AggSum}.OutputName()
	cohorts := agg.Column(table.ColCohort)
	for i := 0; i < agg.Len(); i++ {
		v, _ := agg.Column(name).Float(i)
		out[cohorts.String(i)] = v
	}
	return out, nil
}
