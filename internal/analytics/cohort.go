package analytics

import (
	"captainpulse/internal/table"
)

// Cohort labels used when test and control arms are analysed side by side.
const (
	TestLabelPrefix    = "TEST: "
	ControlLabelPrefix = "CONTROL: "
)

// SelectCohort returns the rows of one cohort. When confirmedCol is set, only
// rows where that column is non-null are kept.
func SelectCohort(t *table.Table, cohort, confirmedCol string) (*table.Table, error) {
	if err := table.Require(t, table.ColCohort); err != nil {
		return nil, err
	}
	var confirmed *table.Column
	if confirmedCol != "" {
		if err := table.RequireKnown(t, "confirmation", confirmedCol); err != nil {
			return nil, err
		}
		confirmed = t.Column(confirmedCol)
	}
	cohorts := t.Column(table.ColCohort)
	return t.Filter(func(row int) bool {
		if cohorts.IsNull(row) || cohorts.String(row) != cohort {
			return false
		}
		return confirmed == nil || !confirmed.IsNull(row)
	}), nil
}

// SubsetCohorts returns rows whose cohort is one of cohorts.
func SubsetCohorts(t *table.Table, cohorts []string) (*table.Table, error) {
	if err := table.Require(t, table.ColCohort); err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(cohorts))
	for _, c := range cohorts {
		set[c] = struct{}{}
	}
	col := t.Column(table.ColCohort)
	return t.Filter(func(row int) bool {
		if col.IsNull(row) {
			return false
		}
		_, ok := set[col.String(row)]
		return ok
	}), nil
}

// RelabelCohorts prefixes every cohort value, keeping test and control arms
// distinct even when they share a name.
func RelabelCohorts(t *table.Table, prefix string) (*table.Table, error) {
	if err := table.Require(t, table.ColCohort); err != nil {
		return nil, err
	}
	src := t.Column(table.ColCohort)
	vals := make([]string, src.Len())
	valid := make([]bool, src.Len())
	for i := range vals {
		vals[i] = prefix + src.String(i)
		valid[i] = true
	}
	return t.WithColumn(table.NewCategorical(table.ColCohort, vals, valid))
}
