package ingest

import (
	"sort"

	"captainpulse/internal/table"
)

// Summary describes an uploaded dataset.
type Summary struct {
	Rows               int      `json:"num_rows"`
	Columns            []string `json:"columns"`
	Cohorts            []string `json:"cohorts"`
	DateMin            string   `json:"date_min,omitempty"`
	DateMax            string   `json:"date_max,omitempty"`
	Metrics            []string `json:"metrics"`
	CategoricalColumns []string `json:"categorical_columns"`
}

// PrepareUpload validates an uploaded table and adds the unified "date"
// column. It fails when "cohort" is absent, when neither "date" nor "time"
// exists, or when any date cannot be read.
func PrepareUpload(t *table.Table) (*table.Table, error) {
	if err := table.Require(t, table.ColCohort); err != nil {
		return nil, err
	}
	out, err := table.EnsureDate(t)
	if err != nil {
		return nil, err
	}
	if c := out.Column(table.ColCohort); c.Kind() != table.Categorical {
		return out.WithColumn(c.ToCategorical())
	}
	return out, nil
}

// Describe summarises a prepared table.
func Describe(t *table.Table) Summary {
	s := Summary{
		Rows:               t.Len(),
		Columns:            t.Columns(),
		Cohorts:            []string{},
		Metrics:            []string{},
		CategoricalColumns: []string{},
	}
	if cohorts, err := t.Distinct(table.ColCohort); err == nil && cohorts != nil {
		s.Cohorts = cohorts
	}
	if dates := t.Column(table.ColDate); dates != nil && dates.Kind() == table.Date {
		for i := 0; i < dates.Len(); i++ {
			d := dates.String(i)
			if d == "" {
				continue
			}
			if s.DateMin == "" || d < s.DateMin {
				s.DateMin = d
			}
			if d > s.DateMax {
				s.DateMax = d
			}
		}
	}
	for _, name := range t.Columns() {
		if name == table.ColCohort || name == table.ColDate || name == table.ColTime {
			continue
		}
		s.Metrics = append(s.Metrics, name)
		if isCategorical(t.Column(name), t.Len()) {
			s.CategoricalColumns = append(s.CategoricalColumns, name)
		}
	}
	sort.Strings(s.CategoricalColumns)
	return s
}

// isCategorical treats string columns, and numeric columns with few distinct
// values relative to the row count, as categorical.
func isCategorical(c *table.Column, rows int) bool {
	if c.Kind() == table.Categorical {
		return true
	}
	if c.Kind() != table.Numeric {
		return false
	}
	distinct := make(map[string]struct{})
	for i := 0; i < c.Len(); i++ {
		if !c.IsNull(i) {
			distinct[c.String(i)] = struct{}{}
		}
	}
	n := len(distinct)
	return n < 20 && float64(n) < float64(rows)*0.1
}
