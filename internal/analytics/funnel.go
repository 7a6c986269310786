package analytics

import (
	"captainpulse/internal/table"
)

// FunnelStages is the conversion funnel in upstream to downstream order.
var FunnelStages = []string{
	"ao_days",
	"online_days",
	"gross_days",
	"accepted_days",
	"net_days",
}

// MeanMetrics are averaged rather than summed when aggregating per day.
var MeanMetrics = []string{"total_lh", "dapr"}

// RatioName returns the column name of the from->to conversion ratio
func RatioName(from, to string) string { return from + "2" + to }

// DeriveRatios adds {stages[i]}2{stages[j]} = stages[j] / stages[i] for every
// i < j where both stage columns exist. A zero or missing denominator yields
// 0, and every remaining null in numeric columns is filled with 0.
func DeriveRatios(t *table.Table, stages []string) (*table.Table, error) {
	out := t
	var err error
	for i, from := range stages {
		if !t.Has(from) {
			continue
		}
		den := t.Column(from)
		for _, to := range stages[i+1:] {
			if !t.Has(to) {
				continue
			}
			num := t.Column(to)
			vals := make([]float64, t.Len())
			for row := range vals {
				d, ok := den.Float(row)
				if !ok || d == 0 {
					continue
				}
				if n, ok := num.Float(row); ok {
					vals[row] = n / d
				}
			}
			if out, err = out.WithColumn(table.NewNumeric(RatioName(from, to), vals, nil)); err != nil {
				return nil, err
			}
		}
	}
	return fillNumericNulls(out, 0)
}

func fillNumericNulls(t *table.Table, v float64) (*table.Table, error) {
	out := t
	var err error
	for _, name := range t.Columns() {
		c := t.Column(name)
		if c.Kind() != table.Numeric || c.NullCount() == 0 {
			continue
		}
		if out, err = out.WithColumn(c.FillNull(v)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DedupLatest collapses rows sharing (entityCol, dateCol) to the last
// occurrence, keeping surviving rows in their original order.
func DedupLatest(t *table.Table, entityCol, dateCol string) (*table.Table, error) {
	groups, err := t.GroupBy(entityCol, dateCol)
	if err != nil {
		return nil, err
	}
	if len(groups) == t.Len() {
		return t, nil
	}
	keep := make([]bool, t.Len())
	for _, g := range groups {
		keep[g.Rows[len(g.Rows)-1]] = true
	}
	return t.Filter(func(row int) bool { return keep[row] }), nil
}
