package analytics

import (
	"time"

	"captainpulse/internal/table"
)

// ZeroBaselineEpsilon replaces a zero baseline in NormalizedGrowth. Growth
// from a true zero baseline is therefore reported as a very large percentage
// rather than undefined.
const ZeroBaselineEpsilon = 1e-9

// NormalizedGrowth adds {valueCol}_pct_change, the percent change of each
// value relative to its group's baseline. The baseline is the value on the
// baseline date when that date exists in the group, otherwise the group's
// chronologically first value.
func NormalizedGrowth(t *table.Table, valueCol string, baseline *time.Time, by []string, dateCol string) (*table.Table, error) {
	sorted, groups, err := sortWithinGroups(t, valueCol, by, dateCol)
	if err != nil {
		return nil, err
	}

	src := sorted.Column(valueCol)
	dates := sorted.Column(dateCol)
	vals := make([]float64, sorted.Len())
	valid := make([]bool, sorted.Len())
	for _, g := range groups {
		baseRow := g.Rows[0]
		if baseline != nil {
			want := table.TruncateDay(*baseline)
			for _, r := range g.Rows {
				if d, ok := dates.Time(r); ok && d.Equal(want) {
					baseRow = r
					break
				}
			}
		}
		base, ok := src.Float(baseRow)
		if !ok {
			continue
		}
		denom := base
		if denom == 0 {
			denom = ZeroBaselineEpsilon
		}
		for _, r := range g.Rows {
			if v, ok := src.Float(r); ok {
				vals[r], valid[r] = (v-base)/denom*100, true
			}
		}
	}
	return sorted.WithColumn(table.NewNumeric(valueCol+"_pct_change", vals, valid))
}
