package analytics

import (
	"fmt"

	"captainpulse/internal/table"
)

// Rolling adds {valueCol}_roll_{window}: the trailing mean over the last
// window observations of each group, with a minimum of one observation.
// The result is sorted by the group columns then date.
func Rolling(t *table.Table, valueCol string, window int, by []string, dateCol string) (*table.Table, error) {
	if window < 1 {
		return nil, fmt.Errorf("rolling window must be >= 1, got %d", window)
	}
	sorted, groups, err := sortWithinGroups(t, valueCol, by, dateCol)
	if err != nil {
		return nil, err
	}

	src := sorted.Column(valueCol)
	vals := make([]float64, sorted.Len())
	valid := make([]bool, sorted.Len())
	for _, g := range groups {
		for k, row := range g.Rows {
			lo := k - window + 1
			if lo < 0 {
				lo = 0
			}
			total, n := 0.0, 0
			for _, r := range g.Rows[lo : k+1] {
				if v, ok := src.Float(r); ok {
					total += v
					n++
				}
			}
			if n > 0 {
				vals[row], valid[row] = total/float64(n), true
			}
		}
	}
	name := fmt.Sprintf("%s_roll_%d", valueCol, window)
	return sorted.WithColumn(table.NewNumeric(name, vals, valid))
}

// sortWithinGroups normalises dateCol, sorts by (by..., dateCol) and returns
// the groups of the sorted table.
func sortWithinGroups(t *table.Table, valueCol string, by []string, dateCol string) (*table.Table, []table.Group, error) {
	if err := table.Require(t, append([]string{valueCol, dateCol}, by...)...); err != nil {
		return nil, nil, err
	}
	col, invalid := table.CoerceDates(t.Column(dateCol), dateCol, table.ParseDate)
	if invalid > 0 {
		return nil, nil, &table.InvalidDateError{Column: dateCol, Count: invalid}
	}
	withDates, err := t.WithColumn(col)
	if err != nil {
		return nil, nil, err
	}
	sorted, err := withDates.SortBy(append(append([]string{}, by...), dateCol)...)
	if err != nil {
		return nil, nil, err
	}
	groups, err := sorted.GroupBy(by...)
	if err != nil {
		return nil, nil, err
	}
	return sorted, groups, nil
}
