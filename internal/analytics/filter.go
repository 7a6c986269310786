package analytics

import (
	"fmt"
	"time"

	"captainpulse/internal/table"
)

// Period is an inclusive date window. A nil bound is open.
type Period struct {
	Start *time.Time
	End   *time.Time
}

// IsOpen reports whether neither bound is set
func (p Period) IsOpen() bool { return p.Start == nil && p.End == nil }

// ParsePeriod reads optional start and end dates. Empty strings leave the
// bound open.
func ParsePeriod(start, end string) (Period, error) {
	var p Period
	if start != "" {
		d, ok := table.ParseDate(start)
		if !ok {
			return Period{}, fmt.Errorf("invalid start date %q", start)
		}
		p.Start = &d
	}
	if end != "" {
		d, ok := table.ParseDate(end)
		if !ok {
			return Period{}, fmt.Errorf("invalid end date %q", end)
		}
		p.End = &d
	}
	return p, nil
}

// FilterByDateRange keeps rows whose dateCol lies within [start, end], both
// bounds inclusive. dateCol is normalised to dates in the result; cells that
// cannot be read as dates fail the call with InvalidDateError.
func FilterByDateRange(t *table.Table, dateCol string, start, end *time.Time) (*table.Table, error) {
	if t.Len() == 0 {
		return t.Clone(), nil
	}
	if err := table.Require(t, dateCol); err != nil {
		return nil, err
	}
	col, invalid := table.CoerceDates(t.Column(dateCol), dateCol, table.ParseDate)
	if invalid > 0 {
		return nil, &table.InvalidDateError{Column: dateCol, Count: invalid}
	}
	out, err := t.WithColumn(col)
	if err != nil {
		return nil, err
	}
	if start == nil && end == nil {
		return out, nil
	}

	var lo, hi time.Time
	if start != nil {
		lo = table.TruncateDay(*start)
	}
	if end != nil {
		hi = table.TruncateDay(*end)
	}
	return out.Filter(func(row int) bool {
		d, _ := col.Time(row)
		if start != nil && d.Before(lo) {
			return false
		}
		if end != nil && d.After(hi) {
			return false
		}
		return true
	}), nil
}

// FilterPeriod applies FilterByDateRange with the bounds of p
func FilterPeriod(t *table.Table, dateCol string, p Period) (*table.Table, error) {
	return FilterByDateRange(t, dateCol, p.Start, p.End)
}
