package table

import (
	"strings"
	"time"
)

// Well-known column names shared by ingestion and the analytics engine.
const (
	ColCohort      = "cohort"
	ColDate        = "date"
	ColTime        = "time"
	ColCaptainID   = "captain_id"
	ColMetricValue = "metric_value"
)

var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006/01/02",
	"01/02/2006",
	"20060102",
}

// TruncateDay drops the time of day, keeping the calendar date in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate reads a calendar date in any of the accepted layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TruncateDay(t), true
		}
	}
	return time.Time{}, false
}

// ParseCompactDate reads a YYYYMMDD value. Numeric renderings such as
// "20250101.0" are accepted.
func ParseCompactDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".0")
	if len(s) != 8 {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CoerceDates converts a column to dates using parse. The second return is
// the number of cells left without a valid date, nulls included.
func CoerceDates(c *Column, name string, parse func(string) (time.Time, bool)) (*Column, int) {
	if c.Kind() == Date {
		if c.Name() != name {
			c = c.Rename(name)
		}
		return c, c.NullCount()
	}
	vals := make([]time.Time, c.Len())
	valid := make([]bool, c.Len())
	invalid := 0
	for i := range vals {
		if !c.IsNull(i) {
			vals[i], valid[i] = parse(c.String(i))
		}
		if !valid[i] {
			invalid++
		}
	}
	return NewDate(name, vals, valid), invalid
}

// EnsureDate returns a table whose "date" column is a normalised date column.
// It is derived from "time" (YYYYMMDD) when no "date" column exists.
// Unreadable cells fail with InvalidDateError.
func EnsureDate(t *Table) (*Table, error) {
	var (
		col     *Column
		invalid int
		source  string
	)
	switch {
	case t.Has(ColDate):
		source = ColDate
		col, invalid = CoerceDates(t.Column(ColDate), ColDate, ParseDate)
	case t.Has(ColTime):
		source = ColTime
		col, invalid = CoerceDates(t.Column(ColTime), ColDate, ParseCompactDate)
	default:
		return nil, &MissingColumnError{Columns: []string{ColDate, ColTime}, AnyOf: true}
	}
	if invalid > 0 {
		return nil, &InvalidDateError{Column: source, Count: invalid}
	}
	if t.Column(ColDate) == col {
		return t, nil
	}
	return t.WithColumn(col)
}
