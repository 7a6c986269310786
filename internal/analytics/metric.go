package analytics

import (
	"captainpulse/internal/table"
)

// ComputeMetric aggregates an arbitrary column per (date, cohort, extra...)
// into a column that keeps the source name. Missing results become 0 and
// rows are sorted by (cohort, extra..., date).
func ComputeMetric(t *table.Table, valueCol string, kind AggKind, extraGroupBy []string) (*table.Table, error) {
	if err := table.Require(t, table.ColCohort); err != nil {
		return nil, err
	}
	if _, err := ParseAggKind(string(kind)); err != nil {
		return nil, err
	}
	if err := table.RequireKnown(t, "metric", valueCol); err != nil {
		return nil, err
	}
	if err := table.RequireKnown(t, "group by", extraGroupBy...); err != nil {
		return nil, err
	}
	t, err := table.EnsureDate(t)
	if err != nil {
		return nil, err
	}

	groupCols := dedupe(append([]string{table.ColDate, table.ColCohort}, extraGroupBy...))
	out, err := AggregateMulti(t, groupCols, []AggSpec{{Column: valueCol, Kind: kind, As: valueCol}})
	if err != nil {
		return nil, err
	}
	if out, err = out.WithColumn(out.Column(valueCol).FillNull(0)); err != nil {
		return nil, err
	}

	sortCols := dedupe(append(append([]string{table.ColCohort}, extraGroupBy...), table.ColDate))
	return out.SortBy(sortCols...)
}

// MergeMetric outer-joins metric from extra into series on (date, cohort).
// Values already present in series win; gaps are filled from extra. The
// result is sorted by (cohort, date).
func MergeMetric(series, extra *table.Table, metric string) (*table.Table, error) {
	keys := []string{table.ColDate, table.ColCohort}
	if err := table.Require(series, keys...); err != nil {
		return nil, err
	}
	if err := table.Require(extra, append(keys, metric)...); err != nil {
		return nil, err
	}

	rowKey := func(t *table.Table, row int) string {
		return t.Column(table.ColDate).String(row) + "\x1f" + t.Column(table.ColCohort).String(row)
	}
	seriesRows := make(map[string]int, series.Len())
	for i := 0; i < series.Len(); i++ {
		seriesRows[rowKey(series, i)] = i
	}

	// rows of extra without a partner in series are appended
	var orphans []int
	extraFor := make(map[int]int)
	for i := 0; i < extra.Len(); i++ {
		if j, ok := seriesRows[rowKey(extra, i)]; ok {
			extraFor[j] = i
		} else {
			orphans = append(orphans, i)
		}
	}
	keysOnly, err := extra.Select(keys...)
	if err != nil {
		return nil, err
	}
	merged := table.Concat(series, keysOnly.Take(orphans))

	src := extra.Column(metric)
	var existing *table.Column
	if series.Has(metric) {
		existing = series.Column(metric)
	}
	vals := make([]float64, merged.Len())
	valid := make([]bool, merged.Len())
	for i := 0; i < merged.Len(); i++ {
		if i < series.Len() {
			if existing != nil {
				if v, ok := existing.Float(i); ok {
					vals[i], valid[i] = v, true
					continue
				}
			}
			if e, ok := extraFor[i]; ok {
				vals[i], valid[i] = src.Float(e)
			}
			continue
		}
		vals[i], valid[i] = src.Float(orphans[i-series.Len()])
	}
	if merged, err = merged.WithColumn(table.NewNumeric(metric, vals, valid)); err != nil {
		return nil, err
	}
	return merged.SortBy(table.ColCohort, table.ColDate)
}
