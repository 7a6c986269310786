package analytics

import (
	"fmt"
	"math"
	"sort"

	"captainpulse/internal/table"
)

// AggKind names a reduction applied to each group.
type AggKind string

const (
	AggSum     AggKind = "sum"
	AggMean    AggKind = "mean"
	AggCount   AggKind = "count"
	AggNUnique AggKind = "nunique"
	AggMedian  AggKind = "median"
	AggStd     AggKind = "std"
	AggMin     AggKind = "min"
	AggMax     AggKind = "max"
)

// AggKinds lists every supported kind
var AggKinds = []AggKind{AggSum, AggMean, AggCount, AggNUnique, AggMedian, AggStd, AggMin, AggMax}

// ParseAggKind validates a kind name
func ParseAggKind(s string) (AggKind, error) {
	for _, k := range AggKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unsupported aggregation %q", s)
}

// AggSpec is one (column, kind) pair of a multi aggregation.
type AggSpec struct {
	Column string
	Kind   AggKind
	// As overrides the output name, which defaults to {Column}_{Kind}.
	As string
}

// OutputName returns the name of the aggregated column
func (s AggSpec) OutputName() string {
	if s.As != "" {
		return s.As
	}
	return fmt.Sprintf("%s_%s", s.Column, s.Kind)
}

// Aggregate groups t by groupBy and reduces valueCol with kind into a column
// named {valueCol}_{kind}. Null keys form their own group.
func Aggregate(t *table.Table, groupBy []string, valueCol string, kind AggKind) (*table.Table, error) {
	return AggregateMulti(t, groupBy, []AggSpec{{Column: valueCol, Kind: kind}})
}

// AggregateMulti reduces several (column, kind) pairs in one grouped pass.
// Output holds the key columns followed by one column per spec. Groups appear
// in first-seen order.
func AggregateMulti(t *table.Table, groupBy []string, specs []AggSpec) (*table.Table, error) {
	required := append([]string{}, groupBy...)
	for _, s := range specs {
		if _, err := ParseAggKind(string(s.Kind)); err != nil {
			return nil, err
		}
		required = append(required, s.Column)
	}
	if err := table.Require(t, dedupe(required)...); err != nil {
		return nil, err
	}

	groups, err := t.GroupBy(groupBy...)
	if err != nil {
		return nil, err
	}
	firsts := make([]int, len(groups))
	for i, g := range groups {
		firsts[i] = g.First
	}

	keys, err := t.Select(groupBy...)
	if err != nil {
		return nil, err
	}
	out := keys.Take(firsts)
	for _, s := range specs {
		src := t.Column(s.Column)
		vals := make([]float64, len(groups))
		valid := make([]bool, len(groups))
		for i, g := range groups {
			vals[i], valid[i] = reduce(s.Kind, src, g.Rows)
		}
		if out, err = out.WithColumn(table.NewNumeric(s.OutputName(), vals, valid)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// reduce applies kind to the cells of c at rows. The bool is false when the
// result is undefined, e.g. the mean of no values.
func reduce(kind AggKind, c *table.Column, rows []int) (float64, bool) {
	switch kind {
	case AggCount:
		n := 0
		for _, r := range rows {
			if !c.IsNull(r) {
				n++
			}
		}
		return float64(n), true
	case AggNUnique:
		seen := make(map[string]struct{})
		for _, r := range rows {
			if !c.IsNull(r) {
				seen[c.String(r)] = struct{}{}
			}
		}
		return float64(len(seen)), true
	}

	vals := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v, ok := c.Float(r); ok {
			vals = append(vals, v)
		}
	}
	switch kind {
	case AggSum:
		return sum(vals), true
	case AggMean:
		if len(vals) == 0 {
			return 0, false
		}
		return sum(vals) / float64(len(vals)), true
	case AggMedian:
		if len(vals) == 0 {
			return 0, false
		}
		sort.Float64s(vals)
		mid := len(vals) / 2
		if len(vals)%2 == 1 {
			return vals[mid], true
		}
		return (vals[mid-1] + vals[mid]) / 2, true
	case AggStd:
		if len(vals) < 2 {
			return 0, false
		}
		mean := sum(vals) / float64(len(vals))
		ss := 0.0
		for _, v := range vals {
			ss += (v - mean) * (v - mean)
		}
		return math.Sqrt(ss / float64(len(vals)-1)), true
	case AggMin, AggMax:
		if len(vals) == 0 {
			return 0, false
		}
		best := vals[0]
		for _, v := range vals[1:] {
			if (kind == AggMin && v < best) || (kind == AggMax && v > best) {
				best = v
			}
		}
		return best, true
	}
	return 0, false
}

func sum(vals []float64) float64 {
	total := 0.0
	for _, v := range vals {
		total += v
	}
	return total
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
