package table

import (
	"sort"
	"strings"
)

// SortBy returns a new table sorted ascending by the named columns.
// The sort is stable and null cells sort last.
func (t *Table) SortBy(keys ...string) (*Table, error) {
	if err := Require(t, keys...); err != nil {
		return nil, err
	}
	cols := make([]*Column, len(keys))
	for i, k := range keys {
		cols[i] = t.Column(k)
	}
	order := make([]int, t.rows)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		for _, c := range cols {
			if cmp := compareCells(c, order[a], order[b]); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	return t.Take(order), nil
}

func compareCells(c *Column, a, b int) int {
	na, nb := c.IsNull(a), c.IsNull(b)
	switch {
	case na && nb:
		return 0
	case na:
		return 1
	case nb:
		return -1
	}
	switch c.Kind() {
	case Numeric:
		switch {
		case c.nums[a] < c.nums[b]:
			return -1
		case c.nums[a] > c.nums[b]:
			return 1
		}
		return 0
	case Date:
		return c.dates[a].Compare(c.dates[b])
	default:
		return strings.Compare(c.strs[a], c.strs[b])
	}
}
