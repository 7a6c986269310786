package table

import (
	"sort"
	"strings"
)

// Group is one distinct key tuple and the rows that carry it.
type Group struct {
	// First is the index of the first row with this key.
	First int
	Rows  []int
}

// GroupBy partitions rows by the named key columns. Null keys form their own
// group. Groups are returned in first-seen order and rows keep table order.
func (t *Table) GroupBy(keys ...string) ([]Group, error) {
	if err := Require(t, keys...); err != nil {
		return nil, err
	}
	cols := make([]*Column, len(keys))
	for i, k := range keys {
		cols[i] = t.Column(k)
	}

	byKey := make(map[string]int)
	var groups []Group
	var sb strings.Builder
	for row := 0; row < t.rows; row++ {
		sb.Reset()
		for _, c := range cols {
			sb.WriteString(c.key(row))
			sb.WriteByte(0x1f)
		}
		k := sb.String()
		gi, ok := byKey[k]
		if !ok {
			gi = len(groups)
			byKey[k] = gi
			groups = append(groups, Group{First: row})
		}
		groups[gi].Rows = append(groups[gi].Rows, row)
	}
	return groups, nil
}

// Distinct returns the sorted distinct non-null string values of a column.
func (t *Table) Distinct(name string) ([]string, error) {
	if err := Require(t, name); err != nil {
		return nil, err
	}
	c := t.Column(name)
	seen := make(map[string]bool)
	var out []string
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			continue
		}
		s := c.String(i)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}
