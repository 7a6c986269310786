package table

import "fmt"

// JoinKind selects which left rows survive a join.
type JoinKind int

const (
	// InnerJoin keeps left rows with at least one match.
	InnerJoin JoinKind = iota
	// LeftJoin keeps every left row; unmatched right cells are null.
	LeftJoin
)

// Join matches rows of left and right on the string rendering of column on.
// Each left row is repeated once per matching right row, in right order.
// Null keys never match. Right columns whose names collide with a left
// column are suffixed with "_right".
func Join(left, right *Table, on string, kind JoinKind) (*Table, error) {
	if err := Require(left, on); err != nil {
		return nil, fmt.Errorf("left side: %w", err)
	}
	if err := Require(right, on); err != nil {
		return nil, fmt.Errorf("right side: %w", err)
	}

	rkey := right.Column(on)
	index := make(map[string][]int)
	for i := 0; i < right.Len(); i++ {
		if rkey.IsNull(i) {
			continue
		}
		k := rkey.String(i)
		index[k] = append(index[k], i)
	}

	lkey := left.Column(on)
	var lrows, rrows []int
	for i := 0; i < left.Len(); i++ {
		var matches []int
		if !lkey.IsNull(i) {
			matches = index[lkey.String(i)]
		}
		if len(matches) == 0 {
			if kind == LeftJoin {
				lrows = append(lrows, i)
				rrows = append(rrows, -1)
			}
			continue
		}
		for _, r := range matches {
			lrows = append(lrows, i)
			rrows = append(rrows, r)
		}
	}

	cols := make([]*Column, 0, left.Width()+right.Width()-1)
	for _, c := range left.cols {
		cols = append(cols, c.Take(lrows))
	}
	for _, c := range right.cols {
		if c.Name() == on {
			continue
		}
		taken := c.Take(rrows)
		if left.Has(c.Name()) {
			taken = taken.Rename(c.Name() + "_right")
		}
		cols = append(cols, taken)
	}
	return New(cols...)
}

// DropDuplicates keeps the first row of every distinct key tuple.
func DropDuplicates(t *Table, keys ...string) (*Table, error) {
	groups, err := t.GroupBy(keys...)
	if err != nil {
		return nil, err
	}
	if len(groups) == t.Len() {
		return t, nil
	}
	first := make([]int, len(groups))
	for i, g := range groups {
		first[i] = g.First
	}
	return t.Take(first), nil
}
