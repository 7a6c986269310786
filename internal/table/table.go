package table

import (
	"fmt"
	"time"
)

// Table is an immutable ordered collection of equally sized columns.
// Every operation that changes shape or content returns a new Table.
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New builds a table from columns. Names must be unique and lengths equal.
func New(cols ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if _, dup := t.index[c.Name()]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name())
		}
		if i == 0 {
			t.rows = c.Len()
		} else if c.Len() != t.rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name(), c.Len(), t.rows)
		}
		t.index[c.Name()] = i
		t.cols = append(t.cols, c)
	}
	return t, nil
}

// MustNew is like New but panics on a malformed schema.
func MustNew(cols ...*Column) *Table {
	t, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of rows
func (t *Table) Len() int { return t.rows }

// Width returns the number of columns
func (t *Table) Width() int { return len(t.cols) }

// Columns returns the column names in order
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name()
	}
	return names
}

// Has reports whether the named column exists
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column or nil
func (t *Table) Column(name string) *Column {
	i, ok := t.index[name]
	if !ok {
		return nil
	}
	return t.cols[i]
}

// Take returns a new table with the rows at the given indices, in that order.
func (t *Table) Take(indices []int) *Table {
	cols := make([]*Column, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.Take(indices)
	}
	out := MustNew(cols...)
	out.rows = len(indices)
	return out
}

// Filter returns the rows for which keep returns true
func (t *Table) Filter(keep func(row int) bool) *Table {
	indices := make([]int, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			indices = append(indices, i)
		}
	}
	return t.Take(indices)
}

// Clone returns a shallow copy. Columns are immutable so sharing them is safe.
func (t *Table) Clone() *Table {
	cols := make([]*Column, len(t.cols))
	copy(cols, t.cols)
	out := MustNew(cols...)
	out.rows = t.rows
	return out
}

// WithColumn returns a new table with c appended, or replacing the column of
// the same name in place.
func (t *Table) WithColumn(c *Column) (*Table, error) {
	if len(t.cols) > 0 && c.Len() != t.rows {
		return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name(), c.Len(), t.rows)
	}
	cols := make([]*Column, len(t.cols))
	copy(cols, t.cols)
	if i, ok := t.index[c.Name()]; ok {
		cols[i] = c
	} else {
		cols = append(cols, c)
	}
	return New(cols...)
}

// Select returns a table restricted to the named columns in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	if err := Require(t, names...); err != nil {
		return nil, err
	}
	cols := make([]*Column, len(names))
	for i, n := range names {
		cols[i] = t.Column(n)
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	out.rows = t.rows
	return out, nil
}

// Drop returns a table without the named columns. Unknown names are ignored.
func (t *Table) Drop(names ...string) *Table {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	cols := make([]*Column, 0, len(t.cols))
	for _, c := range t.cols {
		if !skip[c.Name()] {
			cols = append(cols, c)
		}
	}
	out := MustNew(cols...)
	out.rows = t.rows
	return out
}

// Row returns row i as a name to value map. Null cells map to nil.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.cols))
	for _, c := range t.cols {
		row[c.Name()] = c.Value(i)
	}
	return row
}

// Records returns every row rendered as strings, header first.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, t.rows+1)
	out = append(out, t.Columns())
	for i := 0; i < t.rows; i++ {
		rec := make([]string, len(t.cols))
		for j, c := range t.cols {
			rec[j] = c.String(i)
		}
		out = append(out, rec)
	}
	return out
}

// Concat stacks tables vertically. The schema is the union of all column
// names in first-seen order; cells absent from a part are null. A column whose
// kind differs between parts is widened to categorical.
func Concat(parts ...*Table) *Table {
	var order []string
	kinds := make(map[string]Kind)
	total := 0
	for _, p := range parts {
		total += p.Len()
		for _, c := range p.cols {
			k, seen := kinds[c.Name()]
			if !seen {
				order = append(order, c.Name())
				kinds[c.Name()] = c.Kind()
			} else if k != c.Kind() {
				kinds[c.Name()] = Categorical
			}
		}
	}

	cols := make([]*Column, 0, len(order))
	for _, name := range order {
		kind := kinds[name]
		valid := make([]bool, 0, total)
		var nums []float64
		var strs []string
		var dates []time.Time
		for _, p := range parts {
			src := p.Column(name)
			if src != nil && kind == Categorical {
				src = src.ToCategorical()
			}
			for i := 0; i < p.Len(); i++ {
				ok := src != nil && src.valid[i]
				valid = append(valid, ok)
				switch kind {
				case Numeric:
					v := 0.0
					if ok {
						v = src.nums[i]
					}
					nums = append(nums, v)
				case Categorical:
					s := ""
					if ok {
						s = src.strs[i]
					}
					strs = append(strs, s)
				case Date:
					var d time.Time
					if ok {
						d = src.dates[i]
					}
					dates = append(dates, d)
				}
			}
		}
		switch kind {
		case Numeric:
			cols = append(cols, NewNumeric(name, nums, valid))
		case Categorical:
			cols = append(cols, NewCategorical(name, strs, valid))
		case Date:
			cols = append(cols, NewDate(name, dates, valid))
		}
	}
	out := MustNew(cols...)
	out.rows = total
	return out
}
