package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the storage type of a column, decided once at ingestion.
type Kind int

const (
	Numeric Kind = iota
	Categorical
	Date
)

// String returns the kind name used in summaries and logs
func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	case Date:
		return "date"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DateLayout is the canonical rendering of date cells.
const DateLayout = "2006-01-02"

// Column is an immutable named vector of cells with a null mask.
// Exactly one of nums, strs or dates is populated depending on kind.
type Column struct {
	name  string
	kind  Kind
	nums  []float64
	strs  []string
	dates []time.Time
	valid []bool
}

// NewNumeric creates a numeric column. A nil valid slice marks every cell
// valid except NaN values.
func NewNumeric(name string, values []float64, valid []bool) *Column {
	nums := make([]float64, len(values))
	copy(nums, values)
	mask := make([]bool, len(values))
	for i, v := range values {
		mask[i] = !math.IsNaN(v) && (valid == nil || valid[i])
	}
	return &Column{name: name, kind: Numeric, nums: nums, valid: mask}
}

// NewCategorical creates a string column. A nil valid slice marks every cell valid.
func NewCategorical(name string, values []string, valid []bool) *Column {
	strs := make([]string, len(values))
	copy(strs, values)
	return &Column{name: name, kind: Categorical, strs: strs, valid: copyMask(valid, len(values))}
}

// NewDate creates a date column. Values are truncated to midnight UTC.
func NewDate(name string, values []time.Time, valid []bool) *Column {
	dates := make([]time.Time, len(values))
	for i, v := range values {
		dates[i] = TruncateDay(v)
	}
	return &Column{name: name, kind: Date, dates: dates, valid: copyMask(valid, len(values))}
}

func copyMask(valid []bool, n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = valid == nil || valid[i]
	}
	return mask
}

// Name returns the column name
func (c *Column) Name() string { return c.name }

// Kind returns the column kind
func (c *Column) Kind() Kind { return c.kind }

// Len returns the number of cells
func (c *Column) Len() int { return len(c.valid) }

// IsNull reports whether cell i is missing
func (c *Column) IsNull(i int) bool { return !c.valid[i] }

// NullCount returns the number of missing cells
func (c *Column) NullCount() int {
	n := 0
	for _, ok := range c.valid {
		if !ok {
			n++
		}
	}
	return n
}

// Float returns the numeric value of cell i. Categorical cells are parsed;
// date cells are never numeric.
func (c *Column) Float(i int) (float64, bool) {
	if !c.valid[i] {
		return 0, false
	}
	switch c.kind {
	case Numeric:
		return c.nums[i], true
	case Categorical:
		v, err := strconv.ParseFloat(strings.TrimSpace(c.strs[i]), 64)
		if err != nil || math.IsNaN(v) {
			return 0, false
		}
		return v, true
	default:
		return 0, false
	}
}

// Time returns the date value of cell i for date columns
func (c *Column) Time(i int) (time.Time, bool) {
	if c.kind != Date || !c.valid[i] {
		return time.Time{}, false
	}
	return c.dates[i], true
}

// String returns the textual value of cell i, or "" when null.
func (c *Column) String(i int) string {
	if !c.valid[i] {
		return ""
	}
	switch c.kind {
	case Numeric:
		return FormatFloat(c.nums[i])
	case Date:
		return c.dates[i].Format(DateLayout)
	default:
		return c.strs[i]
	}
}

// Value returns cell i as float64, string or time.Time, or nil when null.
func (c *Column) Value(i int) any {
	if !c.valid[i] {
		return nil
	}
	switch c.kind {
	case Numeric:
		return c.nums[i]
	case Date:
		return c.dates[i]
	default:
		return c.strs[i]
	}
}

// key is the grouping identity of cell i. Nulls share one key per column.
func (c *Column) key(i int) string {
	if !c.valid[i] {
		return "\x00null"
	}
	return c.String(i)
}

// Rename returns a copy of the column under a new name
func (c *Column) Rename(name string) *Column {
	out := *c
	out.name = name
	return &out
}

// Take returns a new column holding the cells at the given indices. A
// negative index yields a null cell.
func (c *Column) Take(indices []int) *Column {
	out := &Column{name: c.name, kind: c.kind, valid: make([]bool, len(indices))}
	switch c.kind {
	case Numeric:
		out.nums = make([]float64, len(indices))
	case Categorical:
		out.strs = make([]string, len(indices))
	case Date:
		out.dates = make([]time.Time, len(indices))
	}
	for j, i := range indices {
		if i < 0 {
			continue
		}
		out.valid[j] = c.valid[i]
		switch c.kind {
		case Numeric:
			out.nums[j] = c.nums[i]
		case Categorical:
			out.strs[j] = c.strs[i]
		case Date:
			out.dates[j] = c.dates[i]
		}
	}
	return out
}

// ToNumeric converts the column to numeric. Cells that cannot be read as
// numbers become null.
func (c *Column) ToNumeric() *Column {
	if c.kind == Numeric {
		return c
	}
	vals := make([]float64, c.Len())
	valid := make([]bool, c.Len())
	for i := range vals {
		vals[i], valid[i] = c.Float(i)
	}
	return NewNumeric(c.name, vals, valid)
}

// ToCategorical converts the column to its string rendering
func (c *Column) ToCategorical() *Column {
	if c.kind == Categorical {
		return c
	}
	vals := make([]string, c.Len())
	for i := range vals {
		vals[i] = c.String(i)
	}
	return NewCategorical(c.name, vals, c.valid)
}

// FillNull returns a numeric copy where missing cells hold v
func (c *Column) FillNull(v float64) *Column {
	num := c.ToNumeric()
	vals := make([]float64, num.Len())
	for i := range vals {
		if num.valid[i] {
			vals[i] = num.nums[i]
		} else {
			vals[i] = v
		}
	}
	return NewNumeric(c.name, vals, nil)
}

// FormatFloat renders a float without trailing zeros
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
