package table

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResult marks a cohort or period that produced no rows. It is not
// fatal for the engine; callers that need rows surface it themselves.
var ErrEmptyResult = errors.New("empty result")

// MissingColumnError lists every required column absent from a table.
type MissingColumnError struct {
	Columns []string
	// AnyOf is set when one of Columns would have satisfied the requirement.
	AnyOf bool
}

func (e *MissingColumnError) Error() string {
	if e.AnyOf {
		return fmt.Sprintf("missing required column: one of %s", strings.Join(e.Columns, ", "))
	}
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// UnknownColumnError reports a caller supplied column that does not exist.
type UnknownColumnError struct {
	Column string
	// Role describes what the column was requested for, e.g. "group by".
	Role string
}

func (e *UnknownColumnError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("column %q not found", e.Column)
	}
	return fmt.Sprintf("%s column %q not found", e.Role, e.Column)
}

// InvalidDateError counts cells that could not be read as dates.
type InvalidDateError struct {
	Column string
	Count  int
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date values in column %q: %d", e.Column, e.Count)
}

