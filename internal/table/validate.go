package table

// Require fails with a MissingColumnError naming every absent column.
func Require(t *Table, columns ...string) error {
	var missing []string
	for _, c := range columns {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnError{Columns: missing}
	}
	return nil
}

// RequireKnown fails with an UnknownColumnError for the first caller
// supplied column that does not exist.
func RequireKnown(t *Table, role string, columns ...string) error {
	for _, c := range columns {
		if !t.Has(c) {
			return &UnknownColumnError{Column: c, Role: role}
		}
	}
	return nil
}
