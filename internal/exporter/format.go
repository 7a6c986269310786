package exporter

import (
	"fmt"
	"strconv"
	"time"

	"captainpulse/internal/table"
)

// FormatCell renders a decoded JSON or table value as a CSV cell. Nil
// renders as the empty string.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return table.FormatFloat(x)
	case float32:
		return table.FormatFloat(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return formatBool(x)
	case time.Time:
		return x.Format(table.DateLayout)
	default:
		return fmt.Sprint(x)
	}
}

// formatBool formats a boolean value for CSV output
func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
