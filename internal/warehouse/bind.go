package warehouse

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"captainpulse/internal/config"
)

// bind rewrites :name parameters into the driver's positional placeholders.
// String slices expand to "?, ?, ..." for MySQL and bind as a single array
// for Postgres, so Postgres templates compare with "= ANY(:ids)".
// Parameters inside single-quoted literals and "::" casts are left alone.
func bind(driver, query string, named map[string]any) (string, []any, error) {
	var (
		sb       strings.Builder
		args     []any
		position = make(map[string]int)
		inQuote  bool
	)
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			sb.WriteByte(ch)
		case inQuote || ch != ':':
			sb.WriteByte(ch)
		case i+1 < len(query) && query[i+1] == ':':
			sb.WriteString("::")
			i++
		case i+1 < len(query) && isIdentStart(query[i+1]):
			j := i + 1
			for j < len(query) && isIdent(query[j]) {
				j++
			}
			name := query[i+1 : j]
			val, ok := named[name]
			if !ok {
				return "", nil, fmt.Errorf("query parameter :%s has no value", name)
			}
			if driver == config.DriverPostgres {
				n, seen := position[name]
				if !seen {
					if list, isList := val.([]string); isList {
						val = pq.Array(list)
					}
					args = append(args, val)
					n = len(args)
					position[name] = n
				}
				fmt.Fprintf(&sb, "$%d", n)
			} else if list, isList := val.([]string); isList {
				for k, v := range list {
					if k > 0 {
						sb.WriteString(", ")
					}
					sb.WriteByte('?')
					args = append(args, v)
				}
			} else {
				sb.WriteByte('?')
				args = append(args, val)
			}
			i = j - 1
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String(), args, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdent(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
