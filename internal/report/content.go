package report

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// MaxHTMLRows caps the rows of a table item rendered into HTML and Markdown.
const MaxHTMLRows = 50

// tableData is the rows of a table item in column order.
type tableData struct {
	Columns []string
	Rows    [][]any
}

// rowsOf extracts content["data"], accepting both decoded JSON arrays and
// rows built in process.
func rowsOf(content map[string]any) []map[string]any {
	switch data := content["data"].(type) {
	case []map[string]any:
		return data
	case []any:
		out := make([]map[string]any, 0, len(data))
		for _, r := range data {
			if m, ok := r.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func stringsOf(v any) []string {
	switch xs := v.(type) {
	case []string:
		return xs
	case []any:
		out := make([]string, 0, len(xs))
		for _, x := range xs {
			out = append(out, fmt.Sprint(x))
		}
		return out
	case string:
		if xs == "" {
			return nil
		}
		return []string{xs}
	}
	return nil
}

// tableOf returns the rows of a table item. Column order comes from
// content["columns"] when present, otherwise from the sorted keys of the
// first row.
func tableOf(content map[string]any) tableData {
	rows := rowsOf(content)
	cols := stringsOf(content["columns"])
	if len(cols) == 0 && len(rows) > 0 {
		for k := range rows[0] {
			cols = append(cols, k)
		}
		sort.Strings(cols)
	}
	out := tableData{Columns: cols, Rows: make([][]any, len(rows))}
	for i, r := range rows {
		rec := make([]any, len(cols))
		for j, c := range cols {
			rec[j] = r[c]
		}
		out.Rows[i] = rec
	}
	return out
}

// imageOf returns an embedded image data URL, or "" when absent or not an
// image.
func imageOf(content map[string]any) string {
	s, _ := content["imageDataUrl"].(string)
	if !strings.HasPrefix(s, "data:image/") {
		return ""
	}
	return s
}

func textOf(content map[string]any) string {
	s, _ := content["text"].(string)
	return s
}

// chartMeta is the description shown for a chart without an image.
type chartMeta struct {
	ChartType  string
	XAxis      string
	YAxes      []string
	SeriesBy   string
	DataPoints int
}

func chartOf(content map[string]any) chartMeta {
	str := func(key string) string {
		if s, ok := content[key].(string); ok && s != "" {
			return s
		}
		return ""
	}
	m := chartMeta{
		ChartType: str("chartType"),
		XAxis:     str("xAxis"),
		YAxes:     stringsOf(content["yAxes"]),
		SeriesBy:  str("seriesBy"),
	}
	switch data := content["data"].(type) {
	case []any:
		m.DataPoints = len(data)
	case []map[string]any:
		m.DataPoints = len(data)
	}
	if m.ChartType == "" {
		m.ChartType = "N/A"
	}
	if m.XAxis == "" {
		m.XAxis = "N/A"
	}
	return m
}

// displayValue formats a cell for reading: integers get thousands
// separators, other numbers two decimals.
func displayValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return groupThousands(strconv.FormatInt(int64(x), 10))
		}
		s := strconv.FormatFloat(x, 'f', 2, 64)
		whole, frac, _ := strings.Cut(s, ".")
		return groupThousands(whole) + "." + frac
	case int:
		return groupThousands(strconv.Itoa(x))
	case int64:
		return groupThousands(strconv.FormatInt(x, 10))
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func groupThousands(digits string) string {
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	if len(digits) <= 3 {
		return sign + digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return sign + b.String()
}
