package ingest

import (
	"math"
	"strconv"
	"strings"

	"captainpulse/internal/table"
)

// identifierColumns are never read as numbers, so labels like "007" survive.
var identifierColumns = map[string]bool{
	table.ColCohort:    true,
	table.ColDate:      true,
	table.ColTime:      true,
	table.ColCaptainID: true,
	"mobile_number":    true,
}

var nullTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
}

// IsNullToken reports whether a raw cell denotes a missing value
func IsNullToken(s string) bool {
	return nullTokens[strings.TrimSpace(s)]
}

// InferColumn decides the kind of a raw column. Identifier columns stay
// categorical; any other column is numeric when every non-null cell parses
// as a number.
func InferColumn(name string, cells []string) *table.Column {
	valid := make([]bool, len(cells))
	for i, c := range cells {
		valid[i] = !IsNullToken(c)
	}
	if !identifierColumns[name] {
		if nums, ok := parseNumbers(cells, valid); ok {
			return table.NewNumeric(name, nums, valid)
		}
	}
	trimmed := make([]string, len(cells))
	for i, c := range cells {
		trimmed[i] = strings.TrimSpace(c)
	}
	return table.NewCategorical(name, trimmed, valid)
}

func parseNumbers(cells []string, valid []bool) ([]float64, bool) {
	nums := make([]float64, len(cells))
	seen := false
	for i, c := range cells {
		if !valid[i] {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(c), ",", ""), 64)
		if err != nil || math.IsInf(v, 0) {
			return nil, false
		}
		nums[i] = v
		seen = true
	}
	return nums, seen
}
