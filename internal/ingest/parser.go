package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"captainpulse/internal/table"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrEmptyFile is returned when a file has no header row.
var ErrEmptyFile = errors.New("file has no header row")

// Parse reads a tabular upload, choosing the reader from the file extension.
func Parse(name string, r io.Reader) (*table.Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ParseCSV(r)
	case ".xlsx", ".xlsm":
		return ParseXLSX(r, "")
	default:
		return nil, fmt.Errorf("%w: %q (expected .csv or .xlsx)", ErrUnsupportedFormat, name)
	}
}

// ParseCSV reads a CSV document whose first record is the header.
func ParseCSV(r io.Reader) (*table.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}
	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return FromRecords(header, records[1:])
}

// ParseXLSX reads one worksheet of an Excel workbook. An empty sheet name
// selects the first sheet.
func ParseXLSX(r io.Reader, sheet string) (*table.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmptyFile
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return FromRecords(rows[0], rows[1:])
}

// FromRecords builds a table from string records, deciding each column's
// kind once. Short rows are padded with nulls.
func FromRecords(header []string, rows [][]string) (*table.Table, error) {
	names := uniqueNames(header)
	cols := make([]*table.Column, len(names))
	for j, name := range names {
		cells := make([]string, len(rows))
		for i, rec := range rows {
			if j < len(rec) {
				cells[i] = rec[j]
			}
		}
		cols[j] = InferColumn(name, cells)
	}
	return table.New(cols...)
}

// uniqueNames fills blank headers and suffixes repeated ones with .1, .2, ...
func uniqueNames(header []string) []string {
	seen := make(map[string]int, len(header))
	names := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("unnamed_%d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		names[i] = name
	}
	return names
}
