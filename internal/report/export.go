package report

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"captainpulse/internal/exporter"
)

// SummarySheet is the first sheet of an XLSX report.
const SummarySheet = "Summary"

const maxSheetName = 31

// RenderXLSX writes the report as a workbook: a summary sheet listing every
// item, then one sheet per table item holding all of its rows.
func RenderXLSX(w io.Writer, r *Report, opts Options) error {
	opts = opts.withDefaults()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("name summary sheet: %w", err)
	}
	title := []any{opts.Title, "Generated on " + opts.GeneratedAt.Format(timestampLayout)}
	if err := f.SetSheetRow(SummarySheet, "A1", &title); err != nil {
		return fmt.Errorf("write summary title: %w", err)
	}
	header := []any{"#", "Type", "Title", "Comment", "Added", "Sheet"}
	if err := f.SetSheetRow(SummarySheet, "A3", &header); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}

	used := map[string]bool{strings.ToLower(SummarySheet): true}
	for i, it := range r.Items {
		sheet := ""
		if it.Type == ItemTable {
			data := tableOf(it.Content)
			if len(data.Columns) > 0 {
				sheet = sheetName(i+1, it.Title, used)
				if err := writeTableSheet(f, sheet, data); err != nil {
					return err
				}
			}
		}
		row := []any{i + 1, strings.ToUpper(string(it.Type)), it.Title, it.Comment, it.Timestamp.Format(timestampLayout), sheet}
		cell, err := excelize.CoordinatesToCellName(1, i+4)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}

	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write report workbook: %w", err)
	}
	return nil
}

func writeTableSheet(f *excelize.File, sheet string, data tableData) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %q: %w", sheet, err)
	}
	header := make([]any, len(data.Columns))
	for i, c := range data.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write sheet %q header: %w", sheet, err)
	}
	for i, row := range data.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		copy(values, row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write sheet %q row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// sheetName builds a unique worksheet name from an item position and title,
// dropping characters Excel rejects.
func sheetName(pos int, title string, used map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']', '\'':
			return -1
		}
		return r
	}, title)
	base := strings.TrimSpace(fmt.Sprintf("%d %s", pos, clean))
	name := truncateRunes(base, maxSheetName)
	for n := 2; used[strings.ToLower(name)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		name = truncateRunes(base, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// RenderCSV writes every table item as a block: a title line, the header and
// all rows, followed by an empty line.
func RenderCSV(w io.Writer, r *Report) error {
	stream, err := exporter.NewStreamWriter(w, nil)
	if err != nil {
		return err
	}
	for i, it := range r.Items {
		if it.Type != ItemTable {
			continue
		}
		data := tableOf(it.Content)
		if len(data.Columns) == 0 {
			continue
		}
		if err := stream.WriteRecord([]string{fmt.Sprintf("%d. %s", i+1, it.Title)}); err != nil {
			return fmt.Errorf("write csv title: %w", err)
		}
		if err := stream.WriteRecord(data.Columns); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		for _, row := range data.Rows {
			rec := make([]string, len(row))
			for j, v := range row {
				rec[j] = exporter.FormatCell(v)
			}
			if err := stream.WriteRecord(rec); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
		if err := stream.WriteRecord(nil); err != nil {
			return fmt.Errorf("write csv separator: %w", err)
		}
	}
	return stream.Flush()
}
