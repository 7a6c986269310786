// Package exporter writes CSV output for sessions, reports and the
// command line tools.
//
// CSVWriter resolves relative paths under a base directory and writes whole
// files. Write and WriteTable target any io.Writer, which is how HTTP
// downloads are produced. StreamWriter appends records one at a time.
//
// Every writer can prefix a UTF-8 BOM so spreadsheet tools detect the
// encoding of non-ASCII cohort labels.
//
// Example usage:
//
//	w := exporter.NewCSVWriter("out", logger)
//	err := w.WriteTable("funnel.csv", series)
package exporter
