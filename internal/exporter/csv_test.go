package exporter

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captainpulse/internal/table"
)

func setupTestEnv(t *testing.T) (*CSVWriter, string) {
	t.Helper()
	dir := t.TempDir()
	return NewCSVWriter(dir, nil), dir
}

func readCSV(t *testing.T, content []byte) [][]string {
	t.Helper()
	require.True(t, bytes.HasPrefix(content, bom), "missing BOM")
	records, err := csv.NewReader(bytes.NewReader(content[len(bom):])).ReadAll()
	require.NoError(t, err)
	return records
}

func sampleTable() *table.Table {
	return table.MustNew(
		table.NewCategorical("cohort", []string{"pune", "hyderabad"}, nil),
		table.NewNumeric("net_days", []float64{3, 1.5}, []bool{true, false}),
	)
}

func TestWrite(t *testing.T) {
	tests := []struct {
		name    string
		options WriteOptions
		want    string
	}{
		{
			name:    "headers and records with BOM",
			options: WriteOptions{Headers: []string{"a", "b"}, Records: [][]string{{"1", "x,y"}}, BOMPrefix: true},
			want:    "\ufeffa,b\n1,\"x,y\"\n",
		},
		{
			name:    "no BOM",
			options: WriteOptions{Headers: []string{"a"}, Records: [][]string{{"1"}}},
			want:    "a\n1\n",
		},
		{
			name:    "append skips headers and BOM",
			options: WriteOptions{Headers: []string{"a"}, Records: [][]string{{"2"}}, Append: true, BOMPrefix: true},
			want:    "2\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, tt.options))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, sampleTable()))

	records := readCSV(t, buf.Bytes())
	assert.Equal(t, [][]string{
		{"cohort", "net_days"},
		{"pune", "3"},
		{"hyderabad", ""},
	}, records)
}

func TestCSVWriter_WriteTableAndAppend(t *testing.T) {
	writer, dir := setupTestEnv(t)

	require.NoError(t, writer.WriteTable("nested/funnel.csv", sampleTable()))
	require.NoError(t, writer.WriteCSV("nested/funnel.csv", WriteOptions{
		Records:   [][]string{{"delhi", "2"}},
		Append:    true,
		BOMPrefix: true,
	}))

	content, err := os.ReadFile(filepath.Join(dir, "nested", "funnel.csv"))
	require.NoError(t, err)
	records := readCSV(t, content)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"delhi", "2"}, records[3])

	// A second full write truncates.
	require.NoError(t, writer.WriteTable("nested/funnel.csv", sampleTable()))
	content, err = os.ReadFile(filepath.Join(dir, "nested", "funnel.csv"))
	require.NoError(t, err)
	assert.Len(t, readCSV(t, content), 3)
}

func TestCSVWriter_AbsolutePath(t *testing.T) {
	writer, _ := setupTestEnv(t)
	abs := filepath.Join(t.TempDir(), "abs.csv")

	require.NoError(t, writer.WriteCSV(abs, WriteOptions{Headers: []string{"h"}, BOMPrefix: true}))
	_, err := os.Stat(abs)
	assert.NoError(t, err)
}

func TestStreamWriter(t *testing.T) {
	var buf bytes.Buffer
	stream, err := NewStreamWriter(&buf, []string{"Name", "Value"})
	require.NoError(t, err)

	for _, rec := range [][]string{{"a", "1"}, {"b", "2"}, {}, {"c", "3"}} {
		require.NoError(t, stream.WriteRecord(rec))
	}
	require.NoError(t, stream.Flush())

	assert.Equal(t, "\ufeffName,Value\na,1\nb,2\n\nc,3\n", buf.String())
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "pune", "pune"},
		{"integral float", 123.0, "123"},
		{"decimal float", -0.005678, "-0.005678"},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"bool", true, "true"},
		{"date", time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), "2025-08-01"},
		{"other", []int{1}, "[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCell(tt.input))
		})
	}
}
