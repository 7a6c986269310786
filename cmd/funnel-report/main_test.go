package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captainpulse/internal/shared/testutil"
	"captainpulse/internal/validation"
)

func writeDataset(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{
			name: "flags",
			args: []string{"-in", "cohorts.csv", "-out", "reports", "-start", "2025-01-01", "-concurrency", "2", "-quiet"},
			want: options{input: "cohorts.csv", outputDir: "reports", start: "2025-01-01", concurrency: 2, quiet: true},
		},
		{
			name: "positional input",
			args: []string{"cohorts.xlsx"},
			want: options{input: "cohorts.xlsx", outputDir: "data/reports", concurrency: 4},
		},
		{
			name: "version only",
			args: []string{"-version"},
			want: options{outputDir: "data/reports", concurrency: 4, version: true},
		},
		{
			name:    "missing input",
			args:    []string{"-quiet"},
			wantErr: true,
		},
		{
			name:    "unknown flag",
			args:    []string{"-window", "60"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, 4)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun(t *testing.T) {
	input := writeDataset(t, "cohorts.csv", testutil.CohortCSV)
	outDir := t.TempDir()
	logger, _ := testutil.NewTestLogger(t)

	var stdout, progress bytes.Buffer
	path, err := run(context.Background(), options{input: input, outputDir: outDir, concurrency: 2}, &stdout, &progress, logger)
	require.NoError(t, err)

	assert.Equal(t, outDir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "funnel_report_"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	csv := strings.TrimPrefix(string(data), "\xEF\xBB\xBF")
	assert.True(t, strings.HasPrefix(csv, "date,"), csv)
	assert.Contains(t, csv, "ao_days2online_days")
	assert.Len(t, strings.Split(strings.TrimSpace(csv), "\n"), 5)

	summary := stdout.String()
	assert.Contains(t, summary, "Cohort funnel summary")
	assert.Contains(t, summary, "ao_days2online_days")
	assert.Contains(t, summary, "66.67%")
	assert.Contains(t, summary, "50%")
	assert.Contains(t, summary, "(2 cohorts)")
}

func TestRunDateFilter(t *testing.T) {
	input := writeDataset(t, "cohorts.csv", testutil.CohortCSV)
	logger, _ := testutil.NewTestLogger(t)

	var stdout bytes.Buffer
	_, err := run(context.Background(), options{
		input:     input,
		outputDir: t.TempDir(),
		start:     testutil.PostStart,
		end:       testutil.PostEnd,
		quiet:     true,
	}, &stdout, io.Discard, logger)
	require.NoError(t, err)

	summary := stdout.String()
	assert.Contains(t, summary, "100%")
	assert.Contains(t, summary, "0%")
	assert.NotContains(t, summary, testutil.PreStart)
}

func TestRunErrors(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)

	tests := []struct {
		name string
		opts options
	}{
		{
			name: "missing file",
			opts: options{input: filepath.Join(t.TempDir(), "absent.csv")},
		},
		{
			name: "unsupported extension",
			opts: options{input: writeDataset(t, "cohorts.json", "{}")},
		},
		{
			name: "no cohort column",
			opts: options{input: writeDataset(t, "plain.csv", "date,ao_days\n2025-01-01,1\n")},
		},
		{
			name: "bad start date",
			opts: options{input: writeDataset(t, "cohorts.csv", testutil.CohortCSV), start: "2025-13-45"},
		},
		{
			name: "window without rows",
			opts: options{input: writeDataset(t, "cohorts.csv", testutil.CohortCSV), start: "2026-01-01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.outputDir = t.TempDir()
			tt.opts.quiet = true
			_, err := run(context.Background(), tt.opts, io.Discard, io.Discard, logger)
			assert.Error(t, err)
		})
	}
}

func TestConversion(t *testing.T) {
	assert.Equal(t, "-", conversion(0, 3))
	assert.Equal(t, "50%", conversion(2, 1))
	assert.Equal(t, "66.67%", conversion(3, 2))
}

func TestRunRejectsLockFile(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	input := writeDataset(t, "~$cohorts.xlsx", "lock")

	_, err := run(context.Background(), options{input: input, outputDir: t.TempDir(), quiet: true}, io.Discard, io.Discard, logger)
	assert.ErrorIs(t, err, validation.ErrNotDataset)
}
