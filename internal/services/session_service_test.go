package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captainpulse/internal/session"
	"captainpulse/internal/shared/testutil"
	"captainpulse/internal/table"
)

func newTestSessionService(t *testing.T) (*SessionService, *session.MemoryStore) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	store := session.NewMemoryStore(time.Hour, 0, logger)
	return NewSessionService(store, nil, logger), store
}

func uploadCohorts(t *testing.T, svc *SessionService) string {
	t.Helper()
	resp, err := svc.Upload(context.Background(), "cohorts.csv", strings.NewReader(testutil.CohortCSV))
	require.NoError(t, err)
	return resp.SessionID
}

func TestSessionServiceUpload(t *testing.T) {
	svc, store := newTestSessionService(t)

	resp, err := svc.Upload(context.Background(), "cohorts.csv", strings.NewReader(testutil.CohortCSV))
	require.NoError(t, err)

	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, 6, resp.NumRows)
	assert.Equal(t, []string{"ctrl", "treat"}, resp.Cohorts)
	assert.Equal(t, "2025-01-01", resp.DateMin)
	assert.Equal(t, "2025-01-03", resp.DateMax)
	assert.Contains(t, resp.Metrics, "metric_value")
	assert.NotContains(t, resp.Metrics, "cohort")
	assert.Equal(t, 1, store.Len())

	meta, err := svc.Meta(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, resp, meta)
}

func TestSessionServiceUploadErrors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		body     string
		check    func(t *testing.T, err error)
	}{
		{
			name:     "unsupported extension",
			filename: "cohorts.json",
			body:     "{}",
			check:    func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnsupportedFormat) },
		},
		{
			name:     "empty file",
			filename: "cohorts.csv",
			body:     "",
			check:    func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrEmptyDataset) },
		},
		{
			name:     "header only",
			filename: "cohorts.csv",
			body:     "cohort,date,metric_value\n",
			check:    func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrEmptyDataset) },
		},
		{
			name:     "missing cohort",
			filename: "cohorts.csv",
			body:     "date,metric_value\n2025-01-01,1\n",
			check: func(t *testing.T, err error) {
				var missing *table.MissingColumnError
				require.True(t, errors.As(err, &missing))
				assert.Equal(t, []string{"cohort"}, missing.Columns)
			},
		},
		{
			name:     "invalid dates",
			filename: "cohorts.csv",
			body:     "cohort,date,metric_value\na,2025-01-01,1\na,not-a-date,2\na,2025-13-45,3\n",
			check: func(t *testing.T, err error) {
				var invalid *table.InvalidDateError
				require.True(t, errors.As(err, &invalid))
				assert.Equal(t, 2, invalid.Count)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestSessionService(t)
			_, err := svc.Upload(context.Background(), tt.filename, strings.NewReader(tt.body))
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestSessionServiceMetaUnknown(t *testing.T) {
	svc, _ := newTestSessionService(t)

	_, err := svc.Meta(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.Meta(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionServiceDelete(t *testing.T) {
	svc, store := newTestSessionService(t)
	id := uploadCohorts(t, svc)

	require.NoError(t, svc.Delete(context.Background(), id))
	assert.Equal(t, 0, store.Len())
	assert.NoError(t, svc.Delete(context.Background(), id), "deleting twice is not an error")
	assert.ErrorIs(t, svc.Delete(context.Background(), ""), ErrSessionNotFound)
}

func TestSessionServiceExportCSV(t *testing.T) {
	svc, _ := newTestSessionService(t)
	id := uploadCohorts(t, svc)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), id, &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 7)
	assert.Contains(t, lines[0], "cohort")
	assert.Contains(t, lines[1], "treat")
}

func TestSessionServiceWrongKind(t *testing.T) {
	svc, store := newTestSessionService(t)
	sess, err := store.Create(session.KindFunnel, "numbers.csv", table.MustNew(
		table.NewCategorical("mobile_number", []string{"1"}, nil),
	))
	require.NoError(t, err)

	_, err = svc.Meta(context.Background(), sess.ID)
	assert.ErrorIs(t, err, ErrWrongSessionKind)
}
