package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var fixedTime = time.Date(2025, 8, 12, 10, 30, 0, 0, time.UTC)

func newTestStore() *Store {
	s := NewStore(nil)
	s.now = func() time.Time { return fixedTime }
	return s
}

func tableItem(title string, rows int) Item {
	data := make([]any, rows)
	for i := range data {
		data[i] = map[string]any{"cohort": fmt.Sprintf("c%d", i), "net_days": float64(1000 + i)}
	}
	return Item{Type: ItemTable, Title: title, Content: map[string]any{"data": data}}
}

func TestStoreLifecycle(t *testing.T) {
	s := newTestStore()

	r := s.Create()
	require.NotEmpty(t, r.ID)
	assert.Empty(t, r.Items)

	got, item, err := s.AddItem(r.ID, Item{Type: ItemText, Title: "Notes", Content: map[string]any{"text": "hello"}})
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, fixedTime, item.Timestamp)
	assert.Len(t, got.Items, 1)

	require.NoError(t, s.UpdateComment(r.ID, item.ID, "looks good"))
	require.NoError(t, s.UpdateTitle(r.ID, item.ID, "Findings"))
	listed := s.List(r.ID)
	require.Len(t, listed.Items, 1)
	assert.Equal(t, "looks good", listed.Items[0].Comment)
	assert.Equal(t, "Findings", listed.Items[0].Title)

	assert.ErrorIs(t, s.UpdateComment(r.ID, "nope", "x"), ErrItemNotFound)
	assert.ErrorIs(t, s.UpdateTitle("unknown", item.ID, "x"), ErrReportNotFound)
	assert.ErrorIs(t, s.UpdateTitle(r.ID, item.ID, ""), ErrInvalidItem)

	left, err := s.DeleteItem(r.ID, "nope")
	require.NoError(t, err)
	assert.Equal(t, 1, left)
	left, err = s.DeleteItem(r.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	require.NoError(t, s.Clear(r.ID))
	assert.ErrorIs(t, s.Clear(r.ID), ErrReportNotFound)
	_, err = s.DeleteItem(r.ID, item.ID)
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestAddItemCreatesReport(t *testing.T) {
	s := newTestStore()

	r, _, err := s.AddItem("", tableItem("t", 1))
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)

	r2, _, err := s.AddItem("client-chosen", tableItem("t", 1))
	require.NoError(t, err)
	assert.Equal(t, "client-chosen", r2.ID)
	assert.Equal(t, 2, s.Len())
}

func TestAddItemValidation(t *testing.T) {
	s := newTestStore()
	_, _, err := s.AddItem("", Item{Type: "video", Title: "x"})
	assert.ErrorIs(t, err, ErrInvalidItem)
	_, _, err = s.AddItem("", Item{Type: ItemChart})
	assert.ErrorIs(t, err, ErrInvalidItem)
	assert.Equal(t, 0, s.Len())
}

func TestListUnknownIsEmpty(t *testing.T) {
	s := newTestStore()
	r := s.List("missing")
	assert.Equal(t, "missing", r.ID)
	assert.NotNil(t, r.Items)
	assert.Empty(t, r.Items)
}

func TestListReturnsCopy(t *testing.T) {
	s := newTestStore()
	r, _, err := s.AddItem("", tableItem("t", 1))
	require.NoError(t, err)

	listed := s.List(r.ID)
	listed.Items[0].Title = "changed"
	assert.Equal(t, "t", s.List(r.ID).Items[0].Title)
}

func TestStoreConcurrentAdds(t *testing.T) {
	s := newTestStore()
	r := s.Create()
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.AddItem(r.ID, tableItem("t", 1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, s.List(r.ID).Items, 25)
}

func sampleReport(t *testing.T) *Report {
	t.Helper()
	s := newTestStore()
	r, _, err := s.AddItem("", tableItem("Net days by cohort", 60))
	require.NoError(t, err)
	_, _, err = s.AddItem(r.ID, Item{Type: ItemChart, Title: "Trend", Content: map[string]any{
		"chartType": "line",
		"xAxis":     "date",
		"yAxes":     []any{"metric_value", "rolling_7"},
		"seriesBy":  "cohort",
		"data":      []any{map[string]any{}, map[string]any{}},
	}})
	require.NoError(t, err)
	_, item, err := s.AddItem(r.ID, Item{Type: ItemText, Title: "Notes", Content: map[string]any{"text": "<b>uplift</b> holds"}})
	require.NoError(t, err)
	require.NoError(t, s.UpdateComment(r.ID, item.ID, "reviewed"))
	out, err := s.Get(r.ID)
	require.NoError(t, err)
	return out
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, sampleReport(t), Options{GeneratedAt: fixedTime}))
	html := buf.String()

	assert.Contains(t, html, "<title>Experiment Report</title>")
	assert.Contains(t, html, "Generated on 2025-08-12 10:30:00")
	assert.Contains(t, html, "1. Net days by cohort")
	assert.Contains(t, html, "<th>cohort</th><th>net_days</th>")
	assert.Contains(t, html, "<td>1,000</td>")
	assert.Contains(t, html, "<td>1,049</td>")
	assert.NotContains(t, html, "<td>1,050</td>", "rows beyond the cap are not rendered")
	assert.Contains(t, html, "Showing first 50 of 60 rows")
	assert.Contains(t, html, "<strong>Y-Axes:</strong> metric_value, rolling_7")
	assert.Contains(t, html, "<strong>Series Breakout:</strong> cohort")
	assert.Contains(t, html, "<strong>Data Points:</strong> 2")
	assert.Contains(t, html, "&lt;b&gt;uplift&lt;/b&gt; holds")
	assert.Contains(t, html, "reviewed")
	assert.Equal(t, 1, strings.Count(html, `<div class="page-break">`))
}

func TestRenderHTMLImages(t *testing.T) {
	r := &Report{Items: []Item{
		{Type: ItemChart, Title: "img", Content: map[string]any{"imageDataUrl": "data:image/png;base64,AAAA"}},
		{Type: ItemChart, Title: "bad", Content: map[string]any{"imageDataUrl": "javascript:alert(1)"}},
	}}
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, r, Options{}))
	html := buf.String()

	assert.Contains(t, html, `src="data:image/png;base64,AAAA"`)
	assert.NotContains(t, html, "javascript:")
	assert.Contains(t, html, "<strong>Chart Type:</strong> N/A")
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderMarkdown(&buf, sampleReport(t), Options{Title: "Pune Pilot", GeneratedAt: fixedTime}))
	md := buf.String()

	assert.Contains(t, md, "# Pune Pilot")
	assert.Contains(t, md, "Net days by cohort")
	assert.Contains(t, md, "Trend")
	assert.NotContains(t, md, "<div")
	assert.NotContains(t, md, "font-family")
}

func TestRenderXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderXLSX(&buf, sampleReport(t), Options{GeneratedAt: fixedTime}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{SummarySheet, "1 Net days by cohort"}, f.GetSheetList())

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	require.Len(t, summary, 6)
	assert.Equal(t, []string{"#", "Type", "Title", "Comment", "Added", "Sheet"}, summary[2])
	assert.Equal(t, "TABLE", summary[3][1])
	assert.Equal(t, "1 Net days by cohort", summary[3][5])
	assert.Equal(t, "reviewed", summary[5][3])

	rows, err := f.GetRows("1 Net days by cohort")
	require.NoError(t, err)
	assert.Len(t, rows, 61, "xlsx keeps every row")
	assert.Equal(t, []string{"cohort", "net_days"}, rows[0])
	assert.Equal(t, []string{"c59", "1059"}, rows[60])
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{"summary": true}
	assert.Equal(t, "1 ab", sheetName(1, "a/b", used))
	long := strings.Repeat("x", 40)
	first := sheetName(2, long, used)
	assert.Len(t, first, maxSheetName)
	second := sheetName(2, long, used)
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasSuffix(second, " (2)"))
	assert.Len(t, second, maxSheetName)
}

func TestRenderCSV(t *testing.T) {
	r := &Report{Items: []Item{
		{Type: ItemText, Title: "skip", Content: map[string]any{"text": "x"}},
		{Type: ItemTable, Title: "Arms", Content: map[string]any{
			"columns": []any{"net_days", "cohort"},
			"data": []any{
				map[string]any{"cohort": "TEST: pune", "net_days": 3.5},
				map[string]any{"cohort": "CONTROL: pune", "net_days": nil},
			},
		}},
	}}
	var buf bytes.Buffer
	require.NoError(t, RenderCSV(&buf, r))

	content := buf.Bytes()
	require.True(t, bytes.HasPrefix(content, []byte{0xEF, 0xBB, 0xBF}))
	reader := csv.NewReader(bytes.NewReader(content[3:]))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"2. Arms"},
		{"net_days", "cohort"},
		{"3.5", "TEST: pune"},
		{"", "CONTROL: pune"},
	}, records)
}

func TestItemJSONShape(t *testing.T) {
	var item Item
	require.NoError(t, json.Unmarshal([]byte(`{"type":"table","title":"t","content":{"data":[{"a":1}]}}`), &item))
	data := tableOf(item.Content)
	assert.Equal(t, []string{"a"}, data.Columns)
	assert.Equal(t, [][]any{{1.0}}, data.Rows)
}

func TestDisplayValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{1234567.0, "1,234,567"},
		{-1234.5, "-1,234.50"},
		{0.126, "0.13"},
		{999.0, "999"},
		{42, "42"},
		{"pune", "pune"},
		{true, "true"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, displayValue(tt.in), "%v", tt.in)
	}
}

func TestRenderHTMLMaxRows(t *testing.T) {
	r := &Report{Items: []Item{tableItem("Net days", 12)}}
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, r, Options{GeneratedAt: fixedTime, MaxRows: 10}))
	html := buf.String()
	assert.Contains(t, html, "Showing first 10 of 12 rows")
	assert.NotContains(t, html, "<td>c10</td>")
}
