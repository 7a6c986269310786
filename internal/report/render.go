package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const timestampLayout = "2006-01-02 15:04:05"

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"join": func(xs []string) string { return strings.Join(xs, ", ") },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 1200px; margin: 0 auto; padding: 40px 20px; }
h1 { color: #1e293b; border-bottom: 3px solid #8b5cf6; padding-bottom: 10px; }
.subtitle { color: #64748b; font-size: 14px; }
.report-item { margin: 30px 0; padding: 25px; border: 2px solid #e2e8f0; border-radius: 8px; background: #f8fafc; }
.item-type { display: inline-block; padding: 4px 12px; background: #8b5cf6; color: white; border-radius: 12px; font-size: 12px; }
.item-comment { margin-top: 15px; padding: 15px; background: white; border-left: 4px solid #8b5cf6; font-style: italic; }
.item-timestamp { font-size: 12px; color: #94a3b8; margin-top: 8px; }
table { width: 100%; border-collapse: collapse; margin-top: 15px; font-size: 13px; }
th { background: #8b5cf6; color: white; padding: 10px; text-align: left; }
td { padding: 10px; border-bottom: 1px solid #e2e8f0; }
.chart-config { background: #f1f5f9; padding: 15px; margin-top: 15px; font-family: 'Courier New', monospace; font-size: 12px; }
.page-break { page-break-after: always; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="subtitle">Generated on {{.GeneratedAt}}</p>
{{range .Items}}<div class="report-item">
<span class="item-type">{{.Type}}</span>
<h2>{{.Index}}. {{.Title}}</h2>
{{if .Image}}<p><img src="{{.Image}}" alt="{{.Title}}"></p>
{{else if .Table}}<table>
<thead><tr>{{range .Table.Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Table.Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
{{if .Truncated}}<p>Showing first {{len .Table.Rows}} of {{.TotalRows}} rows</p>
{{end}}{{else if .Chart}}<div class="chart-config">
<strong>Chart Type:</strong> {{.Chart.ChartType}}<br>
<strong>X-Axis:</strong> {{.Chart.XAxis}}<br>
<strong>Y-Axes:</strong> {{join .Chart.YAxes}}<br>
{{if .Chart.SeriesBy}}<strong>Series Breakout:</strong> {{.Chart.SeriesBy}}<br>
{{end}}<strong>Data Points:</strong> {{.Chart.DataPoints}}
</div>
{{else if .Text}}<p>{{.Text}}</p>
{{end}}{{if .Comment}}<blockquote class="item-comment">{{.Comment}}</blockquote>
{{end}}<div class="item-timestamp">Added: {{.Added}}</div>
</div>
{{if .PageBreak}}<div class="page-break"></div>
{{end}}{{end}}</body>
</html>
`))

type htmlView struct {
	Title       string
	GeneratedAt string
	Items       []htmlItem
}

type htmlTable struct {
	Columns []string
	Rows    [][]string
}

type htmlItem struct {
	Index     int
	Type      string
	Title     string
	Image     template.URL
	Table     *htmlTable
	TotalRows int
	Truncated bool
	Chart     *chartMeta
	Text      string
	Comment   string
	Added     string
	PageBreak bool
}

// Options controls report rendering.
type Options struct {
	// Title heads the document.
	Title string
	// GeneratedAt is printed under the title.
	GeneratedAt time.Time
	// MaxRows caps the rows rendered per table. Zero means MaxHTMLRows.
	MaxRows int
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = "Experiment Report"
	}
	if o.GeneratedAt.IsZero() {
		o.GeneratedAt = time.Now()
	}
	if o.MaxRows <= 0 {
		o.MaxRows = MaxHTMLRows
	}
	return o
}

func buildView(r *Report, opts Options) htmlView {
	opts = opts.withDefaults()
	view := htmlView{
		Title:       opts.Title,
		GeneratedAt: opts.GeneratedAt.Format(timestampLayout),
		Items:       make([]htmlItem, 0, len(r.Items)),
	}
	for i, it := range r.Items {
		hi := htmlItem{
			Index:     i + 1,
			Type:      strings.ToUpper(string(it.Type)),
			Title:     it.Title,
			Comment:   it.Comment,
			Added:     it.Timestamp.Format(timestampLayout),
			PageBreak: (i+1)%2 == 0,
		}
		switch it.Type {
		case ItemTable:
			if img := imageOf(it.Content); img != "" {
				// Only data:image/ URLs pass imageOf.
				hi.Image = template.URL(img)
				break
			}
			data := tableOf(it.Content)
			if len(data.Rows) == 0 {
				break
			}
			hi.TotalRows = len(data.Rows)
			rows := data.Rows
			if len(rows) > opts.MaxRows {
				rows = rows[:opts.MaxRows]
				hi.Truncated = true
			}
			ht := &htmlTable{Columns: data.Columns, Rows: make([][]string, len(rows))}
			for j, row := range rows {
				cells := make([]string, len(row))
				for k, v := range row {
					cells[k] = displayValue(v)
				}
				ht.Rows[j] = cells
			}
			hi.Table = ht
		case ItemChart:
			if img := imageOf(it.Content); img != "" {
				hi.Image = template.URL(img)
				break
			}
			meta := chartOf(it.Content)
			hi.Chart = &meta
		case ItemText:
			hi.Text = textOf(it.Content)
		}
		view.Items = append(view.Items, hi)
	}
	return view
}

// RenderHTML writes the report as a standalone HTML document. Tables show at
// most opts.MaxRows rows and a page break follows every second item.
func RenderHTML(w io.Writer, r *Report, opts Options) error {
	if err := htmlTemplate.Execute(w, buildView(r, opts)); err != nil {
		return fmt.Errorf("render report html: %w", err)
	}
	return nil
}

// RenderMarkdown writes the report as Markdown converted from its HTML
// rendering.
func RenderMarkdown(w io.Writer, r *Report, opts Options) error {
	var buf bytes.Buffer
	if err := RenderHTML(&buf, r, opts); err != nil {
		return err
	}
	md, err := htmltomarkdown.ConvertString(buf.String())
	if err != nil {
		return fmt.Errorf("convert report to markdown: %w", err)
	}
	if _, err := io.WriteString(w, md+"\n"); err != nil {
		return fmt.Errorf("write report markdown: %w", err)
	}
	return nil
}
