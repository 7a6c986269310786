package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/schollz/progressbar/v3"

	"captainpulse/internal/analytics"
	"captainpulse/internal/config"
	"captainpulse/internal/exporter"
	"captainpulse/internal/infrastructure"
	"captainpulse/internal/ingest"
	dataset "captainpulse/internal/table"
	"captainpulse/internal/validation"
	"captainpulse/pkg/contracts"
)

// options are the parsed command line flags
type options struct {
	input       string
	outputDir   string
	start       string
	end         string
	concurrency int
	quiet       bool
	version     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", slog.String("error", err.Error()))
		os.Exit(1)
	}

	opts, err := parseFlags(os.Args[1:], cfg.Analytics.MaxConcurrency)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Error("Invalid arguments", slog.String("error", err.Error()))
		os.Exit(2)
	}
	if opts.version {
		fmt.Println(contracts.GetFullVersionString())
		return
	}

	if _, err := run(ctx, opts, os.Stdout, os.Stderr, logger); err != nil {
		logger.Error("Funnel report failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func parseFlags(args []string, defaultConcurrency int) (options, error) {
	var opts options
	fs := flag.NewFlagSet("funnel-report", flag.ContinueOnError)
	fs.StringVar(&opts.input, "in", "", "cohort dataset to read (.csv or .xlsx)")
	fs.StringVar(&opts.outputDir, "out", "data/reports", "output directory for the funnel CSV")
	fs.StringVar(&opts.start, "start", "", "first date to include (YYYY-MM-DD)")
	fs.StringVar(&opts.end, "end", "", "last date to include (YYYY-MM-DD)")
	fs.IntVar(&opts.concurrency, "concurrency", defaultConcurrency, "cohorts processed at once")
	fs.BoolVar(&opts.quiet, "quiet", false, "hide the progress bar")
	fs.BoolVar(&opts.version, "version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.version {
		return opts, nil
	}
	if opts.input == "" && fs.NArg() > 0 {
		opts.input = fs.Arg(0)
	}
	if opts.input == "" {
		return options{}, errors.New("an input file is required (-in)")
	}
	return opts, nil
}

// run builds the funnel for opts.input and returns the path of the written CSV.
func run(ctx context.Context, opts options, stdout, progress io.Writer, logger *slog.Logger) (string, error) {
	period, err := analytics.ParsePeriod(opts.start, opts.end)
	if err != nil {
		return "", err
	}

	files := validation.NewFileValidator(logger)
	if err := files.ValidateDataset(opts.input); err != nil {
		return "", err
	}
	if err := files.ValidateOutputDirectory(opts.outputDir); err != nil {
		return "", err
	}

	data, err := load(opts.input)
	if err != nil {
		return "", err
	}
	logger.Info("Loaded cohort dataset",
		slog.String("path", opts.input),
		slog.Int("rows", data.Len()),
		slog.Int("columns", data.Width()))

	if !period.IsOpen() {
		if data, err = analytics.FilterPeriod(data, dataset.ColDate, period); err != nil {
			return "", err
		}
		logger.Info("Applied date filter",
			slog.String("start", opts.start),
			slog.String("end", opts.end),
			slog.Int("rows", data.Len()))
	}
	if data.Len() == 0 {
		return "", errors.New("no rows left to analyse")
	}

	cohorts, err := data.Distinct(dataset.ColCohort)
	if err != nil {
		return "", err
	}

	builder := analytics.NewFunnelBuilder(opts.concurrency, logger)
	if !opts.quiet {
		bar := progressbar.NewOptions(len(cohorts),
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription("building cohorts"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		builder.OnCohortDone = func(string) { _ = bar.Add(1) }
		defer bar.Finish()
	}

	series, err := builder.Build(ctx, data)
	if err != nil {
		return "", fmt.Errorf("build funnel: %w", err)
	}

	name := fmt.Sprintf("funnel_report_%s.csv", time.Now().Format("20060102_150405"))
	writer := exporter.NewCSVWriter(opts.outputDir, logger)
	if err := writer.WriteTable(name, series); err != nil {
		return "", fmt.Errorf("save funnel report: %w", err)
	}
	outputPath := filepath.Join(opts.outputDir, name)

	logger.Info("Funnel report generated successfully",
		slog.String("report", outputPath),
		slog.Int("rows", series.Len()),
		slog.Int("cohorts", len(cohorts)))

	if err := printSummary(stdout, series); err != nil {
		return "", err
	}
	return outputPath, nil
}

func load(path string) (*dataset.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()

	raw, err := ingest.Parse(filepath.Base(path), file)
	if err != nil {
		return nil, err
	}
	return ingest.PrepareUpload(raw)
}

// printSummary renders one row per cohort with its date span and funnel
// stage totals.
func printSummary(w io.Writer, series *dataset.Table) error {
	var stages []string
	for _, stage := range analytics.FunnelStages {
		if series.Has(stage) {
			stages = append(stages, stage)
		}
	}

	totals := make(map[string]map[string]float64, len(stages))
	for _, stage := range stages {
		sums, err := analytics.SumByCohort(series, stage)
		if err != nil {
			return err
		}
		totals[stage] = sums
	}

	spans := cohortSpans(series)
	cohorts := make([]string, 0, len(spans))
	for c := range spans {
		cohorts = append(cohorts, c)
	}
	sort.Strings(cohorts)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Cohort funnel summary")

	header := table.Row{"Cohort", "Days", "First date", "Last date"}
	for _, stage := range stages {
		header = append(header, stage)
	}
	convertible := len(stages) > 1
	if convertible {
		header = append(header, analytics.RatioName(stages[0], stages[len(stages)-1]))
	}
	t.AppendHeader(header)

	configs := []table.ColumnConfig{{Number: 2, Align: text.AlignRight}}
	for i := range stages {
		configs = append(configs, table.ColumnConfig{Number: 5 + i, Align: text.AlignRight})
	}
	t.SetColumnConfigs(configs)

	for _, c := range cohorts {
		s := spans[c]
		row := table.Row{c, s.days, s.first, s.last}
		for _, stage := range stages {
			row = append(row, dataset.FormatFloat(totals[stage][c]))
		}
		if convertible {
			row = append(row, conversion(totals[stages[0]][c], totals[stages[len(stages)-1]][c]))
		}
		t.AppendRow(row)
	}

	t.Render()
	_, err := fmt.Fprintf(w, "(%d cohorts)\n", len(cohorts))
	return err
}

type span struct {
	days        int
	first, last string
}

func cohortSpans(series *dataset.Table) map[string]*span {
	spans := make(map[string]*span)
	cohorts := series.Column(dataset.ColCohort)
	dates := series.Column(dataset.ColDate)
	for i := 0; i < series.Len(); i++ {
		c := cohorts.String(i)
		s, ok := spans[c]
		if !ok {
			s = &span{}
			spans[c] = s
		}
		s.days++
		d := dates.String(i)
		if s.first == "" || d < s.first {
			s.first = d
		}
		if d > s.last {
			s.last = d
		}
	}
	return spans
}

func conversion(from, to float64) string {
	if from == 0 {
		return "-"
	}
	return dataset.FormatFloat(math.Round(10000*to/from)/100) + "%"
}
