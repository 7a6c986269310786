package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"captainpulse/internal/table"
)

// DefaultMaxConcurrency bounds the per-cohort fan-out when none is configured.
const DefaultMaxConcurrency = 4

// FunnelBuilder turns a per-captain-per-day table into a cohort keyed daily
// funnel time series with conversion ratios.
type FunnelBuilder struct {
	maxConcurrency int
	logger         *slog.Logger

	// OnCohortDone, when set, is called once per finished cohort. It may be
	// called from several goroutines.
	OnCohortDone func(cohort string)
}

// NewFunnelBuilder creates a builder that processes up to maxConcurrency
// cohorts at once.
func NewFunnelBuilder(maxConcurrency int, logger *slog.Logger) *FunnelBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrency < 1 {
		maxConcurrency = DefaultMaxConcurrency
	}
	return &FunnelBuilder{
		maxConcurrency: maxConcurrency,
		logger:         logger.With(slog.String("component", "funnel_builder")),
	}
}

// Build aggregates each cohort per date, derives the funnel ratios and
// returns all cohorts stacked and sorted by (cohort, date).
func (b *FunnelBuilder) Build(ctx context.Context, t *table.Table) (*table.Table, error) {
	start := time.Now()
	if err := table.Require(t, table.ColCohort); err != nil {
		return nil, err
	}
	cohorts, err := t.Distinct(table.ColCohort)
	if err != nil {
		return nil, err
	}
	if len(cohorts) == 0 {
		return emptySeries(), nil
	}

	b.logger.DebugContext(ctx, "building cohort funnel",
		slog.Int("rows", t.Len()),
		slog.Int("cohorts", len(cohorts)),
	)

	parts := make([]*table.Table, len(cohorts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.maxConcurrency)
	for i, cohort := range cohorts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			part, err := SelectCohort(t, cohort, "")
			if err != nil {
				return err
			}
			series, err := cohortSeries(part, cohort)
			if err != nil {
				return fmt.Errorf("cohort %q: %w", cohort, err)
			}
			parts[i] = series
			if b.OnCohortDone != nil {
				b.OnCohortDone(cohort)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out, err := table.Concat(parts...).SortBy(table.ColCohort, table.ColDate)
	if err != nil {
		return nil, err
	}
	b.logger.DebugContext(ctx, "cohort funnel built",
		slog.Int("rows", out.Len()),
		slog.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// cohortSeries aggregates a single cohort's rows per date.
func cohortSeries(part *table.Table, cohort string) (*table.Table, error) {
	part, err := table.EnsureDate(part)
	if err != nil {
		return nil, err
	}
	if part.Has(table.ColCaptainID) {
		if part, err = DedupLatest(part, table.ColCaptainID, table.ColDate); err != nil {
			return nil, err
		}
	}

	specs := funnelSpecs(part)
	daily, err := AggregateMulti(part, []string{table.ColDate}, specs)
	if err != nil {
		return nil, err
	}
	if daily, err = DeriveRatios(daily, FunnelStages); err != nil {
		return nil, err
	}
	for _, name := range daily.Columns() {
		if name == table.ColDate {
			continue
		}
		if daily, err = daily.WithColumn(daily.Column(name).FillNull(0)); err != nil {
			return nil, err
		}
	}
	labels := make([]string, daily.Len())
	for i := range labels {
		labels[i] = cohort
	}
	return daily.WithColumn(table.NewCategorical(table.ColCohort, labels, nil))
}

// funnelSpecs picks the daily reductions for the columns present in t.
func funnelSpecs(t *table.Table) []AggSpec {
	var specs []AggSpec
	if t.Has(table.ColCaptainID) {
		specs = append(specs, AggSpec{Column: table.ColCaptainID, Kind: AggNUnique, As: table.ColCaptainID})
	}
	for _, stage := range FunnelStages {
		if t.Has(stage) {
			specs = append(specs, AggSpec{Column: stage, Kind: AggSum, As: stage})
		}
	}
	for _, m := range MeanMetrics {
		if t.Has(m) {
			specs = append(specs, AggSpec{Column: m, Kind: AggMean, As: m})
		}
	}
	return specs
}

func emptySeries() *table.Table {
	return table.MustNew(
		table.NewDate(table.ColDate, nil, nil),
		table.NewCategorical(table.ColCohort, nil, nil),
	)
}

// BuildByBreakout builds the funnel separately for each distinct value of
// breakoutCol and keeps only metric, tagged with its breakout value. Values
// whose funnel does not produce metric are skipped.
func (b *FunnelBuilder) BuildByBreakout(ctx context.Context, t *table.Table, breakoutCol, metric string) (*table.Table, error) {
	if err := table.RequireKnown(t, "series breakout", breakoutCol); err != nil {
		return nil, err
	}
	groups, err := t.GroupBy(breakoutCol)
	if err != nil {
		return nil, err
	}
	col := t.Column(breakoutCol)

	var parts []*table.Table
	for _, g := range groups {
		if col.IsNull(g.First) {
			continue
		}
		value := col.String(g.First)
		series, err := b.Build(ctx, t.Take(g.Rows))
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			b.logger.WarnContext(ctx, "skipping series breakout value",
				slog.String("column", breakoutCol),
				slog.String("value", value),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !series.Has(metric) {
			continue
		}
		labels := make([]string, series.Len())
		for i := range labels {
			labels[i] = value
		}
		if series, err = series.WithColumn(table.NewCategorical(breakoutCol, labels, nil)); err != nil {
			return nil, err
		}
		if series, err = series.Select(table.ColDate, table.ColCohort, metric, breakoutCol); err != nil {
			return nil, err
		}
		parts = append(parts, series)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("metric %q not produced for any %s value: %w", metric, breakoutCol, table.ErrEmptyResult)
	}
	return table.Concat(parts...), nil
}
