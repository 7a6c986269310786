package analytics

import (
	"sort"

	"captainpulse/internal/table"
)

// Exploration funnel columns reduced per cohort.
const (
	colTotalExpCaps      = "totalExpCaps"
	colVisitedCaps       = "visitedCaps"
	colClickedCaptain    = "clickedCaptain"
	colPitchClicked      = "count_captain_pitch_centre_card_clicked_city"
	colPitchVisible      = "count_captain_pitch_centre_card_visible_city"
	colExploredCaptains  = "exploredCaptains"
	colConfirmedCaptains = "confirmedCaptains"
)

// ExplorationSpecs are the per-cohort reductions of the exploration summary.
// Captain identifier columns count distinct captains, pitch card counters sum.
var ExplorationSpecs = []AggSpec{
	{Column: colTotalExpCaps, Kind: AggNUnique, As: colTotalExpCaps},
	{Column: colVisitedCaps, Kind: AggNUnique, As: colVisitedCaps},
	{Column: colClickedCaptain, Kind: AggNUnique, As: colClickedCaptain},
	{Column: colPitchClicked, Kind: AggSum, As: colPitchClicked},
	{Column: colPitchVisible, Kind: AggSum, As: colPitchVisible},
	{Column: colExploredCaptains, Kind: AggNUnique, As: colExploredCaptains},
	{Column: "exploredCaptains_Subs", Kind: AggNUnique, As: "exploredCaptains_Subs"},
	{Column: "exploredCaptains_EPKM", Kind: AggNUnique, As: "exploredCaptains_EPKM"},
	{Column: "exploredCaptains_FlatCommission", Kind: AggNUnique, As: "exploredCaptains_FlatCommission"},
	{Column: "exploredCaptains_CM", Kind: AggNUnique, As: "exploredCaptains_CM"},
	{Column: colConfirmedCaptains, Kind: AggNUnique, As: colConfirmedCaptains},
	{Column: "confirmedCaptains_Subs", Kind: AggNUnique, As: "confirmedCaptains_Subs"},
	{Column: "confirmedCaptains_Subs_purchased", Kind: AggNUnique, As: "confirmedCaptains_Subs_purchased"},
	{Column: "confirmedCaptains_Subs_purchased_weekend", Kind: AggNUnique, As: "confirmedCaptains_Subs_purchased_weekend"},
	{Column: "confirmedCaptains_EPKM", Kind: AggNUnique, As: "confirmedCaptains_EPKM"},
	{Column: "confirmedCaptains_FlatCommission", Kind: AggNUnique, As: "confirmedCaptains_FlatCommission"},
	{Column: "confirmedCaptains_CM", Kind: AggNUnique, As: "confirmedCaptains_CM"},
}

// Exploration ratio columns
const (
	RatioVisit2Click   = "Visit2Click"
	RatioBase2Visit    = "Base2Visit"
	RatioClick2Confirm = "Click2Confirm"
)

// ExplorationSummary reduces the exploration funnel per cohort, adds the
// zero-safe Visit2Click, Base2Visit and Click2Confirm ratios and orders
// cohorts by explored captains, largest first.
func ExplorationSummary(t *table.Table) (*table.Table, error) {
	required := []string{table.ColCohort}
	for _, s := range ExplorationSpecs {
		required = append(required, s.Column)
	}
	if err := table.Require(t, required...); err != nil {
		return nil, err
	}
	out, err := AggregateMulti(t, []string{table.ColCohort}, ExplorationSpecs)
	if err != nil {
		return nil, err
	}

	ratios := []struct{ name, num, den string }{
		{RatioVisit2Click, colClickedCaptain, colVisitedCaps},
		{RatioBase2Visit, colVisitedCaps, colTotalExpCaps},
		{RatioClick2Confirm, colConfirmedCaptains, colClickedCaptain},
	}
	for _, r := range ratios {
		num, den := out.Column(r.num), out.Column(r.den)
		vals := make([]float64, out.Len())
		for i := range vals {
			d, _ := den.Float(i)
			n, _ := num.Float(i)
			if d != 0 {
				vals[i] = n / d
			}
		}
		if out, err = out.WithColumn(table.NewNumeric(r.name, vals, nil)); err != nil {
			return nil, err
		}
	}

	explored := out.Column(colExploredCaptains)
	order := make([]int, out.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, _ := explored.Float(order[a])
		vb, _ := explored.Float(order[b])
		return va > vb
	})
	return out.Take(order), nil
}
