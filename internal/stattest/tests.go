package stattest

import (
	"fmt"
	"math"
	"sort"
)

type sample struct {
	n    float64
	mean float64
	vari float64
}

func describeSample(xs []float64) sample {
	s := sample{n: float64(len(xs))}
	if len(xs) == 0 {
		s.mean, s.vari = math.NaN(), math.NaN()
		return s
	}
	for _, x := range xs {
		s.mean += x
	}
	s.mean /= s.n
	if len(xs) < 2 {
		s.vari = math.NaN()
		return s
	}
	for _, x := range xs {
		d := x - s.mean
		s.vari += d * d
	}
	s.vari /= s.n - 1
	return s
}

func need(name string, xs []float64, min int) error {
	if len(xs) < min {
		return fmt.Errorf("%w: %s needs at least %d values, got %d", ErrInsufficientData, name, min, len(xs))
	}
	return nil
}

// twoSample carries the pieces shared by the independent-sample tests.
type twoSample struct {
	diff float64
	se   float64
	df   float64
	d    float64
	neff float64
}

func (ts twoSample) result(p params, size int) *Result {
	t := ts.diff / ts.se
	pv := pValue(t, ts.df, p.alternative)
	res := &Result{
		Statistic:  finite(t),
		PValue:     finite(pv),
		EffectSize: finite(ts.d),
		SampleSize: size,
		Power:      finite(power(ts.d, ts.neff, p.alpha, p.alternative)),
		RawOutput: map[string]any{
			"mean_difference":    ts.diff,
			"standard_error":     ts.se,
			"degrees_of_freedom": ts.df,
		},
	}
	if q := studentQuantile(1-p.alpha/2, ts.df); !math.IsNaN(q) && ts.se > 0 {
		res.ConfidenceInterval = []float64{ts.diff - q*ts.se, ts.diff + q*ts.se}
	}
	res.Summary = verdict(res.PValue, p.alpha)
	return res
}

func pooledSD(a, b sample) float64 {
	return math.Sqrt(((a.n-1)*a.vari + (b.n-1)*b.vari) / (a.n + b.n - 2))
}

func welch(a, b sample) twoSample {
	va, vb := a.vari/a.n, b.vari/b.n
	return twoSample{
		diff: a.mean - b.mean,
		se:   math.Sqrt(va + vb),
		df:   (va + vb) * (va + vb) / (va*va/(a.n-1) + vb*vb/(b.n-1)),
		d:    (a.mean - b.mean) / pooledSD(a, b),
		neff: a.n * b.n / (a.n + b.n),
	}
}

func welchTest(data Data, p params) (*Result, error) {
	if err := need("post_test", data.PostTest, 2); err != nil {
		return nil, err
	}
	if err := need("post_control", data.PostControl, 2); err != nil {
		return nil, err
	}
	a, b := describeSample(data.PostTest), describeSample(data.PostControl)
	return welch(a, b).result(p, len(data.PostTest)+len(data.PostControl)), nil
}

func studentTest(data Data, p params) (*Result, error) {
	if err := need("post_test", data.PostTest, 2); err != nil {
		return nil, err
	}
	if err := need("post_control", data.PostControl, 2); err != nil {
		return nil, err
	}
	a, b := describeSample(data.PostTest), describeSample(data.PostControl)
	sp := pooledSD(a, b)
	ts := twoSample{
		diff: a.mean - b.mean,
		se:   sp * math.Sqrt(1/a.n+1/b.n),
		df:   a.n + b.n - 2,
		d:    (a.mean - b.mean) / sp,
		neff: a.n * b.n / (a.n + b.n),
	}
	return ts.result(p, len(data.PostTest)+len(data.PostControl)), nil
}

func deltas(pre, post []float64) []float64 {
	out := make([]float64, len(post))
	for i := range post {
		out[i] = post[i] - pre[i]
	}
	return out
}

func pairedTest(data Data, p params) (*Result, error) {
	if len(data.PreTest) != len(data.PostTest) {
		return nil, fmt.Errorf("%w: pre_test and post_test must have equal length (%d vs %d)",
			ErrInsufficientData, len(data.PreTest), len(data.PostTest))
	}
	if err := need("post_test", data.PostTest, 2); err != nil {
		return nil, err
	}
	s := describeSample(deltas(data.PreTest, data.PostTest))
	sd := math.Sqrt(s.vari)
	ts := twoSample{
		diff: s.mean,
		se:   sd / math.Sqrt(s.n),
		df:   s.n - 1,
		d:    s.mean / sd,
		neff: s.n,
	}
	return ts.result(p, len(data.PostTest)), nil
}

// diffInDiff compares (post - pre) between arms. Arms whose pre and post
// samples pair up unit by unit are compared on per-unit deltas; otherwise the
// four samples are treated as independent.
func diffInDiff(data Data, p params) (*Result, error) {
	for _, s := range []struct {
		name string
		xs   []float64
	}{
		{"pre_test", data.PreTest}, {"post_test", data.PostTest},
		{"pre_control", data.PreControl}, {"post_control", data.PostControl},
	} {
		if err := need(s.name, s.xs, 2); err != nil {
			return nil, err
		}
	}
	size := len(data.PreTest) + len(data.PostTest) + len(data.PreControl) + len(data.PostControl)

	if len(data.PreTest) == len(data.PostTest) && len(data.PreControl) == len(data.PostControl) {
		a := describeSample(deltas(data.PreTest, data.PostTest))
		b := describeSample(deltas(data.PreControl, data.PostControl))
		res := welch(a, b).result(p, size)
		res.RawOutput["method"] = "paired_deltas"
		return res, nil
	}

	groups := []sample{
		describeSample(data.PostTest), describeSample(data.PreTest),
		describeSample(data.PostControl), describeSample(data.PreControl),
	}
	est := (groups[0].mean - groups[1].mean) - (groups[2].mean - groups[3].mean)
	var varSum, dfDen float64
	for _, g := range groups {
		v := g.vari / g.n
		varSum += v
		dfDen += v * v / (g.n - 1)
	}
	sdAll := math.Sqrt((groups[0].vari + groups[1].vari + groups[2].vari + groups[3].vari) / 4)
	ts := twoSample{
		diff: est,
		se:   math.Sqrt(varSum),
		df:   varSum * varSum / dfDen,
		d:    est / sdAll,
		neff: 1 / (1/groups[0].n + 1/groups[1].n + 1/groups[2].n + 1/groups[3].n),
	}
	res := ts.result(p, size)
	res.RawOutput["method"] = "independent_groups"
	return res, nil
}

// Stats summarises one sample.
type Stats struct {
	Count  int      `json:"count"`
	Mean   *float64 `json:"mean"`
	StdDev *float64 `json:"std_dev"`
	Median *float64 `json:"median"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
}

// Describe summarises a sample; empty samples have nil statistics.
func Describe(xs []float64) Stats {
	st := Stats{Count: len(xs)}
	if len(xs) == 0 {
		return st
	}
	s := describeSample(xs)
	st.Mean = finite(s.mean)
	st.StdDev = finite(math.Sqrt(s.vari))

	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	st.Median = finite(median)
	st.Min = finite(sorted[0])
	st.Max = finite(sorted[len(sorted)-1])
	return st
}

func describe(data Data, _ params) (*Result, error) {
	raw := map[string]any{
		"pre_test":     Describe(data.PreTest),
		"post_test":    Describe(data.PostTest),
		"pre_control":  Describe(data.PreControl),
		"post_control": Describe(data.PostControl),
	}
	size := len(data.PreTest) + len(data.PostTest) + len(data.PreControl) + len(data.PostControl)
	if size == 0 {
		return nil, fmt.Errorf("%w: all samples are empty", ErrInsufficientData)
	}
	summary := "descriptive statistics for pre/post test and control samples"
	if lift := describeSample(data.PostTest).mean - describeSample(data.PostControl).mean; !math.IsNaN(lift) {
		summary = fmt.Sprintf("post-period mean difference (test - control) = %.4g", lift)
	}
	return &Result{SampleSize: size, Summary: summary, RawOutput: raw}, nil
}
