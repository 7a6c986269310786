package stattest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudentCDF(t *testing.T) {
	tests := []struct {
		name string
		t    float64
		df   float64
		want float64
	}{
		{"median", 0, 5, 0.5},
		{"cauchy", 1, 1, 0.75},
		{"cauchy negative", -1, 1, 0.25},
		// df=2 has the closed form 1/2 + t/(2*sqrt(2+t^2)).
		{"df two", 2, 2, 0.5 + 2/(2*math.Sqrt(6))},
		{"tabulated quantile", 2.0422724563, 30, 0.975},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, studentCDF(tt.t, tt.df), 1e-6)
		})
	}
}

func TestStudentQuantile(t *testing.T) {
	assert.InDelta(t, math.Tan(math.Pi*0.475), studentQuantile(0.975, 1), 1e-6)
	assert.InDelta(t, 0, studentQuantile(0.5, 7), 1e-12)
	for _, p := range []float64{0.05, 0.3, 0.9, 0.995} {
		assert.InDelta(t, p, studentCDF(studentQuantile(p, 4), 4), 1e-9)
	}
	assert.True(t, math.IsNaN(studentQuantile(1, 3)))
}

func TestNormalQuantile(t *testing.T) {
	assert.InDelta(t, 1.959964, normalQuantile(0.975), 1e-6)
	assert.InDelta(t, 0.975, normalCDF(normalQuantile(0.975)), 1e-12)
}

func TestRunStudent(t *testing.T) {
	res, err := Run(Request{
		Category: CategoryParametric,
		Name:     "student_t_test",
		Data:     Data{PostTest: []float64{1, 3}, PostControl: []float64{5, 7}},
	})
	require.NoError(t, err)

	// means 2 and 6, pooled variance 2, se sqrt(2), df 2
	wantT := -4 / math.Sqrt2
	require.NotNil(t, res.Statistic)
	assert.InDelta(t, wantT, *res.Statistic, 1e-12)
	cdf := 0.5 + math.Abs(wantT)/(2*math.Sqrt(2+wantT*wantT))
	require.NotNil(t, res.PValue)
	assert.InDelta(t, 2*(1-cdf), *res.PValue, 1e-6)
	require.NotNil(t, res.EffectSize)
	assert.InDelta(t, -4/math.Sqrt2, *res.EffectSize, 1e-12)
	assert.Equal(t, 4, res.SampleSize)
	require.Len(t, res.ConfidenceInterval, 2)
	assert.Less(t, res.ConfidenceInterval[0], -4.0)
	assert.Greater(t, res.ConfidenceInterval[1], -4.0)
	assert.Equal(t, "student_t_test", res.Name)
	assert.Equal(t, CategoryParametric, res.Category)
	assert.Equal(t, defaultAlpha, res.ParametersUsed["alpha"])
}

func TestRunWelch(t *testing.T) {
	res, err := Run(Request{
		Category: CategoryParametric,
		Name:     "welch_t_test",
		Data: Data{
			PostTest:    []float64{1, 2, 3, 4, 5},
			PostControl: []float64{2, 4, 6, 8, 10},
		},
	})
	require.NoError(t, err)

	require.NotNil(t, res.Statistic)
	assert.InDelta(t, -3/math.Sqrt(2.5), *res.Statistic, 1e-12)
	df := res.RawOutput["degrees_of_freedom"].(float64)
	assert.InDelta(t, 6.25/(0.0625+1), df, 1e-12)
	require.NotNil(t, res.PValue)
	assert.Greater(t, *res.PValue, 0.05)
	assert.Contains(t, res.Summary, "not significant")
	require.NotNil(t, res.Power)
	assert.Greater(t, *res.Power, 0.0)
	assert.Less(t, *res.Power, 1.0)
}

func TestRunPaired(t *testing.T) {
	res, err := Run(Request{
		Category: CategoryParametric,
		Name:     "paired_t_test",
		Data:     Data{PreTest: []float64{1, 2, 3}, PostTest: []float64{2, 4, 6}},
	})
	require.NoError(t, err)

	// deltas 1,2,3: mean 2, sd 1, df 2
	wantT := 2 * math.Sqrt(3)
	assert.InDelta(t, wantT, *res.Statistic, 1e-12)
	cdf := 0.5 + wantT/(2*math.Sqrt(2+wantT*wantT))
	assert.InDelta(t, 2*(1-cdf), *res.PValue, 1e-6)
	assert.InDelta(t, 2.0, *res.EffectSize, 1e-12)

	_, err = Run(Request{
		Category: CategoryParametric,
		Name:     "paired_t_test",
		Data:     Data{PreTest: []float64{1}, PostTest: []float64{2, 4}},
	})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRunAlternative(t *testing.T) {
	base := Request{
		Category: CategoryParametric,
		Name:     "student_t_test",
		Data:     Data{PostTest: []float64{5, 7, 6}, PostControl: []float64{1, 3, 2}},
	}
	two, err := Run(base)
	require.NoError(t, err)

	base.Parameters = map[string]any{"alternative": Greater}
	greater, err := Run(base)
	require.NoError(t, err)
	assert.InDelta(t, *two.PValue/2, *greater.PValue, 1e-9)

	base.Parameters = map[string]any{"alternative": Less}
	less, err := Run(base)
	require.NoError(t, err)
	assert.InDelta(t, 1-*greater.PValue, *less.PValue, 1e-9)
}

func TestRunDiffInDiff(t *testing.T) {
	t.Run("paired deltas", func(t *testing.T) {
		res, err := Run(Request{
			Category: CategoryCausal,
			Name:     "diff_in_diff",
			Data: Data{
				PreTest:     []float64{10, 12, 11, 13},
				PostTest:    []float64{15, 18, 16, 19},
				PreControl:  []float64{10, 11, 12, 13},
				PostControl: []float64{11, 12, 14, 14},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "paired_deltas", res.RawOutput["method"])
		// test deltas mean 5.5, control deltas mean 1.25
		assert.InDelta(t, 4.25, res.RawOutput["mean_difference"].(float64), 1e-12)
		assert.Equal(t, 16, res.SampleSize)
	})

	t.Run("independent groups", func(t *testing.T) {
		res, err := Run(Request{
			Category: CategoryCausal,
			Name:     "diff_in_diff",
			Data: Data{
				PreTest:     []float64{1, 2, 3},
				PostTest:    []float64{4, 5},
				PreControl:  []float64{1, 2, 3},
				PostControl: []float64{2, 3},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "independent_groups", res.RawOutput["method"])
		assert.InDelta(t, 2.0, res.RawOutput["mean_difference"].(float64), 1e-12)
	})
}

func TestRunZeroVariance(t *testing.T) {
	res, err := Run(Request{
		Category: CategoryParametric,
		Name:     "welch_t_test",
		Data:     Data{PostTest: []float64{3, 3}, PostControl: []float64{3, 3}},
	})
	require.NoError(t, err)
	assert.Nil(t, res.Statistic)
	assert.Nil(t, res.PValue)
	assert.Empty(t, res.ConfidenceInterval)
	assert.Contains(t, res.Summary, "undefined")
}

func TestRunDescriptive(t *testing.T) {
	res, err := Run(Request{
		Category: CategoryDescriptive,
		Name:     "summary",
		Data:     Data{PostTest: []float64{4, 1, 3, 2}, PostControl: []float64{1}},
	})
	require.NoError(t, err)
	post := res.RawOutput["post_test"].(Stats)
	assert.Equal(t, 4, post.Count)
	assert.InDelta(t, 2.5, *post.Median, 1e-12)
	assert.InDelta(t, 1.0, *post.Min, 1e-12)
	assert.Nil(t, res.RawOutput["pre_test"].(Stats).Mean)
	assert.Nil(t, res.RawOutput["post_control"].(Stats).StdDev)
	assert.Nil(t, res.Statistic)
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{
			name: "unknown test",
			req:  Request{Category: CategoryParametric, Name: "mann_whitney"},
			want: ErrUnknownTest,
		},
		{
			name: "bad alpha",
			req: Request{Category: CategoryParametric, Name: "welch_t_test",
				Parameters: map[string]any{"alpha": 1.5}},
			want: ErrInvalidParameter,
		},
		{
			name: "bad alternative",
			req: Request{Category: CategoryParametric, Name: "welch_t_test",
				Parameters: map[string]any{"alternative": "sideways"}},
			want: ErrInvalidParameter,
		},
		{
			name: "small sample",
			req: Request{Category: CategoryParametric, Name: "welch_t_test",
				Data: Data{PostTest: []float64{1}, PostControl: []float64{1, 2}}},
			want: ErrInsufficientData,
		},
		{
			name: "empty summary",
			req:  Request{Category: CategoryDescriptive, Name: "summary"},
			want: ErrInsufficientData,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTests(t *testing.T) {
	defs := Tests()
	require.Len(t, defs, 5)
	assert.Equal(t, CategoryCausal, defs[0].Category)
	assert.Equal(t, "diff_in_diff", defs[0].Name)
	assert.Equal(t, CategoryParametric, defs[len(defs)-1].Category)
}
