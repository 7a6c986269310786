// Package stattest runs significance tests over the four samples of a
// cohort experiment: test and control arms, each before and after launch.
package stattest

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrUnknownTest is returned when no test is registered under the
	// requested category and name.
	ErrUnknownTest = errors.New("unknown statistical test")
	// ErrInsufficientData is returned when a sample is too small for the
	// requested test.
	ErrInsufficientData = errors.New("insufficient data for statistical test")
	// ErrInvalidParameter is returned for malformed test parameters.
	ErrInvalidParameter = errors.New("invalid test parameter")
)

// Categories.
const (
	CategoryParametric  = "parametric"
	CategoryCausal      = "causal"
	CategoryDescriptive = "descriptive"
)

// Alternatives for one- and two-sided p-values.
const (
	TwoSided = "two-sided"
	Greater  = "greater"
	Less     = "less"
)

const defaultAlpha = 0.05

// Data holds the four experiment samples.
type Data struct {
	PreTest     []float64 `json:"pre_test"`
	PostTest    []float64 `json:"post_test"`
	PreControl  []float64 `json:"pre_control"`
	PostControl []float64 `json:"post_control"`
}

// Request selects a test and carries its samples.
type Request struct {
	Category   string         `json:"test_category"`
	Name       string         `json:"test_name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Data       Data           `json:"data"`
}

// Result is the outcome of a test. Undefined quantities are nil.
type Result struct {
	Name               string         `json:"test_name"`
	Category           string         `json:"category"`
	Statistic          *float64       `json:"statistic"`
	PValue             *float64       `json:"p_value"`
	EffectSize         *float64       `json:"effect_size"`
	ConfidenceInterval []float64      `json:"confidence_interval,omitempty"`
	SampleSize         int            `json:"sample_size"`
	Power              *float64       `json:"power"`
	Summary            string         `json:"summary"`
	ParametersUsed     map[string]any `json:"parameters_used"`
	RawOutput          map[string]any `json:"raw_output,omitempty"`
}

// Definition describes a registered test.
type Definition struct {
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type params struct {
	alpha       float64
	alternative string
}

type testFunc func(Data, params) (*Result, error)

type registration struct {
	def Definition
	run testFunc
}

var registry = map[string]registration{}

func register(category, name, description string, fn testFunc) {
	registry[category+"/"+name] = registration{
		def: Definition{Category: category, Name: name, Description: description},
		run: fn,
	}
}

func init() {
	register(CategoryParametric, "welch_t_test",
		"Welch's t-test of post-period test vs control (unequal variances)", welchTest)
	register(CategoryParametric, "student_t_test",
		"Student's t-test of post-period test vs control (pooled variance)", studentTest)
	register(CategoryParametric, "paired_t_test",
		"Paired t-test of the test arm, post vs pre", pairedTest)
	register(CategoryCausal, "diff_in_diff",
		"Difference-in-differences of (post - pre) between test and control", diffInDiff)
	register(CategoryDescriptive, "summary",
		"Descriptive statistics of all four samples", describe)
}

// Tests lists the registered tests ordered by category and name.
func Tests() []Definition {
	defs := make([]Definition, 0, len(registry))
	for _, r := range registry {
		defs = append(defs, r.def)
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Category != defs[j].Category {
			return defs[i].Category < defs[j].Category
		}
		return defs[i].Name < defs[j].Name
	})
	return defs
}

// Run executes the requested test.
func Run(req Request) (*Result, error) {
	reg, ok := registry[req.Category+"/"+req.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownTest, req.Category, req.Name)
	}
	p, err := parseParams(req.Parameters)
	if err != nil {
		return nil, err
	}
	res, err := reg.run(req.Data, p)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", req.Category, req.Name, err)
	}
	res.Name = req.Name
	res.Category = req.Category
	res.ParametersUsed = map[string]any{"alpha": p.alpha, "alternative": p.alternative}
	return res, nil
}

func parseParams(raw map[string]any) (params, error) {
	p := params{alpha: defaultAlpha, alternative: TwoSided}
	if v, ok := raw["alpha"]; ok {
		f, ok := v.(float64)
		if !ok || f <= 0 || f >= 1 {
			return p, fmt.Errorf("%w: alpha must be a number in (0, 1)", ErrInvalidParameter)
		}
		p.alpha = f
	}
	if v, ok := raw["alternative"]; ok {
		s, _ := v.(string)
		switch s {
		case TwoSided, Greater, Less:
			p.alternative = s
		default:
			return p, fmt.Errorf("%w: alternative must be one of %s, %s, %s", ErrInvalidParameter, TwoSided, Greater, Less)
		}
	}
	return p, nil
}

// pValue converts a t statistic to a p-value for the given alternative.
func pValue(t, df float64, alternative string) float64 {
	switch alternative {
	case Greater:
		return 1 - studentCDF(t, df)
	case Less:
		return studentCDF(t, df)
	default:
		return 2 * (1 - studentCDF(math.Abs(t), df))
	}
}

// power approximates the probability of detecting effect size d with an
// effective sample size n at level alpha.
func power(d, n, alpha float64, alternative string) float64 {
	if n <= 0 || math.IsNaN(d) {
		return math.NaN()
	}
	shift := math.Abs(d) * math.Sqrt(n)
	if alternative == TwoSided {
		z := normalQuantile(1 - alpha/2)
		return normalCDF(shift-z) + normalCDF(-shift-z)
	}
	return normalCDF(shift - normalQuantile(1-alpha))
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func verdict(p *float64, alpha float64) string {
	switch {
	case p == nil:
		return "test statistic undefined (zero variance)"
	case *p < alpha:
		return fmt.Sprintf("significant at alpha=%.3g (p=%.4g)", alpha, *p)
	default:
		return fmt.Sprintf("not significant at alpha=%.3g (p=%.4g)", alpha, *p)
	}
}
