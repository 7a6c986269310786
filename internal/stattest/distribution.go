package stattest

import "math"

const (
	betaMaxIter = 10000
	betaEpsilon = 3e-14
	betaFPMin   = 1e-300
)

// studentCDF returns P(T <= t) for Student's t distribution with df degrees
// of freedom.
func studentCDF(t, df float64) float64 {
	if math.IsNaN(t) || !(df > 0) {
		return math.NaN()
	}
	if math.IsInf(t, 1) {
		return 1
	}
	if math.IsInf(t, -1) {
		return 0
	}
	x := df / (df + t*t)
	tail := 0.5 * regIncBeta(x, df/2, 0.5)
	if t >= 0 {
		return 1 - tail
	}
	return tail
}

// studentQuantile inverts studentCDF by bisection.
func studentQuantile(p, df float64) float64 {
	if p <= 0 || p >= 1 || !(df > 0) {
		return math.NaN()
	}
	if p == 0.5 {
		return 0
	}
	lo, hi := -1.0, 1.0
	for studentCDF(lo, df) > p {
		lo *= 2
	}
	for studentCDF(hi, df) < p {
		hi *= 2
	}
	for i := 0; i < 200 && hi-lo > 1e-12; i++ {
		mid := (lo + hi) / 2
		if studentCDF(mid, df) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

func normalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normalQuantile(p float64) float64 {
	return math.Sqrt2 * math.Erfinv(2*p-1)
}

// regIncBeta is the regularised incomplete beta function I_x(a, b),
// evaluated with Lentz's continued fraction.
func regIncBeta(x, a, b float64) float64 {
	switch {
	case x <= 0:
		return 0
	case x >= 1:
		return 1
	}
	la, _ := math.Lgamma(a)
	lb, _ := math.Lgamma(b)
	lab, _ := math.Lgamma(a + b)
	front := math.Exp(lab - la - lb + a*math.Log(x) + b*math.Log(1-x))
	if x < (a+1)/(a+b+2) {
		return front * betaContinuedFraction(x, a, b) / a
	}
	return 1 - front*betaContinuedFraction(1-x, b, a)/b
}

func betaContinuedFraction(x, a, b float64) float64 {
	qab := a + b
	qap := a + 1
	qam := a - 1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < betaFPMin {
		d = betaFPMin
	}
	d = 1 / d
	h := d
	for m := 1; m <= betaMaxIter; m++ {
		fm := float64(m)
		m2 := 2 * fm

		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < betaFPMin {
			d = betaFPMin
		}
		c = 1 + aa/c
		if math.Abs(c) < betaFPMin {
			c = betaFPMin
		}
		d = 1 / d
		h *= d * c

		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < betaFPMin {
			d = betaFPMin
		}
		c = 1 + aa/c
		if math.Abs(c) < betaFPMin {
			c = betaFPMin
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < betaEpsilon {
			break
		}
	}
	return h
}
