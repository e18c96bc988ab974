package compare

import (
	"errors"
	"math"
	"sort"
)

// welchTTest compares two independent score samples with unequal variances.
// Both samples need at least 2 values.
func welchTTest(a, b []float64) (statistic, pValue float64, err error) {
	if len(a) < 2 || len(b) < 2 {
		return 0, 0, errors.New("t-test requires at least 2 samples per run")
	}

	m1, v1 := meanVariance(a)
	m2, v2 := meanVariance(b)
	se1 := v1 / float64(len(a))
	se2 := v2 / float64(len(b))
	se := se1 + se2
	if se == 0 {
		if m1 == m2 {
			return 0, 1, nil
		}
		return math.Inf(sign(m1-m2)), 0, nil
	}

	t := (m1 - m2) / math.Sqrt(se)
	df := se * se / (se1*se1/float64(len(a)-1) + se2*se2/float64(len(b)-1))
	p := 2 * studentTSF(math.Abs(t), df)
	return t, p, nil
}

// mannWhitneyU is the two-sided Mann-Whitney U test with a tie-corrected
// normal approximation.
func mannWhitneyU(a, b []float64) (statistic, pValue float64, err error) {
	n1, n2 := len(a), len(b)
	if n1 == 0 || n2 == 0 {
		return 0, 0, errors.New("mann-whitney requires at least 1 sample per run")
	}

	type tagged struct {
		v    float64
		from int
	}
	all := make([]tagged, 0, n1+n2)
	for _, v := range a {
		all = append(all, tagged{v, 0})
	}
	for _, v := range b {
		all = append(all, tagged{v, 1})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].v < all[j].v })

	ranks := make([]float64, len(all))
	tieCorrection := 0.0
	for i := 0; i < len(all); {
		j := i
		for j < len(all) && all[j].v == all[i].v {
			j++
		}
		avgRank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[k] = avgRank
		}
		t := float64(j - i)
		tieCorrection += t*t*t - t
		i = j
	}

	r1 := 0.0
	for i, item := range all {
		if item.from == 0 {
			r1 += ranks[i]
		}
	}

	u1 := r1 - float64(n1)*float64(n1+1)/2
	n := float64(n1 + n2)
	mu := float64(n1) * float64(n2) / 2
	sigma2 := float64(n1) * float64(n2) / 12 * (n + 1 - tieCorrection/(n*(n-1)))
	if sigma2 <= 0 {
		// All values identical.
		return u1, 1, nil
	}

	z := (u1 - mu) / math.Sqrt(sigma2)
	p := math.Erfc(math.Abs(z) / math.Sqrt2)
	return u1, p, nil
}

// chiSquare2x2 tests pass/fail proportions of two runs. Degenerate tables
// (an all-zero row or column) are an error.
func chiSquare2x2(pass1, fail1, pass2, fail2 int) (statistic, pValue float64, err error) {
	a, b, c, d := float64(pass1), float64(fail1), float64(pass2), float64(fail2)
	n := a + b + c + d
	if n == 0 {
		return 0, 0, errors.New("chi-square: empty table")
	}
	if (a+b) == 0 || (c+d) == 0 || (a+c) == 0 || (b+d) == 0 {
		return 0, 0, errors.New("chi-square: degenerate contingency table")
	}

	num := a*d - b*c
	x2 := n * num * num / ((a + b) * (c + d) * (a + c) * (b + d))
	// For df=1 the chi-square survival function reduces to erfc.
	p := math.Erfc(math.Sqrt(x2 / 2))
	return x2, p, nil
}

// fisherExact2x2 is the two-sided Fisher exact test, summing hypergeometric
// probabilities no larger than the observed table's.
func fisherExact2x2(pass1, fail1, pass2, fail2 int) (pValue float64, err error) {
	r1 := pass1 + fail1
	r2 := pass2 + fail2
	c1 := pass1 + pass2
	n := r1 + r2
	if n == 0 {
		return 0, errors.New("fisher: empty table")
	}

	observed := hypergeomLogProb(pass1, r1, r2, c1)
	const eps = 1e-9

	p := 0.0
	lo := max(0, c1-r2)
	hi := min(r1, c1)
	for k := lo; k <= hi; k++ {
		lp := hypergeomLogProb(k, r1, r2, c1)
		if lp <= observed+eps {
			p += math.Exp(lp)
		}
	}
	if p > 1 {
		p = 1
	}
	return p, nil
}

func hypergeomLogProb(k, r1, r2, c1 int) float64 {
	return logChoose(r1, k) + logChoose(r2, c1-k) - logChoose(r1+r2, c1)
}

func logChoose(n, k int) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	ln1, _ := math.Lgamma(float64(n + 1))
	lk, _ := math.Lgamma(float64(k + 1))
	lnk, _ := math.Lgamma(float64(n - k + 1))
	return ln1 - lk - lnk
}

func meanVariance(xs []float64) (mean, variance float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs) - 1)
	return mean, variance
}

// studentTSF is the one-sided survival function of Student's t
// distribution, via the regularized incomplete beta function.
func studentTSF(t, df float64) float64 {
	if df <= 0 {
		return math.NaN()
	}
	if math.IsInf(t, 1) {
		return 0
	}
	x := df / (df + t*t)
	return 0.5 * regIncBeta(df/2, 0.5, x)
}

// regIncBeta is the regularized incomplete beta function I_x(a, b),
// computed with the continued fraction expansion.
func regIncBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	la, _ := math.Lgamma(a + b)
	lb, _ := math.Lgamma(a)
	lc, _ := math.Lgamma(b)
	front := math.Exp(la - lb - lc + a*math.Log(x) + b*math.Log(1-x))

	if x < (a+1)/(a+b+2) {
		return front * betaCF(a, b, x) / a
	}
	return 1 - front*betaCF(b, a, 1-x)/b
}

func betaCF(a, b, x float64) float64 {
	const (
		maxIter = 200
		tiny    = 1e-30
		epsilon = 1e-12
	)

	qab := a + b
	qap := a + 1
	qam := a - 1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIter; m++ {
		fm := float64(m)
		m2 := 2 * fm

		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < epsilon {
			break
		}
	}
	return h
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
