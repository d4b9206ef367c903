package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// NormalityResult combines three normality tests. ClearlyNonNormal is
// true when a majority of the applicable tests reject.
type NormalityResult struct {
	ShapiroP float64
	JarqueP  float64
	KSP      float64

	ShapiroNormal bool
	JarqueNormal  bool
	KSNormal      bool

	LikelyNormal     bool
	ClearlyNonNormal bool
}

// Normality runs Shapiro-Francia, Jarque-Bera and Kolmogorov-Smirnov
// against the return series and takes a majority vote.
func (v *Validator) Normality(returns []float64) NormalityResult {
	alpha := v.cfg.Validation.SignificanceLevel

	out := NormalityResult{
		ShapiroP: shapiroFranciaP(returns),
		JarqueP:  jarqueBeraP(returns),
		KSP:      kolmogorovSmirnovP(returns),
	}
	out.ShapiroNormal = out.ShapiroP >= alpha
	out.JarqueNormal = out.JarqueP >= alpha
	out.KSNormal = out.KSP >= alpha

	rejecting := 0
	for _, normal := range []bool{out.ShapiroNormal, out.JarqueNormal, out.KSNormal} {
		if !normal {
			rejecting++
		}
	}
	out.LikelyNormal = rejecting == 0
	out.ClearlyNonNormal = rejecting >= 2
	return out
}

// shapiroFranciaP approximates the Shapiro-Wilk family through the
// Shapiro-Francia statistic: the squared correlation between the order
// statistics and their expected normal quantiles, with Royston's
// normalization for the p-value.
func shapiroFranciaP(sample []float64) float64 {
	n := len(sample)
	if n < 5 {
		return 1
	}

	x := append([]float64(nil), sample...)
	sort.Float64s(x)

	// Blom plotting positions
	m := make([]float64, n)
	norm := distuv.UnitNormal
	for i := 0; i < n; i++ {
		p := (float64(i+1) - 0.375) / (float64(n) + 0.25)
		m[i] = norm.Quantile(p)
	}

	w := stat.Correlation(x, m, nil)
	w = w * w
	if w >= 1 {
		return 1
	}

	// Royston (1993) normalization for the Shapiro-Francia statistic
	logN := math.Log(float64(n))
	u := math.Log(logN) - logN
	mu := -1.2725 + 1.0521*u
	v2 := math.Log(logN) + 2/logN
	sigma := 1.0308 - 0.26758*v2
	if sigma <= 0 {
		return 1
	}
	z := (math.Log(1-w) - mu) / sigma
	return 1 - norm.CDF(z)
}

// jarqueBeraP tests normality through skewness and excess kurtosis.
func jarqueBeraP(sample []float64) float64 {
	n := float64(len(sample))
	if n < 4 {
		return 1
	}
	mean, std := stat.MeanStdDev(sample, nil)
	if std < 1e-12 {
		return 0
	}

	var s3, s4 float64
	for _, v := range sample {
		d := (v - mean) / std
		s3 += d * d * d
		s4 += d * d * d * d
	}
	skew := s3 / n
	kurt := s4/n - 3

	jb := n / 6 * (skew*skew + kurt*kurt/4)
	chi := distuv.ChiSquared{K: 2}
	return 1 - chi.CDF(jb)
}

// kolmogorovSmirnovP compares the empirical CDF against a normal with
// the sample's own mean and deviation, using the asymptotic Kolmogorov
// distribution for the p-value.
func kolmogorovSmirnovP(sample []float64) float64 {
	n := len(sample)
	if n < 5 {
		return 1
	}
	mean, std := stat.MeanStdDev(sample, nil)
	if std < 1e-12 {
		return 0
	}

	x := append([]float64(nil), sample...)
	sort.Float64s(x)

	ref := distuv.Normal{Mu: mean, Sigma: std}
	d := 0.0
	for i, v := range x {
		cdf := ref.CDF(v)
		upper := float64(i+1)/float64(n) - cdf
		lower := cdf - float64(i)/float64(n)
		if upper > d {
			d = upper
		}
		if lower > d {
			d = lower
		}
	}

	lambda := (math.Sqrt(float64(n)) + 0.12 + 0.11/math.Sqrt(float64(n))) * d
	return kolmogorovQ(lambda)
}

// kolmogorovQ is the asymptotic survival function of the Kolmogorov
// distribution.
func kolmogorovQ(lambda float64) float64 {
	if lambda < 1e-6 {
		return 1
	}
	sum := 0.0
	sign := 1.0
	for k := 1; k <= 100; k++ {
		term := sign * math.Exp(-2*float64(k)*float64(k)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}
	p := 2 * sum
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
