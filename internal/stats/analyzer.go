// Package stats implements the hypothesis-testing math behind experiment
// analysis: normal-approximation confidence intervals for conversion rates,
// the two-proportion z-test, Cohen's h effect size, achieved power, and
// sample size planning.
//
// All z-scores come from the standard normal via gonum's distuv.Normal
// (Quantile for the inverse CDF, CDF for p-values), so results are exact
// for the normal approximation and reproducible across runs. Every function
// here is pure and safe to call concurrently.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// Proportion is a (conversions, participants) pair for one variant.
type Proportion struct {
	Conversions  int
	Participants int
}

// Rate returns the conversion rate, 0 when there are no participants.
func (p Proportion) Rate() float64 {
	if p.Participants == 0 {
		return 0
	}
	return float64(p.Conversions) / float64(p.Participants)
}

// TestResult is the outcome of a two-proportion z-test.
type TestResult struct {
	ZScore        float64
	PValue        float64
	Significant   bool
	EffectSize    float64
	AchievedPower float64
}

// ConfidenceInterval computes the normal-approximation interval
// rate +- z*sqrt(rate*(1-rate)/n) at the given confidence level, clipped to
// [0,1]. With zero participants the interval collapses to [0,0].
func ConfidenceInterval(p Proportion, level float64) (lower, upper float64) {
	if p.Participants == 0 {
		return 0, 0
	}

	rate := p.Rate()
	z := stdNormal.Quantile(1 - (1-level)/2)
	margin := z * math.Sqrt(rate*(1-rate)/float64(p.Participants))

	return clamp01(rate - margin), clamp01(rate + margin)
}

// TwoProportionTest runs a two-tailed two-proportion z-test between control
// and treatment at significance level alpha.
//
// Numeric edge cases never error: with either sample empty, or with zero
// pooled variance, the p-value defaults to 1 (no evidence).
func TwoProportionTest(control, treatment Proportion, alpha float64) TestResult {
	noEvidence := TestResult{PValue: 1}

	n1, n2 := control.Participants, treatment.Participants
	if n1 == 0 || n2 == 0 {
		return noEvidence
	}

	p1, p2 := control.Rate(), treatment.Rate()
	pooled := float64(control.Conversions+treatment.Conversions) / float64(n1+n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return noEvidence
	}

	z := math.Abs(p1-p2) / se
	pValue := clamp01(2 * (1 - stdNormal.CDF(z)))
	effect := CohensH(p1, p2)

	return TestResult{
		ZScore:        z,
		PValue:        pValue,
		Significant:   pValue < alpha,
		EffectSize:    effect,
		AchievedPower: AchievedPower(effect, n1, n2, alpha),
	}
}

// CohensH computes the effect size |2*asin(sqrt(p1)) - 2*asin(sqrt(p2))|.
func CohensH(p1, p2 float64) float64 {
	return math.Abs(2*math.Asin(math.Sqrt(clamp01(p1))) - 2*math.Asin(math.Sqrt(clamp01(p2))))
}

// AchievedPower estimates the power the test actually reached given the
// observed effect size and sample sizes, via the normal approximation
// power = CDF(h*sqrt(nh/2) - z_{alpha/2}) with nh the harmonic mean of the
// two sample sizes. Clamped to [0,1].
func AchievedPower(effectSize float64, n1, n2 int, alpha float64) float64 {
	if n1 == 0 || n2 == 0 {
		return 0
	}

	harmonic := 2 * float64(n1) * float64(n2) / float64(n1+n2)
	zAlpha := stdNormal.Quantile(1 - alpha/2)

	return clamp01(stdNormal.CDF(effectSize*math.Sqrt(harmonic/2) - zAlpha))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
