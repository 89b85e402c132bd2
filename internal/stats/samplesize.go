package stats

import (
	"math"

	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
)

// RequiredSampleSize computes the advisory total sample size for an
// experiment using the standard two-proportion z-test formula:
//
//	n_per_variant = ceil(2 * (z_{alpha/2} + z_beta)^2 * p*(1-p) / MDE^2)
//
// with p the assumed baseline conversion rate and MDE the minimum
// detectable effect. The total is n_per_variant * variantCount. The value
// is stored on the experiment at creation time and only informs
// "insufficient data" reporting; it never blocks assignment.
func RequiredSampleSize(settings entities.StatisticalSettings, variantCount int) int {
	if variantCount < 2 {
		variantCount = 2
	}

	zAlpha := stdNormal.Quantile(1 - settings.SignificanceLevel/2)
	zBeta := stdNormal.Quantile(settings.Power)

	p := settings.BaselineRate
	mde := settings.MinimumDetectableEffect

	perVariant := math.Ceil(2 * math.Pow(zAlpha+zBeta, 2) * p * (1 - p) / (mde * mde))

	return int(perVariant) * variantCount
}
