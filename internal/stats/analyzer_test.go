package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfidenceInterval_KnownFixture(t *testing.T) {
	// 100/1000 at 95%: 0.1 +- 1.96*sqrt(0.1*0.9/1000) = 0.1 +- 0.0186
	lower, upper := ConfidenceInterval(Proportion{Conversions: 100, Participants: 1000}, 0.95)

	assert.InDelta(t, 0.0814, lower, 0.001)
	assert.InDelta(t, 0.1186, upper, 0.001)
}

func TestConfidenceInterval_ClippedToUnit(t *testing.T) {
	// Tiny sample with extreme rate pushes the raw interval outside [0,1].
	lower, upper := ConfidenceInterval(Proportion{Conversions: 1, Participants: 2}, 0.99)

	assert.GreaterOrEqual(t, lower, 0.0)
	assert.LessOrEqual(t, upper, 1.0)
}

func TestConfidenceInterval_ZeroParticipants(t *testing.T) {
	lower, upper := ConfidenceInterval(Proportion{}, 0.95)

	assert.Equal(t, 0.0, lower)
	assert.Equal(t, 0.0, upper)
}

func TestTwoProportionTest_SignificantLift(t *testing.T) {
	// Control 100/1000 vs treatment 140/1000: a 40% relative lift that the
	// z-test should flag as significant at alpha=0.05.
	result := TwoProportionTest(
		Proportion{Conversions: 100, Participants: 1000},
		Proportion{Conversions: 140, Participants: 1000},
		0.05,
	)

	assert.Less(t, result.PValue, 0.05)
	assert.True(t, result.Significant)
	assert.Greater(t, result.ZScore, 1.96)
	assert.Greater(t, result.EffectSize, 0.0)
	assert.Greater(t, result.AchievedPower, 0.5)
}

func TestTwoProportionTest_NoDifference(t *testing.T) {
	result := TwoProportionTest(
		Proportion{Conversions: 100, Participants: 1000},
		Proportion{Conversions: 101, Participants: 1000},
		0.05,
	)

	assert.False(t, result.Significant)
	assert.GreaterOrEqual(t, result.PValue, 0.05)
}

func TestTwoProportionTest_ZeroSampleSizes(t *testing.T) {
	cases := []struct {
		name               string
		control, treatment Proportion
	}{
		{"both empty", Proportion{}, Proportion{}},
		{"empty control", Proportion{}, Proportion{Conversions: 10, Participants: 100}},
		{"empty treatment", Proportion{Conversions: 10, Participants: 100}, Proportion{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := TwoProportionTest(tc.control, tc.treatment, 0.05)

			assert.Equal(t, 1.0, result.PValue)
			assert.False(t, result.Significant)
		})
	}
}

func TestTwoProportionTest_ZeroVariance(t *testing.T) {
	// Nobody converted anywhere: pooled variance is zero, not an error.
	result := TwoProportionTest(
		Proportion{Conversions: 0, Participants: 500},
		Proportion{Conversions: 0, Participants: 500},
		0.05,
	)

	assert.Equal(t, 1.0, result.PValue)
	assert.False(t, result.Significant)
}

func TestCohensH(t *testing.T) {
	// Known value: h for 0.1 vs 0.14 is ~0.122.
	assert.InDelta(t, 0.122, CohensH(0.1, 0.14), 0.005)

	// Symmetric and zero at equality.
	assert.Equal(t, CohensH(0.2, 0.3), CohensH(0.3, 0.2))
	assert.Equal(t, 0.0, CohensH(0.25, 0.25))
}

func TestAchievedPower_Bounds(t *testing.T) {
	assert.Equal(t, 0.0, AchievedPower(0.5, 0, 100, 0.05))

	power := AchievedPower(0.122, 1000, 1000, 0.05)
	assert.True(t, power > 0 && power <= 1)

	// Large effect and sample saturates near 1.
	assert.InDelta(t, 1.0, AchievedPower(1.0, 10000, 10000, 0.05), 0.001)
}
