package entities

import "time"

// ResultStatus distinguishes a full analysis from one gated on sample size.
type ResultStatus string

const (
	ResultStatusComplete         ResultStatus = "complete"
	ResultStatusInsufficientData ResultStatus = "insufficient_data"
)

// RecommendationType is the closed set of decisions the aggregator can suggest.
type RecommendationType string

const (
	RecommendLaunch  RecommendationType = "launch"
	RecommendIterate RecommendationType = "iterate"
	RecommendStop    RecommendationType = "stop"
	RecommendExtend  RecommendationType = "extend"
)

// ConfidenceInterval is a two-sided interval at the given confidence level,
// clipped to [0,1] for rates.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"`
}

// VariantResult holds per-variant counts and rates for one metric.
type VariantResult struct {
	VariantID      string             `json:"variant_id"`
	Name           string             `json:"name"`
	IsControl      bool               `json:"is_control"`
	Participants   int                `json:"participants"`
	Conversions    int                `json:"conversions"`
	ConversionRate float64            `json:"conversion_rate"`
	Interval       ConfidenceInterval `json:"confidence_interval"`
}

// SignificanceResult is the outcome of the two-proportion hypothesis test
// between control and the best-performing non-control variant.
type SignificanceResult struct {
	PValue        float64 `json:"p_value"`
	ZScore        float64 `json:"z_score"`
	Alpha         float64 `json:"alpha"`
	Significant   bool    `json:"significant"`
	EffectSize    float64 `json:"effect_size"`
	AchievedPower float64 `json:"achieved_power"`
}

// WinnerAnalysis summarizes whether a variant beat control.
type WinnerAnalysis struct {
	HasWinner bool   `json:"has_winner"`
	VariantID string `json:"variant_id,omitempty"`
	// Lift is the relative percentage improvement over control.
	Lift       float64 `json:"lift"`
	Confidence float64 `json:"confidence"`
}

// GuardrailResult records whether a guardrail metric stayed within tolerance
// for the best-performing variant.
type GuardrailResult struct {
	MetricID     string  `json:"metric_id"`
	ControlRate  float64 `json:"control_rate"`
	VariantRate  float64 `json:"variant_rate"`
	// Delta is the relative change vs control; negative means degradation.
	Delta      float64 `json:"delta"`
	Tolerance  float64 `json:"tolerance"`
	Acceptable bool    `json:"acceptable"`
}

// Recommendation is a structured decision suggestion.
type Recommendation struct {
	Type           RecommendationType `json:"type"`
	Rationale      string             `json:"rationale"`
	Confidence     float64            `json:"confidence"`
	ExpectedImpact string             `json:"expected_impact,omitempty"`
}

// MetricBreakdown holds per-variant results for one secondary metric.
type MetricBreakdown struct {
	MetricID string          `json:"metric_id"`
	Variants []VariantResult `json:"variants"`
}

// ExperimentResults is a computed, timestamped snapshot. Derived data,
// recomputable at any time from participations.
type ExperimentResults struct {
	ExperimentID       string              `json:"experiment_id"`
	Status             ResultStatus        `json:"status"`
	ComputedAt         time.Time           `json:"computed_at"`
	TotalParticipants  int                 `json:"total_participants"`
	RequiredSampleSize int                 `json:"required_sample_size"`
	Variants           []VariantResult     `json:"variants"`
	Significance       *SignificanceResult `json:"significance,omitempty"`
	Winner             WinnerAnalysis      `json:"winner"`
	Guardrails         []GuardrailResult   `json:"guardrails,omitempty"`
	SecondaryMetrics   []MetricBreakdown   `json:"secondary_metrics,omitempty"`
	Recommendations    []Recommendation    `json:"recommendations"`
}
