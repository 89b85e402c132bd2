package entities

import (
	"fmt"
	"time"
)

// AggregationMethod describes how conversion values for a metric are rolled up.
type AggregationMethod string

const (
	AggregationSum        AggregationMethod = "sum"
	AggregationAverage    AggregationMethod = "average"
	AggregationCount      AggregationMethod = "count"
	AggregationPercentage AggregationMethod = "percentage"
)

// IsValid checks if the aggregation method is one of the defined constants.
func (m AggregationMethod) IsValid() bool {
	switch m {
	case AggregationSum, AggregationAverage, AggregationCount, AggregationPercentage:
		return true
	}
	return false
}

// Metric describes how to interpret a named measurable outcome. Immutable
// once referenced by a running experiment.
type Metric struct {
	ID          string            `json:"id" db:"id"`
	Name        string            `json:"name" db:"name"`
	Aggregation AggregationMethod `json:"aggregation" db:"aggregation"`
	// IsGuardrail marks metrics that must not regress even when the primary
	// metric improves.
	IsGuardrail bool `json:"is_guardrail" db:"is_guardrail"`
	// MinValue/MaxValue bound the expected value range for sanity checks.
	MinValue  *float64  `json:"min_value,omitempty" db:"min_value"`
	MaxValue  *float64  `json:"max_value,omitempty" db:"max_value"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks metric invariants.
func (m *Metric) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("metric id is required")
	}
	if !m.Aggregation.IsValid() {
		return fmt.Errorf("metric %q uses unknown aggregation %q", m.ID, m.Aggregation)
	}
	if m.MinValue != nil && m.MaxValue != nil && *m.MinValue > *m.MaxValue {
		return fmt.Errorf("metric %q has min value above max value", m.ID)
	}
	return nil
}

// InRange reports whether a conversion value falls inside the metric's
// expected range. Unbounded sides always pass.
func (m *Metric) InRange(value float64) bool {
	if m.MinValue != nil && value < *m.MinValue {
		return false
	}
	if m.MaxValue != nil && value > *m.MaxValue {
		return false
	}
	return true
}
