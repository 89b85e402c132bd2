package entities

import "time"

// Participation records that a user was assigned to a variant of an
// experiment. There is at most one per (experiment, user) pair; assignment
// is permanent for the lifetime of the experiment.
type Participation struct {
	ID           string       `json:"id" db:"id"`
	ExperimentID string       `json:"experiment_id" db:"experiment_id"`
	UserID       string       `json:"user_id" db:"user_id"`
	VariantID    string       `json:"variant_id" db:"variant_id"`
	AssignedAt   time.Time    `json:"assigned_at" db:"assigned_at"`
	// ExposedAt is set on the first actual delivery of the treatment,
	// distinct from assignment.
	ExposedAt   *time.Time   `json:"exposed_at,omitempty" db:"exposed_at"`
	Conversions []Conversion `json:"conversions,omitempty"`
}

// Conversion is a single recorded outcome event. Append-only.
type Conversion struct {
	MetricID  string                 `json:"metric_id"`
	Timestamp time.Time              `json:"timestamp"`
	// Value defaults to 1 for boolean conversions.
	Value   float64                `json:"value"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// HasConverted reports whether any conversion was recorded for the metric.
func (p *Participation) HasConverted(metricID string) bool {
	for _, c := range p.Conversions {
		if c.MetricID == metricID {
			return true
		}
	}
	return false
}

// ConversionTotal sums recorded conversion values for the metric.
func (p *Participation) ConversionTotal(metricID string) float64 {
	total := 0.0
	for _, c := range p.Conversions {
		if c.MetricID == metricID {
			total += c.Value
		}
	}
	return total
}
