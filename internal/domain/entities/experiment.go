package entities

import (
	"fmt"
	"math"
	"time"
)

// ExperimentStatus represents the lifecycle state of an experiment
type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusRunning   ExperimentStatus = "running"
	StatusPaused    ExperimentStatus = "paused"
	StatusCompleted ExperimentStatus = "completed"
	StatusCancelled ExperimentStatus = "cancelled"
)

// ExperimentType represents the kind of experiment being run
type ExperimentType string

const (
	TypeAB           ExperimentType = "a_b"
	TypeMultivariate ExperimentType = "multivariate"
	TypeFeatureFlag  ExperimentType = "feature_flag"
)

// weightEpsilon is the tolerance for variant weights summing to 1.
const weightEpsilon = 1e-6

// StatisticalSettings holds the statistical parameters an experiment is
// planned and analyzed with.
type StatisticalSettings struct {
	// SignificanceLevel is alpha, e.g. 0.05.
	SignificanceLevel float64 `json:"significance_level"`
	// Power is the desired statistical power (1-beta), e.g. 0.8.
	Power float64 `json:"power"`
	// MinimumDetectableEffect is the smallest absolute rate difference the
	// experiment should be able to detect, e.g. 0.02.
	MinimumDetectableEffect float64 `json:"minimum_detectable_effect"`
	// BaselineRate is the assumed control conversion rate used for sample
	// size planning.
	BaselineRate float64 `json:"baseline_rate"`
	// TrafficAllocation is the fraction of eligible traffic entering the
	// experiment at all (0-1].
	TrafficAllocation float64 `json:"traffic_allocation"`
}

// Variant is one treatment arm of an experiment, including control.
// Config is an opaque payload interpreted by delivery collaborators.
type Variant struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	IsControl bool                   `json:"is_control"`
	Weight    float64                `json:"weight"`
	Config    map[string]interface{} `json:"config,omitempty"`
}

// Experiment is a named hypothesis test with ordered variants, targeting
// rules, and statistical settings.
type Experiment struct {
	ID                 string              `json:"id" db:"id"`
	Name               string              `json:"name" db:"name"`
	Status             ExperimentStatus    `json:"status" db:"status"`
	Type               ExperimentType      `json:"type" db:"type"`
	Targeting          TargetingRules      `json:"targeting"`
	Variants           []Variant           `json:"variants"`
	ControlVariantID   string              `json:"control_variant_id" db:"control_variant_id"`
	PrimaryMetricID    string              `json:"primary_metric_id" db:"primary_metric_id"`
	SecondaryMetricIDs []string            `json:"secondary_metric_ids,omitempty"`
	GuardrailMetricIDs []string            `json:"guardrail_metric_ids,omitempty"`
	Settings           StatisticalSettings `json:"settings"`
	// RequiredSampleSize is the advisory total sample size computed at
	// creation time. It never blocks assignment.
	RequiredSampleSize int                `json:"required_sample_size" db:"required_sample_size"`
	Results            *ExperimentResults `json:"results,omitempty"`
	StartedAt          *time.Time         `json:"started_at,omitempty" db:"started_at"`
	EndedAt            *time.Time         `json:"ended_at,omitempty" db:"ended_at"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// Validate checks the structural invariants an experiment must satisfy
// before it may leave draft. Metric existence is checked separately against
// the metric repository.
func (e *Experiment) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("experiment name is required")
	}

	switch e.Type {
	case TypeAB, TypeMultivariate, TypeFeatureFlag:
	default:
		return fmt.Errorf("unknown experiment type %q", e.Type)
	}

	if len(e.Variants) < 2 {
		return fmt.Errorf("experiment requires at least 2 variants, got %d", len(e.Variants))
	}

	seen := make(map[string]struct{}, len(e.Variants))
	weightSum := 0.0
	for i, v := range e.Variants {
		if v.ID == "" {
			return fmt.Errorf("variant at index %d has no id", i)
		}
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("duplicate variant id %q", v.ID)
		}
		seen[v.ID] = struct{}{}
		if v.Weight < 0 || v.Weight > 1 {
			return fmt.Errorf("variant %q weight %v outside [0,1]", v.ID, v.Weight)
		}
		weightSum += v.Weight
	}

	if math.Abs(weightSum-1.0) > weightEpsilon {
		return fmt.Errorf("variant weights must sum to 1, got %v", weightSum)
	}

	control := e.VariantByID(e.ControlVariantID)
	if control == nil {
		return fmt.Errorf("control variant %q does not reference an existing variant", e.ControlVariantID)
	}
	if !control.IsControl {
		return fmt.Errorf("variant %q is designated control but is_control is false", e.ControlVariantID)
	}

	if e.PrimaryMetricID == "" {
		return fmt.Errorf("primary metric is required")
	}

	if err := validateSettings(e.Settings); err != nil {
		return err
	}

	return e.Targeting.Validate()
}

func validateSettings(s StatisticalSettings) error {
	if s.SignificanceLevel <= 0 || s.SignificanceLevel >= 1 {
		return fmt.Errorf("significance level must be in (0,1), got %v", s.SignificanceLevel)
	}
	if s.Power <= 0 || s.Power >= 1 {
		return fmt.Errorf("power must be in (0,1), got %v", s.Power)
	}
	if s.MinimumDetectableEffect <= 0 {
		return fmt.Errorf("minimum detectable effect must be positive, got %v", s.MinimumDetectableEffect)
	}
	if s.BaselineRate <= 0 || s.BaselineRate >= 1 {
		return fmt.Errorf("baseline rate must be in (0,1), got %v", s.BaselineRate)
	}
	if s.TrafficAllocation <= 0 || s.TrafficAllocation > 1 {
		return fmt.Errorf("traffic allocation must be in (0,1], got %v", s.TrafficAllocation)
	}
	return nil
}

// VariantByID returns the variant with the given id, or nil.
func (e *Experiment) VariantByID(id string) *Variant {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i]
		}
	}
	return nil
}

// ControlVariant returns the designated control variant, or nil.
func (e *Experiment) ControlVariant() *Variant {
	return e.VariantByID(e.ControlVariantID)
}

// IsActive reports whether the experiment accepts assignments.
func (e *Experiment) IsActive() bool {
	return e.Status == StatusRunning
}

// IsTerminal reports whether the experiment has reached a final state.
func (e *Experiment) IsTerminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusCancelled
}

// CanTransitionTo reports whether the lifecycle transition to target is legal.
func (e *Experiment) CanTransitionTo(target ExperimentStatus) bool {
	switch target {
	case StatusRunning:
		return e.Status == StatusDraft || e.Status == StatusPaused
	case StatusPaused:
		return e.Status == StatusRunning
	case StatusCompleted, StatusCancelled:
		return e.Status == StatusRunning || e.Status == StatusPaused
	default:
		return false
	}
}
