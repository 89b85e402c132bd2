package entities

import "fmt"

// RuleOperator is the closed set of comparison operators a targeting rule
// may use. Unknown operators are rejected at experiment validation time,
// never at evaluation time.
type RuleOperator string

const (
	OpEqual          RuleOperator = "eq"
	OpNotEqual       RuleOperator = "neq"
	OpGreaterThan    RuleOperator = "gt"
	OpLessThan       RuleOperator = "lt"
	OpGreaterOrEqual RuleOperator = "gte"
	OpLessOrEqual    RuleOperator = "lte"
	OpIn             RuleOperator = "in"
	OpContains       RuleOperator = "contains"
)

// IsValid checks if the operator is one of the defined constants.
func (o RuleOperator) IsValid() bool {
	switch o {
	case OpEqual, OpNotEqual, OpGreaterThan, OpLessThan,
		OpGreaterOrEqual, OpLessOrEqual, OpIn, OpContains:
		return true
	}
	return false
}

// TargetingRule is a single field/operator/value predicate over user
// attributes.
type TargetingRule struct {
	Field    string       `json:"field"`
	Operator RuleOperator `json:"operator"`
	Value    interface{}  `json:"value"`
}

// TargetingRules decides which users are eligible for an experiment.
// UserAttributes must all hold, no ExclusionRules may hold, and when
// UserSegments is non-empty the user must belong to at least one.
type TargetingRules struct {
	UserAttributes []TargetingRule `json:"user_attributes,omitempty"`
	ExclusionRules []TargetingRule `json:"exclusion_rules,omitempty"`
	UserSegments   []string        `json:"user_segments,omitempty"`
}

// Validate rejects rules with unknown operators or empty fields.
func (t *TargetingRules) Validate() error {
	for _, r := range t.UserAttributes {
		if err := r.validate("user attribute"); err != nil {
			return err
		}
	}
	for _, r := range t.ExclusionRules {
		if err := r.validate("exclusion"); err != nil {
			return err
		}
	}
	return nil
}

func (r TargetingRule) validate(kind string) error {
	if r.Field == "" {
		return fmt.Errorf("%s rule has no field", kind)
	}
	if !r.Operator.IsValid() {
		return fmt.Errorf("%s rule on %q uses unknown operator %q", kind, r.Field, r.Operator)
	}
	return nil
}
