// Package targeting decides user eligibility for experiments. Each check
// short-circuits to ineligible: the traffic-allocation gate, the user
// attribute rules, the exclusion rules, then segment membership. A failed
// or timed-out attribute/segment lookup converts to "ineligible" instead of
// propagating an error into the assignment path.
package targeting

import (
	"context"
	"math/rand"
	"strings"

	"github.com/launchpadhq/experiment-engine/internal/bucketing"
	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/launchpadhq/experiment-engine/internal/domain/providers"
	"github.com/launchpadhq/experiment-engine/pkg/config"
	"github.com/rs/zerolog/log"
)

// allocSalt keeps the allocation roll independent from variant bucketing so
// ramp-up sampling does not correlate with arm selection.
const allocSalt = "#alloc"

// Evaluator checks experiment eligibility for users.
type Evaluator struct {
	attributes providers.UserAttributeSource
	segments   providers.SegmentResolver
	mode       string
	roll       func() float64
}

// NewEvaluator creates an evaluator. mode is one of the
// config.AllocationMode values and controls whether the traffic-allocation
// gate re-rolls per call or is keyed by user id.
func NewEvaluator(attributes providers.UserAttributeSource, segments providers.SegmentResolver, mode string) *Evaluator {
	return &Evaluator{
		attributes: attributes,
		segments:   segments,
		mode:       mode,
		roll:       rand.Float64,
	}
}

// IsEligible reports whether the user may enter the experiment. Callers
// needing permanence must persist the first true result as a participation;
// in random allocation mode a later call can flip.
func (e *Evaluator) IsEligible(ctx context.Context, userID string, experiment *entities.Experiment) bool {
	if !e.passesAllocation(userID, experiment) {
		return false
	}

	attrs, err := e.attributes.Get(ctx, userID)
	if err != nil {
		log.Debug().Err(err).Str("user_id", userID).Str("experiment_id", experiment.ID).
			Msg("attribute lookup failed, treating user as ineligible")
		return false
	}

	for _, rule := range experiment.Targeting.UserAttributes {
		if !ruleMatches(rule, attrs) {
			return false
		}
	}

	for _, rule := range experiment.Targeting.ExclusionRules {
		if ruleMatches(rule, attrs) {
			return false
		}
	}

	if len(experiment.Targeting.UserSegments) > 0 {
		memberOf, err := e.segments.SegmentsFor(ctx, userID)
		if err != nil {
			log.Debug().Err(err).Str("user_id", userID).Str("experiment_id", experiment.ID).
				Msg("segment lookup failed, treating user as ineligible")
			return false
		}

		found := false
		for _, segment := range experiment.Targeting.UserSegments {
			if _, ok := memberOf[segment]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

func (e *Evaluator) passesAllocation(userID string, experiment *entities.Experiment) bool {
	allocation := experiment.Settings.TrafficAllocation
	if allocation >= 1 {
		return true
	}

	if e.mode == config.AllocationModeDeterministic {
		return bucketing.Bucket(userID, experiment.ID+allocSalt) < allocation
	}
	return e.roll() < allocation
}

// ruleMatches evaluates one field/operator/value predicate against the
// user's attributes. A missing field never matches.
func ruleMatches(rule entities.TargetingRule, attrs map[string]interface{}) bool {
	actual, ok := attrs[rule.Field]
	if !ok {
		return false
	}

	switch rule.Operator {
	case entities.OpEqual:
		return valuesEqual(actual, rule.Value)
	case entities.OpNotEqual:
		return !valuesEqual(actual, rule.Value)
	case entities.OpGreaterThan:
		a, b, ok := bothNumeric(actual, rule.Value)
		return ok && a > b
	case entities.OpLessThan:
		a, b, ok := bothNumeric(actual, rule.Value)
		return ok && a < b
	case entities.OpGreaterOrEqual:
		a, b, ok := bothNumeric(actual, rule.Value)
		return ok && a >= b
	case entities.OpLessOrEqual:
		a, b, ok := bothNumeric(actual, rule.Value)
		return ok && a <= b
	case entities.OpIn:
		return valueInSet(actual, rule.Value)
	case entities.OpContains:
		a, aok := actual.(string)
		b, bok := rule.Value.(string)
		return aok && bok && strings.Contains(a, b)
	}

	// Unknown operators are rejected at validation time; an experiment that
	// somehow carries one must not match anyone.
	return false
}

func valuesEqual(a, b interface{}) bool {
	if af, bf, ok := bothNumeric(a, b); ok {
		return af == bf
	}
	return a == b
}

func valueInSet(actual, set interface{}) bool {
	switch members := set.(type) {
	case []interface{}:
		for _, m := range members {
			if valuesEqual(actual, m) {
				return true
			}
		}
	case []string:
		s, ok := actual.(string)
		if !ok {
			return false
		}
		for _, m := range members {
			if s == m {
				return true
			}
		}
	}
	return false
}

// bothNumeric coerces both values to float64. JSON decoding hands numbers
// back as float64, but attribute sources may produce int-typed values.
func bothNumeric(a, b interface{}) (float64, float64, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return af, bf, aok && bok
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
