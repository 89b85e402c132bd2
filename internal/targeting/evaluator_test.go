package targeting

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/launchpadhq/experiment-engine/pkg/config"
	"github.com/stretchr/testify/assert"
)

type stubAttributeSource struct {
	attrs map[string]interface{}
	err   error
}

func (s *stubAttributeSource) Get(ctx context.Context, userID string) (map[string]interface{}, error) {
	return s.attrs, s.err
}

type stubSegmentResolver struct {
	segments map[string]struct{}
	err      error
}

func (s *stubSegmentResolver) SegmentsFor(ctx context.Context, userID string) (map[string]struct{}, error) {
	return s.segments, s.err
}

func experimentWithRules(rules entities.TargetingRules) *entities.Experiment {
	return &entities.Experiment{
		ID:        "exp-1",
		Status:    entities.StatusRunning,
		Targeting: rules,
		Settings:  entities.StatisticalSettings{TrafficAllocation: 1.0},
	}
}

func newTestEvaluator(attrs *stubAttributeSource, segments *stubSegmentResolver) *Evaluator {
	if attrs == nil {
		attrs = &stubAttributeSource{attrs: map[string]interface{}{}}
	}
	if segments == nil {
		segments = &stubSegmentResolver{segments: map[string]struct{}{}}
	}
	return NewEvaluator(attrs, segments, config.AllocationModeRandom)
}

func TestIsEligible_OperatorMatrix(t *testing.T) {
	attrs := map[string]interface{}{
		"country": "NG",
		"age":     30,
		"plan":    "premium",
		"email":   "someone@example.com",
	}

	tests := []struct {
		name string
		rule entities.TargetingRule
		want bool
	}{
		{"eq match", entities.TargetingRule{Field: "country", Operator: entities.OpEqual, Value: "NG"}, true},
		{"eq mismatch", entities.TargetingRule{Field: "country", Operator: entities.OpEqual, Value: "GH"}, false},
		{"neq match", entities.TargetingRule{Field: "country", Operator: entities.OpNotEqual, Value: "GH"}, true},
		{"gt match", entities.TargetingRule{Field: "age", Operator: entities.OpGreaterThan, Value: 18.0}, true},
		{"gt boundary", entities.TargetingRule{Field: "age", Operator: entities.OpGreaterThan, Value: 30.0}, false},
		{"gte boundary", entities.TargetingRule{Field: "age", Operator: entities.OpGreaterOrEqual, Value: 30.0}, true},
		{"lt match", entities.TargetingRule{Field: "age", Operator: entities.OpLessThan, Value: 65.0}, true},
		{"lte boundary", entities.TargetingRule{Field: "age", Operator: entities.OpLessOrEqual, Value: 30.0}, true},
		{"in match", entities.TargetingRule{Field: "plan", Operator: entities.OpIn, Value: []interface{}{"premium", "pro"}}, true},
		{"in mismatch", entities.TargetingRule{Field: "plan", Operator: entities.OpIn, Value: []interface{}{"free"}}, false},
		{"contains match", entities.TargetingRule{Field: "email", Operator: entities.OpContains, Value: "@example.com"}, true},
		{"contains mismatch", entities.TargetingRule{Field: "email", Operator: entities.OpContains, Value: "@other.com"}, false},
		{"missing field", entities.TargetingRule{Field: "device", Operator: entities.OpEqual, Value: "ios"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evaluator := newTestEvaluator(&stubAttributeSource{attrs: attrs}, nil)
			experiment := experimentWithRules(entities.TargetingRules{
				UserAttributes: []entities.TargetingRule{tt.rule},
			})

			assert.Equal(t, tt.want, evaluator.IsEligible(context.Background(), "user-1", experiment))
		})
	}
}

func TestIsEligible_AttributeLookupFailureMeansIneligible(t *testing.T) {
	evaluator := newTestEvaluator(&stubAttributeSource{err: errors.New("attribute store unreachable")}, nil)
	experiment := experimentWithRules(entities.TargetingRules{})

	assert.False(t, evaluator.IsEligible(context.Background(), "user-1", experiment))
}

func TestIsEligible_ExclusionRuleWins(t *testing.T) {
	attrs := map[string]interface{}{"country": "NG", "employee": true}
	evaluator := newTestEvaluator(&stubAttributeSource{attrs: attrs}, nil)

	experiment := experimentWithRules(entities.TargetingRules{
		UserAttributes: []entities.TargetingRule{
			{Field: "country", Operator: entities.OpEqual, Value: "NG"},
		},
		ExclusionRules: []entities.TargetingRule{
			{Field: "employee", Operator: entities.OpEqual, Value: true},
		},
	})

	assert.False(t, evaluator.IsEligible(context.Background(), "user-1", experiment))
}

func TestIsEligible_SegmentMembership(t *testing.T) {
	experiment := experimentWithRules(entities.TargetingRules{
		UserSegments: []string{"beta-testers", "power-users"},
	})

	member := newTestEvaluator(nil, &stubSegmentResolver{segments: map[string]struct{}{"power-users": {}}})
	assert.True(t, member.IsEligible(context.Background(), "user-1", experiment))

	outsider := newTestEvaluator(nil, &stubSegmentResolver{segments: map[string]struct{}{"other": {}}})
	assert.False(t, outsider.IsEligible(context.Background(), "user-1", experiment))

	unavailable := newTestEvaluator(nil, &stubSegmentResolver{err: errors.New("resolver timeout")})
	assert.False(t, unavailable.IsEligible(context.Background(), "user-1", experiment))
}

func TestIsEligible_AllocationGateRandom(t *testing.T) {
	evaluator := newTestEvaluator(nil, nil)
	experiment := experimentWithRules(entities.TargetingRules{})
	experiment.Settings.TrafficAllocation = 0.5

	evaluator.roll = func() float64 { return 0.4 }
	assert.True(t, evaluator.IsEligible(context.Background(), "user-1", experiment))

	evaluator.roll = func() float64 { return 0.6 }
	assert.False(t, evaluator.IsEligible(context.Background(), "user-1", experiment))
}

func TestIsEligible_AllocationGateDeterministic(t *testing.T) {
	attrs := &stubAttributeSource{attrs: map[string]interface{}{}}
	evaluator := NewEvaluator(attrs, &stubSegmentResolver{}, config.AllocationModeDeterministic)

	experiment := experimentWithRules(entities.TargetingRules{})
	experiment.Settings.TrafficAllocation = 0.5

	// Deterministic mode must give each user a stable answer across calls.
	for i := 0; i < 100; i++ {
		userID := fmt.Sprintf("user-%d", i)
		first := evaluator.IsEligible(context.Background(), userID, experiment)
		for j := 0; j < 5; j++ {
			assert.Equal(t, first, evaluator.IsEligible(context.Background(), userID, experiment))
		}
	}

	// And the gate should admit roughly the allocation fraction.
	admitted := 0
	const n = 10000
	for i := 0; i < n; i++ {
		if evaluator.IsEligible(context.Background(), fmt.Sprintf("user-%d", i), experiment) {
			admitted++
		}
	}
	assert.InDelta(t, 0.5, float64(admitted)/n, 0.02)
}

func TestIsEligible_FullAllocationSkipsGate(t *testing.T) {
	evaluator := newTestEvaluator(nil, nil)
	evaluator.roll = func() float64 { panic("gate must not roll at full allocation") }

	experiment := experimentWithRules(entities.TargetingRules{})

	assert.True(t, evaluator.IsEligible(context.Background(), "user-1", experiment))
}
