package services

import (
	"context"
	"fmt"
	"time"

	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/launchpadhq/experiment-engine/internal/domain/providers"
	"github.com/launchpadhq/experiment-engine/internal/domain/repositories"
	"github.com/launchpadhq/experiment-engine/internal/stats"
	"github.com/rs/zerolog/log"
)

// ResultsService computes ExperimentResults snapshots from participations.
// Computation has no side effects until a snapshot is explicitly persisted,
// so it is safe to cancel and retry, and is expected to run as a batch
// operation rather than inline with assignment calls.
type ResultsService struct {
	experiments    repositories.ExperimentRepository
	participations repositories.ParticipationRepository
	segments       providers.SegmentResolver
	// guardrailTolerance is the maximum relative degradation vs control a
	// guardrail metric may show, e.g. 0.05 for 5%.
	guardrailTolerance float64
}

// NewResultsService creates a new results service. segments may be nil when
// segment breakdowns are not needed.
func NewResultsService(
	experiments repositories.ExperimentRepository,
	participations repositories.ParticipationRepository,
	segments providers.SegmentResolver,
	guardrailTolerance float64,
) *ResultsService {
	return &ResultsService{
		experiments:        experiments,
		participations:     participations,
		segments:           segments,
		guardrailTolerance: guardrailTolerance,
	}
}

// CalculateResults computes a fresh snapshot for the experiment.
func (s *ResultsService) CalculateResults(ctx context.Context, experimentID string) (*entities.ExperimentResults, error) {
	experiment, err := s.experiments.GetByID(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	return s.Compute(ctx, experiment)
}

// CalculateAndStore recomputes the snapshot and persists it on the
// experiment record. Used by the background worker.
func (s *ResultsService) CalculateAndStore(ctx context.Context, experimentID string) (*entities.ExperimentResults, error) {
	experiment, err := s.experiments.GetByID(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	results, err := s.Compute(ctx, experiment)
	if err != nil {
		return nil, err
	}

	experiment.Results = results
	experiment.UpdatedAt = time.Now().UTC()
	if err := s.experiments.Save(ctx, experiment); err != nil {
		return nil, err
	}

	return results, nil
}

// CalculateSegmentResults runs the per-variant statistical procedure
// restricted to users belonging to the given segment.
func (s *ResultsService) CalculateSegmentResults(ctx context.Context, experimentID, segmentID string) ([]entities.VariantResult, error) {
	if s.segments == nil {
		return nil, fmt.Errorf("segment breakdowns not supported: no segment resolver configured")
	}

	experiment, err := s.experiments.GetByID(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	participations, err := s.participations.ListByExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	inSegment := make([]*entities.Participation, 0, len(participations))
	for _, p := range participations {
		memberOf, err := s.segments.SegmentsFor(ctx, p.UserID)
		if err != nil {
			log.Debug().Err(err).Str("user_id", p.UserID).Msg("segment lookup failed during breakdown, skipping user")
			continue
		}
		if _, ok := memberOf[segmentID]; ok {
			inSegment = append(inSegment, p)
		}
	}

	return variantResults(experiment, inSegment, experiment.PrimaryMetricID), nil
}

// Compute derives the full results snapshot from the experiment's
// participations. Below the planned minimum sample size it returns an
// insufficient_data snapshot with an extend recommendation and makes no
// significance claims, regardless of apparent lift.
func (s *ResultsService) Compute(ctx context.Context, experiment *entities.Experiment) (*entities.ExperimentResults, error) {
	participations, err := s.participations.ListByExperiment(ctx, experiment.ID)
	if err != nil {
		return nil, err
	}

	results := &entities.ExperimentResults{
		ExperimentID:       experiment.ID,
		ComputedAt:         time.Now().UTC(),
		TotalParticipants:  len(participations),
		RequiredSampleSize: experiment.RequiredSampleSize,
		Variants:           variantResults(experiment, participations, experiment.PrimaryMetricID),
	}

	if len(participations) < experiment.RequiredSampleSize {
		results.Status = entities.ResultStatusInsufficientData
		results.Recommendations = []entities.Recommendation{{
			Type: entities.RecommendExtend,
			Rationale: fmt.Sprintf("collected %d of %d planned participants, extend data collection",
				len(participations), experiment.RequiredSampleSize),
			Confidence: 0,
		}}
		return results, nil
	}

	results.Status = entities.ResultStatusComplete

	alpha := experiment.Settings.SignificanceLevel
	control, best, challenger := pickContenders(results.Variants)

	if control == nil || challenger == nil {
		results.Recommendations = []entities.Recommendation{{
			Type:      entities.RecommendIterate,
			Rationale: "not enough variant data to compare against control",
		}}
		return results, nil
	}

	// The hypothesis test always compares control against the strongest
	// treatment; the overall best (which may be control) decides the winner.
	test := stats.TwoProportionTest(
		stats.Proportion{Conversions: control.Conversions, Participants: control.Participants},
		stats.Proportion{Conversions: challenger.Conversions, Participants: challenger.Participants},
		alpha,
	)
	results.Significance = &entities.SignificanceResult{
		PValue:        test.PValue,
		ZScore:        test.ZScore,
		Alpha:         alpha,
		Significant:   test.Significant,
		EffectSize:    test.EffectSize,
		AchievedPower: test.AchievedPower,
	}

	results.Winner = winnerAnalysis(control, best, challenger, test)
	results.Guardrails = s.guardrailResults(experiment, participations, challenger.VariantID)
	results.SecondaryMetrics = secondaryBreakdowns(experiment, participations)
	results.Recommendations = recommend(experiment, results, best, challenger)

	return results, nil
}

// variantResults computes per-variant counts, rates, and confidence
// intervals for one metric over the given participation set.
func variantResults(experiment *entities.Experiment, participations []*entities.Participation, metricID string) []entities.VariantResult {
	counts := make(map[string]*stats.Proportion, len(experiment.Variants))
	for _, v := range experiment.Variants {
		counts[v.ID] = &stats.Proportion{}
	}

	for _, p := range participations {
		prop, ok := counts[p.VariantID]
		if !ok {
			// Participation references a variant the experiment no longer
			// declares; keep it out of the analysis rather than guessing.
			continue
		}
		prop.Participants++
		if p.HasConverted(metricID) {
			prop.Conversions++
		}
	}

	level := 1 - experiment.Settings.SignificanceLevel
	out := make([]entities.VariantResult, 0, len(experiment.Variants))
	for _, v := range experiment.Variants {
		prop := *counts[v.ID]
		lower, upper := stats.ConfidenceInterval(prop, level)
		out = append(out, entities.VariantResult{
			VariantID:      v.ID,
			Name:           v.Name,
			IsControl:      v.IsControl,
			Participants:   prop.Participants,
			Conversions:    prop.Conversions,
			ConversionRate: prop.Rate(),
			Interval:       entities.ConfidenceInterval{Lower: lower, Upper: upper, Level: level},
		})
	}

	return out
}

// pickContenders returns the control result, the overall best-performing
// variant by primary-metric rate (which may be control), and the best
// non-control challenger.
func pickContenders(variants []entities.VariantResult) (control, best, challenger *entities.VariantResult) {
	for i := range variants {
		v := &variants[i]
		if v.IsControl {
			control = v
		} else if challenger == nil || v.ConversionRate > challenger.ConversionRate {
			challenger = v
		}
		if best == nil || v.ConversionRate > best.ConversionRate {
			best = v
		}
	}
	return control, best, challenger
}

func winnerAnalysis(control, best, challenger *entities.VariantResult, test stats.TestResult) entities.WinnerAnalysis {
	analysis := entities.WinnerAnalysis{Confidence: 1 - test.PValue}

	// A winner requires the overall best variant to be a treatment and its
	// advantage over control to be statistically significant.
	if best.IsControl || !test.Significant {
		return analysis
	}

	analysis.HasWinner = true
	analysis.VariantID = challenger.VariantID
	if control.ConversionRate > 0 {
		analysis.Lift = (challenger.ConversionRate - control.ConversionRate) / control.ConversionRate * 100
	}

	return analysis
}

// guardrailResults checks each guardrail metric for the best-performing
// variant against control. A guardrail is acceptable only if its relative
// degradation stays within the configured tolerance; breaches surface even
// when the primary metric is a clear win.
func (s *ResultsService) guardrailResults(experiment *entities.Experiment, participations []*entities.Participation, bestVariantID string) []entities.GuardrailResult {
	if len(experiment.GuardrailMetricIDs) == 0 {
		return nil
	}

	out := make([]entities.GuardrailResult, 0, len(experiment.GuardrailMetricIDs))
	for _, metricID := range experiment.GuardrailMetricIDs {
		byVariant := variantResults(experiment, participations, metricID)

		var controlRate, variantRate float64
		for _, v := range byVariant {
			if v.IsControl {
				controlRate = v.ConversionRate
			}
			if v.VariantID == bestVariantID {
				variantRate = v.ConversionRate
			}
		}

		delta := 0.0
		if controlRate > 0 {
			delta = (variantRate - controlRate) / controlRate
		}

		out = append(out, entities.GuardrailResult{
			MetricID:    metricID,
			ControlRate: controlRate,
			VariantRate: variantRate,
			Delta:       delta,
			Tolerance:   s.guardrailTolerance,
			Acceptable:  delta >= -s.guardrailTolerance,
		})
	}

	return out
}

func secondaryBreakdowns(experiment *entities.Experiment, participations []*entities.Participation) []entities.MetricBreakdown {
	if len(experiment.SecondaryMetricIDs) == 0 {
		return nil
	}

	out := make([]entities.MetricBreakdown, 0, len(experiment.SecondaryMetricIDs))
	for _, metricID := range experiment.SecondaryMetricIDs {
		out = append(out, entities.MetricBreakdown{
			MetricID: metricID,
			Variants: variantResults(experiment, participations, metricID),
		})
	}

	return out
}

// recommend applies the decision rules: significant win with clean
// guardrails launches, significant loss stops, a win with a breached
// guardrail iterates, and anything inconclusive at full sample iterates.
func recommend(experiment *entities.Experiment, results *entities.ExperimentResults, best, challenger *entities.VariantResult) []entities.Recommendation {
	confidence := 0.0
	if results.Significance != nil {
		confidence = 1 - results.Significance.PValue
	}

	significant := results.Significance != nil && results.Significance.Significant

	if significant && !best.IsControl {
		if breached := breachedGuardrails(results.Guardrails); len(breached) > 0 {
			return []entities.Recommendation{{
				Type:       entities.RecommendIterate,
				Rationale:  fmt.Sprintf("variant %s wins on the primary metric but degrades guardrail(s) %v beyond tolerance", challenger.VariantID, breached),
				Confidence: confidence,
			}}
		}
		return []entities.Recommendation{{
			Type:           entities.RecommendLaunch,
			Rationale:      fmt.Sprintf("variant %s beats control with a significant lift and clean guardrails", challenger.VariantID),
			Confidence:     confidence,
			ExpectedImpact: fmt.Sprintf("%+.1f%% on %s", results.Winner.Lift, experiment.PrimaryMetricID),
		}}
	}

	if significant && best.IsControl {
		return []entities.Recommendation{{
			Type:       entities.RecommendStop,
			Rationale:  "control significantly outperforms every treatment, stop the experiment",
			Confidence: confidence,
		}}
	}

	return []entities.Recommendation{{
		Type:       entities.RecommendIterate,
		Rationale:  "no significant difference at the planned sample size, iterate on the treatment design",
		Confidence: confidence,
	}}
}

func breachedGuardrails(guardrails []entities.GuardrailResult) []string {
	var breached []string
	for _, g := range guardrails {
		if !g.Acceptable {
			breached = append(breached, g.MetricID)
		}
	}
	return breached
}
