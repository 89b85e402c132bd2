package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/launchpadhq/experiment-engine/internal/bucketing"
	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/launchpadhq/experiment-engine/internal/domain/repositories"
	apperrors "github.com/launchpadhq/experiment-engine/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EligibilityEvaluator decides whether a user may enter an experiment.
// Implemented by targeting.Evaluator.
type EligibilityEvaluator interface {
	IsEligible(ctx context.Context, userID string, experiment *entities.Experiment) bool
}

// AssignmentService handles user-to-variant assignment and exposure/
// conversion tracking. Assignment is idempotent: once a participation
// exists for a (user, experiment) pair, every later call returns the same
// variant.
type AssignmentService struct {
	experiments    repositories.ExperimentRepository
	participations repositories.ParticipationRepository
	metrics        repositories.MetricRepository
	evaluator      EligibilityEvaluator
}

// ExperimentAssignment pairs an experiment with the variant a user holds.
type ExperimentAssignment struct {
	Experiment *entities.Experiment `json:"experiment"`
	Variant    *entities.Variant    `json:"variant"`
}

// NewAssignmentService creates a new assignment service.
func NewAssignmentService(
	experiments repositories.ExperimentRepository,
	participations repositories.ParticipationRepository,
	metrics repositories.MetricRepository,
	evaluator EligibilityEvaluator,
) *AssignmentService {
	return &AssignmentService{
		experiments:    experiments,
		participations: participations,
		metrics:        metrics,
		evaluator:      evaluator,
	}
}

// AssignUserToExperiment assigns the user to a variant. Returns the
// existing variant if a participation already exists, nil when the user is
// ineligible or the experiment is not running. Concurrent calls for the
// same pair resolve through the repository's insert-if-absent: the loser of
// the race adopts the winner's variant.
func (s *AssignmentService) AssignUserToExperiment(ctx context.Context, userID, experimentID string) (*entities.Variant, error) {
	experiment, err := s.experiments.GetByID(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	existing, err := s.participations.FindByUserAndExperiment(ctx, userID, experimentID)
	if err != nil && !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		return nil, err
	}
	if existing != nil {
		return experiment.VariantByID(existing.VariantID), nil
	}

	if !experiment.IsActive() {
		return nil, nil
	}

	if !s.evaluator.IsEligible(ctx, userID, experiment) {
		return nil, nil
	}

	variantID := bucketing.Assign(userID, experiment.ID, experiment.Variants, experiment.ControlVariantID)

	participation := &entities.Participation{
		ID:           uuid.New().String(),
		ExperimentID: experiment.ID,
		UserID:       userID,
		VariantID:    variantID,
		AssignedAt:   time.Now().UTC(),
	}

	winner, created, err := s.participations.InsertIfAbsent(ctx, participation)
	if err != nil {
		return nil, err
	}
	if !created {
		// A concurrent assignment won the race; its variant is authoritative.
		variantID = winner.VariantID
	}

	return experiment.VariantByID(variantID), nil
}

// GetUserVariant returns the variant the user is assigned to, or nil when
// no participation exists. It never creates an assignment.
func (s *AssignmentService) GetUserVariant(ctx context.Context, userID, experimentID string) (*entities.Variant, error) {
	experiment, err := s.experiments.GetByID(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	participation, err := s.participations.FindByUserAndExperiment(ctx, userID, experimentID)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return experiment.VariantByID(participation.VariantID), nil
}

// TrackExposure records the first actual delivery of the assigned treatment.
// A no-op (logged, not erroring) when no participation exists or the
// exposure is already recorded.
func (s *AssignmentService) TrackExposure(ctx context.Context, userID, experimentID string, _ map[string]interface{}) error {
	participation, err := s.participations.FindByUserAndExperiment(ctx, userID, experimentID)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			log.Warn().Str("user_id", userID).Str("experiment_id", experimentID).
				Msg("exposure for user without participation, ignoring")
			return nil
		}
		return err
	}

	if participation.ExposedAt != nil {
		return nil
	}

	return s.participations.SetExposed(ctx, participation.ID, time.Now().UTC())
}

// TrackConversion appends a conversion event to the user's participation.
// The value is recorded as given, zero included; callers without a value
// send 1 for boolean conversions. A no-op (logged) when no participation
// exists for the pair.
func (s *AssignmentService) TrackConversion(ctx context.Context, userID, experimentID, metricID string, value float64, eventContext map[string]interface{}) error {
	participation, err := s.participations.FindByUserAndExperiment(ctx, userID, experimentID)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			log.Warn().Str("user_id", userID).Str("experiment_id", experimentID).Str("metric_id", metricID).
				Msg("conversion for user without participation, ignoring")
			return nil
		}
		return err
	}

	if metric, err := s.metrics.GetByID(ctx, metricID); err == nil && !metric.InRange(value) {
		// Recorded anyway: conversions are append-only facts and the
		// analyzer is robust to outliers, but the anomaly is worth a trace.
		log.Warn().Str("metric_id", metricID).Float64("value", value).
			Msg("conversion value outside metric's expected range")
	}

	conversion := entities.Conversion{
		MetricID:  metricID,
		Timestamp: time.Now().UTC(),
		Value:     value,
		Context:   eventContext,
	}

	return s.participations.AppendConversion(ctx, participation.ID, conversion)
}

// GetActiveExperimentsForUser lists the running experiments the user holds
// an assignment in, with the assigned variant.
func (s *AssignmentService) GetActiveExperimentsForUser(ctx context.Context, userID string) ([]ExperimentAssignment, error) {
	participations, err := s.participations.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	assignments := make([]ExperimentAssignment, 0, len(participations))
	for _, p := range participations {
		experiment, err := s.experiments.GetByID(ctx, p.ExperimentID)
		if err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
				continue
			}
			return nil, err
		}
		if !experiment.IsActive() {
			continue
		}
		assignments = append(assignments, ExperimentAssignment{
			Experiment: experiment,
			Variant:    experiment.VariantByID(p.VariantID),
		})
	}

	return assignments, nil
}
