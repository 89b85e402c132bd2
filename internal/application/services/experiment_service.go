package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/launchpadhq/experiment-engine/internal/domain/providers"
	"github.com/launchpadhq/experiment-engine/internal/domain/repositories"
	"github.com/launchpadhq/experiment-engine/internal/stats"
	apperrors "github.com/launchpadhq/experiment-engine/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ExperimentService owns the experiment lifecycle: creation, validation,
// the draft -> running -> {paused <-> running} -> {completed | cancelled}
// state machine, and the final results freeze on terminal transitions.
type ExperimentService struct {
	experiments repositories.ExperimentRepository
	metrics     repositories.MetricRepository
	results     *ResultsService
	events      providers.EventBus
}

// NewExperimentService creates a new experiment lifecycle service. events
// may be nil when no collaborator listens for lifecycle transitions.
func NewExperimentService(
	experiments repositories.ExperimentRepository,
	metrics repositories.MetricRepository,
	results *ResultsService,
	events providers.EventBus,
) *ExperimentService {
	return &ExperimentService{
		experiments: experiments,
		metrics:     metrics,
		results:     results,
		events:      events,
	}
}

// CreateExperiment validates the configuration, computes the advisory
// sample size, and stores the experiment in draft.
func (s *ExperimentService) CreateExperiment(ctx context.Context, experiment *entities.Experiment) (*entities.Experiment, error) {
	if experiment == nil {
		return nil, apperrors.NewValidationError("experiment is nil")
	}

	if experiment.ID == "" {
		experiment.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	experiment.Status = entities.StatusDraft
	experiment.CreatedAt = now
	experiment.UpdatedAt = now

	if err := s.validate(ctx, experiment); err != nil {
		return nil, err
	}

	experiment.RequiredSampleSize = stats.RequiredSampleSize(experiment.Settings, len(experiment.Variants))

	if err := s.experiments.Save(ctx, experiment); err != nil {
		return nil, err
	}

	log.Info().Str("experiment_id", experiment.ID).Str("name", experiment.Name).
		Int("required_sample_size", experiment.RequiredSampleSize).
		Msg("experiment created")

	return experiment, nil
}

// StartExperiment moves a draft or paused experiment into running. Leaving
// draft re-runs full validation and recomputes the sample size plan.
func (s *ExperimentService) StartExperiment(ctx context.Context, id string) (*entities.Experiment, error) {
	experiment, err := s.experiments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !experiment.CanTransitionTo(entities.StatusRunning) {
		return nil, apperrors.NewStateError("cannot start experiment " + id + " from status " + string(experiment.Status))
	}

	if experiment.Status == entities.StatusDraft {
		if err := s.validate(ctx, experiment); err != nil {
			return nil, err
		}
		experiment.RequiredSampleSize = stats.RequiredSampleSize(experiment.Settings, len(experiment.Variants))
	}

	now := time.Now().UTC()
	if experiment.StartedAt == nil {
		experiment.StartedAt = &now
	}
	experiment.Status = entities.StatusRunning
	experiment.UpdatedAt = now

	if err := s.experiments.Save(ctx, experiment); err != nil {
		return nil, err
	}

	s.publish(ctx, experiment, entities.EventExperimentStarted)
	log.Info().Str("experiment_id", id).Msg("experiment started")

	return experiment, nil
}

// PauseExperiment suspends a running experiment. It can be resumed with
// StartExperiment.
func (s *ExperimentService) PauseExperiment(ctx context.Context, id string) (*entities.Experiment, error) {
	experiment, err := s.experiments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !experiment.CanTransitionTo(entities.StatusPaused) {
		return nil, apperrors.NewStateError("cannot pause experiment " + id + " from status " + string(experiment.Status))
	}

	experiment.Status = entities.StatusPaused
	experiment.UpdatedAt = time.Now().UTC()

	if err := s.experiments.Save(ctx, experiment); err != nil {
		return nil, err
	}

	s.publish(ctx, experiment, entities.EventExperimentPaused)
	log.Info().Str("experiment_id", id).Msg("experiment paused")

	return experiment, nil
}

// StopExperiment completes an experiment: the transition is terminal,
// triggers a final results computation, and freezes the record.
func (s *ExperimentService) StopExperiment(ctx context.Context, id, reason string) (*entities.Experiment, error) {
	return s.terminate(ctx, id, reason, entities.StatusCompleted, entities.EventExperimentCompleted)
}

// CancelExperiment abandons an experiment without drawing conclusions. The
// final results snapshot is still computed and frozen for the record.
func (s *ExperimentService) CancelExperiment(ctx context.Context, id, reason string) (*entities.Experiment, error) {
	return s.terminate(ctx, id, reason, entities.StatusCancelled, entities.EventExperimentCancelled)
}

// GetExperiment retrieves an experiment by ID.
func (s *ExperimentService) GetExperiment(ctx context.Context, id string) (*entities.Experiment, error) {
	return s.experiments.GetByID(ctx, id)
}

// ListByStatus retrieves experiments in the given lifecycle state.
func (s *ExperimentService) ListByStatus(ctx context.Context, status entities.ExperimentStatus) ([]*entities.Experiment, error) {
	return s.experiments.ListByStatus(ctx, status)
}

func (s *ExperimentService) terminate(
	ctx context.Context,
	id, reason string,
	target entities.ExperimentStatus,
	eventType entities.ExperimentEventType,
) (*entities.Experiment, error) {
	experiment, err := s.experiments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !experiment.CanTransitionTo(target) {
		return nil, apperrors.NewStateError("cannot move experiment " + id + " from status " + string(experiment.Status) + " to " + string(target))
	}

	results, err := s.results.Compute(ctx, experiment)
	if err != nil {
		// The terminal transition still proceeds: a frozen experiment
		// without a snapshot can be recomputed later from participations.
		log.Error().Err(err).Str("experiment_id", id).Msg("final results computation failed")
	} else {
		experiment.Results = results
	}

	now := time.Now().UTC()
	experiment.Status = target
	experiment.EndedAt = &now
	experiment.UpdatedAt = now

	if err := s.experiments.Save(ctx, experiment); err != nil {
		return nil, err
	}

	s.publish(ctx, experiment, eventType)
	log.Info().Str("experiment_id", id).Str("status", string(target)).Str("reason", reason).
		Msg("experiment stopped")

	return experiment, nil
}

// validate runs structural validation plus referential checks against the
// metric repository.
func (s *ExperimentService) validate(ctx context.Context, experiment *entities.Experiment) error {
	if err := experiment.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error())
	}

	ids := make([]string, 0, 1+len(experiment.SecondaryMetricIDs)+len(experiment.GuardrailMetricIDs))
	ids = append(ids, experiment.PrimaryMetricID)
	ids = append(ids, experiment.SecondaryMetricIDs...)
	ids = append(ids, experiment.GuardrailMetricIDs...)

	found, err := s.metrics.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return apperrors.NewValidationError("unknown metric " + id)
		}
	}

	return nil
}

func (s *ExperimentService) publish(ctx context.Context, experiment *entities.Experiment, eventType entities.ExperimentEventType) {
	if s.events == nil {
		return
	}

	event := &entities.ExperimentEvent{
		ID:           uuid.New().String(),
		ExperimentID: experiment.ID,
		Type:         eventType,
		Status:       experiment.Status,
		OccurredAt:   time.Now().UTC(),
	}

	if err := s.events.Publish(ctx, providers.EventChannelLifecycle, event); err != nil {
		log.Warn().Err(err).Str("experiment_id", experiment.ID).Msg("failed to publish lifecycle event")
	}
}
