package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/launchpadhq/experiment-engine/internal/domain/repositories"
)

// ResultsRefresher periodically recomputes results snapshots for every
// running experiment so that reads serve precomputed data.
type ResultsRefresher struct {
	experiments repositories.ExperimentRepository
	results     *ResultsService
	interval    time.Duration
}

// NewResultsRefresher creates a new results refresher
func NewResultsRefresher(
	experiments repositories.ExperimentRepository,
	results *ResultsService,
	interval time.Duration,
) *ResultsRefresher {
	return &ResultsRefresher{
		experiments: experiments,
		results:     results,
		interval:    interval,
	}
}

// Run refreshes once immediately, then on every tick until ctx is cancelled.
func (r *ResultsRefresher) Run(ctx context.Context) {
	if err := r.RefreshAll(ctx); err != nil {
		log.Error().Err(err).Msg("initial results refresh failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping results refresher")
			return
		case <-ticker.C:
			if err := r.RefreshAll(ctx); err != nil {
				log.Error().Err(err).Msg("periodic results refresh failed")
			}
		}
	}
}

// RefreshAll recomputes and persists results for all running experiments.
// A failure on one experiment does not block the rest.
func (r *ResultsRefresher) RefreshAll(ctx context.Context) error {
	running, err := r.experiments.ListByStatus(ctx, entities.StatusRunning)
	if err != nil {
		return err
	}

	refreshed := 0
	for _, experiment := range running {
		if _, err := r.results.CalculateAndStore(ctx, experiment.ID); err != nil {
			log.Warn().Err(err).Str("experiment_id", experiment.ID).
				Msg("results refresh failed for experiment")
			continue
		}
		refreshed++
	}

	log.Info().Int("refreshed", refreshed).Int("running", len(running)).
		Msg("results refresh pass complete")
	return nil
}
