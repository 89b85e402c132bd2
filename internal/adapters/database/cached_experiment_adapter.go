package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/launchpadhq/experiment-engine/internal/domain/providers"
	"github.com/launchpadhq/experiment-engine/internal/domain/repositories"
	"github.com/rs/zerolog/log"
)

// CachedExperimentAdapter wraps ExperimentRepository with a read-through
// cache. Experiment definitions sit on the hot assignment path and change
// rarely, so a short TTL keeps lifecycle transitions visible within seconds
// without a per-request database round trip.
type CachedExperimentAdapter struct {
	adapter repositories.ExperimentRepository
	cache   providers.CacheProvider
	ttl     time.Duration
}

// NewCachedExperimentAdapter creates a new cached experiment adapter
func NewCachedExperimentAdapter(adapter repositories.ExperimentRepository, cache providers.CacheProvider, ttl time.Duration) repositories.ExperimentRepository {
	return &CachedExperimentAdapter{
		adapter: adapter,
		cache:   cache,
		ttl:     ttl,
	}
}

func experimentCacheKey(id string) string {
	return fmt.Sprintf("experiment:%s", id)
}

// Save writes through to the database and invalidates the cached entry so
// the next read observes the new state immediately.
func (a *CachedExperimentAdapter) Save(ctx context.Context, experiment *entities.Experiment) error {
	if err := a.adapter.Save(ctx, experiment); err != nil {
		return err
	}

	if err := a.cache.Delete(ctx, experimentCacheKey(experiment.ID)); err != nil {
		log.Warn().Err(err).Str("experiment_id", experiment.ID).Msg("failed to invalidate cached experiment")
	}

	return nil
}

// GetByID retrieves an experiment, preferring the cache
func (a *CachedExperimentAdapter) GetByID(ctx context.Context, id string) (*entities.Experiment, error) {
	cacheKey := experimentCacheKey(id)

	if cached, err := a.cache.Get(ctx, cacheKey); err == nil {
		var experiment entities.Experiment
		if err := json.Unmarshal(cached, &experiment); err == nil {
			return &experiment, nil
		}
		log.Warn().Err(err).Str("experiment_id", id).Msg("failed to unmarshal cached experiment")
	}

	experiment, err := a.adapter.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(experiment); err == nil {
		if err := a.cache.Set(ctx, cacheKey, data, a.ttl); err != nil {
			log.Warn().Err(err).Str("experiment_id", id).Msg("failed to cache experiment")
		}
	}

	return experiment, nil
}

// ListByStatus always hits the database. Status listings feed the results
// worker and admin surfaces, not the assignment path.
func (a *CachedExperimentAdapter) ListByStatus(ctx context.Context, status entities.ExperimentStatus) ([]*entities.Experiment, error) {
	return a.adapter.ListByStatus(ctx, status)
}
