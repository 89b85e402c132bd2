package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/launchpadhq/experiment-engine/internal/domain/providers"
)

// CacheInvalidationService drops cached experiment records when lifecycle
// events arrive, so assignment reads see a status change before the TTL
// would expire on its own.
type CacheInvalidationService struct {
	cache    providers.CacheProvider
	eventBus providers.EventBus
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewCacheInvalidationService creates a new cache invalidation service
func NewCacheInvalidationService(cache providers.CacheProvider, eventBus providers.EventBus) *CacheInvalidationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheInvalidationService{
		cache:    cache,
		eventBus: eventBus,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins listening for lifecycle events and invalidating cache
func (s *CacheInvalidationService) Start() error {
	eventChan, err := s.eventBus.Subscribe(s.ctx, providers.EventChannelLifecycle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to lifecycle events: %w", err)
	}

	go s.processEvents(eventChan)
	log.Info().Msg("cache invalidation service started")
	return nil
}

// Stop stops the cache invalidation service
func (s *CacheInvalidationService) Stop() {
	s.cancel()
	log.Info().Msg("cache invalidation service stopped")
}

func (s *CacheInvalidationService) processEvents(eventChan <-chan *entities.ExperimentEvent) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				// Bus closed the subscriber channel, nothing more to process.
				return
			}
			if event == nil {
				continue
			}
			s.handleEvent(event)
		}
	}
}

// handleEvent drops the cached record for the experiment the event names.
// List responses and HTTP response caches keep their short TTLs; only the
// per-experiment record needs immediate consistency because assignment
// decisions read it.
func (s *CacheInvalidationService) handleEvent(event *entities.ExperimentEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := fmt.Sprintf("experiment:%s", event.ExperimentID)
	if err := s.cache.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("experiment_id", event.ExperimentID).
			Msg("failed to invalidate experiment cache")
		return
	}

	log.Info().Str("experiment_id", event.ExperimentID).Str("event_type", string(event.Type)).
		Msg("invalidated experiment cache")
}

// InvalidateResponseCaches clears cached HTTP responses for experiment
// endpoints. Intended for maintenance or bulk backfills, not the hot path.
func (s *CacheInvalidationService) InvalidateResponseCaches(ctx context.Context) error {
	if err := s.cache.DeletePattern(ctx, "http:cache:*"); err != nil {
		return fmt.Errorf("failed to invalidate response caches: %w", err)
	}
	log.Info().Msg("invalidated HTTP response caches")
	return nil
}
