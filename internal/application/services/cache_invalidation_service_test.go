package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/launchpadhq/experiment-engine/internal/domain/providers"
)

type memoryCacheProvider struct {
	mu      sync.RWMutex
	data    map[string][]byte
	deleted []string
}

func newMemoryCacheProvider() *memoryCacheProvider {
	return &memoryCacheProvider{data: map[string][]byte{}}
}

func (m *memoryCacheProvider) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	if !ok {
		return nil, context.Canceled
	}
	return value, nil
}

func (m *memoryCacheProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryCacheProvider) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memoryCacheProvider) DeletePattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.data {
		delete(m.data, key)
		m.deleted = append(m.deleted, key)
	}
	return nil
}

func (m *memoryCacheProvider) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *memoryCacheProvider) deletedKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.deleted))
	copy(out, m.deleted)
	return out
}

// channelEventBus delivers published events straight to subscribers, no
// Redis involved.
type channelEventBus struct {
	ch chan *entities.ExperimentEvent
}

func newChannelEventBus() *channelEventBus {
	return &channelEventBus{ch: make(chan *entities.ExperimentEvent, 16)}
}

func (b *channelEventBus) Publish(ctx context.Context, channel string, event *entities.ExperimentEvent) error {
	b.ch <- event
	return nil
}

func (b *channelEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.ExperimentEvent, error) {
	return b.ch, nil
}

func (b *channelEventBus) Unsubscribe(ctx context.Context, channel string) error { return nil }

func (b *channelEventBus) Close() error { return nil }

func TestCacheInvalidationService_DropsExperimentOnLifecycleEvent(t *testing.T) {
	cache := newMemoryCacheProvider()
	require.NoError(t, cache.Set(context.Background(), "experiment:exp-1", []byte(`{"id":"exp-1"}`), time.Minute))

	bus := newChannelEventBus()
	service := NewCacheInvalidationService(cache, bus)
	require.NoError(t, service.Start())
	defer service.Stop()

	err := bus.Publish(context.Background(), providers.EventChannelLifecycle, &entities.ExperimentEvent{
		ID:           "evt-1",
		ExperimentID: "exp-1",
		Type:         entities.EventExperimentPaused,
		Status:       entities.StatusPaused,
		OccurredAt:   time.Now(),
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		exists, _ := cache.Exists(context.Background(), "experiment:exp-1")
		return !exists
	}, time.Second, 10*time.Millisecond)

	assert.Contains(t, cache.deletedKeys(), "experiment:exp-1")
}

func TestCacheInvalidationService_IgnoresNilEvents(t *testing.T) {
	cache := newMemoryCacheProvider()
	bus := newChannelEventBus()
	service := NewCacheInvalidationService(cache, bus)
	require.NoError(t, service.Start())
	defer service.Stop()

	bus.ch <- nil
	err := bus.Publish(context.Background(), providers.EventChannelLifecycle, &entities.ExperimentEvent{
		ID:           "evt-2",
		ExperimentID: "exp-2",
		Type:         entities.EventExperimentCompleted,
		Status:       entities.StatusCompleted,
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		keys := cache.deletedKeys()
		return len(keys) == 1 && keys[0] == "experiment:exp-2"
	}, time.Second, 10*time.Millisecond)
}

func TestCacheInvalidationService_StopsWhenBusClosesChannel(t *testing.T) {
	cache := newMemoryCacheProvider()
	service := NewCacheInvalidationService(cache, newChannelEventBus())

	eventChan := make(chan *entities.ExperimentEvent)
	done := make(chan struct{})
	go func() {
		service.processEvents(eventChan)
		close(done)
	}()

	close(eventChan)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processEvents kept running after its channel closed")
	}
	assert.Empty(t, cache.deletedKeys())
}

func TestCacheInvalidationService_InvalidateResponseCaches(t *testing.T) {
	cache := newMemoryCacheProvider()
	require.NoError(t, cache.Set(context.Background(), "http:cache:abc", []byte("cached"), time.Minute))

	service := NewCacheInvalidationService(cache, newChannelEventBus())

	require.NoError(t, service.InvalidateResponseCaches(context.Background()))

	exists, _ := cache.Exists(context.Background(), "http:cache:abc")
	assert.False(t, exists)
}
