package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/launchpadhq/experiment-engine/pkg/errors"
)

type mapCacheProvider struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newMapCacheProvider() *mapCacheProvider {
	return &mapCacheProvider{data: map[string][]byte{}}
}

func (p *mapCacheProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	value, ok := p.data[key]
	if !ok {
		return nil, apperrors.NewNotFoundError("cache key " + key)
	}
	return value, nil
}

func (p *mapCacheProvider) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = value
	return nil
}

func (p *mapCacheProvider) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	return nil
}

func (p *mapCacheProvider) DeletePattern(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = map[string][]byte{}
	return nil
}

func (p *mapCacheProvider) Exists(_ context.Context, key string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.data[key]
	return ok, nil
}

func TestCacheMiddleware_CachesExperimentReads(t *testing.T) {
	calls := 0
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprintf(w, `{"call":%d}`, calls)
	})

	handler := NewCacheMiddleware(newMapCacheProvider()).Middleware(backend)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/experiments/exp-1", nil))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/experiments/exp-1", nil))

	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)
}

func TestCacheMiddleware_NeverCachesVariantLookups(t *testing.T) {
	assigned := false
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"assigned":%t}`, assigned)
	})

	handler := NewCacheMiddleware(newMapCacheProvider()).Middleware(backend)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/experiments/exp-1/variant?user_id=u1", nil))
	assert.JSONEq(t, `{"assigned":false}`, first.Body.String())

	// The user gets assigned between lookups; the second read must see it.
	assigned = true

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/experiments/exp-1/variant?user_id=u1", nil))
	assert.JSONEq(t, `{"assigned":true}`, second.Body.String())
	assert.NotEqual(t, "HIT", second.Header().Get("X-Cache"))
}

func TestCacheMiddleware_SkipsNonGETRequests(t *testing.T) {
	calls := 0
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"status":"recorded"}`))
	})

	handler := NewCacheMiddleware(newMapCacheProvider()).Middleware(backend)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/experiments/exp-1/assignments", nil))
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}

	assert.Equal(t, 2, calls)
}
