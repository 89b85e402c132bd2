package routes

import (
	"net/http"

	"github.com/launchpadhq/experiment-engine/internal/api/handlers"
	"github.com/launchpadhq/experiment-engine/internal/api/middleware"
	"github.com/launchpadhq/experiment-engine/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	experimentHandler *handlers.ExperimentHandler
	assignmentHandler *handlers.AssignmentHandler
	metricHandler     *handlers.MetricHandler

	cacheMiddleware *middleware.CacheMiddleware
	metrics         *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	experimentHandler *handlers.ExperimentHandler,
	assignmentHandler *handlers.AssignmentHandler,
	metricHandler *handlers.MetricHandler,
	cacheMiddleware *middleware.CacheMiddleware,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux: http.NewServeMux(),

		experimentHandler: experimentHandler,
		assignmentHandler: assignmentHandler,
		metricHandler:     metricHandler,

		cacheMiddleware: cacheMiddleware,
		metrics:         metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Health check endpoint
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Experiment lifecycle endpoints
	r.mux.HandleFunc("POST /api/experiments", r.experimentHandler.CreateExperiment)
	r.mux.HandleFunc("GET /api/experiments", r.experimentHandler.ListExperiments)
	r.mux.HandleFunc("GET /api/experiments/{id}", r.experimentHandler.GetExperiment)
	r.mux.HandleFunc("POST /api/experiments/{id}/start", r.experimentHandler.StartExperiment)
	r.mux.HandleFunc("POST /api/experiments/{id}/pause", r.experimentHandler.PauseExperiment)
	r.mux.HandleFunc("POST /api/experiments/{id}/stop", r.experimentHandler.StopExperiment)
	r.mux.HandleFunc("POST /api/experiments/{id}/cancel", r.experimentHandler.CancelExperiment)

	// Results endpoints
	r.mux.HandleFunc("GET /api/experiments/{id}/results", r.experimentHandler.GetResults)
	r.mux.HandleFunc("GET /api/experiments/{id}/results/segments/{segmentId}", r.experimentHandler.GetSegmentResults)

	// Assignment and tracking endpoints
	r.mux.HandleFunc("POST /api/experiments/{id}/assignments", r.assignmentHandler.AssignUser)
	r.mux.HandleFunc("GET /api/experiments/{id}/variant", r.assignmentHandler.GetVariant)
	r.mux.HandleFunc("POST /api/experiments/{id}/exposures", r.assignmentHandler.TrackExposure)
	r.mux.HandleFunc("POST /api/experiments/{id}/conversions", r.assignmentHandler.TrackConversion)
	r.mux.HandleFunc("GET /api/users/{userId}/experiments", r.assignmentHandler.GetUserExperiments)

	// Metric definition endpoints
	r.mux.HandleFunc("POST /api/metrics", r.metricHandler.CreateMetric)
	r.mux.HandleFunc("GET /api/metrics/{id}", r.metricHandler.GetMetric)

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)

	if r.cacheMiddleware != nil {
		handler = r.cacheMiddleware.Middleware(handler)
	}

	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)

	// Compression, ETag, cache headers
	handler = middleware.ResponseOptimization(handler)

	// CORS wraps everything so headers are set even on cache HITs
	handler = middleware.CORSMiddleware(handler)

	return handler
}
