package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/launchpadhq/experiment-engine/internal/adapters/attributes"
	"github.com/launchpadhq/experiment-engine/internal/adapters/cache"
	"github.com/launchpadhq/experiment-engine/internal/adapters/database"
	"github.com/launchpadhq/experiment-engine/internal/adapters/events"
	"github.com/launchpadhq/experiment-engine/internal/api/handlers"
	"github.com/launchpadhq/experiment-engine/internal/api/middleware"
	"github.com/launchpadhq/experiment-engine/internal/api/routes"
	"github.com/launchpadhq/experiment-engine/internal/application/services"
	"github.com/launchpadhq/experiment-engine/internal/domain/providers"
	"github.com/launchpadhq/experiment-engine/internal/domain/repositories"
	"github.com/launchpadhq/experiment-engine/internal/infrastructure/clients/postgres"
	"github.com/launchpadhq/experiment-engine/internal/infrastructure/clients/redis"
	"github.com/launchpadhq/experiment-engine/internal/infrastructure/observability"
	"github.com/launchpadhq/experiment-engine/internal/targeting"
	"github.com/launchpadhq/experiment-engine/pkg/config"
)

// noSegments is used when Redis is unavailable; segment-targeted
// experiments then match no one.
type noSegments struct{}

func (noSegments) SegmentsFor(ctx context.Context, userID string) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func main() {

	// Load configuration

	cfg, err := config.Load()

	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, os.Getenv("APP_ENV"))

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	var shutdown func(context.Context) error
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err = observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Printf("Warning: Failed to set up OpenTelemetry: %v", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Printf("Error shutting down OpenTelemetry: %v", err)
				}
			}()
			log.Println("OpenTelemetry initialized successfully")
		}
	}

	// Initialize metrics
	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	// Initialize database client
	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize PostgreSQL client: %v", err)
	}
	defer pgClient.Close()
	log.Println("PostgreSQL client initialized successfully")

	// Initialize Redis client
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Printf("Warning: Failed to initialize Redis client: %v", err)
		redisClient = nil
		// Continue without Redis - assignments still work, just uncached
	} else {
		defer redisClient.Close()
		log.Println("Redis client initialized successfully")
	}

	var cacheProvider providers.CacheProvider
	if redisClient != nil {
		cacheProvider = cache.NewRedisAdapter(redisClient)
	}

	// Initialize adapters

	// Create base experiment adapter
	baseExperimentAdapter := database.NewExperimentAdapter(pgClient)

	// Wrap with caching if Redis is available (assignment reads hit this on
	// every request)
	var experimentAdapter repositories.ExperimentRepository
	if cacheProvider != nil {
		experimentAdapter = database.NewCachedExperimentAdapter(baseExperimentAdapter, cacheProvider, cfg.Engine.ExperimentCacheTTL)
		log.Println("✓ Experiment adapter wrapped with caching layer")
	} else {
		experimentAdapter = baseExperimentAdapter
		log.Println("⚠ Experiment adapter running without cache (Redis unavailable)")
	}

	participationAdapter := database.NewParticipationAdapter(pgClient)
	metricAdapter := database.NewMetricAdapter(pgClient)

	attributeSource := attributes.NewPostgresSource(pgClient)

	var segmentResolver providers.SegmentResolver
	if redisClient != nil {
		segmentResolver = attributes.NewRedisSegments(redisClient)
	} else {
		segmentResolver = noSegments{}
	}

	// Initialize event bus for lifecycle notifications
	var eventBus providers.EventBus
	if redisClient != nil {
		eventBus = events.NewRedisEventBus(redisClient)
		log.Println("Event bus initialized successfully")
	} else {
		log.Println("Event bus disabled (Redis not available)")
	}

	// Initialize services

	// Drop cached experiments as soon as a lifecycle event lands
	var cacheInvalidationService *services.CacheInvalidationService
	if cacheProvider != nil && eventBus != nil {
		cacheInvalidationService = services.NewCacheInvalidationService(cacheProvider, eventBus)
		if err := cacheInvalidationService.Start(); err != nil {
			log.Printf("Warning: Failed to start cache invalidation service: %v", err)
		} else {
			log.Println("Cache invalidation service started successfully")
		}
	}

	evaluator := targeting.NewEvaluator(attributeSource, segmentResolver, cfg.Engine.AllocationMode)

	resultsService := services.NewResultsService(
		experimentAdapter,
		participationAdapter,
		segmentResolver,
		cfg.Engine.GuardrailTolerance,
	)

	experimentService := services.NewExperimentService(
		experimentAdapter,
		metricAdapter,
		resultsService,
		eventBus,
	)

	assignmentService := services.NewAssignmentService(
		experimentAdapter,
		participationAdapter,
		metricAdapter,
		evaluator,
	)

	// Initialize handlers

	experimentHandler := handlers.NewExperimentHandler(experimentService, resultsService)
	assignmentHandler := handlers.NewAssignmentHandler(assignmentService, metrics)
	metricHandler := handlers.NewMetricHandler(metricAdapter)

	// Initialize cache middleware
	var cacheMiddleware *middleware.CacheMiddleware
	if cacheProvider != nil {
		cacheMiddleware = middleware.NewCacheMiddleware(cacheProvider)
		log.Println("Cache middleware initialized successfully")
	}

	// Set up router

	router := routes.NewRouter(
		experimentHandler,
		assignmentHandler,
		metricHandler,
		cacheMiddleware,
		metrics,
	)

	handler := router.SetupRoutes()

	// Create HTTP server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}

	// Stop subscribers before the bus closes their channels
	if cacheInvalidationService != nil {
		cacheInvalidationService.Stop()
	}

	// Close event bus
	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Printf("Error closing event bus: %v", err)
		}
	}

	log.Println("Server stopped")
}
