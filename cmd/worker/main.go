package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/launchpadhq/experiment-engine/internal/adapters/database"
	"github.com/launchpadhq/experiment-engine/internal/application/services"
	"github.com/launchpadhq/experiment-engine/internal/infrastructure/clients/postgres"
	"github.com/launchpadhq/experiment-engine/internal/infrastructure/observability"
	"github.com/launchpadhq/experiment-engine/pkg/config"
)

// The worker periodically recomputes and persists results snapshots for all
// running experiments, so dashboard reads never pay the aggregation cost.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	observability.InitLogger(cfg.OTEL.ServiceName+"-worker", os.Getenv("APP_ENV"))

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pgClient.Close()

	experimentRepo := database.NewExperimentAdapter(pgClient)
	participationRepo := database.NewParticipationAdapter(pgClient)

	resultsService := services.NewResultsService(
		experimentRepo,
		participationRepo,
		nil,
		cfg.Engine.GuardrailTolerance,
	)

	refresher := services.NewResultsRefresher(experimentRepo, resultsService, cfg.Engine.ResultsInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go refresher.Run(ctx)
	log.Printf("Results worker started (interval %s)", cfg.Engine.ResultsInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Results worker shutting down...")
	cancel()
}
