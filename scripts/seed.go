package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/launchpadhq/experiment-engine/internal/adapters/database"
	"github.com/launchpadhq/experiment-engine/internal/application/services"
	"github.com/launchpadhq/experiment-engine/internal/domain/entities"
	"github.com/launchpadhq/experiment-engine/internal/infrastructure/clients/postgres"
	"github.com/launchpadhq/experiment-engine/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pgClient.Close()

	experimentRepo := database.NewExperimentAdapter(pgClient)
	participationRepo := database.NewParticipationAdapter(pgClient)
	metricRepo := database.NewMetricAdapter(pgClient)

	resultsService := services.NewResultsService(experimentRepo, participationRepo, nil, cfg.Engine.GuardrailTolerance)
	experimentService := services.NewExperimentService(experimentRepo, metricRepo, resultsService, nil)

	ctx := context.Background()

	if os.Getenv("RESET_DB") == "true" {
		log.Println("RESET_DB=true detected, truncating tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `
			TRUNCATE TABLE
				participations,
				experiments,
				metrics,
				user_attributes
			RESTART IDENTITY CASCADE
		`)
		if err != nil {
			log.Fatalf("Failed to reset tables: %v", err)
		}
	}

	// 1. Seed metric definitions
	now := time.Now().UTC()
	metrics := []entities.Metric{
		{ID: "checkout_completed", Name: "Checkout completed", Aggregation: entities.AggregationPercentage, CreatedAt: now, UpdatedAt: now},
		{ID: "add_to_cart", Name: "Add to cart", Aggregation: entities.AggregationPercentage, CreatedAt: now, UpdatedAt: now},
		{ID: "order_revenue", Name: "Order revenue", Aggregation: entities.AggregationSum, CreatedAt: now, UpdatedAt: now},
		{ID: "unsubscribe_rate", Name: "Unsubscribe rate", Aggregation: entities.AggregationPercentage, IsGuardrail: true, CreatedAt: now, UpdatedAt: now},
		{ID: "page_load_errors", Name: "Page load errors", Aggregation: entities.AggregationCount, IsGuardrail: true, CreatedAt: now, UpdatedAt: now},
	}

	for _, m := range metrics {
		if err := metricRepo.Save(ctx, &m); err != nil {
			log.Printf("Failed to save metric %s: %v", m.ID, err)
		}
	}
	log.Printf("Seeded %d metrics", len(metrics))

	// 2. Seed a running A/B experiment
	checkout := &entities.Experiment{
		Name: "Checkout button color",
		Type: entities.TypeAB,
		Variants: []entities.Variant{
			{ID: "control", Name: "Blue button", IsControl: true, Weight: 0.5},
			{ID: "green", Name: "Green button", Weight: 0.5, Config: map[string]interface{}{"color": "#2e7d32"}},
		},
		ControlVariantID:   "control",
		PrimaryMetricID:    "checkout_completed",
		SecondaryMetricIDs: []string{"add_to_cart", "order_revenue"},
		GuardrailMetricIDs: []string{"unsubscribe_rate"},
		Targeting: entities.TargetingRules{
			UserAttributes: []entities.TargetingRule{
				{Field: "country", Operator: entities.OpIn, Value: []interface{}{"US", "CA", "GB"}},
			},
		},
		Settings: entities.StatisticalSettings{
			SignificanceLevel:       0.05,
			Power:                   0.8,
			MinimumDetectableEffect: 0.02,
			BaselineRate:            0.1,
			TrafficAllocation:       1.0,
		},
	}

	created, err := experimentService.CreateExperiment(ctx, checkout)
	if err != nil {
		log.Fatalf("Failed to create checkout experiment: %v", err)
	}
	if _, err := experimentService.StartExperiment(ctx, created.ID); err != nil {
		log.Fatalf("Failed to start checkout experiment: %v", err)
	}
	log.Printf("Seeded running experiment %s (required sample size %d)", created.ID, created.RequiredSampleSize)

	// 3. Seed a draft multivariate experiment
	onboarding := &entities.Experiment{
		Name: "Onboarding flow layout",
		Type: entities.TypeMultivariate,
		Variants: []entities.Variant{
			{ID: "control", Name: "Current flow", IsControl: true, Weight: 0.4},
			{ID: "single-page", Name: "Single page", Weight: 0.3},
			{ID: "progressive", Name: "Progressive disclosure", Weight: 0.3},
		},
		ControlVariantID:   "control",
		PrimaryMetricID:    "add_to_cart",
		GuardrailMetricIDs: []string{"page_load_errors"},
		Settings: entities.StatisticalSettings{
			SignificanceLevel:       0.05,
			Power:                   0.8,
			MinimumDetectableEffect: 0.03,
			BaselineRate:            0.25,
			TrafficAllocation:       0.5,
		},
	}

	if _, err := experimentService.CreateExperiment(ctx, onboarding); err != nil {
		log.Fatalf("Failed to create onboarding experiment: %v", err)
	}
	log.Printf("Seeded draft experiment %s", onboarding.ID)

	// 4. Seed user attributes for targeting
	users := []struct {
		id    string
		attrs string
	}{
		{"user-1", `{"country":"US","plan":"pro","age":34}`},
		{"user-2", `{"country":"GB","plan":"free","age":27}`},
		{"user-3", `{"country":"DE","plan":"pro","age":41}`},
	}
	for _, u := range users {
		_, err := pgClient.DB().ExecContext(ctx, `
			INSERT INTO user_attributes (user_id, attributes, updated_at)
			VALUES ($1, $2::jsonb, NOW())
			ON CONFLICT (user_id) DO UPDATE SET attributes = $2::jsonb, updated_at = NOW()
		`, u.id, u.attrs)
		if err != nil {
			log.Printf("Failed to seed attributes for %s: %v", u.id, err)
		}
	}
	log.Printf("Seeded attributes for %d users", len(users))

	log.Println("Seeding complete")
}
