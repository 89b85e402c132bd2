package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Engine   EngineConfig
	OTEL     OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// EngineConfig holds experimentation engine settings
type EngineConfig struct {
	// AllocationMode controls how the traffic-allocation gate samples users:
	// "random" re-rolls on every eligibility check, "deterministic" keys the
	// roll by user id so ramp-up membership is stable across retries.
	AllocationMode string

	// GuardrailTolerance is the maximum relative degradation vs control a
	// guardrail metric may show and still pass (0.05 = 5%).
	GuardrailTolerance float64

	// ExperimentCacheTTL is how long cached experiment records stay fresh.
	ExperimentCacheTTL time.Duration

	// ResultsInterval is the period between background results recomputations.
	ResultsInterval time.Duration
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// AllocationMode values
const (
	AllocationModeRandom        = "random"
	AllocationModeDeterministic = "deterministic"
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "experiment_engine"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Engine: EngineConfig{
			AllocationMode:     getEnv("ENGINE_ALLOCATION_MODE", AllocationModeRandom),
			GuardrailTolerance: getEnvAsFloat("ENGINE_GUARDRAIL_TOLERANCE", 0.05),
			ExperimentCacheTTL: time.Duration(getEnvAsInt("ENGINE_EXPERIMENT_CACHE_TTL_SECONDS", 60)) * time.Second,
			ResultsInterval:    time.Duration(getEnvAsInt("ENGINE_RESULTS_INTERVAL_SECONDS", 300)) * time.Second,
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "experiment-engine"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if cfg.Engine.AllocationMode != AllocationModeRandom && cfg.Engine.AllocationMode != AllocationModeDeterministic {
		return nil, fmt.Errorf("invalid ENGINE_ALLOCATION_MODE %q", cfg.Engine.AllocationMode)
	}
	if cfg.Engine.GuardrailTolerance < 0 || cfg.Engine.GuardrailTolerance > 1 {
		return nil, fmt.Errorf("ENGINE_GUARDRAIL_TOLERANCE must be in [0,1], got %v", cfg.Engine.GuardrailTolerance)
	}

	return cfg, nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
