// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the run store (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool
	Engine    EngineConfig
	Archive   ArchiveConfig
	// MaintenanceSchedule is a six-field cron expression (with seconds).
	MaintenanceSchedule string
	RunRetentionDays    int
}

// EngineConfig holds the defaults applied to submitted problems.
type EngineConfig struct {
	MaxIterations        int
	Tolerance            float64
	RefinementIterations int
	ScoreThreshold       float64
	LearningRate         float64
	Shots                int
	Workers              int
	Seed                 uint64
}

// ArchiveConfig holds the S3-compatible report archive settings.
type ArchiveConfig struct {
	Enabled         bool
	Bucket          string
	Endpoint        string // Empty for AWS, set for R2/MinIO
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PHASELOCK_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", true),
		Port:      getEnvAsInt("PORT", 8080),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		Engine: EngineConfig{
			MaxIterations:        getEnvAsInt("ENGINE_MAX_ITERATIONS", 100),
			Tolerance:            getEnvAsFloat("ENGINE_TOLERANCE", 0.01),
			RefinementIterations: getEnvAsInt("ENGINE_REFINEMENT_ITERATIONS", 20),
			ScoreThreshold:       getEnvAsFloat("ENGINE_SCORE_THRESHOLD", 80),
			LearningRate:         getEnvAsFloat("ENGINE_LEARNING_RATE", 0.1),
			Shots:                getEnvAsInt("ENGINE_SHOTS", 1000),
			Workers:              getEnvAsInt("ENGINE_WORKERS", runtime.GOMAXPROCS(0)),
			Seed:                 uint64(getEnvAsInt("ENGINE_SEED", 42)),
		},
		Archive: ArchiveConfig{
			Enabled:         getEnvAsBool("ARCHIVE_ENABLED", false),
			Bucket:          getEnv("ARCHIVE_BUCKET", ""),
			Endpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
			Region:          getEnv("ARCHIVE_REGION", "auto"),
			AccessKeyID:     getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("ARCHIVE_PREFIX", "reports"),
		},
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 0 3 * * *"),
		RunRetentionDays:    getEnvAsInt("RUN_RETENTION_DAYS", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the engine defaults and the archive settings
func (c *Config) Validate() error {
	e := c.Engine
	if e.MaxIterations <= 0 {
		return fmt.Errorf("ENGINE_MAX_ITERATIONS must be positive, got %d", e.MaxIterations)
	}
	if e.RefinementIterations <= 0 {
		return fmt.Errorf("ENGINE_REFINEMENT_ITERATIONS must be positive, got %d", e.RefinementIterations)
	}
	if e.Tolerance <= 0 {
		return fmt.Errorf("ENGINE_TOLERANCE must be positive, got %v", e.Tolerance)
	}
	if e.ScoreThreshold < 0 || e.ScoreThreshold > 100 {
		return fmt.Errorf("ENGINE_SCORE_THRESHOLD must be in [0,100], got %v", e.ScoreThreshold)
	}
	if e.LearningRate <= 0 {
		return fmt.Errorf("ENGINE_LEARNING_RATE must be positive, got %v", e.LearningRate)
	}
	if e.Shots <= 0 {
		return fmt.Errorf("ENGINE_SHOTS must be positive, got %d", e.Shots)
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("ARCHIVE_BUCKET is required when the archive is enabled")
	}
	if c.RunRetentionDays <= 0 {
		return fmt.Errorf("RUN_RETENTION_DAYS must be positive, got %d", c.RunRetentionDays)
	}
	return nil
}

// Helper functions
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
