package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultFeatureColumns is the feature set used when FEATURE_COLUMNS is not set.
// These match the indicator columns produced by the dataset enricher.
var DefaultFeatureColumns = []string{"macd", "rsi_30", "cci_30", "dx_30"}

// Config holds application configuration
type Config struct {
	DatabasePath       string
	HistoryDir         string
	HistoryTickers     []string
	PanelPath          string
	ModelPath          string
	InitialCapital     float64
	TransactionCostPct float64
	FeatureColumns     []string
	RiskFreeRate       float64
	LogLevel           string
	Port               int
	DevMode            bool
	BacktestSchedule   string // cron expression; empty disables the scheduled run
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnvAsInt("PORT", 8001),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		DatabasePath:       getEnv("DATABASE_PATH", "./data/backtests.db"),
		HistoryDir:         getEnv("HISTORY_DIR", "./data/history"),
		HistoryTickers:     getEnvAsList("HISTORY_TICKERS", nil),
		PanelPath:          getEnv("PANEL_PATH", ""),
		ModelPath:          getEnv("MODEL_PATH", ""),
		InitialCapital:     getEnvAsFloat("INITIAL_CAPITAL", 1_000_000),
		TransactionCostPct: getEnvAsFloat("TRANSACTION_COST_PCT", 0.001),
		FeatureColumns:     getEnvAsList("FEATURE_COLUMNS", DefaultFeatureColumns),
		RiskFreeRate:       getEnvAsFloat("RISK_FREE_RATE", 0.02),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		BacktestSchedule:   getEnv("BACKTEST_SCHEDULE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("INITIAL_CAPITAL must be positive, got %f", c.InitialCapital)
	}
	if c.TransactionCostPct < 0 {
		return fmt.Errorf("TRANSACTION_COST_PCT must not be negative, got %f", c.TransactionCostPct)
	}
	if len(c.FeatureColumns) == 0 {
		return fmt.Errorf("FEATURE_COLUMNS must name at least one column")
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

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
