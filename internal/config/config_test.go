package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != 8001 {
		t.Errorf("Port = %d, want 8001", cfg.Port)
	}
	if cfg.InitialCapital != 1_000_000 {
		t.Errorf("InitialCapital = %v, want 1000000", cfg.InitialCapital)
	}
	if cfg.TransactionCostPct != 0.001 {
		t.Errorf("TransactionCostPct = %v, want 0.001", cfg.TransactionCostPct)
	}
	if cfg.RiskFreeRate != 0.02 {
		t.Errorf("RiskFreeRate = %v, want 0.02", cfg.RiskFreeRate)
	}
	if len(cfg.FeatureColumns) != 4 {
		t.Errorf("FeatureColumns = %v, want the default indicator set", cfg.FeatureColumns)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("INITIAL_CAPITAL", "500000")
	t.Setenv("FEATURE_COLUMNS", "macd, rsi_30")
	t.Setenv("HISTORY_TICKERS", "AAA,BBB,CCC")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.InitialCapital != 500_000 {
		t.Errorf("InitialCapital = %v, want 500000", cfg.InitialCapital)
	}
	if len(cfg.FeatureColumns) != 2 || cfg.FeatureColumns[1] != "rsi_30" {
		t.Errorf("FeatureColumns = %v, want [macd rsi_30]", cfg.FeatureColumns)
	}
	if len(cfg.HistoryTickers) != 3 {
		t.Errorf("HistoryTickers = %v, want three tickers", cfg.HistoryTickers)
	}
	if !cfg.DevMode {
		t.Error("DevMode = false, want true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing database path", mutate: func(c *Config) { c.DatabasePath = "" }, wantErr: true},
		{name: "non-positive capital", mutate: func(c *Config) { c.InitialCapital = 0 }, wantErr: true},
		{name: "negative cost", mutate: func(c *Config) { c.TransactionCostPct = -0.01 }, wantErr: true},
		{name: "no feature columns", mutate: func(c *Config) { c.FeatureColumns = nil }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				DatabasePath:       "./data/backtests.db",
				InitialCapital:     1_000_000,
				TransactionCostPct: 0.001,
				FeatureColumns:     DefaultFeatureColumns,
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnvAsListIgnoresBlanks(t *testing.T) {
	t.Setenv("TEST_LIST", " a ,, b ,")
	got := getEnvAsList("TEST_LIST", nil)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("getEnvAsList() = %v, want [a b]", got)
	}
}
