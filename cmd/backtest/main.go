// Command backtest runs a single backtest from the command line and prints
// the run summary. Configuration comes from the environment, with flags
// overriding the panel and model locations.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/quantfolio/backtester/internal/config"
	"github.com/quantfolio/backtester/internal/database"
	"github.com/quantfolio/backtester/internal/events"
	"github.com/quantfolio/backtester/internal/modules/charts"
	"github.com/quantfolio/backtester/internal/modules/optimization"
	"github.com/quantfolio/backtester/internal/modules/simulation"
	"github.com/quantfolio/backtester/pkg/logger"
)

func main() {
	panelPath := flag.String("panel", "", "panel file (.csv or .json), overrides PANEL_PATH")
	modelPath := flag.String("model", "", "pre-fitted model file, overrides MODEL_PATH")
	chartPath := flag.String("chart", "", "write the equity curve PNG to this path")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *panelPath != "" {
		cfg.PanelPath = *panelPath
	}
	if *modelPath != "" {
		cfg.ModelPath = *modelPath
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	repo := simulation.NewRepository(db, log)

	optSettings := optimization.DefaultSettings()
	optSettings.RiskFreeRate = cfg.RiskFreeRate

	service := simulation.NewService(repo, events.NewManager(log), simulation.ServiceConfig{
		PanelPath:      cfg.PanelPath,
		HistoryDir:     cfg.HistoryDir,
		HistoryTickers: cfg.HistoryTickers,
		ModelPath:      cfg.ModelPath,
		FeatureColumns: cfg.FeatureColumns,
		Simulation: simulation.Config{
			InitialCapital:     cfg.InitialCapital,
			TransactionCostPct: cfg.TransactionCostPct,
			RiskFreeRate:       cfg.RiskFreeRate,
		},
		Optimization: optSettings,
	}, log)

	runID, result, err := service.RunBacktest()
	if err != nil {
		log.Fatal().Err(err).Int64("run_id", runID).Msg("Backtest failed")
	}

	printSummary(runID, result)

	if *chartPath != "" {
		img, err := charts.NewService(log).RenderEquityCurve(runID, result.AccountValues)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to render chart")
		}
		if err := os.WriteFile(*chartPath, img, 0644); err != nil {
			log.Fatal().Err(err).Msg("Failed to write chart file")
		}
		fmt.Printf("chart written to %s\n", *chartPath)
	}
}

func printSummary(runID int64, result *simulation.Result) {
	values := result.AccountValues
	first := values[0]
	last := values[len(values)-1]

	fmt.Printf("run #%d: %s .. %s (%d steps)\n",
		runID,
		first.Date.Format("2006-01-02"),
		last.Date.Format("2006-01-02"),
		len(result.History))
	fmt.Printf("  initial value:         %14.2f\n", first.Value)
	fmt.Printf("  final value:           %14.2f\n", last.Value)
	fmt.Printf("  cumulative return:     %13.2f%%\n", result.Summary.CumulativeReturn*100)
	fmt.Printf("  annualized volatility: %13.2f%%\n", result.Summary.AnnualizedVolatility*100)
	if result.Summary.SharpeRatio != nil {
		fmt.Printf("  sharpe ratio:          %14.3f\n", *result.Summary.SharpeRatio)
	}
	if result.Summary.MaxDrawdown != nil {
		fmt.Printf("  max drawdown:          %13.2f%%\n", *result.Summary.MaxDrawdown*100)
	}
}
