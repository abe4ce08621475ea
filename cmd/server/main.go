package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/backtester/internal/config"
	"github.com/quantfolio/backtester/internal/database"
	"github.com/quantfolio/backtester/internal/events"
	"github.com/quantfolio/backtester/internal/modules/charts"
	"github.com/quantfolio/backtester/internal/modules/optimization"
	"github.com/quantfolio/backtester/internal/modules/simulation"
	"github.com/quantfolio/backtester/internal/scheduler"
	"github.com/quantfolio/backtester/internal/server"
	"github.com/quantfolio/backtester/pkg/logger"
)

func main() {
	// Load configuration first so the log level is configurable
	cfg, err := config.Load()
	if err != nil {
		bootstrap := logger.New(logger.Config{Level: "info", Pretty: true})
		bootstrap.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting backtester")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Wire the backtest pipeline
	repo := simulation.NewRepository(db, log)
	service := newSimulationService(repo, cfg, log)
	chartSvc := charts.NewService(log)
	backtestHandler := simulation.NewHandler(service, repo, chartSvc, log)

	// Initialize scheduler
	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	// Register background jobs
	if err := registerJobs(sched, service, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:     cfg.Port,
		Log:      log,
		DB:       db,
		Config:   cfg,
		Backtest: backtestHandler,
		DevMode:  cfg.DevMode,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func newSimulationService(repo *simulation.Repository, cfg *config.Config, log zerolog.Logger) *simulation.Service {
	optSettings := optimization.DefaultSettings()
	optSettings.RiskFreeRate = cfg.RiskFreeRate

	return simulation.NewService(repo, events.NewManager(log), simulation.ServiceConfig{
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
}

func registerJobs(sched *scheduler.Scheduler, service *simulation.Service, cfg *config.Config, log zerolog.Logger) error {
	if cfg.BacktestSchedule == "" {
		log.Info().Msg("No backtest schedule configured, skipping job registration")
		return nil
	}
	return sched.AddJob(cfg.BacktestSchedule, scheduler.NewBacktestJob(service, log))
}
