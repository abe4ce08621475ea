package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/quantfolio/backtester/internal/modules/simulation"
)

// BacktestJob re-runs the configured backtest on a schedule, so freshly
// appended panel data gets evaluated without a manual trigger.
type BacktestJob struct {
	service *simulation.Service
	log     zerolog.Logger
}

// NewBacktestJob creates a scheduled backtest job.
func NewBacktestJob(service *simulation.Service, log zerolog.Logger) *BacktestJob {
	return &BacktestJob{
		service: service,
		log:     log.With().Str("job", "backtest").Logger(),
	}
}

// Name returns the job name.
func (j *BacktestJob) Name() string {
	return "backtest"
}

// Run executes one backtest. Failures are already persisted on the run row;
// the returned error surfaces them in the scheduler log as well.
func (j *BacktestJob) Run() error {
	runID, result, err := j.service.RunBacktest()
	if err != nil {
		return err
	}

	j.log.Info().
		Int64("run_id", runID).
		Float64("cumulative_return", result.Summary.CumulativeReturn).
		Msg("Scheduled backtest completed")
	return nil
}
