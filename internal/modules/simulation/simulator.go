package simulation

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/backtester/internal/modules/dataset"
	"github.com/quantfolio/backtester/internal/modules/estimation"
	"github.com/quantfolio/backtester/internal/modules/optimization"
)

// Config holds the recognized simulation options.
type Config struct {
	InitialCapital     float64
	TransactionCostPct float64
	RiskFreeRate       float64
}

// Simulator runs walk-forward backtests. It is cheap to construct; all
// per-run state (value series, weight history) lives inside Run, so a
// simulator can be reused across runs.
type Simulator struct {
	estimator *estimation.Estimator
	solver    *optimization.Solver
	cfg       Config
	log       zerolog.Logger
}

// New creates a simulator.
func New(estimator *estimation.Estimator, solver *optimization.Solver, cfg Config, log zerolog.Logger) *Simulator {
	return &Simulator{
		estimator: estimator,
		solver:    solver,
		cfg:       cfg,
		log:       log.With().Str("component", "simulator").Logger(),
	}
}

// Run executes the walk-forward loop over the panel's calendar: N dates
// produce exactly N-1 steps. Any step failure aborts the run and discards
// the partial series; a truncated curve is never returned as a result.
func (s *Simulator) Run(panel *dataset.Panel) (*Result, error) {
	calendar := panel.Calendar()
	if len(calendar) == 0 {
		return nil, ErrEmptyCalendar
	}

	values := make([]AccountValue, 0, len(calendar))
	values = append(values, AccountValue{Date: calendar[0], Value: s.cfg.InitialCapital})

	// Equal-weight seed over the first cross-section.
	first := panel.Slice(calendar[0])
	if len(first) == 0 {
		return nil, fmt.Errorf("%w: no rows at first calendar date", ErrEmptyCalendar)
	}
	prevWeights := make([]float64, len(first))
	for i := range prevWeights {
		prevWeights[i] = 1 / float64(len(first))
	}

	history := make([]CoefficientEntry, 0, len(calendar)-1)

	for i := 0; i+1 < len(calendar); i++ {
		inputs, err := s.estimator.Estimate(panel, calendar, i)
		if err != nil {
			return nil, &StepError{Step: i, Date: calendar[i], Err: err}
		}

		if len(inputs.Tickers) != len(prevWeights) {
			return nil, &StepError{Step: i, Date: calendar[i], Err: fmt.Errorf(
				"cross-section of %d tickers does not match %d carried weights",
				len(inputs.Tickers), len(prevWeights))}
		}

		solved, err := s.solver.Solve(inputs.Mu, inputs.Sigma, inputs.Tickers, prevWeights, s.cfg.TransactionCostPct)
		if err != nil {
			return nil, &StepError{Step: i, Date: calendar[i], Err: err}
		}

		history = append(history, coefficientEntry(calendar[i], inputs, solved))

		nextValue, err := markToMarket(solved.Raw, values[i].Value, inputs.Current, inputs.Next)
		if err != nil {
			return nil, &StepError{Step: i, Date: calendar[i], Err: err}
		}
		values = append(values, AccountValue{Date: calendar[i+1], Value: nextValue})

		prevWeights = solved.Raw

		s.log.Debug().
			Int("step", i).
			Time("date", calendar[i]).
			Float64("value", nextValue).
			Msg("Committed step")
	}

	result := &Result{
		AccountValues: values,
		History:       history,
		Summary:       summarize(values, s.cfg.RiskFreeRate),
	}

	s.log.Info().
		Int("steps", len(history)).
		Float64("final_value", values[len(values)-1].Value).
		Float64("cumulative_return", result.Summary.CumulativeReturn).
		Msg("Simulation complete")

	return result, nil
}

// markToMarket converts weights into share counts at current prices and
// values those shares at next-period prices:
//
//	shares_i = (w_i × value) / close_i
//	value'   = Σ shares_i × close'_i
func markToMarket(weights []float64, value float64, current, next []dataset.Row) (float64, error) {
	var total float64
	for i, w := range weights {
		if current[i].Close <= 0 {
			return 0, fmt.Errorf("non-positive close price %f for ticker %s", current[i].Close, current[i].Tic)
		}
		shares := w * value / current[i].Close
		total += shares * next[i].Close
	}
	return total, nil
}

// coefficientEntry snapshots one step's weights and predictions.
func coefficientEntry(date time.Time, inputs *estimation.Inputs, solved *optimization.Result) CoefficientEntry {
	predicted := make(map[string]float64, len(inputs.Tickers))
	for i, tic := range inputs.Tickers {
		predicted[tic] = inputs.Mu[i]
	}
	return CoefficientEntry{
		Date:             date,
		Weights:          solved.Weights,
		PredictedReturns: predicted,
	}
}
