// Package simulation drives the walk-forward backtest: for each trading
// date it estimates expected returns and risk, solves for new portfolio
// weights, and marks the simulated portfolio to market.
package simulation

import (
	"errors"
	"fmt"
	"time"

	"github.com/quantfolio/backtester/pkg/formulas"
)

// ErrEmptyCalendar reports a panel with no trading dates. Fatal, like every
// other data-integrity failure.
var ErrEmptyCalendar = errors.New("panel has an empty trading calendar")

// StepError wraps a failure at one walk-forward step with its position in
// the calendar, so a failed run names the failing date and step index.
type StepError struct {
	Step int
	Date time.Time
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Step, e.Date.Format("2006-01-02"), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// AccountValue is one point of the portfolio value series.
type AccountValue struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"account_value"`
}

// CoefficientEntry records one step's weights and predicted returns per
// ticker. Append-only; kept for diagnostics and reporting.
type CoefficientEntry struct {
	Date             time.Time          `json:"date"`
	Weights          map[string]float64 `json:"weights"`
	PredictedReturns map[string]float64 `json:"predicted_returns"`
}

// Summary aggregates performance statistics of a completed run.
type Summary struct {
	CumulativeReturn     float64  `json:"cumulative_return"`
	AnnualizedVolatility float64  `json:"annualized_volatility"`
	SharpeRatio          *float64 `json:"sharpe_ratio,omitempty"`
	MaxDrawdown          *float64 `json:"max_drawdown,omitempty"`
}

// Result is a completed simulation: the account-value table, the
// date × ticker coefficient history, and the summary.
type Result struct {
	AccountValues []AccountValue     `json:"account_values"`
	History       []CoefficientEntry `json:"history"`
	Summary       Summary            `json:"summary"`
}

// summarize computes the run summary from the value series.
func summarize(values []AccountValue, riskFreeRate float64) Summary {
	series := make([]float64, len(values))
	for i, v := range values {
		series[i] = v.Value
	}

	returns := formulas.CalculateReturns(series)
	return Summary{
		CumulativeReturn:     formulas.CumulativeReturn(series),
		AnnualizedVolatility: formulas.AnnualizedVolatility(returns),
		SharpeRatio:          formulas.CalculateSharpeFromValues(series, riskFreeRate),
		MaxDrawdown:          formulas.CalculateMaxDrawdown(series),
	}
}
