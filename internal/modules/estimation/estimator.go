// Package estimation produces the per-step inputs of the walk-forward loop:
// expected returns from the injected prediction model and a sample
// covariance matrix from the tickers' trailing return windows.
package estimation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/quantfolio/backtester/internal/modules/dataset"
)

// Data-integrity errors. All of them are fatal for a run.
var (
	ErrTickerMismatch = errors.New("ticker sets differ between consecutive date slices")
	ErrMissingFeature = errors.New("feature column missing from panel row")
	ErrNoReturnData   = errors.New("insufficient return history for covariance estimation")
)

// Predictor is the prediction capability consumed per step. Satisfied by
// any fitted agents.Agent.
type Predictor interface {
	Predict(X [][]float64) ([]float64, error)
}

// Inputs is everything one optimization step needs.
type Inputs struct {
	Mu      []float64     // expected return per ticker, in Tickers order
	Sigma   *mat.SymDense // sample covariance across tickers
	Tickers []string
	Current []dataset.Row // cross-section at calendar[i]
	Next    []dataset.Row // cross-section at calendar[i+1]
}

// Estimator computes Inputs for each step. It holds no per-run state: the
// injected model is read-only during prediction.
type Estimator struct {
	predictor   Predictor
	featureCols []string
	log         zerolog.Logger
}

// New creates an estimator over a fitted predictor.
func New(predictor Predictor, featureCols []string, log zerolog.Logger) *Estimator {
	return &Estimator{
		predictor:   predictor,
		featureCols: featureCols,
		log:         log.With().Str("component", "estimator").Logger(),
	}
}

// Estimate builds the step inputs for calendar index i. The current and next
// cross-sections must carry the same ticker set; a mismatch is a
// data-integrity error, not something to paper over.
func (e *Estimator) Estimate(p *dataset.Panel, calendar []time.Time, i int) (*Inputs, error) {
	if i < 0 || i+1 >= len(calendar) {
		return nil, fmt.Errorf("step index %d out of range for calendar of %d dates", i, len(calendar))
	}

	current := p.Slice(calendar[i])
	next := p.Slice(calendar[i+1])

	if err := checkTickerAlignment(current, next); err != nil {
		return nil, err
	}

	tickers := make([]string, len(current))
	for j, row := range current {
		tickers[j] = row.Tic
	}

	features, err := e.featureMatrix(current)
	if err != nil {
		return nil, err
	}

	mu, err := e.predictor.Predict(features)
	if err != nil {
		return nil, fmt.Errorf("model prediction failed: %w", err)
	}
	if len(mu) != len(tickers) {
		return nil, fmt.Errorf("model returned %d predictions for %d tickers", len(mu), len(tickers))
	}

	sigma, err := sampleCovariance(current)
	if err != nil {
		return nil, err
	}

	e.log.Debug().
		Time("date", calendar[i]).
		Int("tickers", len(tickers)).
		Msg("Estimated step inputs")

	return &Inputs{
		Mu:      mu,
		Sigma:   sigma,
		Tickers: tickers,
		Current: current,
		Next:    next,
	}, nil
}

// featureMatrix extracts the configured feature columns in row order.
func (e *Estimator) featureMatrix(slice []dataset.Row) ([][]float64, error) {
	X := make([][]float64, len(slice))
	for i, row := range slice {
		vec := make([]float64, len(e.featureCols))
		for j, col := range e.featureCols {
			v, ok := row.Features[col]
			if !ok {
				return nil, fmt.Errorf("%w: %q (ticker %s)", ErrMissingFeature, col, row.Tic)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("non-finite value in feature %q for ticker %s", col, row.Tic)
			}
			vec[j] = v
		}
		X[i] = vec
	}
	return X, nil
}

// sampleCovariance computes the sample covariance matrix across tickers from
// their aligned trailing return windows. Symmetric and positive-semidefinite
// by construction.
func sampleCovariance(slice []dataset.Row) (*mat.SymDense, error) {
	n := len(slice)
	if n == 0 {
		return nil, ErrNoReturnData
	}

	T := len(slice[0].ReturnWindow)
	if T < 2 {
		return nil, fmt.Errorf("%w: window of %d observations for ticker %s", ErrNoReturnData, T, slice[0].Tic)
	}
	for _, row := range slice {
		if len(row.ReturnWindow) != T {
			return nil, fmt.Errorf("%w: ticker %s has window of %d observations, expected %d",
				ErrNoReturnData, row.Tic, len(row.ReturnWindow), T)
		}
	}

	// Observation matrix: T time points × n tickers.
	obs := mat.NewDense(T, n, nil)
	for j, row := range slice {
		for t, r := range row.ReturnWindow {
			obs.Set(t, j, r)
		}
	}

	sigma := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(sigma, obs, nil)
	return sigma, nil
}

// checkTickerAlignment verifies the two cross-sections hold the same tickers
// in the same cardinality.
func checkTickerAlignment(current, next []dataset.Row) error {
	if len(current) == 0 {
		return fmt.Errorf("%w: empty current cross-section", ErrTickerMismatch)
	}
	if len(current) != len(next) {
		return fmt.Errorf("%w: %d tickers now, %d next", ErrTickerMismatch, len(current), len(next))
	}
	for i := range current {
		if current[i].Tic != next[i].Tic {
			return fmt.Errorf("%w: %q now vs %q next at position %d",
				ErrTickerMismatch, current[i].Tic, next[i].Tic, i)
		}
	}
	return nil
}
