// Package agents provides the prediction models consumed by the backtest
// simulator. An Agent is the capability seam between the walk-forward loop
// and whatever fits the model: the loop only ever calls Predict on an
// already-fitted agent.
package agents

import "errors"

// ErrNotTrained is returned by Predict when the agent has no fitted model.
var ErrNotTrained = errors.New("agent is not trained")

// ErrNotTrainable is returned by Train on agents whose fitting happens in an
// external toolchain (only a dumped model is consumed here).
var ErrNotTrainable = errors.New("agent does not support in-process training")

// Agent is the capability interface for prediction models.
//
// Train fits the model on a feature matrix X (one row per observation) and a
// target vector y. Fitting failures are returned, never swallowed.
// Predict returns one value per row of X, in row order.
type Agent interface {
	Train(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
	Save(path string) error
	Load(path string) error
}
