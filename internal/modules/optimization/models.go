// Package optimization solves the per-step portfolio weight problem:
// maximize a Sharpe-ratio objective net of transaction costs, subject to
// box constraints and full investment.
package optimization

import "errors"

// Solver errors.
var (
	// ErrNotConverged reports that the solver finished without a feasible
	// point within tolerance. Callers treat it as fatal for the run; there
	// is no silent fallback.
	ErrNotConverged = errors.New("optimization did not converge to a feasible point")

	// ErrBadInput reports degenerate inputs (dimension mismatches,
	// non-finite values) detected before solving.
	ErrBadInput = errors.New("degenerate optimizer input")
)

// Tolerances. The feasibility tolerance bounds constraint violation of the
// raw solver point; accepted solutions are then cleaned onto the simplex, so
// reported weights sum to one within floating-point error.
const (
	FeasibilityTol = 1e-3
	WeightTol      = 1e-6
)

// Settings contains optimizer configuration.
type Settings struct {
	MinWeight     float64 // lower box bound per asset, default 0
	MaxWeight     float64 // upper box bound per asset, default 1
	RiskFreeRate  float64 // annual, as decimal
	MaxIterations int     // bound on solver iterations
	PenaltyWeight float64 // constraint penalty multiplier
}

// DefaultSettings mirrors the box [0, 1] of the classic long-only problem.
func DefaultSettings() Settings {
	return Settings{
		MinWeight:     0,
		MaxWeight:     1,
		RiskFreeRate:  0.02,
		MaxIterations: 20000,
		PenaltyWeight: 1e6,
	}
}

// Result is a solved weight allocation.
type Result struct {
	Weights   map[string]float64 // ticker → weight, sums to 1
	Raw       []float64          // weights in input ticker order
	Objective float64            // achieved objective value (pre-penalty)
}
