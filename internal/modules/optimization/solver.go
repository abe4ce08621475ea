package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Solver finds portfolio weights maximizing
//
//	(w·mu − rf) / sqrt(wᵀΣw)  −  k · Σ|w − w_prev|
//
// over the box [MinWeight, MaxWeight]^n with Σw = 1. The transaction-cost
// term makes the problem nonconvex and non-smooth, so it is solved with a
// derivative-free method (Nelder-Mead) on a penalty-augmented objective,
// warm-started from the previous weights.
type Solver struct {
	settings Settings
	log      zerolog.Logger
}

// NewSolver creates a solver.
func NewSolver(settings Settings, log zerolog.Logger) *Solver {
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = DefaultSettings().MaxIterations
	}
	if settings.PenaltyWeight <= 0 {
		settings.PenaltyWeight = DefaultSettings().PenaltyWeight
	}
	if settings.MaxWeight <= settings.MinWeight {
		settings.MinWeight = 0
		settings.MaxWeight = 1
	}
	return &Solver{
		settings: settings,
		log:      log.With().Str("component", "optimizer").Logger(),
	}
}

// Solve returns the optimal weights for one step. prevWeights feeds both the
// transaction-cost term and the warm start; costRate is the k of the cost
// term. A solution violating the constraints beyond FeasibilityTol surfaces
// as ErrNotConverged, never as silently adjusted output.
func (s *Solver) Solve(mu []float64, sigma *mat.SymDense, tickers []string, prevWeights []float64, costRate float64) (*Result, error) {
	n := len(tickers)
	if err := validateInputs(mu, sigma, n, prevWeights, costRate); err != nil {
		return nil, err
	}

	objective := func(w []float64) float64 {
		return s.penalizedObjective(w, mu, sigma, prevWeights, costRate)
	}

	problem := optimize.Problem{Func: objective}
	initial := append([]float64(nil), prevWeights...)

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{
		MajorIterations: s.settings.MaxIterations,
	}, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConverged, err)
	}
	if result.Status != optimize.Success &&
		result.Status != optimize.FunctionConvergence &&
		result.Status != optimize.IterationLimit {
		return nil, fmt.Errorf("%w: solver status %v", ErrNotConverged, result.Status)
	}

	raw := result.X
	if violation := s.constraintViolation(raw); violation > FeasibilityTol {
		return nil, fmt.Errorf("%w: constraint violation %.2e exceeds %.0e",
			ErrNotConverged, violation, FeasibilityTol)
	}

	cleaned := s.clean(raw)
	weights := make(map[string]float64, n)
	for i, tic := range tickers {
		weights[tic] = cleaned[i]
	}

	s.log.Debug().
		Float64("objective", -result.F).
		Int("iterations", result.Stats.MajorIterations).
		Msg("Solved step weights")

	return &Result{
		Weights:   weights,
		Raw:       cleaned,
		Objective: -s.rawObjective(cleaned, mu, sigma, prevWeights, costRate),
	}, nil
}

// rawObjective is the minimized quantity without penalties: negative Sharpe
// plus the turnover cost.
func (s *Solver) rawObjective(w, mu []float64, sigma *mat.SymDense, prev []float64, costRate float64) float64 {
	var portReturn float64
	for i, wi := range w {
		portReturn += wi * mu[i]
	}

	wVec := mat.NewVecDense(len(w), w)
	var tmp mat.VecDense
	tmp.MulVec(sigma, wVec)
	variance := mat.Dot(wVec, &tmp)
	if variance < 1e-16 {
		variance = 1e-16
	}
	vol := math.Sqrt(variance)

	var turnover float64
	for i, wi := range w {
		turnover += math.Abs(wi - prev[i])
	}

	return -(portReturn-s.settings.RiskFreeRate)/vol + costRate*turnover
}

// penalizedObjective augments the raw objective with quadratic penalties for
// the sum-to-one and box constraints.
func (s *Solver) penalizedObjective(w, mu []float64, sigma *mat.SymDense, prev []float64, costRate float64) float64 {
	var sum float64
	for _, wi := range w {
		if math.IsNaN(wi) {
			return math.Inf(1)
		}
		sum += wi
	}

	penalty := (sum - 1) * (sum - 1)
	for _, wi := range w {
		if d := s.settings.MinWeight - wi; d > 0 {
			penalty += d * d
		}
		if d := wi - s.settings.MaxWeight; d > 0 {
			penalty += d * d
		}
	}

	return s.rawObjective(w, mu, sigma, prev, costRate) + s.settings.PenaltyWeight*penalty
}

// constraintViolation measures the worst constraint violation of a point.
func (s *Solver) constraintViolation(w []float64) float64 {
	var sum float64
	worst := 0.0
	for _, wi := range w {
		sum += wi
		if d := s.settings.MinWeight - wi; d > worst {
			worst = d
		}
		if d := wi - s.settings.MaxWeight; d > worst {
			worst = d
		}
	}
	if d := math.Abs(sum - 1); d > worst {
		worst = d
	}
	return worst
}

// clean projects an almost-feasible point onto the constraint set: clamp to
// the box, then renormalize to sum exactly one.
func (s *Solver) clean(w []float64) []float64 {
	out := make([]float64, len(w))
	var sum float64
	for i, wi := range w {
		clamped := math.Max(s.settings.MinWeight, math.Min(s.settings.MaxWeight, wi))
		out[i] = clamped
		sum += clamped
	}
	if sum > 0 {
		for i := range out {
			out[i] /= sum
		}
	}
	return out
}

// validateInputs rejects degenerate problems before the solver sees them.
func validateInputs(mu []float64, sigma *mat.SymDense, n int, prev []float64, costRate float64) error {
	if n == 0 {
		return fmt.Errorf("%w: no tickers", ErrBadInput)
	}
	if len(mu) != n {
		return fmt.Errorf("%w: %d expected returns for %d tickers", ErrBadInput, len(mu), n)
	}
	if len(prev) != n {
		return fmt.Errorf("%w: %d previous weights for %d tickers", ErrBadInput, len(prev), n)
	}
	if sigma == nil || sigma.SymmetricDim() != n {
		dim := 0
		if sigma != nil {
			dim = sigma.SymmetricDim()
		}
		return fmt.Errorf("%w: covariance is %dx%d for %d tickers", ErrBadInput, dim, dim, n)
	}
	if costRate < 0 {
		return fmt.Errorf("%w: negative transaction cost rate %f", ErrBadInput, costRate)
	}
	for i, v := range mu {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite expected return at index %d", ErrBadInput, i)
		}
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if v := sigma.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite covariance at (%d,%d)", ErrBadInput, i, j)
			}
		}
	}
	return nil
}
