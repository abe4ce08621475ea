package agents

import (
	"fmt"

	xgb "github.com/Elvenson/xgboost-go"
	"github.com/Elvenson/xgboost-go/activation"
	"github.com/Elvenson/xgboost-go/inference"
	xgbmat "github.com/Elvenson/xgboost-go/mat"
)

// XGBAgent predicts with a gradient-boosted-tree ensemble dumped from the
// XGBoost toolchain (json dump format). Fitting happens outside this
// process; Train always returns ErrNotTrainable.
type XGBAgent struct {
	// BaseScore is the global bias of the dumped model (XGBoost base_score).
	BaseScore float32

	ensemble *inference.Ensemble
}

// NewXGBAgent creates an agent with the default XGBoost base score.
func NewXGBAgent() *XGBAgent {
	return &XGBAgent{BaseScore: 0.5}
}

// Train is unsupported: the ensemble is fitted by the external toolchain.
func (a *XGBAgent) Train(X [][]float64, y []float64) error {
	return ErrNotTrainable
}

// Predict runs regression inference over the feature matrix.
func (a *XGBAgent) Predict(X [][]float64) ([]float64, error) {
	if a.ensemble == nil {
		return nil, ErrNotTrained
	}

	input := xgbmat.SparseMatrix{Vectors: make([]xgbmat.SparseVector, len(X))}
	for i, row := range X {
		vec := make(xgbmat.SparseVector, len(row))
		for j, v := range row {
			vec[j] = float32(v)
		}
		input.Vectors[i] = vec
	}

	result, err := a.ensemble.PredictRegression(input, a.BaseScore)
	if err != nil {
		return nil, fmt.Errorf("xgboost inference failed: %w", err)
	}
	if len(result.Vectors) != len(X) {
		return nil, fmt.Errorf("xgboost returned %d predictions for %d rows", len(result.Vectors), len(X))
	}

	out := make([]float64, len(X))
	for i, vec := range result.Vectors {
		if len(*vec) == 0 {
			return nil, fmt.Errorf("xgboost returned an empty prediction for row %d", i)
		}
		out[i] = float64((*vec)[0])
	}
	return out, nil
}

// Save is unsupported: the model file of record is the toolchain's dump.
func (a *XGBAgent) Save(path string) error {
	return ErrNotTrainable
}

// Load reads an XGBoost json model dump.
func (a *XGBAgent) Load(path string) error {
	ensemble, err := xgb.LoadXGBoostFromJSON(path, "", 1, 0, &activation.Raw{})
	if err != nil {
		return fmt.Errorf("failed to load xgboost model: %w", err)
	}
	a.ensemble = ensemble
	return nil
}
