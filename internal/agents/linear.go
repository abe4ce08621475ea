package agents

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// LinearAgent is a least-squares regression agent. With a positive Ridge
// parameter it solves the L2-regularized problem instead (the intercept is
// never penalized).
type LinearAgent struct {
	// Ridge is the L2 regularization strength. Zero means plain OLS.
	Ridge float64

	coefficients []float64 // [intercept, w1, ..., wn]
}

// NewLinearAgent creates an untrained OLS agent.
func NewLinearAgent() *LinearAgent {
	return &LinearAgent{}
}

// Train fits the model via QR decomposition of the design matrix.
func (a *LinearAgent) Train(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("training requires at least one observation")
	}
	if len(X) != len(y) {
		return fmt.Errorf("feature matrix has %d rows but target has %d values", len(X), len(y))
	}

	nFeatures := len(X[0])
	for i, row := range X {
		if len(row) != nFeatures {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), nFeatures)
		}
	}

	nRows := len(X)
	nCols := nFeatures + 1 // leading intercept column

	// Ridge augmentation: sqrt(lambda) identity rows with zero targets.
	augRows := nRows
	if a.Ridge > 0 {
		augRows += nFeatures
	}

	design := mat.NewDense(augRows, nCols, nil)
	target := mat.NewVecDense(augRows, nil)
	for i, row := range X {
		design.Set(i, 0, 1)
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("non-finite feature value at row %d column %d", i, j)
			}
			design.Set(i, j+1, v)
		}
		target.SetVec(i, y[i])
	}
	if a.Ridge > 0 {
		penalty := math.Sqrt(a.Ridge)
		for j := 0; j < nFeatures; j++ {
			design.Set(nRows+j, j+1, penalty)
		}
	}

	var qr mat.QR
	qr.Factorize(design)

	beta := mat.NewDense(nCols, 1, nil)
	if err := qr.SolveTo(beta, false, target); err != nil {
		return fmt.Errorf("least squares solve failed: %w", err)
	}

	a.coefficients = make([]float64, nCols)
	for j := 0; j < nCols; j++ {
		a.coefficients[j] = beta.At(j, 0)
	}
	return nil
}

// Predict returns one fitted value per row of X.
func (a *LinearAgent) Predict(X [][]float64) ([]float64, error) {
	if a.coefficients == nil {
		return nil, ErrNotTrained
	}

	nFeatures := len(a.coefficients) - 1
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != nFeatures {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), nFeatures)
		}
		pred := a.coefficients[0]
		for j, v := range row {
			pred += a.coefficients[j+1] * v
		}
		out[i] = pred
	}
	return out, nil
}

// linearModelFile is the on-disk representation of a fitted linear agent.
type linearModelFile struct {
	Ridge        float64   `json:"ridge"`
	Coefficients []float64 `json:"coefficients"`
}

// Save writes the fitted coefficients as JSON.
func (a *LinearAgent) Save(path string) error {
	if a.coefficients == nil {
		return ErrNotTrained
	}

	data, err := json.MarshalIndent(linearModelFile{
		Ridge:        a.Ridge,
		Coefficients: a.coefficients,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize model: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	return nil
}

// Load reads previously saved coefficients.
func (a *LinearAgent) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model file: %w", err)
	}

	var file linearModelFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse model file: %w", err)
	}
	if len(file.Coefficients) < 2 {
		return fmt.Errorf("model file %s holds no usable coefficients", path)
	}

	a.Ridge = file.Ridge
	a.coefficients = file.Coefficients
	return nil
}
