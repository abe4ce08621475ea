package estimation

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/backtester/internal/modules/dataset"
)

// stubPredictor returns the canned values regardless of input.
type stubPredictor struct {
	out []float64
	err error
}

func (s stubPredictor) Predict(X [][]float64) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.out != nil {
		return s.out, nil
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = row[0]
	}
	return out, nil
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func twoTickerPanel() *dataset.Panel {
	window1 := []float64{0.01, -0.02, 0.03}
	window2 := []float64{-0.01, 0.02, 0.01}

	var rows []dataset.Row
	for d := 1; d <= 3; d++ {
		rows = append(rows,
			dataset.Row{
				Date: day(d), Tic: "AAA", Close: 10 + float64(d),
				Features:     map[string]float64{"f1": 0.5, "f2": 1.0},
				ReturnWindow: window1,
			},
			dataset.Row{
				Date: day(d), Tic: "BBB", Close: 20 + float64(d),
				Features:     map[string]float64{"f1": -0.5, "f2": 2.0},
				ReturnWindow: window2,
			},
		)
	}
	return dataset.NewPanel(rows)
}

func TestEstimate(t *testing.T) {
	p := twoTickerPanel()
	e := New(stubPredictor{out: []float64{0.05, -0.01}}, []string{"f1", "f2"}, zerolog.Nop())

	inputs, err := e.Estimate(p, p.Calendar(), 0)
	if err != nil {
		t.Fatalf("Estimate() error: %v", err)
	}

	if len(inputs.Tickers) != 2 || inputs.Tickers[0] != "AAA" || inputs.Tickers[1] != "BBB" {
		t.Fatalf("Tickers = %v, want [AAA BBB]", inputs.Tickers)
	}
	if inputs.Mu[0] != 0.05 || inputs.Mu[1] != -0.01 {
		t.Errorf("Mu = %v, want [0.05 -0.01]", inputs.Mu)
	}
	if inputs.Sigma.SymmetricDim() != 2 {
		t.Fatalf("Sigma dimension = %d, want 2", inputs.Sigma.SymmetricDim())
	}

	// Diagonal entries are the sample variances of the return windows.
	wantVar := sampleVar([]float64{0.01, -0.02, 0.03})
	if math.Abs(inputs.Sigma.At(0, 0)-wantVar) > 1e-12 {
		t.Errorf("Sigma[0,0] = %v, want %v", inputs.Sigma.At(0, 0), wantVar)
	}
	if math.Abs(inputs.Sigma.At(0, 1)-inputs.Sigma.At(1, 0)) > 1e-15 {
		t.Error("Sigma not symmetric")
	}

	if len(inputs.Current) != 2 || len(inputs.Next) != 2 {
		t.Fatalf("cross-sections = %d/%d rows, want 2/2", len(inputs.Current), len(inputs.Next))
	}
	if !inputs.Next[0].Date.Equal(day(2)) {
		t.Errorf("Next slice date = %v, want %v", inputs.Next[0].Date, day(2))
	}
}

func TestEstimateIndexOutOfRange(t *testing.T) {
	p := twoTickerPanel()
	e := New(stubPredictor{}, []string{"f1"}, zerolog.Nop())

	calendar := p.Calendar()
	if _, err := e.Estimate(p, calendar, len(calendar)-1); err == nil {
		t.Error("Estimate() at the last date should fail, no next slice exists")
	}
	if _, err := e.Estimate(p, calendar, -1); err == nil {
		t.Error("Estimate() with negative index should fail")
	}
}

func TestEstimateTickerMismatch(t *testing.T) {
	rows := []dataset.Row{
		{Date: day(1), Tic: "AAA", Close: 10, Features: map[string]float64{"f1": 1}, ReturnWindow: []float64{0.01, 0.02}},
		{Date: day(1), Tic: "BBB", Close: 20, Features: map[string]float64{"f1": 1}, ReturnWindow: []float64{0.01, 0.02}},
		{Date: day(2), Tic: "AAA", Close: 11, Features: map[string]float64{"f1": 1}, ReturnWindow: []float64{0.01, 0.02}},
	}
	p := dataset.NewPanel(rows)
	e := New(stubPredictor{}, []string{"f1"}, zerolog.Nop())

	_, err := e.Estimate(p, p.Calendar(), 0)
	if !errors.Is(err, ErrTickerMismatch) {
		t.Errorf("Estimate() error = %v, want ErrTickerMismatch", err)
	}
}

func TestEstimateMissingFeature(t *testing.T) {
	p := twoTickerPanel()
	e := New(stubPredictor{}, []string{"f1", "absent"}, zerolog.Nop())

	_, err := e.Estimate(p, p.Calendar(), 0)
	if !errors.Is(err, ErrMissingFeature) {
		t.Errorf("Estimate() error = %v, want ErrMissingFeature", err)
	}
}

func TestEstimateShortReturnWindow(t *testing.T) {
	rows := []dataset.Row{
		{Date: day(1), Tic: "AAA", Close: 10, Features: map[string]float64{"f1": 1}, ReturnWindow: []float64{0.01}},
		{Date: day(2), Tic: "AAA", Close: 11, Features: map[string]float64{"f1": 1}, ReturnWindow: []float64{0.01}},
	}
	p := dataset.NewPanel(rows)
	e := New(stubPredictor{}, []string{"f1"}, zerolog.Nop())

	_, err := e.Estimate(p, p.Calendar(), 0)
	if !errors.Is(err, ErrNoReturnData) {
		t.Errorf("Estimate() error = %v, want ErrNoReturnData", err)
	}
}

func TestEstimatePredictorFailure(t *testing.T) {
	p := twoTickerPanel()
	predErr := errors.New("model exploded")
	e := New(stubPredictor{err: predErr}, []string{"f1"}, zerolog.Nop())

	_, err := e.Estimate(p, p.Calendar(), 0)
	if !errors.Is(err, predErr) {
		t.Errorf("Estimate() error = %v, want wrapped predictor error", err)
	}
}

func TestEstimateWrongPredictionCount(t *testing.T) {
	p := twoTickerPanel()
	e := New(stubPredictor{out: []float64{0.1}}, []string{"f1"}, zerolog.Nop())

	if _, err := e.Estimate(p, p.Calendar(), 0); err == nil {
		t.Error("Estimate() with short prediction vector should fail")
	}
}

func sampleVar(xs []float64) float64 {
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return ss / float64(len(xs)-1)
}
