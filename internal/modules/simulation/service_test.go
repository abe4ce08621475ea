package simulation

import (
	"math"
	"testing"

	"github.com/quantfolio/backtester/internal/modules/dataset"
)

func TestTrainingSet(t *testing.T) {
	rows := []dataset.Row{
		{Date: day(1), Tic: "AAA", Close: 100, Features: map[string]float64{"x": 1}},
		{Date: day(1), Tic: "BBB", Close: 50, Features: map[string]float64{"x": 2}},
		{Date: day(2), Tic: "AAA", Close: 110, Features: map[string]float64{"x": 3}},
		{Date: day(2), Tic: "BBB", Close: 45, Features: map[string]float64{"x": 4}},
		{Date: day(3), Tic: "AAA", Close: 121, Features: map[string]float64{"x": 5}},
		{Date: day(3), Tic: "BBB", Close: 54, Features: map[string]float64{"x": 6}},
	}

	X, y, err := TrainingSet(dataset.NewPanel(rows), []string{"x"})
	if err != nil {
		t.Fatalf("TrainingSet() error: %v", err)
	}

	// Two forward steps over two tickers.
	if len(X) != 4 || len(y) != 4 {
		t.Fatalf("TrainingSet() = %d samples, want 4", len(y))
	}

	// First sample: AAA at day 1, target is the day-1 to day-2 return.
	if X[0][0] != 1 {
		t.Errorf("X[0] = %v, want feature 1", X[0])
	}
	if math.Abs(y[0]-0.1) > 1e-12 {
		t.Errorf("y[0] = %v, want 0.1", y[0])
	}
	// Second sample: BBB at day 1.
	if math.Abs(y[1]-(-0.1)) > 1e-12 {
		t.Errorf("y[1] = %v, want -0.1", y[1])
	}
}

func TestTrainingSetSkipsIncompleteRows(t *testing.T) {
	rows := []dataset.Row{
		{Date: day(1), Tic: "AAA", Close: 100, Features: map[string]float64{"x": 1}},
		{Date: day(1), Tic: "BBB", Close: 50, Features: map[string]float64{}}, // no feature
		{Date: day(2), Tic: "AAA", Close: 110, Features: map[string]float64{"x": 3}},
		{Date: day(2), Tic: "BBB", Close: 45, Features: map[string]float64{"x": 4}},
	}

	X, y, err := TrainingSet(dataset.NewPanel(rows), []string{"x"})
	if err != nil {
		t.Fatalf("TrainingSet() error: %v", err)
	}
	if len(X) != 1 || len(y) != 1 {
		t.Fatalf("TrainingSet() = %d samples, want 1", len(y))
	}
}

func TestTrainingSetErrors(t *testing.T) {
	oneDate := []dataset.Row{
		{Date: day(1), Tic: "AAA", Close: 100, Features: map[string]float64{"x": 1}},
	}
	if _, _, err := TrainingSet(dataset.NewPanel(oneDate), []string{"x"}); err == nil {
		t.Error("TrainingSet() on a single date should fail")
	}

	noFeatures := []dataset.Row{
		{Date: day(1), Tic: "AAA", Close: 100, Features: map[string]float64{}},
		{Date: day(2), Tic: "AAA", Close: 110, Features: map[string]float64{}},
	}
	if _, _, err := TrainingSet(dataset.NewPanel(noFeatures), []string{"x"}); err == nil {
		t.Error("TrainingSet() with no usable samples should fail")
	}
}
