package simulation

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/backtester/internal/database"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "backtests.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return NewRepository(db, zerolog.Nop())
}

func sampleResult() *Result {
	sharpe := 1.25
	maxDD := 0.08
	return &Result{
		AccountValues: []AccountValue{
			{Date: day(1), Value: 1_000_000},
			{Date: day(2), Value: 1_050_000},
			{Date: day(3), Value: 1_030_000},
		},
		History: []CoefficientEntry{
			{
				Date:             day(1),
				Weights:          map[string]float64{"AAA": 0.6, "BBB": 0.4},
				PredictedReturns: map[string]float64{"AAA": 0.05, "BBB": 0.01},
			},
			{
				Date:             day(2),
				Weights:          map[string]float64{"AAA": 0.55, "BBB": 0.45},
				PredictedReturns: map[string]float64{"AAA": 0.04, "BBB": 0.02},
			},
		},
		Summary: Summary{
			CumulativeReturn:     0.03,
			AnnualizedVolatility: 0.21,
			SharpeRatio:          &sharpe,
			MaxDrawdown:          &maxDD,
		},
	}
}

func TestRepositoryRunLifecycle(t *testing.T) {
	repo := newTestRepo(t)

	runID, err := repo.CreateRun(1_000_000, 0.001)
	if err != nil {
		t.Fatalf("CreateRun() error: %v", err)
	}

	run, err := repo.GetRun(runID)
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if run.Status != StatusRunning {
		t.Errorf("new run status = %q, want %q", run.Status, StatusRunning)
	}
	if run.InitialCapital != 1_000_000 || run.TransactionCostPct != 0.001 {
		t.Errorf("run parameters = %v/%v, want 1000000/0.001", run.InitialCapital, run.TransactionCostPct)
	}

	if err := repo.SaveResult(runID, sampleResult()); err != nil {
		t.Fatalf("SaveResult() error: %v", err)
	}

	run, err = repo.GetRun(runID)
	if err != nil {
		t.Fatalf("GetRun() after save error: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Errorf("run status = %q, want %q", run.Status, StatusCompleted)
	}
	if run.CumulativeReturn == nil || *run.CumulativeReturn != 0.03 {
		t.Errorf("CumulativeReturn = %v, want 0.03", run.CumulativeReturn)
	}
	if run.SharpeRatio == nil || *run.SharpeRatio != 1.25 {
		t.Errorf("SharpeRatio = %v, want 1.25", run.SharpeRatio)
	}
}

func TestRepositorySeriesRoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	runID, err := repo.CreateRun(1_000_000, 0.001)
	if err != nil {
		t.Fatalf("CreateRun() error: %v", err)
	}
	if err := repo.SaveResult(runID, sampleResult()); err != nil {
		t.Fatalf("SaveResult() error: %v", err)
	}

	values, err := repo.GetAccountValues(runID)
	if err != nil {
		t.Fatalf("GetAccountValues() error: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("got %d account values, want 3", len(values))
	}
	for i := 1; i < len(values); i++ {
		if values[i].Date.Before(values[i-1].Date) {
			t.Fatal("account values not in date order")
		}
	}
	if values[1].Value != 1_050_000 {
		t.Errorf("values[1] = %v, want 1050000", values[1].Value)
	}

	history, err := repo.GetWeightHistory(runID)
	if err != nil {
		t.Fatalf("GetWeightHistory() error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d history entries, want 2", len(history))
	}
	first := history[0]
	if !first.Date.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first history date = %v", first.Date)
	}
	if first.Weights["AAA"] != 0.6 || first.PredictedReturns["BBB"] != 0.01 {
		t.Errorf("first history entry = %+v", first)
	}
}

func TestRepositoryMarkFailed(t *testing.T) {
	repo := newTestRepo(t)

	runID, err := repo.CreateRun(1_000_000, 0.001)
	if err != nil {
		t.Fatalf("CreateRun() error: %v", err)
	}
	if err := repo.MarkFailed(runID, errors.New("step 2 (2024-02-03): boom")); err != nil {
		t.Fatalf("MarkFailed() error: %v", err)
	}

	run, err := repo.GetRun(runID)
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if run.Status != StatusFailed {
		t.Errorf("status = %q, want %q", run.Status, StatusFailed)
	}
	if run.Error == "" {
		t.Error("failed run carries no error message")
	}

	// A failed run must not own any series rows.
	values, err := repo.GetAccountValues(runID)
	if err != nil {
		t.Fatalf("GetAccountValues() error: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("failed run has %d account values, want 0", len(values))
	}
}

func TestRepositoryGetRunNotFound(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.GetRun(12345); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestRepositoryListRunsNewestFirst(t *testing.T) {
	repo := newTestRepo(t)

	first, _ := repo.CreateRun(1_000_000, 0.001)
	second, _ := repo.CreateRun(2_000_000, 0.002)

	runs, err := repo.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns() error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns() returned %d runs, want 2", len(runs))
	}
	if runs[0].ID != second || runs[1].ID != first {
		t.Errorf("ListRuns() order = [%d %d], want [%d %d]", runs[0].ID, runs[1].ID, second, first)
	}
}
