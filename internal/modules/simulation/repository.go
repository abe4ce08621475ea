package simulation

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/backtester/internal/database"
	"github.com/quantfolio/backtester/internal/modules/dataset"
)

// ErrRunNotFound reports a lookup for a run id with no stored row.
var ErrRunNotFound = errors.New("backtest run not found")

// RunStatus values stored in backtest_runs.status.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one stored backtest run.
type Run struct {
	ID                   int64     `json:"id"`
	CreatedAt            time.Time `json:"created_at"`
	InitialCapital       float64   `json:"initial_capital"`
	TransactionCostPct   float64   `json:"transaction_cost_pct"`
	Status               string    `json:"status"`
	Error                string    `json:"error,omitempty"`
	CumulativeReturn     *float64  `json:"cumulative_return,omitempty"`
	SharpeRatio          *float64  `json:"sharpe_ratio,omitempty"`
	MaxDrawdown          *float64  `json:"max_drawdown,omitempty"`
	AnnualizedVolatility *float64  `json:"annualized_volatility,omitempty"`
}

// Repository persists backtest runs and their series.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new simulation repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "simulation").Logger(),
	}
}

// CreateRun inserts a new run in running state and returns its id.
func (r *Repository) CreateRun(initialCapital, transactionCostPct float64) (int64, error) {
	query := `
		INSERT INTO backtest_runs (created_at, initial_capital, transaction_cost_pct, status)
		VALUES (?, ?, ?, ?)
	`

	result, err := r.db.Exec(query, time.Now().UTC().Format(time.RFC3339), initialCapital, transactionCostPct, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	r.log.Info().Int64("run_id", id).Msg("Backtest run created")
	return id, nil
}

// SaveResult stores a completed run: summary columns plus the full
// account-value and weight-history series, in one transaction.
func (r *Repository) SaveResult(runID int64, result *Result) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		UPDATE backtest_runs SET
			status = ?,
			cumulative_return = ?,
			sharpe_ratio = ?,
			max_drawdown = ?,
			annualized_volatility = ?
		WHERE id = ?
	`, StatusCompleted,
		result.Summary.CumulativeReturn,
		nullableFloat(result.Summary.SharpeRatio),
		nullableFloat(result.Summary.MaxDrawdown),
		result.Summary.AnnualizedVolatility,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run summary: %w", err)
	}

	valueStmt, err := tx.Prepare(`
		INSERT INTO account_values (run_id, date, account_value) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare account value insert: %w", err)
	}
	defer valueStmt.Close()

	for _, av := range result.AccountValues {
		if _, err := valueStmt.Exec(runID, av.Date.Format(dataset.DateLayout), av.Value); err != nil {
			return fmt.Errorf("failed to insert account value for %s: %w", av.Date.Format(dataset.DateLayout), err)
		}
	}

	weightStmt, err := tx.Prepare(`
		INSERT INTO weight_history (run_id, date, tic, weight, predicted_y) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare weight insert: %w", err)
	}
	defer weightStmt.Close()

	for _, entry := range result.History {
		date := entry.Date.Format(dataset.DateLayout)
		tics := make([]string, 0, len(entry.Weights))
		for tic := range entry.Weights {
			tics = append(tics, tic)
		}
		sort.Strings(tics)
		for _, tic := range tics {
			if _, err := weightStmt.Exec(runID, date, tic, entry.Weights[tic], entry.PredictedReturns[tic]); err != nil {
				return fmt.Errorf("failed to insert weight for %s/%s: %w", date, tic, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run result: %w", err)
	}

	r.log.Info().
		Int64("run_id", runID).
		Int("account_values", len(result.AccountValues)).
		Int("history_entries", len(result.History)).
		Msg("Backtest result saved")
	return nil
}

// MarkFailed records a failed run. Only the run row is touched; no partial
// series rows are ever written.
func (r *Repository) MarkFailed(runID int64, runErr error) error {
	_, err := r.db.Exec(
		"UPDATE backtest_runs SET status = ?, error = ? WHERE id = ?",
		StatusFailed, runErr.Error(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark run failed: %w", err)
	}

	r.log.Warn().Int64("run_id", runID).Err(runErr).Msg("Backtest run failed")
	return nil
}

// GetRun returns a single run by id.
func (r *Repository) GetRun(runID int64) (*Run, error) {
	row := r.db.QueryRow(`
		SELECT id, created_at, initial_capital, transaction_cost_pct, status, error,
		       cumulative_return, sharpe_ratio, max_drawdown, annualized_volatility
		FROM backtest_runs WHERE id = ?
	`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs, newest first.
func (r *Repository) ListRuns() ([]Run, error) {
	rows, err := r.db.Query(`
		SELECT id, created_at, initial_capital, transaction_cost_pct, status, error,
		       cumulative_return, sharpe_ratio, max_drawdown, annualized_volatility
		FROM backtest_runs ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetAccountValues returns a run's account-value series in date order.
func (r *Repository) GetAccountValues(runID int64) ([]AccountValue, error) {
	rows, err := r.db.Query(`
		SELECT date, account_value FROM account_values
		WHERE run_id = ? ORDER BY date ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query account values: %w", err)
	}
	defer rows.Close()

	values := []AccountValue{}
	for rows.Next() {
		var dateStr string
		var value float64
		if err := rows.Scan(&dateStr, &value); err != nil {
			return nil, fmt.Errorf("failed to scan account value: %w", err)
		}
		date, err := time.Parse(dataset.DateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored date %q: %w", dateStr, err)
		}
		values = append(values, AccountValue{Date: date, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account values: %w", err)
	}
	return values, nil
}

// GetWeightHistory returns a run's weight history grouped by date, in date
// order, with predicted returns alongside the weights.
func (r *Repository) GetWeightHistory(runID int64) ([]CoefficientEntry, error) {
	rows, err := r.db.Query(`
		SELECT date, tic, weight, predicted_y FROM weight_history
		WHERE run_id = ? ORDER BY date ASC, tic ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query weight history: %w", err)
	}
	defer rows.Close()

	entries := []CoefficientEntry{}
	var current *CoefficientEntry
	for rows.Next() {
		var dateStr, tic string
		var weight, predicted float64
		if err := rows.Scan(&dateStr, &tic, &weight, &predicted); err != nil {
			return nil, fmt.Errorf("failed to scan weight row: %w", err)
		}
		date, err := time.Parse(dataset.DateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored date %q: %w", dateStr, err)
		}

		if current == nil || !current.Date.Equal(date) {
			entries = append(entries, CoefficientEntry{
				Date:             date,
				Weights:          map[string]float64{},
				PredictedReturns: map[string]float64{},
			})
			current = &entries[len(entries)-1]
		}
		current.Weights[tic] = weight
		current.PredictedReturns[tic] = predicted
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weight history: %w", err)
	}
	return entries, nil
}

// rowScanner abstracts sql.Row and sql.Rows for scanRun.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var createdAt string
	var errMsg sql.NullString
	var cumRet, sharpe, maxDD, vol sql.NullFloat64

	err := row.Scan(
		&run.ID,
		&createdAt,
		&run.InitialCapital,
		&run.TransactionCostPct,
		&run.Status,
		&errMsg,
		&cumRet,
		&sharpe,
		&maxDD,
		&vol,
	)
	if err != nil {
		return nil, err
	}

	if t, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
		run.CreatedAt = t
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	run.CumulativeReturn = floatPtr(cumRet)
	run.SharpeRatio = floatPtr(sharpe)
	run.MaxDrawdown = floatPtr(maxDD)
	run.AnnualizedVolatility = floatPtr(vol)

	return &run, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
