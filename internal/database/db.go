package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
	path string
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Use WAL mode for better concurrency
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	return &DB{
		conn: conn,
		path: dbPath,
	}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Migrate creates the backtest result schema if it does not exist yet.
//
// A failed run keeps only its backtest_runs row (status=failed); series rows
// are written for completed runs only.
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS backtest_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT NOT NULL,
		initial_capital REAL NOT NULL,
		transaction_cost_pct REAL NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		cumulative_return REAL,
		sharpe_ratio REAL,
		max_drawdown REAL,
		annualized_volatility REAL
	);

	CREATE TABLE IF NOT EXISTS account_values (
		run_id INTEGER NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		account_value REAL NOT NULL,
		PRIMARY KEY (run_id, date)
	);

	CREATE TABLE IF NOT EXISTS weight_history (
		run_id INTEGER NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		tic TEXT NOT NULL,
		weight REAL NOT NULL,
		predicted_y REAL NOT NULL,
		PRIMARY KEY (run_id, date, tic)
	);
	`

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Begin starts a new transaction
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// Exec executes a query without returning rows
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}
