package dataset

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// HistoryDB provides access to per-ticker historical price databases, one
// SQLite file per ticker under historyDir.
type HistoryDB struct {
	historyDir string
	log        zerolog.Logger
}

// NewHistoryDB creates a new history database accessor.
func NewHistoryDB(historyDir string, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		historyDir: historyDir,
		log:        log.With().Str("component", "history_db").Logger(),
	}
}

// GetDailyBars fetches up to limit daily bars for a ticker, oldest first.
func (h *HistoryDB) GetDailyBars(tic string, limit int) ([]Bar, error) {
	db, err := h.openHistoryDB(tic)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query := `
		SELECT date, open_price, high_price, low_price, close_price
		FROM daily_prices
		ORDER BY date DESC
		LIMIT ?
	`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices for %s: %w", tic, err)
	}
	defer rows.Close()

	var bars []Bar
	for rows.Next() {
		var b Bar
		var date string
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, fmt.Errorf("failed to scan daily price for %s: %w", tic, err)
		}
		b.Date, err = time.Parse(DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("bad date %q in history of %s: %w", date, tic, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily prices for %s: %w", tic, err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// GetDailyBarsForAll loads bars for every ticker concurrently.
func (h *HistoryDB) GetDailyBarsForAll(tics []string, limit int) (map[string][]Bar, error) {
	var mu sync.Mutex
	series := make(map[string][]Bar, len(tics))

	var g errgroup.Group
	g.SetLimit(8)
	for _, tic := range tics {
		tic := tic
		g.Go(func() error {
			bars, err := h.GetDailyBars(tic, limit)
			if err != nil {
				return err
			}
			mu.Lock()
			series[tic] = bars
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	h.log.Info().Int("tickers", len(series)).Msg("Loaded price histories")
	return series, nil
}

// openHistoryDB opens the read-only database file of one ticker.
func (h *HistoryDB) openHistoryDB(tic string) (*sql.DB, error) {
	safe := strings.ReplaceAll(strings.ToUpper(tic), "/", "_")
	path := filepath.Join(h.historyDir, safe+".db")

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open history db for %s: %w", tic, err)
	}
	return db, nil
}
