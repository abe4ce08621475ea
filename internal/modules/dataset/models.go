// Package dataset holds the long-form panel of (date, ticker) observations
// the backtester runs over, plus the splitting, loading and feature
// enrichment helpers around it.
package dataset

import (
	"sort"
	"time"
)

// Row is one (date, ticker) observation of the panel.
type Row struct {
	Date     time.Time          `json:"date"`
	Tic      string             `json:"tic"`
	Close    float64            `json:"close"`
	Features map[string]float64 `json:"features"`

	// ReturnWindow is the trailing per-period return series of this ticker,
	// used for covariance estimation. Aligned in length across the tickers
	// of a cross-section.
	ReturnWindow []float64 `json:"return_window,omitempty"`
}

// Panel is a long-form table of rows kept sorted by (date, tic). The row
// order is the canonical iteration order for every consumer.
type Panel struct {
	rows  []Row
	codes []int // dense per-date integer codes, aligned with rows
}

// NewPanel builds a panel from rows, sorting by (date, tic) and factorizing
// dates into dense integer codes (the same date always maps to the same
// code within the panel).
func NewPanel(rows []Row) *Panel {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].Tic < sorted[j].Tic
	})

	codes := make([]int, len(sorted))
	code := 0
	for i := range sorted {
		if i > 0 && !sorted[i].Date.Equal(sorted[i-1].Date) {
			code++
		}
		codes[i] = code
	}

	return &Panel{rows: sorted, codes: codes}
}

// Len returns the number of rows.
func (p *Panel) Len() int {
	return len(p.rows)
}

// Rows returns the sorted rows. Callers must not mutate the slice.
func (p *Panel) Rows() []Row {
	return p.rows
}

// DateCode returns the dense integer code of the i-th row's date.
func (p *Panel) DateCode(i int) int {
	return p.codes[i]
}

// Calendar returns the strictly increasing unique dates of the panel.
func (p *Panel) Calendar() []time.Time {
	var dates []time.Time
	for i, row := range p.rows {
		if i == 0 || !row.Date.Equal(p.rows[i-1].Date) {
			dates = append(dates, row.Date)
		}
	}
	return dates
}

// Tickers returns the ordered unique tickers of the panel.
func (p *Panel) Tickers() []string {
	seen := make(map[string]bool)
	var tics []string
	for _, row := range p.rows {
		if !seen[row.Tic] {
			seen[row.Tic] = true
			tics = append(tics, row.Tic)
		}
	}
	sort.Strings(tics)
	return tics
}

// Slice returns the cross-section at one date, in ticker order with a dense
// 0-based index. The result is empty when the date is absent.
func (p *Panel) Slice(date time.Time) []Row {
	var out []Row
	for _, row := range p.rows {
		if row.Date.Equal(date) {
			out = append(out, row)
		}
		if row.Date.After(date) {
			break
		}
	}
	return out
}
