package dataset

import (
	"fmt"
	"sort"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
)

// Indicator periods. Column names follow the <indicator>_<period> convention
// so FEATURE_COLUMNS can address them directly.
const (
	indicatorPeriod = 30
	macdFast        = 12
	macdSlow        = 26
	macdSignal      = 9
)

// DefaultReturnWindow is the trailing-return window length attached to each
// row for covariance estimation.
const DefaultReturnWindow = 60

// Bar is one daily OHLC observation of a single ticker.
type Bar struct {
	Date  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Enricher turns raw per-ticker OHLC series into a feature-complete panel:
// technical-indicator feature columns plus trailing return windows.
type Enricher struct {
	ReturnWindow int
	log          zerolog.Logger
}

// NewEnricher creates an enricher with the default return window.
func NewEnricher(log zerolog.Logger) *Enricher {
	return &Enricher{
		ReturnWindow: DefaultReturnWindow,
		log:          log.With().Str("component", "enricher").Logger(),
	}
}

// BuildPanel computes indicator features and return windows for every ticker
// and assembles the long-form panel. Dates where any indicator is still in
// its warmup span are dropped, so all emitted rows carry complete features.
func (e *Enricher) BuildPanel(series map[string][]Bar) (*Panel, error) {
	warmup := e.warmupSpan()

	var rows []Row
	for tic, bars := range series {
		if len(bars) <= warmup {
			return nil, fmt.Errorf("ticker %s has %d bars, need more than %d for indicator warmup", tic, len(bars), warmup)
		}

		sorted := make([]Bar, len(bars))
		copy(sorted, bars)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

		highs := make([]float64, len(sorted))
		lows := make([]float64, len(sorted))
		closes := make([]float64, len(sorted))
		for i, b := range sorted {
			highs[i] = b.High
			lows[i] = b.Low
			closes[i] = b.Close
		}

		macd, _, _ := talib.Macd(closes, macdFast, macdSlow, macdSignal)
		rsi := talib.Rsi(closes, indicatorPeriod)
		cci := talib.Cci(highs, lows, closes, indicatorPeriod)
		dx := talib.Dx(highs, lows, closes, indicatorPeriod)

		returns := make([]float64, len(closes))
		for i := 1; i < len(closes); i++ {
			if closes[i-1] != 0 {
				returns[i] = (closes[i] - closes[i-1]) / closes[i-1]
			}
		}

		for i := warmup; i < len(sorted); i++ {
			row := Row{
				Date:  sorted[i].Date,
				Tic:   tic,
				Close: sorted[i].Close,
				Features: map[string]float64{
					"macd":   macd[i],
					"rsi_30": rsi[i],
					"cci_30": cci[i],
					"dx_30":  dx[i],
				},
			}

			windowStart := i - e.ReturnWindow + 1
			if windowStart < 1 {
				windowStart = 1
			}
			row.ReturnWindow = append([]float64(nil), returns[windowStart:i+1]...)

			rows = append(rows, row)
		}
	}

	e.log.Info().
		Int("tickers", len(series)).
		Int("rows", len(rows)).
		Msg("Built enriched panel")

	return NewPanel(rows), nil
}

// AttachReturnWindows fills in trailing return windows for a panel that was
// loaded without them (e.g. from CSV), using the panel's own close prices.
// Returns a new panel; the input is not modified.
func (e *Enricher) AttachReturnWindows(p *Panel) (*Panel, error) {
	closesByTic := make(map[string][]float64)
	for _, row := range p.Rows() {
		closesByTic[row.Tic] = append(closesByTic[row.Tic], row.Close)
	}

	returnsByTic := make(map[string][]float64, len(closesByTic))
	for tic, closes := range closesByTic {
		if len(closes) < 2 {
			return nil, fmt.Errorf("ticker %s has %d observations, need at least 2 to derive returns", tic, len(closes))
		}
		rets := make([]float64, len(closes))
		for i := 1; i < len(closes); i++ {
			if closes[i-1] != 0 {
				rets[i] = (closes[i] - closes[i-1]) / closes[i-1]
			}
		}
		returnsByTic[tic] = rets
	}

	position := make(map[string]int)
	rows := make([]Row, 0, p.Len())
	for _, row := range p.Rows() {
		i := position[row.Tic]
		position[row.Tic] = i + 1

		windowStart := i - e.ReturnWindow + 1
		if windowStart < 1 {
			windowStart = 1
		}

		updated := row
		if i >= 1 {
			updated.ReturnWindow = append([]float64(nil), returnsByTic[row.Tic][windowStart:i+1]...)
		}
		rows = append(rows, updated)
	}

	return NewPanel(rows), nil
}

// warmupSpan is the number of leading bars with incomplete indicator values.
func (e *Enricher) warmupSpan() int {
	// MACD needs slow EMA plus signal EMA to settle; the 30-period
	// indicators need one extra bar for the first delta.
	warmup := macdSlow + macdSignal
	if indicatorPeriod+1 > warmup {
		warmup = indicatorPeriod + 1
	}
	if warmup < e.ReturnWindow {
		warmup = e.ReturnWindow
	}
	return warmup
}
