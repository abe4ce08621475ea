package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DateLayout is the panel's canonical date format.
const DateLayout = "2006-01-02"

// Loader reads panels from files. CSV and JSON are supported; anything else
// is an error.
type Loader struct {
	log zerolog.Logger
}

// NewLoader creates a new panel loader.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{log: log.With().Str("component", "loader").Logger()}
}

// LoadFile dispatches on the file extension.
func (l *Loader) LoadFile(path string) (*Panel, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return l.loadCSV(path)
	case ".json":
		return l.loadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported panel format %q: want .csv or .json", filepath.Ext(path))
	}
}

// loadCSV reads a long-form panel. Required columns: date, tic, close.
// Every other column is treated as a feature column.
func (l *Loader) loadCSV(path string) (*Panel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open panel file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"date", "tic", "close"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("panel csv is missing required column %q", required)
		}
	}

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}
		line++

		date, err := time.Parse(DateLayout, record[col["date"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad date %q: %w", line, record[col["date"]], err)
		}
		closePrice, err := strconv.ParseFloat(record[col["close"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad close %q: %w", line, record[col["close"]], err)
		}

		features := make(map[string]float64)
		for name, idx := range col {
			if name == "date" || name == "tic" || name == "close" {
				continue
			}
			v, err := strconv.ParseFloat(record[idx], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad value %q in column %q: %w", line, record[idx], name, err)
			}
			features[name] = v
		}

		rows = append(rows, Row{
			Date:     date,
			Tic:      record[col["tic"]],
			Close:    closePrice,
			Features: features,
		})
	}

	l.log.Info().Str("path", path).Int("rows", len(rows)).Msg("Loaded panel from CSV")
	return NewPanel(rows), nil
}

// jsonRow mirrors Row with a string date for file interchange.
type jsonRow struct {
	Date         string             `json:"date"`
	Tic          string             `json:"tic"`
	Close        float64            `json:"close"`
	Features     map[string]float64 `json:"features"`
	ReturnWindow []float64          `json:"return_window,omitempty"`
}

// loadJSON reads an array of row objects.
func (l *Loader) loadJSON(path string) (*Panel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open panel file: %w", err)
	}

	var raw []jsonRow
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse panel json: %w", err)
	}

	rows := make([]Row, 0, len(raw))
	for i, jr := range raw {
		date, err := time.Parse(DateLayout, jr.Date)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad date %q: %w", i, jr.Date, err)
		}
		rows = append(rows, Row{
			Date:         date,
			Tic:          jr.Tic,
			Close:        jr.Close,
			Features:     jr.Features,
			ReturnWindow: jr.ReturnWindow,
		})
	}

	l.log.Info().Str("path", path).Int("rows", len(rows)).Msg("Loaded panel from JSON")
	return NewPanel(rows), nil
}
