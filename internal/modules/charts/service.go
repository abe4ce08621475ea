// Package charts renders backtest result series as PNG images.
package charts

import (
	"fmt"

	"github.com/rs/zerolog"
	charts "github.com/vicanso/go-charts/v2"

	"github.com/quantfolio/backtester/internal/modules/simulation"
)

// Service renders equity-curve charts from stored run data.
type Service struct {
	log zerolog.Logger
}

// NewService creates a chart service.
func NewService(log zerolog.Logger) *Service {
	return &Service{log: log.With().Str("component", "charts").Logger()}
}

// RenderEquityCurve draws a run's account-value series as a PNG line chart.
func (s *Service) RenderEquityCurve(runID int64, values []simulation.AccountValue) ([]byte, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("run %d has no account values to chart", runID)
	}

	labels := make([]string, len(values))
	series := make([]float64, len(values))
	for i, av := range values {
		labels[i] = av.Date.Format("2006-01-02")
		series[i] = av.Value
	}

	yMin, yMax := paddedRange(series)

	p, err := charts.LineRender(
		[][]float64{series},
		charts.TitleTextOptionFunc(fmt.Sprintf("Backtest #%d account value", runID)),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        labels,
			SplitNumber: splitNumber(len(labels)),
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(1000),
		charts.HeightOptionFunc(600),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}

	s.log.Debug().Int64("run_id", runID).Int("points", len(series)).Msg("Rendered equity curve")
	return buf, nil
}

// paddedRange widens the value range by 5% on each side so the curve does not
// hug the plot borders.
func paddedRange(values []float64) (float64, float64) {
	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	padding := (max - min) * 0.05
	if padding == 0 {
		padding = max * 0.05
	}
	return min - padding, max + padding
}

// splitNumber keeps the x axis readable for short and long runs alike.
func splitNumber(points int) int {
	if points > 30 {
		return 6
	}
	n := points / 3
	if n < 3 {
		n = 3
	}
	return n
}
