package formulas

// DrawdownMetrics represents drawdown analysis results
type DrawdownMetrics struct {
	MaxDrawdown     float64 `json:"max_drawdown"`     // Maximum drawdown (as positive percentage, e.g., 0.25 = 25% drawdown)
	CurrentDrawdown float64 `json:"current_drawdown"` // Current drawdown from peak
	DaysInDrawdown  int     `json:"days_in_drawdown"` // Days since peak
	PeakValue       float64 `json:"peak_value"`       // Value at peak
	CurrentValue    float64 `json:"current_value"`    // Current value
}

// CalculateMaxDrawdown calculates the maximum drawdown of a value series.
//
// Drawdown Formula:
//
//	Drawdown = (Peak Value - Current Value) / Peak Value
//	Max Drawdown = Maximum of all drawdowns
//
// Returns the maximum drawdown as a positive fraction (0.25 = 25% loss from
// peak), or nil for series shorter than two points.
func CalculateMaxDrawdown(values []float64) *float64 {
	if len(values) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := values[0]

	for _, v := range values {
		if v > peak {
			peak = v
		}

		if peak > 0 {
			drawdown := (peak - v) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return &maxDrawdown
}

// CalculateDrawdownMetrics calculates comprehensive drawdown metrics
// including current drawdown, days in drawdown, and peak values
func CalculateDrawdownMetrics(values []float64) *DrawdownMetrics {
	if len(values) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := values[0]
	peakIndex := 0
	currentValue := values[len(values)-1]

	for i, v := range values {
		if v > peak {
			peak = v
			peakIndex = i
		}

		if peak > 0 {
			drawdown := (peak - v) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	currentDrawdown := 0.0
	if peak > 0 {
		currentDrawdown = (peak - currentValue) / peak
	}

	return &DrawdownMetrics{
		MaxDrawdown:     maxDrawdown,
		CurrentDrawdown: currentDrawdown,
		DaysInDrawdown:  len(values) - 1 - peakIndex,
		PeakValue:       peak,
		CurrentValue:    currentValue,
	}
}
