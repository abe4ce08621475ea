package formulas

import (
	"math"
)

// CalculateSharpeRatio calculates the annualized Sharpe ratio of a return series.
//
// Sharpe Ratio Formula:
//
//	Sharpe = (Mean Return - Periodic Risk-free Rate) / Standard Deviation of Returns
//	Annualized: Sharpe × sqrt(periodsPerYear)
//
// Args:
//
//	returns: Array of periodic returns (daily, monthly, etc.)
//	riskFreeRate: Risk-free rate (annual, as decimal, e.g., 0.02 for 2%)
//	periodsPerYear: Number of periods per year (252 for daily, 12 for monthly)
//
// Returns:
//
//	Sharpe ratio or nil if insufficient data
func CalculateSharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) *float64 {
	if len(returns) < 2 {
		return nil
	}

	meanReturn := Mean(returns)

	stdDev := StdDev(returns)
	if stdDev == 0 {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)

	sharpe := (meanReturn - periodicRiskFree) / stdDev
	annualizedSharpe := sharpe * math.Sqrt(float64(periodsPerYear))

	return &annualizedSharpe
}

// CalculateSharpeFromValues calculates the Sharpe ratio directly from a
// portfolio value series, assuming daily data (252 trading days per year).
func CalculateSharpeFromValues(values []float64, riskFreeRate float64) *float64 {
	if len(values) < 2 {
		return nil
	}
	return CalculateSharpeRatio(CalculateReturns(values), riskFreeRate, 252)
}

// CalculateSortinoRatio calculates the Sortino Ratio (downside deviation version of Sharpe).
// Only considers downside volatility (returns below the target/MAR).
//
// Sortino Formula:
//
//	Sortino = (Mean Return - Periodic Risk-free Rate) / Downside Deviation
//	Downside Deviation = sqrt(mean of squared deviations below MAR)
func CalculateSortinoRatio(returns []float64, riskFreeRate float64, targetReturn float64, periodsPerYear int) *float64 {
	if len(returns) < 2 {
		return nil
	}

	meanReturn := Mean(returns)
	periodicMAR := targetReturn / float64(periodsPerYear)

	var downsideSquaredSum float64
	downsideCount := 0

	for _, ret := range returns {
		if ret < periodicMAR {
			deviation := ret - periodicMAR
			downsideSquaredSum += deviation * deviation
			downsideCount++
		}
	}

	if downsideCount == 0 {
		return nil
	}

	downsideDeviation := math.Sqrt(downsideSquaredSum / float64(downsideCount))
	if downsideDeviation == 0 {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)

	sortino := (meanReturn - periodicRiskFree) / downsideDeviation
	annualizedSortino := sortino * math.Sqrt(float64(periodsPerYear))

	return &annualizedSortino
}
