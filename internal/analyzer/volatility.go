package analyzer

import (
	"errors"
	"math"
	"sort"
)

// ErrInsufficientData indicates that not enough price points were provided
// to calculate volatility (need at least 2 points for 1 return).
var ErrInsufficientData = errors.New("insufficient data points to calculate volatility")

const secondsPerYear = 365 * 24 * 60 * 60

// CalculateVolatility calculates the annualized historical volatility from a series of TWAP price points.
// Points are sorted by window end first. It uses logarithmic returns and the population standard deviation.
// The annualizationFactor should match the spacing of the points (see AnnualizationFactor).
func CalculateVolatility(points []PricePoint, annualizationFactor float64) (float64, error) {
	n := len(points)
	if n < 2 {
		return 0, ErrInsufficientData
	}

	sort.Slice(points, func(i, j int) bool { return points[i].To < points[j].To })

	// --- Logarithmic returns ---
	logReturns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		current := points[i].Price.InexactFloat64()
		previous := points[i-1].Price.InexactFloat64()
		if previous <= 0 || current <= 0 {
			continue
		}
		logReturns = append(logReturns, math.Log(current/previous))
	}

	numReturns := len(logReturns)
	if numReturns == 0 {
		return 0, ErrInsufficientData
	}

	// --- Standard deviation of log returns ---
	var sum float64
	for _, r := range logReturns {
		sum += r
	}
	mean := sum / float64(numReturns)

	var sumSqDiff float64
	for _, r := range logReturns {
		sumSqDiff += math.Pow(r-mean, 2)
	}
	stdDev := math.Sqrt(sumSqDiff / float64(numReturns))

	return stdDev * math.Sqrt(annualizationFactor), nil
}

// AnnualizationFactor is the number of average-sized windows in a year.
func AnnualizationFactor(points []PricePoint) float64 {
	var total uint64
	for _, p := range points {
		total += p.To - p.From
	}
	if total == 0 {
		return 0
	}
	mean := float64(total) / float64(len(points))
	return secondsPerYear / mean
}
