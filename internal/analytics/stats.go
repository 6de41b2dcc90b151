package analytics

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// Thin wrappers over montanaflynn/stats and gonum/stat that fold degenerate
// inputs (empty series, zero variance) into the fallback values the engines
// promise instead of errors.

func mean(xs []float64) float64 {
	m, err := stats.Mean(xs)
	if err != nil {
		return 0
	}
	return finite(m)
}

func median(xs []float64) float64 {
	m, err := stats.Median(xs)
	if err != nil {
		return 0
	}
	return finite(m)
}

// stdSample is the n-1 standard deviation, matching series.std() semantics
// used for summary statistics and volatility.
func stdSample(xs []float64) float64 {
	s, err := stats.StandardDeviationSample(xs)
	if err != nil {
		return 0
	}
	return finite(s)
}

// stdPop is the population standard deviation used for z-scoring.
func stdPop(xs []float64) float64 {
	s, err := stats.StandardDeviationPopulation(xs)
	if err != nil {
		return 0
	}
	return finite(s)
}

func minOf(xs []float64) float64 {
	m, err := stats.Min(xs)
	if err != nil {
		return 0
	}
	return finite(m)
}

func maxOf(xs []float64) float64 {
	m, err := stats.Max(xs)
	if err != nil {
		return 0
	}
	return finite(m)
}

func percentile(xs []float64, p float64) float64 {
	v, err := stats.Percentile(xs, p)
	if err != nil {
		return 0
	}
	return finite(v)
}

func sum(xs []float64) float64 {
	var total float64
	for _, x := range xs {
		total += x
	}
	return total
}

// zscores standardizes xs with the population standard deviation. A zero
// standard deviation yields all-zero scores.
func zscores(xs []float64) []float64 {
	m := mean(xs)
	sd := stdPop(xs)
	out := make([]float64, len(xs))
	if sd == 0 {
		return out
	}
	for i, x := range xs {
		out[i] = (x - m) / sd
	}
	return out
}

// pearson is the Pearson correlation of x and y; undefined correlations
// (constant series) come back as 0.
func pearson(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return finite(stat.Correlation(x, y, nil))
}

// linregress fits y = alpha + beta*i over the index 0..len(ys)-1.
func linregress(ys []float64) (alpha, beta float64) {
	if len(ys) < 2 {
		return 0, 0
	}
	xs := make([]float64, len(ys))
	for i := range xs {
		xs[i] = float64(i)
	}
	alpha, beta = stat.LinearRegression(xs, ys, nil, false)
	return finite(alpha), finite(beta)
}

// rSquared is the coefficient of determination for the index fit.
func rSquared(ys []float64, alpha, beta float64) float64 {
	if len(ys) < 2 {
		return 0
	}
	xs := make([]float64, len(ys))
	for i := range xs {
		xs[i] = float64(i)
	}
	r2 := stat.RSquared(xs, ys, nil, alpha, beta)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		return 0
	}
	return r2
}

// trendLabel classifies the least-squares slope of a bucket series.
func trendLabel(values []float64) string {
	if len(values) < 2 {
		return "insufficient_data"
	}
	_, slope := linregress(values)
	switch {
	case slope > 0.05:
		return "increasing"
	case slope < -0.05:
		return "decreasing"
	default:
		return "stable"
	}
}
