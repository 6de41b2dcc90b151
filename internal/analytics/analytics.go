// Package analytics implements the four analysis engines (descriptive,
// diagnostic, predictive, prescriptive) over a shared read-only dataset
// table. Engines are cheap per-request wrappers: they hold a table pointer
// and a logger, never mutate the table, and absorb internal failures into a
// typed UnavailableError so callers aggregating several analyses never get a
// partial crash.
package analytics

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// UnavailableError marks an analysis that failed to compute. Handlers map it
// to an empty-but-well-typed payload; it is distinguishable in-process from
// an analysis that computed successfully over little or no matching data.
type UnavailableError struct {
	Analysis string
	Cause    error
}

func (e *UnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("analysis %s unavailable: %v", e.Analysis, e.Cause)
	}
	return fmt.Sprintf("analysis %s unavailable", e.Analysis)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

func unavailable(analysis string, cause error) *UnavailableError {
	return &UnavailableError{Analysis: analysis, Cause: cause}
}

// finite clamps NaN and ±Inf to 0 so no non-finite value leaves the core.
func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func round2(f float64) float64 {
	return math.Round(finite(f)*100) / 100
}

func round4(f float64) float64 {
	return math.Round(finite(f)*10000) / 10000
}

// ratio returns num/den*scale, or 0 when the denominator is zero.
func ratio(num, den, scale float64) float64 {
	if den == 0 {
		return 0
	}
	return finite(num / den * scale)
}

// truncate shortens s to at most n characters, never splitting a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
