package analytics

import (
	"fmt"
	"sort"
	"time"

	"salesiq/internal/dataset"
)

// Calendar bucketing shared by the descriptive time-series analysis and the
// predictive forecasts. Buckets are labeled with the period end date,
// matching period-end resampling.

type bucket struct {
	end    time.Time
	values []float64
}

var validFrequencies = map[string]string{
	"D": "daily", "W": "weekly", "M": "monthly", "Q": "quarterly", "Y": "yearly",
}

// bucketize groups the metric values into calendar periods, sorted
// chronologically. Empty periods inside the range are not fabricated.
func bucketize(rows []dataset.Row, metric, freq string) ([]bucket, error) {
	if _, found := validFrequencies[freq]; !found {
		return nil, fmt.Errorf("unsupported frequency %q", freq)
	}
	get := func(r *dataset.Row) (float64, error) {
		return dataset.NumericValue(r, metric)
	}
	// Validate the metric once before scanning.
	if len(rows) > 0 {
		if _, err := get(&rows[0]); err != nil {
			return nil, err
		}
	}

	grouped := make(map[time.Time][]float64)
	for i := range rows {
		v, err := get(&rows[i])
		if err != nil {
			return nil, err
		}
		end := periodEnd(rows[i].OrderDate, freq)
		grouped[end] = append(grouped[end], v)
	}

	buckets := make([]bucket, 0, len(grouped))
	for end, values := range grouped {
		buckets = append(buckets, bucket{end: end, values: values})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].end.Before(buckets[j].end) })
	return buckets, nil
}

func periodEnd(t time.Time, freq string) time.Time {
	y, m, d := t.Date()
	switch freq {
	case "D":
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	case "W":
		// Week ending Sunday.
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		offset := (7 - int(day.Weekday())) % 7
		return day.AddDate(0, 0, offset)
	case "M":
		return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)
	case "Q":
		endMonth := time.Month(((int(m)-1)/3)*3 + 3)
		return time.Date(y, endMonth+1, 0, 0, 0, 0, 0, time.UTC)
	case "Y":
		return time.Date(y, 12, 31, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
}

// nextPeriodEnd advances a period-end date to the following period's end.
func nextPeriodEnd(end time.Time, freq string) time.Time {
	switch freq {
	case "D":
		return end.AddDate(0, 0, 1)
	case "W":
		return end.AddDate(0, 0, 7)
	case "M":
		return time.Date(end.Year(), end.Month()+2, 0, 0, 0, 0, 0, time.UTC)
	case "Q":
		return time.Date(end.Year(), end.Month()+4, 0, 0, 0, 0, 0, time.UTC)
	case "Y":
		return time.Date(end.Year()+1, 12, 31, 0, 0, 0, 0, time.UTC)
	default:
		return end.AddDate(0, 0, 1)
	}
}

func bucketSums(buckets []bucket) []float64 {
	sums := make([]float64, len(buckets))
	for i, b := range buckets {
		sums[i] = sum(b.values)
	}
	return sums
}

// movingAverage is the trailing mean over at most window observations; the
// window narrows at the start of the series, never below one observation.
func movingAverage(values []float64, window, at int) float64 {
	start := at - window + 1
	if start < 0 {
		start = 0
	}
	return mean(values[start : at+1])
}

// growthRates is the period-over-period percent change; the first bucket is
// always 0 and non-finite changes (zero previous value) clamp to 0.
func growthRates(sums []float64) []float64 {
	rates := make([]float64, len(sums))
	for i := 1; i < len(sums); i++ {
		if sums[i-1] != 0 {
			rates[i] = finite((sums[i] - sums[i-1]) / sums[i-1] * 100)
		}
	}
	return rates
}
