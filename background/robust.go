package background

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// median returns the median of values. The slice is sorted in place.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}

	return 0.5 * (values[n/2-1] + values[n/2])
}

// clippedMedian returns the median of values after iteratively rejecting
// samples further than sigma standard deviations from the current median.
// values is consumed.
func clippedMedian(values []float64, sigma float64, iterations int) float64 {
	if len(values) == 0 {
		return 0
	}

	kept := values
	for iter := 0; iter < iterations; iter++ {
		med := median(kept)
		std := stat.StdDev(kept, nil)
		if std == 0 {
			return med
		}

		next := kept[:0]
		for _, v := range kept {
			if v >= med-sigma*std && v <= med+sigma*std {
				next = append(next, v)
			}
		}

		if len(next) == len(kept) || len(next) < 3 {
			return med
		}

		kept = next
	}

	return median(kept)
}
