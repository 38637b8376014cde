package math

import stdmath "math"

func StandardDeviation(data []float64, mean float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, r := range data {
		diff := r - mean
		sum += diff * diff
	}
	return stdmath.Sqrt(sum / float64(len(data)))
}

// L1 is the sum of absolute values.
func L1(data []float64) float64 {
	var sum float64
	for _, v := range data {
		sum += stdmath.Abs(v)
	}
	return sum
}

func Max(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m := data[0]
	for _, v := range data[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
