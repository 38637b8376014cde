package math

func Sum(data []float64) float64 {
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum
}

func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return Sum(data) / float64(len(data))
}

// Rectangle integrates samples spaced dx apart with the rectangle rule the
// density grids are normalised against.
func Rectangle(data []float64, dx float64) float64 {
	return Sum(data) * dx
}
