package density

import (
	"math"
)

// BlurToGrid smooths distance samples onto a fixed grid with a Gaussian
// kernel. Each sample carries an area of 1/len(samples), so the grid
// approximates a probability density over [minDist, maxDist].
//
// Bin i sits at i*binWidth, the same abscissa the restraint force kernel
// uses. Every sample contributes to every bin; grids are small.
type BlurToGrid struct {
	minDist float64
	maxDist float64
	sigma   float64
}

func NewBlurToGrid(minDist, maxDist, sigma float64) BlurToGrid {
	return BlurToGrid{
		minDist: minDist,
		maxDist: maxDist,
		sigma:   sigma,
	}
}

func (b BlurToGrid) BinWidth(nBins int) float64 {
	return (b.maxDist - b.minDist) / float64(nBins)
}

// Apply overwrites grid with the density estimate of distances. An empty
// sample set yields an all-zero grid.
func (b BlurToGrid) Apply(distances []float64, grid []float64) {
	nBins := len(grid)
	if nBins == 0 {
		return
	}
	if len(distances) == 0 {
		clear(grid)
		return
	}

	dx := b.BinWidth(nBins)
	denominator := 1.0 / (2 * b.sigma * b.sigma)
	normalization := 1.0 / (float64(len(distances)) * math.Sqrt(2.0*math.Pi*b.sigma*b.sigma))

	for i := 0; i < nBins; i++ {
		binX := float64(i) * dx
		var value float64
		for _, distance := range distances {
			rel := binX - distance
			value += normalization * math.Exp(-rel*rel*denominator)
		}
		grid[i] = value
	}
}
