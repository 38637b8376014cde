package synthetic

import (
	"math"
	"math/rand"

	"github.com/peter-kozarec/ensemble/pkg/common"
	"github.com/peter-kozarec/ensemble/pkg/datasource"
)

var ErrEof = datasource.ErrEof

// PairGenerator produces a trajectory of two sites whose separation follows
// an Ornstein-Uhlenbeck process around mean. The direction of the separation
// performs a small random walk on the unit sphere.
type PairGenerator struct {
	rng *rand.Rand

	deltaT float64
	steps  int64
	t      int64

	mean        float64
	reversion   float64
	sigma       float64
	minDistance float64

	directionNoise float64

	reference common.Vector
	direction common.Vector
	distance  float64
}

func NewPairGenerator(rng *rand.Rand, reference common.Vector, mean, reversion, sigma, deltaT float64, steps int64) *PairGenerator {
	g := &PairGenerator{
		rng:            rng,
		deltaT:         deltaT,
		steps:          steps,
		mean:           mean,
		reversion:      reversion,
		sigma:          sigma,
		directionNoise: 0.05,
		reference:      reference,
		distance:       mean,
	}
	g.direction = g.randomDirection()
	return g
}

// SetDistance overrides the starting separation.
func (g *PairGenerator) SetDistance(distance float64) {
	g.distance = distance
}

// SetMinDistance reflects the separation at minDistance.
func (g *PairGenerator) SetMinDistance(minDistance float64) {
	g.minDistance = minDistance
}

func (g *PairGenerator) SetDirectionNoise(noise float64) {
	g.directionNoise = noise
}

// GetNext returns the sample at time t*deltaT, starting at t=1.
func (g *PairGenerator) GetNext() (common.Sample, error) {
	var sample common.Sample

	if g.t >= g.steps {
		return sample, ErrEof
	}
	g.t++

	sqrtDt := math.Sqrt(g.deltaT)
	g.distance += g.reversion*(g.mean-g.distance)*g.deltaT + g.sigma*sqrtDt*g.rng.NormFloat64()
	if g.distance < g.minDistance {
		g.distance = 2*g.minDistance - g.distance
	}

	if g.directionNoise > 0 {
		drift := common.Vector{g.rng.NormFloat64(), g.rng.NormFloat64(), g.rng.NormFloat64()}
		next := g.direction.Add(drift.Scale(g.directionNoise * sqrtDt))
		if norm := next.Norm(); norm > 0 {
			g.direction = next.Scale(1 / norm)
		}
	}

	sample.Time = float64(g.t) * g.deltaT
	sample.Reference = g.reference
	sample.Position = g.reference.Add(g.direction.Scale(g.distance))
	return sample, nil
}

func (g *PairGenerator) randomDirection() common.Vector {
	for {
		v := common.Vector{g.rng.NormFloat64(), g.rng.NormFloat64(), g.rng.NormFloat64()}
		if norm := v.Norm(); norm > 1e-9 {
			return v.Scale(1 / norm)
		}
	}
}
