package restraint

import (
	"math"

	"github.com/peter-kozarec/ensemble/pkg/common"
)

// Calculate returns the restraint force on v relative to v0. The force is
// zero until the window history is full and when v coincides with v0.
// Energy is not computed.
func (r *Restraint) Calculate(v, v0 common.Vector, _ float64) common.PotentialPointData {
	var output common.PotentialPointData

	state := r.state.Load()
	if !state.active {
		return output
	}

	rdiff := v.Sub(v0)
	distance := rdiff.Norm()
	if distance == 0 {
		return output
	}

	f := r.magnitude(distance, state.histogram)
	output.Force = rdiff.Scale(f / distance)
	return output
}

func (r *Restraint) magnitude(distance float64, histogram []float64) float64 {
	switch {
	case distance > r.cfg.MaxDist:
		return r.cfg.K * (r.cfg.MaxDist - distance)
	case distance < r.cfg.MinDist:
		return -r.cfg.K * (r.cfg.MinDist - distance)
	}

	// Normalised by sqrt(2*pi)*sigma^3, not by the density estimator's
	// sqrt(2*pi*sigma^2).
	sigma := r.cfg.Sigma
	normConst := math.Sqrt(2*math.Pi) * sigma * sigma * sigma

	var fScalar float64
	for n, h := range histogram {
		x := float64(n)*r.binWidth - distance
		fScalar += h * x / normConst * math.Exp(-0.5*(x/sigma)*(x/sigma))
	}
	return -r.cfg.K * fScalar
}
