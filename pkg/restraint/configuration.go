package restraint

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/multierr"
)

var ErrInvalidConfiguration = errors.New("invalid restraint configuration")

// Configuration holds the construction parameters of an ensemble restraint.
// Times are simulation times in the host's units.
type Configuration struct {
	NBins   int
	MinDist float64
	MaxDist float64

	// Experimental is the reference density, one value per bin.
	Experimental []float64

	NSamples     int
	SamplePeriod float64

	NWindows           int
	WindowUpdatePeriod float64

	K     float64
	Sigma float64
}

func (c Configuration) BinWidth() float64 {
	return (c.MaxDist - c.MinDist) / float64(c.NBins)
}

// Validate reports every violated constraint at once.
func (c Configuration) Validate() error {
	var err error

	if c.NBins <= 0 {
		err = multierr.Append(err, fmt.Errorf("nbins must be positive, got %d", c.NBins))
	}
	if !finite(c.MinDist) || !finite(c.MaxDist) {
		err = multierr.Append(err, fmt.Errorf("distance domain must be finite, got [%g, %g]", c.MinDist, c.MaxDist))
	} else if c.MaxDist <= c.MinDist {
		err = multierr.Append(err, fmt.Errorf("max_dist (%g) must exceed min_dist (%g)", c.MaxDist, c.MinDist))
	}
	if !(c.Sigma > 0) || !finite(c.Sigma) {
		err = multierr.Append(err, fmt.Errorf("sigma must be positive, got %g", c.Sigma))
	}
	if c.NSamples <= 0 {
		err = multierr.Append(err, fmt.Errorf("nsamples must be positive, got %d", c.NSamples))
	}
	if !(c.SamplePeriod > 0) || !finite(c.SamplePeriod) {
		err = multierr.Append(err, fmt.Errorf("sample_period must be positive, got %g", c.SamplePeriod))
	}
	if c.NWindows <= 0 {
		err = multierr.Append(err, fmt.Errorf("nwindows must be positive, got %d", c.NWindows))
	}
	if !(c.WindowUpdatePeriod > 0) || !finite(c.WindowUpdatePeriod) {
		err = multierr.Append(err, fmt.Errorf("window_update_period must be positive, got %g", c.WindowUpdatePeriod))
	}
	if !finite(c.K) {
		err = multierr.Append(err, fmt.Errorf("k must be finite, got %g", c.K))
	}
	if c.NBins > 0 && len(c.Experimental) != c.NBins {
		err = multierr.Append(err, fmt.Errorf("experimental must have %d values, got %d", c.NBins, len(c.Experimental)))
	}
	for i, v := range c.Experimental {
		if !finite(v) {
			err = multierr.Append(err, fmt.Errorf("experimental[%d] is not finite", i))
			break
		}
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
