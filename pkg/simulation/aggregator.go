package simulation

import (
	"go.uber.org/zap"
)

// Aggregator folds replica reports into an ensemble summary.
type Aggregator struct {
	reports []Report
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

func (a *Aggregator) Add(report Report) {
	a.reports = append(a.reports, report)
}

type Summary struct {
	Replicas          int
	Steps             int64
	Rotations         uint64
	ReductionFailures int
	DroppedSamples    uint64
	MeanForce         float64
	MaxForce          float64
	// Consistent reports whether every replica committed the same number
	// of rotations and ended with the same histogram.
	Consistent bool
	Histogram  []float64
}

func (a *Aggregator) Summary() Summary {
	summary := Summary{
		Replicas:   len(a.reports),
		Consistent: true,
	}
	if len(a.reports) == 0 {
		return summary
	}

	var forceSum float64
	var activeSteps int64
	first := a.reports[0]
	summary.Rotations = first.Rotations
	summary.Histogram = append([]float64(nil), first.Histogram...)

	for _, report := range a.reports {
		summary.Steps += report.Steps
		summary.ReductionFailures += report.ReductionFailures
		summary.DroppedSamples += report.DroppedSamples
		forceSum += report.MeanForce * float64(report.ActiveSteps)
		activeSteps += report.ActiveSteps
		if report.MaxForce > summary.MaxForce {
			summary.MaxForce = report.MaxForce
		}
		if report.Rotations != first.Rotations || !sameHistogram(report.Histogram, first.Histogram) {
			summary.Consistent = false
		}
		if report.Rotations < summary.Rotations {
			summary.Rotations = report.Rotations
		}
	}
	if activeSteps > 0 {
		summary.MeanForce = forceSum / float64(activeSteps)
	}
	return summary
}

func (s Summary) Print(logger *zap.Logger) {
	logger.Info("ensemble summary",
		zap.Int("replicas", s.Replicas),
		zap.Int64("steps", s.Steps),
		zap.Uint64("rotations", s.Rotations),
		zap.Int("reduction_failures", s.ReductionFailures),
		zap.Uint64("dropped_samples", s.DroppedSamples),
		zap.Float64("mean_force", s.MeanForce),
		zap.Float64("max_force", s.MaxForce),
		zap.Bool("consistent", s.Consistent))
}

func sameHistogram(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
