package simulation

import (
	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/utility/math"
)

type Report struct {
	Replica           string
	StartTime         float64
	EndTime           float64
	Steps             int64
	ActiveSteps       int64
	Rotations         uint64
	ReductionFailures int
	DroppedSamples    uint64
	MeanDistance      float64
	DistanceDeviation float64
	MaxDistance       float64
	MeanForce         float64
	MaxForce          float64
	Histogram         []float64
}

// HistogramL1 is the total deviation of the ensemble density from the
// experimental one after the last rotation.
func (report Report) HistogramL1() float64 {
	return math.L1(report.Histogram)
}

func (report Report) Print(logger *zap.Logger) {
	logger.Info("replica report",
		zap.String("replica", report.Replica),
		zap.Float64("start_time", report.StartTime),
		zap.Float64("end_time", report.EndTime),
		zap.Int64("steps", report.Steps),
		zap.Int64("active_steps", report.ActiveSteps),
	)

	logger.Info("window statistics",
		zap.String("replica", report.Replica),
		zap.Uint64("rotations", report.Rotations),
		zap.Int("reduction_failures", report.ReductionFailures),
		zap.Uint64("dropped_samples", report.DroppedSamples),
		zap.Float64("histogram_l1", report.HistogramL1()),
	)

	logger.Info("distance and force",
		zap.String("replica", report.Replica),
		zap.Float64("mean_distance", report.MeanDistance),
		zap.Float64("distance_deviation", report.DistanceDeviation),
		zap.Float64("max_distance", report.MaxDistance),
		zap.Float64("mean_force", report.MeanForce),
		zap.Float64("max_force", report.MaxForce),
	)
}
