package simulation

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/common"
	"github.com/peter-kozarec/ensemble/pkg/ensemble"
	"github.com/peter-kozarec/ensemble/pkg/restraint"
)

// Simulator advances one replica: every sample is first offered to the
// restraint's sampling callback and then turned into a restraint force.
type Simulator struct {
	logger    *zap.Logger
	name      string
	restraint *restraint.Restraint
	audit     *Audit
	cfg       Configuration

	lastForce common.PotentialPointData
}

func NewSimulator(logger *zap.Logger, name string, r *restraint.Restraint, audit *Audit, cfg Configuration) *Simulator {
	return &Simulator{
		logger:    logger,
		name:      name,
		restraint: r,
		audit:     audit,
		cfg:       cfg,
	}
}

func (s *Simulator) PrintDetails() {
	cfg := s.restraint.Configuration()
	s.logger.Info("simulation details",
		zap.String("replica", s.name),
		zap.String("restraint", s.restraint.Name()),
		zap.Int("nbins", cfg.NBins),
		zap.Float64("min_dist", cfg.MinDist),
		zap.Float64("max_dist", cfg.MaxDist),
		zap.Int("nsamples", cfg.NSamples),
		zap.Float64("sample_period", cfg.SamplePeriod),
		zap.Int("nwindows", cfg.NWindows),
		zap.Float64("window_update_period", cfg.WindowUpdatePeriod),
		zap.Float64("k", cfg.K),
		zap.Float64("sigma", cfg.Sigma))
}

// OnSample runs one step. A failed reduction is counted and the step goes on
// with the previous histogram, unless the context is done or the
// configuration asks to stop.
func (s *Simulator) OnSample(ctx context.Context, sample common.Sample) error {
	if err := s.restraint.Callback(ctx, sample.Position, sample.Reference, sample.Time); err != nil {
		if !errors.Is(err, restraint.ErrReduction) || errors.Is(err, ensemble.ErrClosed) ||
			ctx.Err() != nil || s.cfg.StopOnReductionFailure {
			return err
		}
		s.audit.AddReductionFailure()
		s.logger.Debug("continuing with previous windows",
			zap.String("replica", s.name),
			zap.Float64("t", sample.Time))
	}

	s.lastForce = s.restraint.Calculate(sample.Position, sample.Reference, sample.Time)
	s.audit.AddStep(sample.Time, sample.Distance(), s.lastForce.Force.Norm(), s.restraint.IsActive())
	return nil
}

func (s *Simulator) LastForce() common.PotentialPointData {
	return s.lastForce
}

func (s *Simulator) Report() Report {
	report := s.audit.GenerateReport()
	report.Replica = s.name
	report.Rotations = s.restraint.Rotations()
	report.DroppedSamples = s.restraint.DroppedSamples()
	report.Histogram = s.restraint.Histogram()
	return report
}
