package middleware

import (
	"context"

	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/bus"
	"github.com/peter-kozarec/ensemble/pkg/common"
	"github.com/peter-kozarec/ensemble/pkg/utility/math"
)

type MonitorFlags uint16

//goland:noinspection GoUnusedConst
const (
	MonitorNone MonitorFlags = 1 << iota
	MonitorAll
	MonitorRotations
	MonitorFailures
	MonitorHistograms
)

type Monitor struct {
	logger *zap.Logger
	flags  MonitorFlags
}

func NewMonitor(logger *zap.Logger, flags MonitorFlags) *Monitor {
	return &Monitor{
		logger: logger,
		flags:  flags,
	}
}

func (m *Monitor) enabled(flag MonitorFlags) bool {
	return m.flags&flag != 0 || m.flags&MonitorAll != 0
}

func (m *Monitor) WithWindowRotated(handler bus.WindowRotatedEventHandler) bus.WindowRotatedEventHandler {
	return func(ctx context.Context, ev common.WindowRotated) {
		if m.enabled(MonitorRotations) {
			fields := []zap.Field{
				zap.String("restraint", ev.Restraint),
				zap.Uint64("rotation", ev.Rotation),
				zap.Float64("t", ev.SimTime),
				zap.Float64("next", ev.NextTime),
				zap.Int("windows", len(ev.Windows)),
				zap.Float64("histogram_l1", math.L1(ev.Histogram)),
			}
			if m.enabled(MonitorHistograms) {
				fields = append(fields, zap.Float64s("histogram", ev.Histogram))
			}
			m.logger.Info("window rotated", fields...)
		}
		handler(ctx, ev)
	}
}

func (m *Monitor) WithReductionFailed(handler bus.ReductionFailedEventHandler) bus.ReductionFailedEventHandler {
	return func(ctx context.Context, ev common.ReductionFailed) {
		if m.enabled(MonitorFailures) {
			m.logger.Warn("reduction failed",
				zap.String("restraint", ev.Restraint),
				zap.Uint64("rotation", ev.Rotation),
				zap.Float64("t", ev.SimTime),
				zap.String("reason", ev.Reason))
		}
		handler(ctx, ev)
	}
}
