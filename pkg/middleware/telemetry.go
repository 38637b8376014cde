package middleware

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/bus"
	"github.com/peter-kozarec/ensemble/pkg/common"
	"github.com/peter-kozarec/ensemble/pkg/utility/math"
)

const telemetryNamespace = "ensemble"

// Telemetry exports rotation metrics labelled by restraint name.
type Telemetry struct {
	logger *zap.Logger

	rotations   *prometheus.CounterVec
	failures    *prometheus.CounterVec
	windows     *prometheus.GaugeVec
	histogramL1 *prometheus.GaugeVec
	simTime     *prometheus.GaugeVec

	rotatedEventCounter atomic.Int64
	failedEventCounter  atomic.Int64
}

func NewTelemetry(logger *zap.Logger, registerer prometheus.Registerer) (*Telemetry, error) {
	t := &Telemetry{
		logger: logger,
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: telemetryNamespace,
			Name:      "rotations_total",
			Help:      "Committed window rotations.",
		}, []string{"restraint"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: telemetryNamespace,
			Name:      "reduction_failures_total",
			Help:      "Window rotations abandoned because the ensemble reduction failed.",
		}, []string{"restraint"}),
		windows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: telemetryNamespace,
			Name:      "windows",
			Help:      "Retained windows after the last rotation.",
		}, []string{"restraint"}),
		histogramL1: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: telemetryNamespace,
			Name:      "histogram_l1",
			Help:      "L1 norm of the difference histogram after the last rotation.",
		}, []string{"restraint"}),
		simTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: telemetryNamespace,
			Name:      "simulation_time",
			Help:      "Simulation time of the last rotation attempt.",
		}, []string{"restraint"}),
	}

	for _, collector := range []prometheus.Collector{t.rotations, t.failures, t.windows, t.histogramL1, t.simTime} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Telemetry) WithWindowRotated(handler bus.WindowRotatedEventHandler) bus.WindowRotatedEventHandler {
	return func(ctx context.Context, ev common.WindowRotated) {
		t.rotatedEventCounter.Add(1)
		t.rotations.WithLabelValues(ev.Restraint).Inc()
		t.windows.WithLabelValues(ev.Restraint).Set(float64(len(ev.Windows)))
		t.histogramL1.WithLabelValues(ev.Restraint).Set(math.L1(ev.Histogram))
		t.simTime.WithLabelValues(ev.Restraint).Set(ev.SimTime)
		handler(ctx, ev)
	}
}

func (t *Telemetry) WithReductionFailed(handler bus.ReductionFailedEventHandler) bus.ReductionFailedEventHandler {
	return func(ctx context.Context, ev common.ReductionFailed) {
		t.failedEventCounter.Add(1)
		t.failures.WithLabelValues(ev.Restraint).Inc()
		t.simTime.WithLabelValues(ev.Restraint).Set(ev.SimTime)
		handler(ctx, ev)
	}
}

func (t *Telemetry) PrintStatistics() {
	t.logger.Info("event statistics",
		zap.Int64("window_rotated_events", t.rotatedEventCounter.Load()),
		zap.Int64("reduction_failed_events", t.failedEventCounter.Load()))
}
