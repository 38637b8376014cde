package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/bus"
	"github.com/peter-kozarec/ensemble/pkg/common"
)

// Performance accumulates the time spent in the wrapped handlers. It is meant
// for handlers dispatched from a single router goroutine.
type Performance struct {
	logger *zap.Logger

	totalRotatedHandlerDur time.Duration
	totalFailedHandlerDur  time.Duration
	rotatedCalls           int64
	failedCalls            int64
}

func NewPerformance(logger *zap.Logger) *Performance {
	return &Performance{
		logger: logger,
	}
}

func (p *Performance) WithWindowRotated(handler bus.WindowRotatedEventHandler) bus.WindowRotatedEventHandler {
	return func(ctx context.Context, ev common.WindowRotated) {
		startTime := time.Now()
		handler(ctx, ev)
		p.totalRotatedHandlerDur += time.Since(startTime)
		p.rotatedCalls++
	}
}

func (p *Performance) WithReductionFailed(handler bus.ReductionFailedEventHandler) bus.ReductionFailedEventHandler {
	return func(ctx context.Context, ev common.ReductionFailed) {
		startTime := time.Now()
		handler(ctx, ev)
		p.totalFailedHandlerDur += time.Since(startTime)
		p.failedCalls++
	}
}

func (p *Performance) PrintStatistics() {
	p.logger.Info("handler performance",
		zap.Duration("window_rotated_total", p.totalRotatedHandlerDur),
		zap.Duration("window_rotated_avg", average(p.totalRotatedHandlerDur, p.rotatedCalls)),
		zap.Duration("reduction_failed_total", p.totalFailedHandlerDur),
		zap.Duration("reduction_failed_avg", average(p.totalFailedHandlerDur, p.failedCalls)))
}

func average(total time.Duration, calls int64) time.Duration {
	if calls == 0 {
		return 0
	}
	return total / time.Duration(calls)
}
