package bus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/common"
)

var ErrCapacityReached = errors.New("event capacity reached")

type event struct {
	id   EventId
	data any
}

// Router decouples restraint notifications from their consumers. Post never
// blocks, so a Router can observe a restraint directly; handlers run on the
// goroutine started by Exec.
type Router struct {
	logger *zap.Logger
	events chan event

	OnWindowRotated   WindowRotatedEventHandler
	OnReductionFailed ReductionFailedEventHandler

	runTime       atomic.Int64
	postCount     atomic.Uint64
	postFails     atomic.Uint64
	dispatchCount atomic.Uint64
	dispatchFails atomic.Uint64
}

func NewRouter(logger *zap.Logger, eventCapacity int) *Router {
	return &Router{
		logger: logger,
		events: make(chan event, eventCapacity),
	}
}

func (r *Router) Post(id EventId, data any) error {
	select {
	case r.events <- event{id, data}:
		r.postCount.Add(1)
		return nil
	default:
		r.postFails.Add(1)
		return fmt.Errorf("%w: %s", ErrCapacityReached, id)
	}
}

func (r *Router) OnWindowRotatedEvent(ev common.WindowRotated) {
	if err := r.Post(WindowRotatedEvent, ev); err != nil {
		r.logger.Warn("window rotation not routed", zap.Uint64("rotation", ev.Rotation), zap.Error(err))
	}
}

func (r *Router) OnReductionFailedEvent(ev common.ReductionFailed) {
	if err := r.Post(ReductionFailedEvent, ev); err != nil {
		r.logger.Warn("reduction failure not routed", zap.Uint64("rotation", ev.Rotation), zap.Error(err))
	}
}

// Observer adapts the router to the restraint observer interface.
func (r *Router) Observer() Observer {
	return observer{r}
}

// Exec dispatches events until ctx is done. The returned channel receives
// the context error once.
func (r *Router) Exec(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		start := time.Now()
		defer func() {
			r.runTime.Add(int64(time.Since(start)))
		}()

		for {
			select {
			case <-ctx.Done():
				r.drain(ctx)
				done <- ctx.Err()
				return
			case ev := <-r.events:
				r.handle(ctx, ev)
			}
		}
	}()
	return done
}

// ExecLoop interleaves dispatching with doOnceCb, which runs whenever no
// event is pending. It stops on the first error of doOnceCb or when ctx is
// done.
func (r *Router) ExecLoop(ctx context.Context, doOnceCb func() error) <-chan error {
	done := make(chan error, 1)
	go func() {
		start := time.Now()
		defer func() {
			r.runTime.Add(int64(time.Since(start)))
		}()

		for {
			select {
			case <-ctx.Done():
				r.drain(ctx)
				done <- ctx.Err()
				return
			case ev := <-r.events:
				r.handle(ctx, ev)
			default:
				if err := doOnceCb(); err != nil {
					r.drain(ctx)
					done <- err
					return
				}
			}
		}
	}()
	return done
}

func (r *Router) GetStatistics() Statistics {
	runTime := time.Duration(r.runTime.Load())
	stats := Statistics{
		RunTime:       runTime,
		PostCount:     r.postCount.Load(),
		PostFails:     r.postFails.Load(),
		DispatchCount: r.dispatchCount.Load(),
		DispatchFails: r.dispatchFails.Load(),
	}
	if runTime > 0 {
		stats.Throughput = float64(stats.DispatchCount) / runTime.Seconds()
	}
	return stats
}

func (r *Router) PrintStatistics() {
	r.GetStatistics().Print(r.logger)
}

// drain dispatches events that were posted before shutdown.
func (r *Router) drain(ctx context.Context) {
	for {
		select {
		case ev := <-r.events:
			r.handle(ctx, ev)
		default:
			return
		}
	}
}

func (r *Router) handle(ctx context.Context, ev event) {
	r.dispatchCount.Add(1)
	if err := r.dispatch(ctx, ev); err != nil {
		r.dispatchFails.Add(1)
		r.logger.Warn("dispatch failed", zap.Stringer("event", ev.id), zap.Error(err))
	}
}

func (r *Router) dispatch(ctx context.Context, ev event) error {
	switch ev.id {
	case WindowRotatedEvent:
		rotated, ok := ev.data.(common.WindowRotated)
		if !ok {
			return errors.New("invalid type assertion for window rotated event")
		}
		if r.OnWindowRotated != nil {
			r.OnWindowRotated(ctx, rotated)
		} else {
			r.logger.Debug("window rotated handler is nil")
		}
	case ReductionFailedEvent:
		failed, ok := ev.data.(common.ReductionFailed)
		if !ok {
			return errors.New("invalid type assertion for reduction failed event")
		}
		if r.OnReductionFailed != nil {
			r.OnReductionFailed(ctx, failed)
		} else {
			r.logger.Debug("reduction failed handler is nil")
		}
	default:
		return fmt.Errorf("unsupported event id: %d", ev.id)
	}
	return nil
}
