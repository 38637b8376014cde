package simulation

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/bus"
	"github.com/peter-kozarec/ensemble/pkg/common"
	"github.com/peter-kozarec/ensemble/pkg/datasource"
	"github.com/peter-kozarec/ensemble/pkg/ensemble"
)

// Executor replays a sample data source through a simulator. With a router
// the rotation events posted during a step are dispatched between steps.
type Executor struct {
	logger    *zap.Logger
	simulator *Simulator
	source    datasource.SampleDataSource
	router    *bus.Router
}

func NewExecutor(logger *zap.Logger, simulator *Simulator, source datasource.SampleDataSource, router *bus.Router) *Executor {
	return &Executor{
		logger:    logger,
		simulator: simulator,
		source:    source,
		router:    router,
	}
}

// Run feeds samples until the data source is exhausted, the simulator fails
// or ctx is done. Exhausting the data source is not an error, and neither is
// the ensemble closing because another member left.
func (e *Executor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	step := datasource.CreateSampleDispatcher(e.source, func(sample common.Sample) error {
		return e.simulator.OnSample(ctx, sample)
	})

	var err error
	if e.router != nil {
		err = <-e.router.ExecLoop(ctx, step)
	} else {
		for err == nil {
			if err = ctx.Err(); err == nil {
				err = step()
			}
		}
	}

	if errors.Is(err, datasource.ErrEof) {
		e.logger.Debug("data source exhausted", zap.String("replica", e.simulator.name))
		return nil
	}
	if errors.Is(err, ensemble.ErrClosed) {
		e.logger.Info("ensemble closed, leaving", zap.String("replica", e.simulator.name))
		return nil
	}
	return err
}
