package simulation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Replica is one member of an ensemble run. Leave, when set, runs as soon as
// the replica stops; an in-process ensemble closes its reducer there so the
// members still running stop waiting for it.
type Replica struct {
	Executor  *Executor
	Simulator *Simulator
	Leave     func()
}

// RunEnsemble runs every replica on its own goroutine. The first failing
// replica cancels the others. A replica running out of samples leaves the
// ensemble, and the members sharing its reducer stop at their next rotation.
func RunEnsemble(ctx context.Context, logger *zap.Logger, replicas []Replica) ([]Report, error) {
	g, ctx := errgroup.WithContext(ctx)

	start := time.Now()
	for _, replica := range replicas {
		g.Go(func() error {
			if replica.Leave != nil {
				defer replica.Leave()
			}
			if err := replica.Executor.Run(ctx); err != nil {
				return fmt.Errorf("replica %s: %w", replica.Simulator.name, err)
			}
			return nil
		})
	}

	err := g.Wait()

	reports := make([]Report, len(replicas))
	for i, replica := range replicas {
		reports[i] = replica.Simulator.Report()
	}

	logger.Info("ensemble finished",
		zap.Int("replicas", len(replicas)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return reports, err
}
