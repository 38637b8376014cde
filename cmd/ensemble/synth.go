package main

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/common"
	"github.com/peter-kozarec/ensemble/pkg/config"
	"github.com/peter-kozarec/ensemble/pkg/data/mapper"
	"github.com/peter-kozarec/ensemble/pkg/datasource"
	"github.com/peter-kozarec/ensemble/pkg/datasource/synthetic"
)

func synthCommand() *cli.Command {
	return &cli.Command{
		Name:  "synth",
		Usage: "write synthetic pair trajectories, one file per member",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Value: "trajectory-%d.bin",
				Usage: "output path template, %d is the member index",
			},
			&cli.IntFlag{
				Name:    "members",
				Aliases: []string{"n"},
				Value:   1,
			},
			&cli.Int64Flag{Name: "seed", Value: 1},
			&cli.Int64Flag{Name: "steps", Value: 10000},
			&cli.Float64Flag{Name: "dt", Value: 0.01, Usage: "time between samples"},
			&cli.Float64Flag{Name: "mean", Value: 5, Usage: "mean separation"},
			&cli.Float64Flag{Name: "reversion", Value: 1, Usage: "mean reversion rate"},
			&cli.Float64Flag{Name: "sigma", Value: 0.5, Usage: "separation noise"},
			&cli.Float64Flag{Name: "direction-noise", Value: 0.05, Usage: "direction random walk strength, 0 keeps it fixed"},
		},
		Action: synth,
	}
}

func synth(c *cli.Context) error {
	logger, _, cancel := setup(c)
	defer cancel()
	defer syncLogger(logger)

	params := config.Synthetic{
		Seed:      c.Int64("seed"),
		Steps:     c.Int64("steps"),
		DeltaT:    c.Float64("dt"),
		Mean:      c.Float64("mean"),
		Reversion: c.Float64("reversion"),
		Sigma:     c.Float64("sigma"),

		DirectionNoise: c.Float64("direction-noise"),
	}

	for member := 0; member < c.Int("members"); member++ {
		path := fmt.Sprintf(c.String("out"), member)
		count, err := writeTrajectory(path, newGenerator(params, member))
		if err != nil {
			return err
		}
		logger.Info("trajectory written",
			zap.Int("member", member),
			zap.String("path", path),
			zap.Int64("samples", count))
	}
	return nil
}

func newGenerator(params config.Synthetic, member int) *synthetic.PairGenerator {
	rng := rand.New(rand.NewSource(params.Seed + int64(member)))
	g := synthetic.NewPairGenerator(rng, common.Vector{}, params.Mean, params.Reversion, params.Sigma, params.DeltaT, params.Steps)
	g.SetDirectionNoise(params.DirectionNoise)
	return g
}

func writeTrajectory(path string, source datasource.SampleDataSource) (int64, error) {
	w := mapper.NewWriter[mapper.BinarySample](path)
	if err := w.Create(); err != nil {
		return 0, err
	}

	for {
		sample, err := source.GetNext()
		if errors.Is(err, datasource.ErrEof) {
			break
		}
		if err != nil {
			_ = w.Close()
			return w.Count(), err
		}
		if err := w.Write(mapper.FromSample(sample)); err != nil {
			_ = w.Close()
			return w.Count(), err
		}
	}
	return w.Count(), w.Close()
}
