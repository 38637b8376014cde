package main

import (
	"context"
	"fmt"
	"math"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/bus"
	"github.com/peter-kozarec/ensemble/pkg/config"
	"github.com/peter-kozarec/ensemble/pkg/data/duckdb"
	"github.com/peter-kozarec/ensemble/pkg/data/mapper"
	"github.com/peter-kozarec/ensemble/pkg/datasource"
	"github.com/peter-kozarec/ensemble/pkg/datasource/historical"
	"github.com/peter-kozarec/ensemble/pkg/ensemble"
	"github.com/peter-kozarec/ensemble/pkg/middleware"
	"github.com/peter-kozarec/ensemble/pkg/restraint"
	"github.com/peter-kozarec/ensemble/pkg/simulation"
	"github.com/peter-kozarec/ensemble/pkg/utility"
)

const monitorFlags = middleware.MonitorRotations | middleware.MonitorFailures

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "replay member trajectories through the configured restraints",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Required: true,
				Usage:    "gcfg configuration file",
			},
			&cli.IntFlag{
				Name:  "member",
				Value: -1,
				Usage: "with a coordinator, the index of the member this process runs",
			},
			&cli.BoolFlag{
				Name:  "synthetic",
				Usage: "generate trajectories instead of reading them",
			},
			&cli.StringFlag{Name: "pushover-user", EnvVars: []string{"PUSHOVER_USER"}},
			&cli.StringFlag{Name: "pushover-token", EnvVars: []string{"PUSHOVER_TOKEN"}},
			&cli.IntFlag{
				Name:  "pushover-threshold",
				Value: 3,
				Usage: "consecutive reduction failures before a notification",
			},
		},
		Action: run,
	}
}

type runner struct {
	logger    *zap.Logger
	file      *config.File
	c         *cli.Context
	store     *duckdb.Store
	telemetry *middleware.Telemetry
	pushover  *middleware.Pushover
	timeout   restraint.Option

	routers      []*bus.Router
	performances []*middleware.Performance
	closers      []func()
	replicas     map[string][]simulation.Replica
	restraints   map[string]*restraint.Restraint
}

func run(c *cli.Context) error {
	logger, ctx, cancel := setup(c)
	defer cancel()
	defer syncLogger(logger)

	file, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	logger.Info(fmt.Sprintf("%s %s", AppName, AppVersion), zap.Stringer("run_id", utility.GetRunID()))
	defer logger.Info("done")

	r := &runner{
		logger:     logger,
		file:       file,
		c:          c,
		replicas:   make(map[string][]simulation.Replica),
		restraints: make(map[string]*restraint.Restraint),
	}
	defer r.close()

	if err := r.setup(ctx); err != nil {
		return err
	}

	members, err := r.members()
	if err != nil {
		return err
	}

	var all []simulation.Replica
	for _, name := range file.RestraintNames() {
		if err := r.build(ctx, name, members); err != nil {
			return err
		}
		all = append(all, r.replicas[name]...)
	}

	reports, runErr := simulation.RunEnsemble(ctx, logger, all)
	if err := r.saveCheckpoints(context.WithoutCancel(ctx)); err != nil {
		runErr = multierr.Append(runErr, err)
	}

	for i, router := range r.routers {
		router.PrintStatistics()
		r.performances[i].PrintStatistics()
	}
	r.telemetry.PrintStatistics()

	offset := 0
	for _, name := range file.RestraintNames() {
		aggregator := simulation.NewAggregator()
		for range r.replicas[name] {
			reports[offset].Print(logger)
			aggregator.Add(reports[offset])
			offset++
		}
		logger.Info("restraint summary", zap.String("restraint", name))
		aggregator.Summary().Print(logger)
	}
	return runErr
}

func (r *runner) setup(ctx context.Context) error {
	ens := r.file.Ensemble

	timeout, err := ens.Timeout()
	if err != nil {
		return err
	}
	r.timeout = restraint.WithReduceTimeout(timeout)

	if ens.Checkpoint != "" {
		r.store = duckdb.NewStore(ens.Checkpoint)
		if err := r.store.Connect(); err != nil {
			return err
		}
		r.closers = append(r.closers, r.store.Close)
		if err := r.store.Migrate(ctx); err != nil {
			return err
		}
		stored, err := r.store.Restraints(ctx)
		if err != nil {
			return err
		}
		for _, name := range stored {
			if _, ok := r.file.Restraint[name]; !ok {
				r.logger.Warn("checkpoint without a configured restraint", zap.String("restraint", name))
			}
		}
		r.logger.Info("checkpoint store ready", zap.String("dsn", ens.Checkpoint), zap.Strings("restraints", stored))
	}

	registry := prometheus.NewRegistry()
	if r.telemetry, err = middleware.NewTelemetry(r.logger, registry); err != nil {
		return err
	}
	if ens.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := listenAndServe(ctx, r.logger, ens.MetricsAddr, mux); err != nil {
				r.logger.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	if token := r.c.String("pushover-token"); token != "" {
		r.pushover = middleware.NewPushover(r.logger, r.c.String("pushover-user"), token, AppName, r.c.Int("pushover-threshold"))
	}
	return nil
}

// members returns the member indices this process runs: all of them for an
// in-process ensemble, the selected one against a coordinator.
func (r *runner) members() ([]int, error) {
	ens := r.file.Ensemble
	if ens.Coordinator == "" {
		members := make([]int, ens.Members)
		for i := range members {
			members[i] = i
		}
		return members, nil
	}

	member := r.c.Int("member")
	if member < 0 || member >= ens.Members {
		return nil, fmt.Errorf("--member must be in [0, %d) with a coordinator, got %d", ens.Members, member)
	}
	return []int{member}, nil
}

func (r *runner) provider(name string) (ensemble.ResourceProvider, error) {
	ens := r.file.Ensemble
	if ens.Coordinator == "" {
		if ens.Members == 1 {
			return ensemble.Solo{}, nil
		}
		local := ensemble.NewLocal(ens.Members)
		r.closers = append(r.closers, local.Close)
		return local, nil
	}

	member, err := ens.Member()
	if err != nil {
		return nil, err
	}
	return ensemble.NewClient(r.logger, ens.Coordinator, member, name), nil
}

func (r *runner) build(ctx context.Context, name string, members []int) error {
	section := r.file.Restraint[name]
	cfg, err := section.Configuration()
	if err != nil {
		return err
	}

	provider, err := r.provider(name)
	if err != nil {
		return err
	}

	var leave func()
	if local, ok := provider.(*ensemble.Local); ok {
		leave = local.Close
	}

	var restore []restraint.Option
	if r.store != nil {
		checkpoint, ok, err := r.store.LoadWindows(ctx, name)
		if err != nil {
			return err
		}
		if ok {
			restore = append(restore, restraint.WithCheckpoint(checkpoint))
		}
	}

	monitor := middleware.NewMonitor(r.logger, monitorFlags)
	for _, member := range members {
		router := bus.NewRouter(r.logger, r.file.Ensemble.EventCapacity)
		performance := middleware.NewPerformance(r.logger)
		r.routers = append(r.routers, router)
		r.performances = append(r.performances, performance)

		rotated := r.telemetry.WithWindowRotated(monitor.WithWindowRotated(middleware.NoopRotatedHdl))
		failed := r.telemetry.WithReductionFailed(monitor.WithReductionFailed(middleware.NoopFailedHdl))
		if r.store != nil && member == members[0] {
			rotated = middleware.NewLedger(r.logger, r.store).WithWindowRotated(rotated)
		}
		if r.pushover != nil {
			rotated = r.pushover.WithWindowRotated(rotated)
			failed = r.pushover.WithReductionFailed(failed)
		}
		router.OnWindowRotated = performance.WithWindowRotated(rotated)
		router.OnReductionFailed = performance.WithReductionFailed(failed)

		options := append([]restraint.Option{
			restraint.WithName(name),
			restraint.WithObserver(router.Observer()),
			r.timeout,
		}, restore...)
		rst, err := restraint.NewRestraint(r.logger, cfg, provider, options...)
		if err != nil {
			return fmt.Errorf("restraint %q: %w", name, err)
		}

		source, err := r.source(section, member)
		if err != nil {
			return fmt.Errorf("restraint %q member %d: %w", name, member, err)
		}

		if member == members[0] {
			r.restraints[name] = rst
		}

		replica := fmt.Sprintf("%s/%d", name, member)
		sim := simulation.NewSimulator(r.logger, replica, rst, simulation.NewAudit(r.file.Ensemble.SnapshotInterval), simulation.Configuration{
			SnapshotInterval:       r.file.Ensemble.SnapshotInterval,
			StopOnReductionFailure: r.file.Ensemble.StopOnFailure,
		})
		sim.PrintDetails()

		r.replicas[name] = append(r.replicas[name], simulation.Replica{
			Executor:  simulation.NewExecutor(r.logger, sim, source, router),
			Simulator: sim,
			Leave:     leave,
		})
	}
	return nil
}

func (r *runner) source(section *config.Restraint, member int) (datasource.SampleDataSource, error) {
	path := section.TrajectoryPath(member)
	if r.c.Bool("synthetic") || path == "" {
		return newGenerator(r.file.Synthetic, member), nil
	}

	reader := mapper.NewReader[mapper.BinarySample](path)
	if err := reader.Open(); err != nil {
		return nil, err
	}
	r.closers = append(r.closers, reader.Close)
	return historical.NewTrajectoryReader(reader, math.Inf(-1), math.Inf(1)), nil
}

// saveCheckpoints stores the final window history of every restraint. Members
// share the ensemble histogram, so the first member's restraint speaks for
// all of them.
func (r *runner) saveCheckpoints(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	var err error
	for _, name := range r.file.RestraintNames() {
		rst, ok := r.restraints[name]
		if !ok {
			continue
		}
		err = multierr.Append(err, r.store.SaveWindows(ctx, name, rst.Checkpoint()))
	}
	return err
}

func (r *runner) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}
