package simulation

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/bus"
	"github.com/peter-kozarec/ensemble/pkg/common"
	"github.com/peter-kozarec/ensemble/pkg/datasource"
	"github.com/peter-kozarec/ensemble/pkg/datasource/synthetic"
	"github.com/peter-kozarec/ensemble/pkg/ensemble"
	"github.com/peter-kozarec/ensemble/pkg/restraint"
)

func testConfiguration() restraint.Configuration {
	return restraint.Configuration{
		NBins:              20,
		MinDist:            0,
		MaxDist:            10,
		Experimental:       make([]float64, 20),
		NSamples:           10,
		SamplePeriod:       0.1,
		NWindows:           3,
		WindowUpdatePeriod: 1,
		K:                  1,
		Sigma:              0.5,
	}
}

func newTestSimulator(t *testing.T, name string, provider ensemble.ResourceProvider, cfg Configuration, options ...restraint.Option) *Simulator {
	t.Helper()
	r, err := restraint.NewRestraint(zap.NewNop(), testConfiguration(), provider, options...)
	require.NoError(t, err)
	return NewSimulator(zap.NewNop(), name, r, NewAudit(0.5), cfg)
}

func newGenerator(seed int64, steps int64) *synthetic.PairGenerator {
	return synthetic.NewPairGenerator(rand.New(rand.NewSource(seed)), common.Vector{}, 5, 1, 0.5, 0.1, steps)
}

type failingSource struct {
	after int
	err   error
	n     int
}

func (s *failingSource) GetNext() (common.Sample, error) {
	if s.n == s.after {
		return common.Sample{}, s.err
	}
	s.n++
	return common.Sample{Time: float64(s.n) * 0.1, Position: common.Vector{5, 0, 0}}, nil
}

func TestAudit_Report(t *testing.T) {
	audit := NewAudit(1)

	audit.AddStep(0.5, 4, 0, false)
	audit.AddStep(1.0, 100, 0, false)
	audit.AddStep(1.5, 6, 2, true)
	audit.AddStep(2.0, 100, 4, true)
	audit.AddReductionFailure()

	report := audit.GenerateReport()
	assert.Equal(t, 2, audit.Snapshots())
	assert.Equal(t, int64(4), report.Steps)
	assert.Equal(t, int64(2), report.ActiveSteps)
	assert.Equal(t, 1, report.ReductionFailures)
	assert.Equal(t, 0.5, report.StartTime)
	assert.Equal(t, 2.0, report.EndTime)
	assert.Equal(t, 3.0, report.MeanForce)
	assert.Equal(t, 4.0, report.MaxForce)
	assert.Equal(t, 5.0, report.MeanDistance)
	assert.Equal(t, 1.0, report.DistanceDeviation)
	assert.Equal(t, 6.0, report.MaxDistance)
}

func TestSimulator_OnSample(t *testing.T) {
	sim := newTestSimulator(t, "r0", ensemble.Solo{}, Configuration{})
	generator := newGenerator(1, 50)
	ctx := context.Background()

	for {
		sample, err := generator.GetNext()
		if err != nil {
			break
		}
		require.NoError(t, sim.OnSample(ctx, sample))
	}

	report := sim.Report()
	assert.Equal(t, "r0", report.Replica)
	assert.Equal(t, int64(50), report.Steps)
	assert.Equal(t, uint64(5), report.Rotations)
	assert.Positive(t, report.ActiveSteps)
	assert.Len(t, report.Histogram, 20)
	assert.Positive(t, report.HistogramL1())
	report.Print(zap.NewNop())
	sim.PrintDetails()
}

func TestSimulator_ReductionFailureIsRecoverable(t *testing.T) {
	failure := errors.New("coordinator unreachable")
	var calls int
	provider := ensemble.ProviderFunc(func(ctx context.Context) (ensemble.Reducer, error) {
		calls++
		if calls == 2 {
			return nil, failure
		}
		return ensemble.Solo{}.Handle(ctx)
	})
	sim := newTestSimulator(t, "r0", provider, Configuration{})

	executor := NewExecutor(zap.NewNop(), sim, newGenerator(2, 40), nil)
	require.NoError(t, executor.Run(context.Background()))

	report := sim.Report()
	assert.Equal(t, 1, report.ReductionFailures)
	assert.Equal(t, uint64(4), report.Rotations)
}

func TestSimulator_StopOnReductionFailure(t *testing.T) {
	failure := errors.New("coordinator unreachable")
	provider := ensemble.ProviderFunc(func(context.Context) (ensemble.Reducer, error) {
		return nil, failure
	})
	sim := newTestSimulator(t, "r0", provider, Configuration{StopOnReductionFailure: true})

	err := NewExecutor(zap.NewNop(), sim, newGenerator(2, 40), nil).Run(context.Background())
	assert.ErrorIs(t, err, restraint.ErrReduction)
	assert.ErrorIs(t, err, failure)
}

func TestExecutor_RoutesRotations(t *testing.T) {
	router := bus.NewRouter(zap.NewNop(), 16)
	var rotations []uint64
	router.OnWindowRotated = func(_ context.Context, ev common.WindowRotated) {
		rotations = append(rotations, ev.Rotation)
	}

	sim := newTestSimulator(t, "r0", ensemble.Solo{}, Configuration{}, restraint.WithObserver(router.Observer()))
	executor := NewExecutor(zap.NewNop(), sim, newGenerator(3, 35), router)

	require.NoError(t, executor.Run(context.Background()))
	assert.Equal(t, []uint64{1, 2, 3}, rotations)
	assert.Equal(t, uint64(0), router.GetStatistics().PostFails)
}

func TestExecutor_SourceError(t *testing.T) {
	failure := errors.New("corrupt trajectory")
	sim := newTestSimulator(t, "r0", ensemble.Solo{}, Configuration{})

	err := NewExecutor(zap.NewNop(), sim, &failingSource{after: 3, err: failure}, nil).Run(context.Background())
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, int64(3), sim.Report().Steps)
}

func TestExecutor_Cancelled(t *testing.T) {
	sim := newTestSimulator(t, "r0", ensemble.Solo{}, Configuration{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewExecutor(zap.NewNop(), sim, newGenerator(1, 10), nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunEnsemble(t *testing.T) {
	const members = 3
	local := ensemble.NewLocal(members)
	defer local.Close()

	replicas := make([]Replica, members)
	for i := range replicas {
		router := bus.NewRouter(zap.NewNop(), 16)
		sim := newTestSimulator(t, string(rune('a'+i)), local, Configuration{},
			restraint.WithObserver(router.Observer()), restraint.WithReduceTimeout(5*time.Second))
		replicas[i] = Replica{
			Executor:  NewExecutor(zap.NewNop(), sim, newGenerator(int64(i), 60), router),
			Simulator: sim,
		}
	}

	reports, err := RunEnsemble(context.Background(), zap.NewNop(), replicas)
	require.NoError(t, err)
	require.Len(t, reports, members)

	aggregator := NewAggregator()
	for _, report := range reports {
		assert.Equal(t, uint64(6), report.Rotations)
		aggregator.Add(report)
	}

	summary := aggregator.Summary()
	assert.True(t, summary.Consistent, "every member sees the same ensemble histogram")
	assert.Equal(t, members, summary.Replicas)
	assert.Equal(t, int64(members*60), summary.Steps)
	assert.Equal(t, reports[0].Histogram, summary.Histogram)
	summary.Print(zap.NewNop())
}

func TestRunEnsemble_UnequalLengths(t *testing.T) {
	local := ensemble.NewLocal(2)

	steps := []int64{25, 60}
	replicas := make([]Replica, len(steps))
	for i, n := range steps {
		sim := newTestSimulator(t, string(rune('a'+i)), local, Configuration{})
		replicas[i] = Replica{
			Executor:  NewExecutor(zap.NewNop(), sim, newGenerator(int64(i), n), nil),
			Simulator: sim,
			Leave:     local.Close,
		}
	}

	type result struct {
		reports []Report
		err     error
	}
	done := make(chan result, 1)
	go func() {
		reports, err := RunEnsemble(context.Background(), zap.NewNop(), replicas)
		done <- result{reports, err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Len(t, res.reports, 2)
		for _, report := range res.reports {
			assert.Equal(t, uint64(2), report.Rotations)
		}
		assert.Equal(t, int64(25), res.reports[0].Steps)
		assert.Less(t, res.reports[1].Steps, int64(60))
	case <-time.After(5 * time.Second):
		t.Fatal("longer replica kept waiting for a member that finished")
	}

	_, err := local.Handle(context.Background())
	assert.ErrorIs(t, err, ensemble.ErrClosed)
}

func TestRunEnsemble_FailureCancelsOthers(t *testing.T) {
	const members = 3
	local := ensemble.NewLocal(members)
	defer local.Close()

	failure := errors.New("corrupt trajectory")
	replicas := make([]Replica, members)
	for i := range replicas {
		sim := newTestSimulator(t, string(rune('a'+i)), local, Configuration{})
		var source datasource.SampleDataSource = newGenerator(int64(i), 60)
		if i == 0 {
			source = &failingSource{after: 5, err: failure}
		}
		replicas[i] = Replica{
			Executor:  NewExecutor(zap.NewNop(), sim, source, nil),
			Simulator: sim,
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := RunEnsemble(context.Background(), zap.NewNop(), replicas)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, failure)
	case <-time.After(5 * time.Second):
		t.Fatal("ensemble did not stop after a replica failed")
	}
}

func TestAggregator_Inconsistent(t *testing.T) {
	aggregator := NewAggregator()
	assert.Equal(t, Summary{Consistent: true}, aggregator.Summary())

	aggregator.Add(Report{Rotations: 3, Histogram: []float64{1, 2}, ActiveSteps: 2, MeanForce: 1, MaxForce: 2})
	aggregator.Add(Report{Rotations: 2, Histogram: []float64{1, 2}, ActiveSteps: 2, MeanForce: 3, MaxForce: 5})

	summary := aggregator.Summary()
	assert.False(t, summary.Consistent)
	assert.Equal(t, uint64(2), summary.Rotations)
	assert.Equal(t, 2.0, summary.MeanForce)
	assert.Equal(t, 5.0, summary.MaxForce)
}
