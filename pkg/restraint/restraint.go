package restraint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/common"
	"github.com/peter-kozarec/ensemble/pkg/density"
	"github.com/peter-kozarec/ensemble/pkg/ensemble"
	"github.com/peter-kozarec/ensemble/pkg/utility"
	"github.com/peter-kozarec/ensemble/pkg/utility/circular"
)

const restraintComponentName = "restraint.ensemble"

var ErrReduction = errors.New("ensemble reduction failed")

// Checkpoint is the persistent part of a restraint: the retained windows,
// oldest first, and the rotation schedule.
type Checkpoint struct {
	Rotation             uint64
	SimTime              float64
	NextWindowUpdateTime float64
	Windows              [][]float64
}

// histogramState is published after every committed rotation and never
// mutated afterwards.
type histogramState struct {
	windows   int
	active    bool
	rotation  uint64
	histogram []float64
}

// Restraint biases the distance between two sites toward an experimental
// distribution. Distances are sampled periodically; every window update
// period the samples are smoothed, summed over the ensemble and pushed into
// a bounded window history. The force acts once the history is full.
//
// Callback and Calculate may be called concurrently. Rotations hold
// windowsMu and then samplesMu, in that order. Calculate reads the last
// published histogram and takes no lock.
type Restraint struct {
	logger        *zap.Logger
	name          string
	cfg           Configuration
	provider      ensemble.ResourceProvider
	observer      Observer
	blur          density.BlurToGrid
	binWidth      float64
	reduceTimeout time.Duration
	restore       *Checkpoint

	samplesMu      sync.Mutex
	samples        []float64
	currentSample  int
	nextSampleTime float64
	dropped        uint64

	windowsMu sync.Mutex
	windows   *circular.Buffer[[]float64]
	local     []float64
	spare     []float64
	// nextWindowUpdateTime advances by a fixed period on every rotation and
	// is never resynchronised with the simulation clock, so rounding drift
	// accumulates over long runs. nextSampleTime is resynchronised.
	nextWindowUpdateTime float64
	lastRotationTime     float64
	rotations            uint64

	state atomic.Pointer[histogramState]
}

func NewRestraint(logger *zap.Logger, cfg Configuration, provider ensemble.ResourceProvider, options ...Option) (*Restraint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: resource provider is nil", ErrInvalidConfiguration)
	}

	cfg.Experimental = append([]float64(nil), cfg.Experimental...)

	r := &Restraint{
		logger:               logger,
		name:                 restraintComponentName,
		cfg:                  cfg,
		provider:             provider,
		observer:             noopObserver{},
		blur:                 density.NewBlurToGrid(cfg.MinDist, cfg.MaxDist, cfg.Sigma),
		binWidth:             cfg.BinWidth(),
		samples:              make([]float64, cfg.NSamples),
		nextSampleTime:       cfg.SamplePeriod,
		windows:              circular.NewBuffer[[]float64](uint(cfg.NWindows)),
		local:                make([]float64, cfg.NBins),
		spare:                make([]float64, cfg.NBins),
		nextWindowUpdateTime: cfg.WindowUpdatePeriod,
	}

	for _, option := range options {
		option(r)
	}

	if r.restore != nil {
		if err := r.applyCheckpoint(*r.restore); err != nil {
			return nil, err
		}
		r.restore = nil
	}

	r.publish()
	return r, nil
}

func (r *Restraint) Name() string {
	return r.name
}

func (r *Restraint) Configuration() Configuration {
	cfg := r.cfg
	cfg.Experimental = append([]float64(nil), r.cfg.Experimental...)
	return cfg
}

// Callback records the current distance between v and v0 when a sample is
// due and rotates the window history when a window update is due. A failed
// reduction leaves the window history untouched and is returned wrapped in
// ErrReduction; the rotation is retried on the next call.
func (r *Restraint) Callback(ctx context.Context, v, v0 common.Vector, t float64) error {
	distance := v.Sub(v0).Norm()

	r.samplesMu.Lock()
	if t >= r.nextSampleTime {
		if r.currentSample < len(r.samples) {
			r.samples[r.currentSample] = distance
			r.currentSample++
		} else {
			r.dropped++
			r.logger.Debug("sample buffer full, dropping sample",
				zap.String("restraint", r.name),
				zap.Float64("t", t),
				zap.Float64("distance", distance))
		}
		r.nextSampleTime += r.cfg.SamplePeriod
	}
	r.samplesMu.Unlock()

	r.windowsMu.Lock()
	defer r.windowsMu.Unlock()
	r.samplesMu.Lock()
	defer r.samplesMu.Unlock()

	if t < r.nextWindowUpdateTime {
		return nil
	}
	return r.rotate(ctx, t)
}

// rotate expects windowsMu and samplesMu held.
func (r *Restraint) rotate(ctx context.Context, t float64) error {
	r.blur.Apply(r.samples[:r.currentSample], r.local)

	if r.reduceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.reduceTimeout)
		defer cancel()
	}

	reducer, err := r.provider.Handle(ctx)
	if err != nil {
		return r.rotationFailed(t, fmt.Errorf("acquire ensemble handle: %w", err))
	}

	combined := r.spare
	if err := reducer.Reduce(ctx, r.local, combined); err != nil {
		return r.rotationFailed(t, err)
	}

	if evicted, ok := r.windows.Push(combined); ok {
		r.spare = evicted
	} else {
		r.spare = make([]float64, r.cfg.NBins)
	}
	r.rotations++
	r.lastRotationTime = t
	r.nextWindowUpdateTime += r.cfg.WindowUpdatePeriod
	state := r.publish()

	sampled := r.currentSample
	r.currentSample = 0
	r.nextSampleTime = t + r.cfg.SamplePeriod

	r.logger.Debug("window rotated",
		zap.String("restraint", r.name),
		zap.Uint64("rotation", r.rotations),
		zap.Float64("t", t),
		zap.Int("samples", sampled),
		zap.Int("windows", state.windows),
		zap.Float64("next_update", r.nextWindowUpdateTime))

	r.observer.OnWindowRotated(common.WindowRotated{
		Source:    r.name,
		RunID:     utility.GetRunID(),
		EventID:   utility.NextEventID(),
		TimeStamp: time.Now(),
		Restraint: r.name,
		Rotation:  r.rotations,
		SimTime:   t,
		NextTime:  r.nextWindowUpdateTime,
		Windows:   r.windowsCopy(),
		Histogram: append([]float64(nil), state.histogram...),
	})
	return nil
}

func (r *Restraint) rotationFailed(t float64, err error) error {
	r.logger.Warn("ensemble reduction failed, keeping previous windows",
		zap.String("restraint", r.name),
		zap.Float64("t", t),
		zap.Uint64("rotation", r.rotations+1),
		zap.Error(err))

	r.observer.OnReductionFailed(common.ReductionFailed{
		Source:    r.name,
		RunID:     utility.GetRunID(),
		EventID:   utility.NextEventID(),
		TimeStamp: time.Now(),
		Restraint: r.name,
		Rotation:  r.rotations + 1,
		SimTime:   t,
		Err:       err,
		Reason:    err.Error(),
	})
	return fmt.Errorf("%w: restraint %q at t=%g: %w", ErrReduction, r.name, t, err)
}

// publish recomputes the combined histogram, the sum of all windows minus
// the experimental density, and makes it visible to Calculate. It expects
// windowsMu held or the restraint not yet shared.
func (r *Restraint) publish() *histogramState {
	histogram := make([]float64, r.cfg.NBins)
	r.windows.ForEachFifo(func(window []float64) {
		for i, v := range window {
			histogram[i] += v
		}
	})
	for i, v := range r.cfg.Experimental {
		histogram[i] -= v
	}

	state := &histogramState{
		windows:   int(r.windows.Size()),
		active:    r.windows.IsFull(),
		rotation:  r.rotations,
		histogram: histogram,
	}
	r.state.Store(state)
	return state
}

func (r *Restraint) applyCheckpoint(checkpoint Checkpoint) error {
	windows := checkpoint.Windows
	if len(windows) > r.cfg.NWindows {
		windows = windows[len(windows)-r.cfg.NWindows:]
	}
	for i, window := range windows {
		if len(window) != r.cfg.NBins {
			return fmt.Errorf("%w: checkpoint window %d has %d bins, expected %d",
				ErrInvalidConfiguration, i, len(window), r.cfg.NBins)
		}
		r.windows.Push(append([]float64(nil), window...))
	}

	r.rotations = checkpoint.Rotation
	r.lastRotationTime = checkpoint.SimTime
	if checkpoint.NextWindowUpdateTime > 0 {
		r.nextWindowUpdateTime = checkpoint.NextWindowUpdateTime
		r.nextSampleTime = checkpoint.SimTime + r.cfg.SamplePeriod
	}

	r.logger.Info("restored window history",
		zap.String("restraint", r.name),
		zap.Uint64("rotation", r.rotations),
		zap.Int("windows", len(windows)),
		zap.Float64("next_update", r.nextWindowUpdateTime))
	return nil
}

func (r *Restraint) windowsCopy() [][]float64 {
	out := r.windows.Data()
	for i, window := range out {
		out[i] = append([]float64(nil), window...)
	}
	return out
}

// Checkpoint returns the state needed to resume the window history.
func (r *Restraint) Checkpoint() Checkpoint {
	r.windowsMu.Lock()
	defer r.windowsMu.Unlock()

	return Checkpoint{
		Rotation:             r.rotations,
		SimTime:              r.lastRotationTime,
		NextWindowUpdateTime: r.nextWindowUpdateTime,
		Windows:              r.windowsCopy(),
	}
}

// Windows returns copies of the retained windows, oldest first.
func (r *Restraint) Windows() [][]float64 {
	r.windowsMu.Lock()
	defer r.windowsMu.Unlock()
	return r.windowsCopy()
}

func (r *Restraint) WindowCount() int {
	return r.state.Load().windows
}

func (r *Restraint) Rotations() uint64 {
	return r.state.Load().rotation
}

// IsActive reports whether the window history is full and forces apply.
func (r *Restraint) IsActive() bool {
	return r.state.Load().active
}

// Histogram returns a copy of the combined histogram.
func (r *Restraint) Histogram() []float64 {
	return append([]float64(nil), r.state.Load().histogram...)
}

func (r *Restraint) SampleCount() int {
	r.samplesMu.Lock()
	defer r.samplesMu.Unlock()
	return r.currentSample
}

func (r *Restraint) DroppedSamples() uint64 {
	r.samplesMu.Lock()
	defer r.samplesMu.Unlock()
	return r.dropped
}

func (r *Restraint) NextSampleTime() float64 {
	r.samplesMu.Lock()
	defer r.samplesMu.Unlock()
	return r.nextSampleTime
}

func (r *Restraint) NextWindowUpdateTime() float64 {
	r.windowsMu.Lock()
	defer r.windowsMu.Unlock()
	return r.nextWindowUpdateTime
}
