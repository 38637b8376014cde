package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gopkg.in/gcfg.v1"

	"github.com/peter-kozarec/ensemble/pkg/restraint"
)

var ErrNoRestraints = errors.New("config defines no restraint")

// File is the layout of an ensemble configuration:
//
//	[ensemble]
//	members = 4
//	reduce-timeout = 30s
//
//	[restraint "ab"]
//	nbins = 100
//	experimental = 0.0 0.1 0.2 ...
type File struct {
	Ensemble  Ensemble
	Synthetic Synthetic
	Restraint map[string]*Restraint
}

type Ensemble struct {
	Members       int    `gcfg:"members"`
	Coordinator   string `gcfg:"coordinator"`
	MemberID      string `gcfg:"member-id"`
	ReduceTimeout string `gcfg:"reduce-timeout"`
	Checkpoint    string `gcfg:"checkpoint"`
	MetricsAddr   string `gcfg:"metrics-addr"`

	SnapshotInterval float64 `gcfg:"snapshot-interval"`
	StopOnFailure    bool    `gcfg:"stop-on-failure"`
	EventCapacity    int     `gcfg:"event-capacity"`
}

type Synthetic struct {
	Seed      int64   `gcfg:"seed"`
	Steps     int64   `gcfg:"steps"`
	DeltaT    float64 `gcfg:"dt"`
	Mean      float64 `gcfg:"mean"`
	Reversion float64 `gcfg:"reversion"`
	Sigma     float64 `gcfg:"sigma"`

	DirectionNoise float64 `gcfg:"direction-noise"`
}

type Restraint struct {
	NBins              int      `gcfg:"nbins"`
	MinDist            float64  `gcfg:"min-dist"`
	MaxDist            float64  `gcfg:"max-dist"`
	Experimental       []string `gcfg:"experimental"`
	NSamples           int      `gcfg:"nsamples"`
	SamplePeriod       float64  `gcfg:"sample-period"`
	NWindows           int      `gcfg:"nwindows"`
	WindowUpdatePeriod float64  `gcfg:"window-update-period"`
	K                  float64  `gcfg:"k"`
	Sigma              float64  `gcfg:"sigma"`

	// Trajectory is a file path template; %d is replaced by the member
	// index.
	Trajectory string `gcfg:"trajectory"`
}

func defaults() File {
	return File{
		Ensemble: Ensemble{
			Members:          1,
			ReduceTimeout:    "0s",
			SnapshotInterval: 1,
			EventCapacity:    1024,
		},
		Synthetic: Synthetic{
			Seed:      1,
			Steps:     10000,
			DeltaT:    0.01,
			Mean:      5,
			Reversion: 1,
			Sigma:     0.5,

			DirectionNoise: 0.05,
		},
	}
}

// Load reads path and validates every restraint section.
func Load(path string) (*File, error) {
	file := defaults()
	if err := gcfg.ReadFileInto(&file, path); err != nil {
		return nil, fmt.Errorf("unable to read config %q: %w", path, err)
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &file, nil
}

// Parse reads a configuration from text.
func Parse(text string) (*File, error) {
	file := defaults()
	if err := gcfg.ReadStringInto(&file, text); err != nil {
		return nil, fmt.Errorf("unable to parse config: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

func (f *File) Validate() error {
	var err error
	if f.Ensemble.Members <= 0 {
		err = multierr.Append(err, fmt.Errorf("ensemble members must be positive, got %d", f.Ensemble.Members))
	}
	if _, parseErr := f.Ensemble.Timeout(); parseErr != nil {
		err = multierr.Append(err, parseErr)
	}
	if _, parseErr := f.Ensemble.Member(); parseErr != nil {
		err = multierr.Append(err, parseErr)
	}
	if f.Ensemble.EventCapacity <= 0 {
		err = multierr.Append(err, fmt.Errorf("event-capacity must be positive, got %d", f.Ensemble.EventCapacity))
	}
	if len(f.Restraint) == 0 {
		err = multierr.Append(err, ErrNoRestraints)
	}
	for _, name := range f.RestraintNames() {
		if _, cfgErr := f.Restraint[name].Configuration(); cfgErr != nil {
			err = multierr.Append(err, fmt.Errorf("restraint %q: %w", name, cfgErr))
		}
	}
	return err
}

// RestraintNames returns the restraint section names in sorted order.
func (f *File) RestraintNames() []string {
	names := make([]string, 0, len(f.Restraint))
	for name := range f.Restraint {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e Ensemble) Timeout() (time.Duration, error) {
	if e.ReduceTimeout == "" {
		return 0, nil
	}
	timeout, err := time.ParseDuration(e.ReduceTimeout)
	if err != nil {
		return 0, fmt.Errorf("reduce-timeout: %w", err)
	}
	if timeout < 0 {
		return 0, fmt.Errorf("reduce-timeout must not be negative, got %s", timeout)
	}
	return timeout, nil
}

// Member returns the configured member id, or a fresh one when unset.
func (e Ensemble) Member() (uuid.UUID, error) {
	if e.MemberID == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(e.MemberID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("member-id: %w", err)
	}
	return id, nil
}

func (r *Restraint) Configuration() (restraint.Configuration, error) {
	experimental, err := parseValues(r.Experimental)
	if err != nil {
		return restraint.Configuration{}, err
	}

	cfg := restraint.Configuration{
		NBins:              r.NBins,
		MinDist:            r.MinDist,
		MaxDist:            r.MaxDist,
		Experimental:       experimental,
		NSamples:           r.NSamples,
		SamplePeriod:       r.SamplePeriod,
		NWindows:           r.NWindows,
		WindowUpdatePeriod: r.WindowUpdatePeriod,
		K:                  r.K,
		Sigma:              r.Sigma,
	}
	if err := cfg.Validate(); err != nil {
		return restraint.Configuration{}, err
	}
	return cfg, nil
}

// TrajectoryPath returns the trajectory file of member, or "" when the
// restraint has no trajectory configured.
func (r *Restraint) TrajectoryPath(member int) string {
	if r.Trajectory == "" {
		return ""
	}
	if strings.Contains(r.Trajectory, "%d") {
		return fmt.Sprintf(r.Trajectory, member)
	}
	return r.Trajectory
}

// parseValues accepts any mix of repeated entries and whitespace or comma
// separated numbers within an entry.
func parseValues(entries []string) ([]float64, error) {
	var values []float64
	for _, entry := range entries {
		fields := strings.FieldsFunc(entry, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		for _, field := range fields {
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("experimental value %q: %w", field, err)
			}
			values = append(values, value)
		}
	}
	return values, nil
}
