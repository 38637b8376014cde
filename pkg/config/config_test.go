package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/ensemble/pkg/restraint"
)

const sampleConfig = `
[ensemble]
members = 3
coordinator = ws://localhost:8080/reduce
member-id = 6f1c2d9e-8a43-4b51-9a0e-2c7f5d3b1a11
reduce-timeout = 45s
checkpoint = windows.duckdb
stop-on-failure = true

[synthetic]
seed = 7
steps = 500
direction-noise = 0.2

[restraint "ab"]
nbins = 4
min-dist = 0
max-dist = 8
experimental = 0.1 0.2
experimental = 0.3,0.4
nsamples = 10
sample-period = 0.5
nwindows = 2
window-update-period = 5
k = 10
sigma = 1
trajectory = traj-%d.bin

[restraint "cd"]
nbins = 1
min-dist = 1
max-dist = 2
experimental = 1
nsamples = 1
sample-period = 1
nwindows = 1
window-update-period = 1
k = 1
sigma = 0.1
`

func TestConfig_Parse(t *testing.T) {
	file, err := Parse(sampleConfig)
	require.NoError(t, err)

	assert.Equal(t, 3, file.Ensemble.Members)
	assert.Equal(t, "ws://localhost:8080/reduce", file.Ensemble.Coordinator)
	assert.True(t, file.Ensemble.StopOnFailure)
	assert.Equal(t, 1.0, file.Ensemble.SnapshotInterval, "defaults survive")
	assert.Equal(t, 1024, file.Ensemble.EventCapacity)
	assert.Equal(t, int64(7), file.Synthetic.Seed)
	assert.Equal(t, int64(500), file.Synthetic.Steps)
	assert.Equal(t, 0.01, file.Synthetic.DeltaT)
	assert.Equal(t, 0.2, file.Synthetic.DirectionNoise)

	timeout, err := file.Ensemble.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, timeout)

	member, err := file.Ensemble.Member()
	require.NoError(t, err)
	assert.Equal(t, "6f1c2d9e-8a43-4b51-9a0e-2c7f5d3b1a11", member.String())

	assert.Equal(t, []string{"ab", "cd"}, file.RestraintNames())

	cfg, err := file.Restraint["ab"].Configuration()
	require.NoError(t, err)
	assert.Equal(t, restraint.Configuration{
		NBins:              4,
		MinDist:            0,
		MaxDist:            8,
		Experimental:       []float64{0.1, 0.2, 0.3, 0.4},
		NSamples:           10,
		SamplePeriod:       0.5,
		NWindows:           2,
		WindowUpdatePeriod: 5,
		K:                  10,
		Sigma:              1,
	}, cfg)

	assert.Equal(t, "traj-2.bin", file.Restraint["ab"].TrajectoryPath(2))
	assert.Equal(t, "", file.Restraint["cd"].TrajectoryPath(0))
}

func TestConfig_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ensemble.gcfg")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	file, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, file.Restraint, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.gcfg"))
	assert.Error(t, err)
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr string
	}{
		{"no restraint", "[ensemble]\nmembers = 2\n", "config defines no restraint"},
		{"bad members", "[ensemble]\nmembers = 0\n[restraint \"a\"]\nnbins = 1\n", "members must be positive"},
		{"bad timeout", "[ensemble]\nreduce-timeout = soon\n", "reduce-timeout"},
		{"bad member id", "[ensemble]\nmember-id = nope\n", "member-id"},
		{"experimental count", `
[restraint "a"]
nbins = 2
max-dist = 1
experimental = 1
nsamples = 1
sample-period = 1
nwindows = 1
window-update-period = 1
sigma = 1
`, "experimental must have 2 values, got 1"},
		{"experimental not a number", "[restraint \"a\"]\nexperimental = x\n", "experimental value \"x\""},
		{"unknown variable", "[ensemble]\ncolour = blue\n", "colour"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_InvalidRestraintNamesSection(t *testing.T) {
	_, err := Parse("[restraint \"a\"]\nnbins = 0\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, restraint.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), `restraint "a"`)
}

func TestEnsemble_MemberGenerated(t *testing.T) {
	a, err := Ensemble{}.Member()
	require.NoError(t, err)
	b, err := Ensemble{}.Member()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
