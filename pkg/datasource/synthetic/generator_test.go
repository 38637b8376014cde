package synthetic

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/ensemble/pkg/common"
)

func TestPairGenerator_Steps(t *testing.T) {
	g := NewPairGenerator(rand.New(rand.NewSource(1)), common.Vector{1, 2, 3}, 5, 1, 0.5, 0.1, 10)

	for i := 1; i <= 10; i++ {
		sample, err := g.GetNext()
		require.NoError(t, err)
		assert.InDelta(t, float64(i)*0.1, sample.Time, 1e-12)
		assert.Equal(t, common.Vector{1, 2, 3}, sample.Reference)
	}

	_, err := g.GetNext()
	assert.ErrorIs(t, err, ErrEof)
}

func TestPairGenerator_Deterministic(t *testing.T) {
	a := NewPairGenerator(rand.New(rand.NewSource(42)), common.Vector{}, 5, 1, 0.5, 0.1, 100)
	b := NewPairGenerator(rand.New(rand.NewSource(42)), common.Vector{}, 5, 1, 0.5, 0.1, 100)

	for i := 0; i < 100; i++ {
		sa, err := a.GetNext()
		require.NoError(t, err)
		sb, err := b.GetNext()
		require.NoError(t, err)
		assert.Equal(t, sa, sb)
	}
}

func TestPairGenerator_MeanReversion(t *testing.T) {
	g := NewPairGenerator(rand.New(rand.NewSource(3)), common.Vector{}, 6, 2, 0.3, 0.01, 20000)
	g.SetDistance(1)

	var sum float64
	var n int
	for {
		sample, err := g.GetNext()
		if err != nil {
			require.ErrorIs(t, err, ErrEof)
			break
		}
		if sample.Time > 10 {
			sum += sample.Distance()
			n++
		}
	}
	require.Positive(t, n)
	assert.InDelta(t, 6, sum/float64(n), 0.1)
}

func TestPairGenerator_MinDistance(t *testing.T) {
	g := NewPairGenerator(rand.New(rand.NewSource(5)), common.Vector{}, 0.2, 1, 2, 0.1, 5000)
	g.SetMinDistance(0.1)

	for {
		sample, err := g.GetNext()
		if err != nil {
			break
		}
		assert.GreaterOrEqual(t, sample.Distance(), 0.1-1e-12)
	}
}

func TestPairGenerator_DirectionStaysUnit(t *testing.T) {
	g := NewPairGenerator(rand.New(rand.NewSource(9)), common.Vector{}, 3, 1, 0, 0.1, 200)
	g.SetDirectionNoise(0.5)

	for i := 0; i < 200; i++ {
		sample, err := g.GetNext()
		require.NoError(t, err)
		assert.InDelta(t, 3, sample.Distance(), 1e-9)
	}
	assert.InDelta(t, 1, g.direction.Norm(), 1e-12)
	assert.False(t, math.IsNaN(g.distance))
}
