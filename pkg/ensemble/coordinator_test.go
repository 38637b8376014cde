package ensemble

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/utility"
)

func startCoordinator(t *testing.T, members int) (*Coordinator, string) {
	t.Helper()
	coordinator := NewCoordinator(zap.NewNop(), members)
	srv := httptest.NewServer(coordinator)
	t.Cleanup(srv.Close)
	return coordinator, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func pendingRounds(c *Coordinator) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func TestEnsembleCoordinator_Reduce(t *testing.T) {
	coordinator, url := startCoordinator(t, 3)

	grids := [][]float64{{1, 0}, {2, 0}, {3, 1}}
	results := make([][]float64, len(grids))
	errs := make(chan error, len(grids))

	for i := range grids {
		client := NewClient(zap.NewNop(), url, utility.NewMemberID(), "pair")
		go func(idx int) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			reducer, err := client.Handle(ctx)
			if err != nil {
				errs <- err
				return
			}
			results[idx] = make([]float64, 2)
			errs <- reducer.Reduce(ctx, grids[idx], results[idx])
		}(i)
	}

	for range grids {
		require.NoError(t, <-errs)
	}
	for i := range grids {
		assert.Equal(t, []float64{6, 1}, results[i])
	}
	assert.Equal(t, uint64(1), coordinator.Completed())
}

func TestEnsembleCoordinator_SeparateRestraints(t *testing.T) {
	_, url := startCoordinator(t, 1)

	for _, name := range []string{"a", "b"} {
		client := NewClient(zap.NewNop(), url, utility.NewMemberID(), name)
		reducer, err := client.Handle(context.Background())
		require.NoError(t, err)

		receive := make([]float64, 1)
		require.NoError(t, reducer.Reduce(context.Background(), []float64{7}, receive))
		assert.Equal(t, []float64{7}, receive)
	}
}

func TestEnsembleCoordinator_TimeoutAbortsRound(t *testing.T) {
	coordinator, url := startCoordinator(t, 2)

	a := NewClient(zap.NewNop(), url, utility.NewMemberID(), "pair")
	b := NewClient(zap.NewNop(), url, utility.NewMemberID(), "pair")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	reducer, err := a.Handle(ctx)
	require.NoError(t, err)
	err = reducer.Reduce(ctx, []float64{1}, make([]float64, 1))
	require.ErrorIs(t, err, ErrAborted)

	require.Eventually(t, func() bool {
		return coordinator.Aborted() == 1 && pendingRounds(coordinator) == 0
	}, 2*time.Second, 5*time.Millisecond)

	errs := make(chan error, 2)
	results := make([][]float64, 2)
	for i, c := range []*Client{a, b} {
		go func(idx int, client *Client) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			reducer, err := client.Handle(ctx)
			if err != nil {
				errs <- err
				return
			}
			results[idx] = make([]float64, 1)
			errs <- reducer.Reduce(ctx, []float64{float64(idx + 1)}, results[idx])
		}(i, c)
	}
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	assert.Equal(t, []float64{3}, results[0])
	assert.Equal(t, []float64{3}, results[1])
	// The retry joined members at different attempt counts.
	assert.Equal(t, uint64(2), a.attempts.Load())
	assert.Equal(t, uint64(1), b.attempts.Load())
}

func TestEnsembleCoordinator_SizeMismatchFailsRound(t *testing.T) {
	coordinator, url := startCoordinator(t, 2)

	a := NewClient(zap.NewNop(), url, utility.NewMemberID(), "pair")
	b := NewClient(zap.NewNop(), url, utility.NewMemberID(), "pair")

	errA := make(chan error, 1)
	go func() {
		reducer, err := a.Handle(context.Background())
		if err != nil {
			errA <- err
			return
		}
		errA <- reducer.Reduce(context.Background(), []float64{1, 2}, make([]float64, 2))
	}()

	require.Eventually(t, func() bool {
		return pendingRounds(coordinator) == 1
	}, 2*time.Second, 5*time.Millisecond)

	reducer, err := b.Handle(context.Background())
	require.NoError(t, err)
	err = reducer.Reduce(context.Background(), []float64{1, 2, 3}, make([]float64, 3))
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, <-errA, ErrAborted)
}

func TestEnsembleClient_Unavailable(t *testing.T) {
	client := NewClient(zap.NewNop(), "ws://127.0.0.1:1/reduce", utility.NewMemberID(), "pair")
	_, err := client.Handle(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
