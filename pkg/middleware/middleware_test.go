package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/common"
)

type memoryStore struct {
	saved []common.WindowRotated
	err   error
}

func (s *memoryStore) SaveRotation(_ context.Context, ev common.WindowRotated) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, ev)
	return nil
}

func TestMiddlewareTelemetry(t *testing.T) {
	registry := prometheus.NewRegistry()
	telemetry, err := NewTelemetry(zap.NewNop(), registry)
	require.NoError(t, err)

	rotated := telemetry.WithWindowRotated(NoopRotatedHdl)
	failed := telemetry.WithReductionFailed(NoopFailedHdl)

	rotated(context.Background(), rotatedEvent())
	rotated(context.Background(), rotatedEvent())
	failed(context.Background(), common.ReductionFailed{Restraint: "ab", SimTime: 25})
	failed(context.Background(), common.ReductionFailed{Restraint: "cd", SimTime: 5})

	assert.Equal(t, 2.0, testutil.ToFloat64(telemetry.rotations.WithLabelValues("ab")))
	assert.Equal(t, 1.0, testutil.ToFloat64(telemetry.failures.WithLabelValues("ab")))
	assert.Equal(t, 1.0, testutil.ToFloat64(telemetry.failures.WithLabelValues("cd")))
	assert.Equal(t, 2.0, testutil.ToFloat64(telemetry.windows.WithLabelValues("ab")))
	assert.Equal(t, 2.0, testutil.ToFloat64(telemetry.histogramL1.WithLabelValues("ab")))
	assert.Equal(t, 25.0, testutil.ToFloat64(telemetry.simTime.WithLabelValues("ab")))
	assert.Equal(t, int64(2), telemetry.rotatedEventCounter.Load())
	assert.Equal(t, int64(2), telemetry.failedEventCounter.Load())

	telemetry.PrintStatistics()
}

func TestMiddlewareTelemetry_DuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewTelemetry(zap.NewNop(), registry)
	require.NoError(t, err)

	_, err = NewTelemetry(zap.NewNop(), registry)
	assert.Error(t, err)
}

func TestMiddlewarePerformance(t *testing.T) {
	p := NewPerformance(zap.NewNop())

	var calls int
	wrapped := p.WithWindowRotated(func(context.Context, common.WindowRotated) { calls++ })
	for i := 0; i < 3; i++ {
		wrapped(context.Background(), rotatedEvent())
	}
	p.WithReductionFailed(NoopFailedHdl)(context.Background(), common.ReductionFailed{})

	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(3), p.rotatedCalls)
	assert.Equal(t, int64(1), p.failedCalls)
	assert.GreaterOrEqual(t, p.totalRotatedHandlerDur, average(p.totalRotatedHandlerDur, p.rotatedCalls))
	assert.Zero(t, average(0, 0))
	p.PrintStatistics()
}

func TestMiddlewareLedger(t *testing.T) {
	logger, logs := setupTestLogger(t)

	store := &memoryStore{}
	var calls int
	wrapped := NewLedger(logger, store).WithWindowRotated(func(context.Context, common.WindowRotated) { calls++ })

	wrapped(context.Background(), rotatedEvent())
	require.Len(t, store.saved, 1)
	assert.Equal(t, uint64(3), store.saved[0].Rotation)

	store.err = errors.New("disk full")
	wrapped(context.Background(), rotatedEvent())
	assert.Len(t, store.saved, 1)
	assert.Equal(t, 2, calls, "store failures do not break the chain")
	assert.Equal(t, 1, logs.FilterMessage("unable to store window rotation").Len())
}

func TestMiddlewarePushover(t *testing.T) {
	var mu sync.Mutex
	var messages []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		mu.Lock()
		messages = append(messages, r.PostForm.Get("message"))
		mu.Unlock()
		assert.Equal(t, "token", r.PostForm.Get("token"))
		assert.Equal(t, "user", r.PostForm.Get("user"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	sent := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), messages...)
	}

	p := NewPushover(zap.NewNop(), "user", "token", "device", 2)
	p.endpoint = server.URL
	p.client = server.Client()

	rotated := p.WithWindowRotated(NoopRotatedHdl)
	failed := p.WithReductionFailed(NoopFailedHdl)
	ctx := context.Background()
	failure := common.ReductionFailed{Restraint: "ab", Rotation: 4, Reason: "timeout"}

	failed(ctx, failure)
	assert.Empty(t, sent())

	failed(ctx, failure)
	require.Len(t, sent(), 1)
	assert.True(t, strings.Contains(sent()[0], "restraint = ab"))
	assert.True(t, strings.Contains(sent()[0], "reason = timeout"))

	failed(ctx, failure)
	assert.Len(t, sent(), 1, "one notification per streak")

	rotated(ctx, rotatedEvent())
	failed(ctx, failure)
	failed(ctx, failure)
	assert.Len(t, sent(), 2)
}

func TestMiddlewarePushover_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusBadRequest)
	}))
	defer server.Close()

	p := NewPushover(zap.NewNop(), "user", "token", "device", 0)
	p.endpoint = server.URL

	err := p.send(context.Background(), "title", "message")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")
	assert.Equal(t, 1, p.threshold)
}
