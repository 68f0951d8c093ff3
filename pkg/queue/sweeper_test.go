package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperNormalizesOnEachTick(t *testing.T) {
	var calls atomic.Int32
	var gotDelay atomic.Int64
	store := &fakeStore{
		normalizeLeases: func(_ context.Context, retryDelay time.Duration) (int, error) {
			calls.Add(1)
			gotDelay.Store(int64(retryDelay))
			return 2, nil
		},
	}
	cfg := testConfig(t)
	cfg.LeaseSweepIntervalSeconds = 1
	cfg.DefaultRetryDelaySeconds = 45

	sweeper := NewSweeper(store, cfg)
	sweeper.interval = 10 * time.Millisecond
	sweeper.Start()
	defer sweeper.Stop()

	require.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(45*time.Second), gotDelay.Load())
}

func TestSweeperStopHaltsLoop(t *testing.T) {
	var calls atomic.Int32
	store := &fakeStore{
		normalizeLeases: func(context.Context, time.Duration) (int, error) {
			calls.Add(1)
			return 0, nil
		},
	}
	cfg := testConfig(t)

	sweeper := NewSweeper(store, cfg)
	sweeper.interval = 10 * time.Millisecond
	sweeper.Start()

	require.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)
	sweeper.Stop()

	settled := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), settled+1)
}

func TestSweeperSurvivesStoreErrors(t *testing.T) {
	var calls atomic.Int32
	store := &fakeStore{
		normalizeLeases: func(context.Context, time.Duration) (int, error) {
			calls.Add(1)
			return 0, assert.AnError
		},
	}
	cfg := testConfig(t)

	sweeper := NewSweeper(store, cfg)
	sweeper.interval = 10 * time.Millisecond
	sweeper.Start()
	defer sweeper.Stop()

	// Errors are logged, not fatal; the loop keeps ticking.
	require.Eventually(t, func() bool {
		return calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
}
