package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrportal/internal/domain/auth"
	"hrportal/internal/platform/metrics"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) Sweep(context.Context, time.Time) (int, error) {
	c.calls.Add(1)
	return 2, c.err
}

func TestSweepNowRecordsMetrics(t *testing.T) {
	collector := metrics.New()
	svc := New(&countingSweeper{}, time.Hour, collector)

	removed, err := svc.SweepNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, uint64(2), collector.Snapshot()["sessionsSweptTotal"])
}

func TestSweepNowPropagatesErrors(t *testing.T) {
	svc := New(&countingSweeper{err: errors.New("db down")}, time.Hour, nil)
	_, err := svc.SweepNow(context.Background())
	require.Error(t, err)
}

func TestSweepNowWithoutSweeper(t *testing.T) {
	svc := New(nil, time.Hour, nil)
	removed, err := svc.SweepNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRunSchedulesSweeps(t *testing.T) {
	sweeper := &countingSweeper{}
	svc := New(sweeper, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSweepsMemoryRegistry(t *testing.T) {
	reg := auth.NewMemoryRegistry()
	ctx := context.Background()
	require.NoError(t, reg.Create(ctx, auth.SessionRecord{ID: "old", UserID: "1", ExpiresAt: time.Now().Add(-time.Minute)}))
	require.NoError(t, reg.Create(ctx, auth.SessionRecord{ID: "new", UserID: "1", ExpiresAt: time.Now().Add(time.Hour)}))

	removed, err := New(reg, time.Hour, nil).SweepNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, reg.Len())
}
