package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingReaper struct {
	calls atomic.Int32
	err   error
}

func (r *countingReaper) ReapStaleRuns(ctx context.Context) (int64, error) {
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("missing deadline")
	}
	r.calls.Add(1)
	return 1, r.err
}

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) Sweep() int {
	s.calls.Add(1)
	return 0
}

func TestSchedulerRunsJobs(t *testing.T) {
	reaper := &countingReaper{}
	sweeper := &countingSweeper{}

	s, err := New(Config{
		ReapInterval:  20 * time.Millisecond,
		SweepInterval: 20 * time.Millisecond,
	}, reaper, sweeper, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Jobs())

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return reaper.calls.Load() >= 2 && sweeper.calls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerReaperErrorKeepsRunning(t *testing.T) {
	reaper := &countingReaper{err: errors.New("db down")}

	s, err := New(Config{ReapInterval: 20 * time.Millisecond}, reaper, nil, nil)
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return reaper.calls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerSkipsDisabledJobs(t *testing.T) {
	s, err := New(Config{ReapInterval: time.Minute}, nil, &countingSweeper{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Jobs())
	require.NoError(t, s.Stop())
}
