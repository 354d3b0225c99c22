package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/testutil"
)

func counter(n *atomic.Int32, affected int, err error) JobFunc {
	return func(context.Context) (int, error) {
		n.Add(1)
		return affected, err
	}
}

func TestAddValidatesJobs(t *testing.T) {
	s := NewScheduler(testutil.NopLogger())
	var n atomic.Int32

	assert.Error(t, s.Add(Job{Interval: time.Second, Run: counter(&n, 0, nil)}))
	assert.Error(t, s.Add(Job{Name: "a", Run: counter(&n, 0, nil)}))
	assert.Error(t, s.Add(Job{Name: "a", Interval: time.Second}))

	require.NoError(t, s.Add(Job{Name: "a", Interval: time.Second, Run: counter(&n, 0, nil)}))
	assert.Error(t, s.Add(Job{Name: "a", Interval: time.Second, Run: counter(&n, 0, nil)}))
	assert.Equal(t, []string{"a"}, s.Jobs())
}

func TestRunOnceRunsEveryJobDespiteFailures(t *testing.T) {
	s := NewScheduler(testutil.NopLogger())
	var first, second, third atomic.Int32

	require.NoError(t, s.Add(Job{Name: "first", Interval: time.Hour, Run: counter(&first, 3, nil)}))
	require.NoError(t, s.Add(Job{Name: "broken", Interval: time.Hour, Run: counter(&second, 0, errors.New("boom"))}))
	require.NoError(t, s.Add(Job{Name: "panics", Interval: time.Hour, Run: func(context.Context) (int, error) {
		third.Add(1)
		panic("oops")
	}}))

	results := s.RunOnce(context.Background())
	require.Len(t, results, 3)

	assert.Equal(t, "first", results[0].Name)
	assert.Equal(t, 3, results[0].Affected)
	assert.Empty(t, results[0].Error)

	assert.Equal(t, "job failed", results[1].Error)
	assert.Equal(t, "job panicked", results[2].Error)

	assert.EqualValues(t, 1, first.Load())
	assert.EqualValues(t, 1, second.Load())
	assert.EqualValues(t, 1, third.Load())
}

func TestResultErrorHidesUnderlyingError(t *testing.T) {
	s := NewScheduler(testutil.NopLogger())
	var n atomic.Int32
	driverErr := fmt.Errorf("%w: dial tcp 10.0.0.7:5432: password authentication failed for user \"chat\"", storage.ErrUnavailable)

	require.NoError(t, s.Add(Job{Name: "down", Interval: time.Hour, Run: counter(&n, 0, driverErr)}))
	require.NoError(t, s.Add(Job{Name: "slow", Interval: time.Hour, Run: counter(&n, 0, fmt.Errorf("sweep: %w", context.DeadlineExceeded))}))
	require.NoError(t, s.Add(Job{Name: "odd", Interval: time.Hour, Run: counter(&n, 0, errors.New(`pq: relation "knocks" does not exist`))}))

	results := s.RunOnce(context.Background())
	require.Len(t, results, 3)
	assert.Equal(t, "storage unavailable", results[0].Error)
	assert.Equal(t, "timed out", results[1].Error)
	assert.Equal(t, "job failed", results[2].Error)
	for _, r := range results {
		assert.NotContains(t, r.Error, "10.0.0.7")
		assert.NotContains(t, r.Error, "knocks")
	}
}

func TestStartRunsJobsOnTheirInterval(t *testing.T) {
	s := NewScheduler(testutil.NopLogger())
	var fast, slow atomic.Int32

	require.NoError(t, s.Add(Job{Name: "fast", Interval: 10 * time.Millisecond, Run: counter(&fast, 1, nil)}))
	require.NoError(t, s.Add(Job{Name: "slow", Interval: time.Hour, Run: counter(&slow, 1, nil)}))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Error(t, s.Start(context.Background()))
	assert.Error(t, s.Add(Job{Name: "late", Interval: time.Second, Run: counter(&fast, 0, nil)}))

	require.Eventually(t, func() bool { return fast.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, slow.Load())
}

func TestFailingJobKeepsTicking(t *testing.T) {
	s := NewScheduler(testutil.NopLogger())
	var n atomic.Int32
	require.NoError(t, s.Add(Job{Name: "flaky", Interval: 10 * time.Millisecond, Run: counter(&n, 0, errors.New("down"))}))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool { return n.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestStopWaitsAndIsIdempotent(t *testing.T) {
	s := NewScheduler(testutil.NopLogger())
	var n atomic.Int32
	require.NoError(t, s.Add(Job{Name: "tick", Interval: 5 * time.Millisecond, Run: counter(&n, 0, nil)}))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return n.Load() >= 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	stopped := n.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, n.Load())
}
