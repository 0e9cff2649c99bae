package housekeeping

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity/internal/adapter/scheduler"
	"opportunity/internal/feature/featuretest"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func TestRegister(t *testing.T) {
	env, _ := featuretest.NewEnv(t, featuretest.NewClock(now), nil)
	require.NoError(t, New(0).Register(context.Background(), env))

	job, err := env.Scheduler.Lookup(context.Background(), JobID)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StoreMemory, job.Store)
	assert.True(t, now.Add(time.Hour).Equal(*job.NextRunTime))
}

func TestCollect(t *testing.T) {
	durable := scheduler.NewNamedMemoryStore(scheduler.StoreDefault)
	ctx := context.Background()
	add := func(id, user string, at time.Time) {
		require.NoError(t, durable.Insert(ctx, &scheduler.Job{
			ID:          id,
			Func:        "reminder.remind",
			Kwargs:      scheduler.Kwargs{scheduler.KwargUser: user},
			Trigger:     scheduler.At(at),
			NextRunTime: &at,
		}))
	}
	add("a", "42", now.Add(time.Hour))
	add("b", "42", now.Add(-time.Hour))
	add("c", "43", now.Add(30*time.Second))

	env, _ := featuretest.NewEnv(t, featuretest.NewClock(now), map[string]scheduler.JobStore{scheduler.StoreDefault: durable})
	f := New(time.Hour)
	require.NoError(t, f.Register(ctx, env))

	r, err := f.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Pending: 3, Overdue: 1, Users: 2}, r)
	require.NoError(t, f.report(ctx, nil))
}

func TestHooksCountRuns(t *testing.T) {
	env, _ := featuretest.NewEnv(t, featuretest.NewClock(now), nil)
	f := New(time.Hour)
	require.NoError(t, f.Register(context.Background(), env))

	h := f.Hooks()
	h.OnJobFinish("a", time.Millisecond, nil)
	h.OnJobFinish("b", time.Millisecond, assert.AnError)

	assert.Equal(t, int64(2), f.runs.Load())
	assert.Equal(t, int64(1), f.failures.Load())

	require.NoError(t, f.report(context.Background(), nil))
	assert.Zero(t, f.runs.Load(), "счетчики сбрасываются после отчета")
}
