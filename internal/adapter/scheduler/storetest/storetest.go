// Package storetest contains a conformance suite for scheduler.JobStore
// implementations.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity/internal/adapter/scheduler"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) scheduler.JobStore

var base = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

// NewJob builds a one-shot reminder job due at base+offset.
func NewJob(id, user string, offset time.Duration) *scheduler.Job {
	next := base.Add(offset)
	kwargs := scheduler.Kwargs{scheduler.KwargTaskName: "Mining Rig"}
	if user != "" {
		kwargs[scheduler.KwargUser] = user
		kwargs[scheduler.KwargChannel] = "7"
	}
	return &scheduler.Job{
		ID:          id,
		Func:        "reminder.remind",
		Kwargs:      kwargs,
		Trigger:     scheduler.At(next),
		NextRunTime: &next,
	}
}

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("InsertGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		job := NewJob("abc", "42", time.Minute)

		require.NoError(t, store.Insert(ctx, job))

		got, err := store.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, job.Func, got.Func)
		assert.Equal(t, job.Kwargs, got.Kwargs)
		assert.Equal(t, job.Trigger.Spec(), got.Trigger.Spec())
		require.NotNil(t, got.NextRunTime)
		assert.True(t, job.NextRunTime.Equal(*got.NextRunTime))
		assert.NotEmpty(t, got.Store)
	})

	t.Run("InsertConflict", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		first := NewJob("dup", "42", time.Minute)
		second := NewJob("dup", "43", time.Hour)

		require.NoError(t, store.Insert(ctx, first))
		err := store.Insert(ctx, second)
		require.ErrorIs(t, err, scheduler.ErrConflictingID)

		got, err := store.Get(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "42", got.Kwargs[scheduler.KwargUser], "first record must stay unmodified")
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, scheduler.ErrJobNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		job := NewJob("upd", "42", time.Minute)
		require.NoError(t, store.Insert(ctx, job))

		later := base.Add(2 * time.Hour)
		job.NextRunTime = &later
		require.NoError(t, store.Update(ctx, job))

		got, err := store.Get(ctx, "upd")
		require.NoError(t, err)
		assert.True(t, later.Equal(*got.NextRunTime))

		err = store.Update(ctx, NewJob("ghost", "42", time.Minute))
		assert.ErrorIs(t, err, scheduler.ErrJobNotFound)
	})

	t.Run("Remove", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, NewJob("rm", "42", time.Minute)))

		require.NoError(t, store.Remove(ctx, "rm"))
		_, err := store.Get(ctx, "rm")
		assert.ErrorIs(t, err, scheduler.ErrJobNotFound)
		assert.ErrorIs(t, store.Remove(ctx, "rm"), scheduler.ErrJobNotFound)
	})

	// A fire that read the job before a cancel must not bring it back.
	t.Run("UpdateAfterRemove", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, NewJob("stale", "42", time.Minute)))

		stale, err := store.Get(ctx, "stale")
		require.NoError(t, err)
		require.NoError(t, store.Remove(ctx, "stale"))

		later := base.Add(2 * time.Hour)
		stale.NextRunTime = &later
		assert.ErrorIs(t, store.Update(ctx, stale), scheduler.ErrJobNotFound)

		_, err = store.Get(ctx, "stale")
		assert.ErrorIs(t, err, scheduler.ErrJobNotFound)
		next, err := store.NextRunTime(ctx)
		require.NoError(t, err)
		assert.Nil(t, next)
		due, err := store.DueJobs(ctx, later.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, due)
		if idx, ok := store.(scheduler.UserIndex); ok {
			jobs, err := idx.JobsForUser(ctx, "42")
			require.NoError(t, err)
			assert.Empty(t, jobs)
		}
	})

	t.Run("OrderingAndDue", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, NewJob("c", "1", 3*time.Minute)))
		require.NoError(t, store.Insert(ctx, NewJob("a", "1", time.Minute)))
		require.NoError(t, store.Insert(ctx, NewJob("b", "2", 2*time.Minute)))

		all, err := store.All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, ids(all))

		due, err := store.DueJobs(ctx, base.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(due))

		next, err := store.NextRunTime(ctx)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.True(t, base.Add(time.Minute).Equal(*next))
	})

	t.Run("EmptyNextRunTime", func(t *testing.T) {
		store := newStore(t)
		next, err := store.NextRunTime(context.Background())
		require.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("JobsForUser", func(t *testing.T) {
		store := newStore(t)
		idx, ok := store.(scheduler.UserIndex)
		if !ok {
			t.Skip("store has no user index")
		}
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, NewJob("u1", "42", time.Minute)))
		require.NoError(t, store.Insert(ctx, NewJob("u2", "42", 2*time.Minute)))
		require.NoError(t, store.Insert(ctx, NewJob("o1", "43", time.Minute)))
		require.NoError(t, store.Insert(ctx, NewJob("sys", "", time.Minute)))

		jobs, err := idx.JobsForUser(ctx, "42")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"u1", "u2"}, ids(jobs))

		require.NoError(t, store.Remove(ctx, "u1"))
		jobs, err = idx.JobsForUser(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, []string{"u2"}, ids(jobs))
	})

	t.Run("RecurringTrigger", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		next := base.Add(time.Hour)
		job := &scheduler.Job{
			ID:   "happyhour_start",
			Func: "notifications.happyhour_start",
			Trigger: scheduler.Or(
				scheduler.MustCron("0", "1", "sat,sun", "UTC"),
				scheduler.MustCron("0", "13", "sat,sun", "UTC"),
			),
			NextRunTime: &next,
		}
		require.NoError(t, store.Insert(ctx, job))

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.Trigger.Spec(), got.Trigger.Spec())
	})
}

func ids(jobs []*scheduler.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}
