package redisstore_test

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity/internal/adapter/jobstore/redisstore"
	"opportunity/internal/adapter/scheduler"
	"opportunity/internal/adapter/scheduler/storetest"
)

func TestStore_Conformance(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	storetest.Run(t, func(t *testing.T) scheduler.JobStore {
		prefix := "test:" + uuid.NewString()
		t.Cleanup(func() {
			ctx := context.Background()
			keys, _ := rdb.Keys(ctx, prefix+":*").Result()
			if len(keys) > 0 {
				rdb.Del(ctx, keys...)
			}
		})
		return redisstore.New(rdb, prefix, nil)
	})
}

func TestStore_ServerDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	store := redisstore.New(rdb, "", nil)
	ctx := context.Background()

	err := store.Insert(ctx, storetest.NewJob("x", "42", time.Minute))
	assert.ErrorIs(t, err, scheduler.ErrStoreUnavailable)

	_, err = store.Get(ctx, "x")
	assert.ErrorIs(t, err, scheduler.ErrStoreUnavailable)

	_, err = store.DueJobs(ctx, time.Now())
	assert.ErrorIs(t, err, scheduler.ErrStoreUnavailable)

	require.Error(t, store.Ping(ctx))
	assert.True(t, scheduler.IsStoreUnavailable(store.Ping(ctx)))
}

// interleaveHook выполняет fn перед первым конвейером после взведения,
// то есть между чтением состояния и EXEC.
type interleaveHook struct {
	armed atomic.Bool
	fn    func()
}

func (h *interleaveHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *interleaveHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (h *interleaveHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if h.armed.CompareAndSwap(true, false) {
			h.fn()
		}
		return next(ctx, cmds)
	}
}

func TestStore_CancelDuringUpdateWins(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}
	ctx := context.Background()
	prefix := "test:" + uuid.NewString()

	firing := redis.NewClient(&redis.Options{Addr: addr})
	cancelling := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() {
		keys, _ := cancelling.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			cancelling.Del(ctx, keys...)
		}
		_ = firing.Close()
		_ = cancelling.Close()
	})

	hook := &interleaveHook{}
	firing.AddHook(hook)
	fireStore := redisstore.New(firing, prefix, nil)
	cancelStore := redisstore.New(cancelling, prefix, nil)

	job := storetest.NewJob("raced", "42", time.Minute)
	require.NoError(t, fireStore.Insert(ctx, job))

	hook.fn = func() {
		require.NoError(t, cancelStore.Remove(ctx, "raced"))
	}
	hook.armed.Store(true)

	later := job.NextRunTime.Add(time.Hour)
	job.NextRunTime = &later
	err := fireStore.Update(ctx, job)
	assert.ErrorIs(t, err, scheduler.ErrJobNotFound)
	assert.False(t, hook.armed.Load(), "отмена должна была выполниться между чтением и записью")

	_, err = cancelStore.Get(ctx, "raced")
	assert.ErrorIs(t, err, scheduler.ErrJobNotFound, "отмененная задача не должна вернуться")
	next, err := cancelStore.NextRunTime(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestStore_DueJobsPausesUnreadable(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}
	ctx := context.Background()
	prefix := "test:" + uuid.NewString()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() {
		keys, _ := rdb.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
		_ = rdb.Close()
	})

	store := redisstore.New(rdb, prefix, nil)
	require.NoError(t, rdb.HSet(ctx, prefix+":jobs", "bad", "garbage").Err())
	require.NoError(t, rdb.ZAdd(ctx, prefix+":run_times", redis.Z{Score: 1, Member: "bad"}).Err())

	due, err := store.DueJobs(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	next, err := store.NextRunTime(ctx)
	require.NoError(t, err)
	assert.Nil(t, next, "нечитаемая задача снимается с расписания")
	assert.True(t, rdb.HExists(ctx, prefix+":jobs", "bad").Val(), "состояние остается для разбора")
}
