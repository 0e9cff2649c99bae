package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity/internal/adapter/scheduler"
	"opportunity/internal/adapter/scheduler/storetest"
)

func TestMemoryStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) scheduler.JobStore {
		return scheduler.NewMemoryStore()
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := scheduler.NewMemoryStore()
	ctx := context.Background()
	job := storetest.NewJob("copy", "42", time.Minute)
	require.NoError(t, store.Insert(ctx, job))

	// Изменения исходной задачи и полученной копии не попадают в хранилище.
	job.Kwargs[scheduler.KwargUser] = "mutated"
	got, err := store.Get(ctx, "copy")
	require.NoError(t, err)
	got.Kwargs[scheduler.KwargTaskName] = "mutated"

	again, err := store.Get(ctx, "copy")
	require.NoError(t, err)
	assert.Equal(t, "42", again.Kwargs[scheduler.KwargUser])
	assert.Equal(t, "Mining Rig", again.Kwargs[scheduler.KwargTaskName])
	assert.Equal(t, scheduler.StoreMemory, again.Store)
}

func TestMemoryStore_PausedJobsLast(t *testing.T) {
	store := scheduler.NewMemoryStore()
	ctx := context.Background()
	paused := storetest.NewJob("paused", "42", 0)
	paused.NextRunTime = nil
	require.NoError(t, store.Insert(ctx, paused))
	require.NoError(t, store.Insert(ctx, storetest.NewJob("due", "42", time.Minute)))

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "due", all[0].ID)
	assert.Equal(t, "paused", all[1].ID)

	due, err := store.DueJobs(ctx, time.Now().Add(365*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1, "приостановленная задача не должна считаться наступившей")
}
