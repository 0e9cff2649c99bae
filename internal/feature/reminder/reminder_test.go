package reminder

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity/internal/adapter/discord"
	"opportunity/internal/adapter/scheduler"
	"opportunity/internal/feature"
	"opportunity/internal/feature/featuretest"
	"opportunity/internal/gamedata"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

var recipes = gamedata.Recipes{
	"mining_rig_C1": {Name: "Mining Rig", DurationSeconds: 5400},
	"prepare_tea":   {Name: "Tea", DurationSeconds: 90},
}

// downStore отклоняет вставки, как потерянное соединение с БД.
type downStore struct {
	*scheduler.MemoryStore
	inserts atomic.Int32
}

func (d *downStore) Insert(context.Context, *scheduler.Job) error {
	d.inserts.Add(1)
	return scheduler.Unavailable(errors.New("server closed the connection unexpectedly"), "insert")
}

func setup(t *testing.T, stores map[string]scheduler.JobStore) (*Feature, *feature.Env, *featuretest.Sender) {
	t.Helper()
	env, sender := featuretest.NewEnv(t, featuretest.NewClock(now), stores)
	f := New(recipes, "https://example.org/recipes")
	f.retry.After = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- now
		return ch
	}
	require.NoError(t, f.Register(context.Background(), env))
	return f, env, sender
}

func run(env *feature.Env, sender discord.Sender, user, cmd string, args ...string) {
	env.Router.Handle(context.Background(), sender, &discord.Message{
		ChannelID:  "7",
		AuthorID:   user,
		AuthorName: "Rosalind",
		Command:    cmd,
		Args:       args,
	})
}

func TestStart_SchedulesDurableReminder(t *testing.T) {
	_, env, sender := setup(t, nil)

	run(env, sender, "42", "start", "mining_rig_C1")

	jobs, err := env.Scheduler.JobsForUser(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.Equal(t, FuncRemind, job.Func)
	assert.Equal(t, scheduler.StoreDefault, job.Store)
	assert.Equal(t, scheduler.Kwargs{
		scheduler.KwargUser:     "42",
		scheduler.KwargChannel:  "7",
		scheduler.KwargTaskName: "Mining Rig",
	}, job.Kwargs)
	require.NotNil(t, job.NextRunTime)
	assert.True(t, now.Add(90*time.Minute).Equal(*job.NextRunTime))

	reply := sender.Last(t)
	require.Len(t, reply.Data.Embeds, 1)
	e := reply.Data.Embeds[0]
	assert.Equal(t, discord.ColorDarkGray, e.Color)
	assert.Equal(t, "I'll remind you in 01:30:00 to finish your Mining Rig task(s)", e.Fields[0].Value)
	assert.Equal(t, "ID: "+job.ID, e.Footer.Text)
}

func TestStart_UnknownRecipe(t *testing.T) {
	_, env, sender := setup(t, nil)

	run(env, sender, "42", "addreminder", "warp_drive")

	assert.Equal(t, "warp_drive not found in recipes.", sender.Last(t).Data.Content)
	jobs, err := env.Scheduler.JobsForUser(context.Background(), "42")
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestStart_MissingArgument(t *testing.T) {
	_, env, sender := setup(t, nil)
	run(env, sender, "42", "start")
	assert.Contains(t, sender.Last(t).Data.Content, "Usage")
}

func TestStart_StoreUnavailableRetriedOnce(t *testing.T) {
	store := &downStore{MemoryStore: scheduler.NewNamedMemoryStore(scheduler.StoreDefault)}
	_, env, sender := setup(t, map[string]scheduler.JobStore{scheduler.StoreDefault: store})

	run(env, sender, "42", "start", "prepare_tea")

	assert.Equal(t, int32(2), store.inserts.Load(), "одна повторная попытка")
	reply := sender.Last(t)
	require.Len(t, reply.Data.Embeds, 1)
	desc := reply.Data.Embeds[0].Description
	assert.Contains(t, desc, "try again later")
	assert.NotContains(t, desc, "connection")
}

func TestRemind_MentionsUser(t *testing.T) {
	f, env, sender := setup(t, nil)

	fn, ok := env.Scheduler.Registry().Lookup(FuncRemind)
	require.True(t, ok)
	require.NoError(t, fn(context.Background(), scheduler.Kwargs{
		scheduler.KwargUser:     "42",
		scheduler.KwargChannel:  "7",
		scheduler.KwargTaskName: "Tea",
	}))

	msg := sender.Last(t)
	assert.Equal(t, "7", msg.ChannelID)
	assert.Equal(t, "<@42>", msg.Data.Content)
	assert.Equal(t, []string{"42"}, msg.Data.AllowedMentions.Users)
	assert.Equal(t, "tasks ready", msg.Data.Embeds[0].Title)

	assert.Error(t, f.remind(context.Background(), scheduler.Kwargs{scheduler.KwargUser: "42"}))
}

func TestDelete(t *testing.T) {
	_, env, sender := setup(t, nil)
	run(env, sender, "42", "start", "prepare_tea")
	jobs, err := env.Scheduler.JobsForUser(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	id := jobs[0].ID

	run(env, sender, "43", "stop", id)
	assert.Equal(t, "You cannot remove a reminder from another user", sender.Last(t).Data.Content)

	run(env, sender, "42", "delreminder", id)
	assert.Equal(t, "Successfully removed job with id "+id, sender.Last(t).Data.Content)

	run(env, sender, "42", "delreminder", id)
	assert.Equal(t, "Could not find reminder with id "+id, sender.Last(t).Data.Content)
}

func TestList(t *testing.T) {
	_, env, sender := setup(t, nil)
	run(env, sender, "42", "start", "mining_rig_C1")
	run(env, sender, "42", "start", "prepare_tea")
	run(env, sender, "43", "start", "prepare_tea")

	run(env, sender, "42", "reminders")

	e := sender.Last(t).Data.Embeds[0]
	assert.Equal(t, "Reminders for Rosalind", e.Title)
	require.Len(t, e.Fields, 3)
	assert.Equal(t, "Tea\nMining Rig", e.Fields[0].Value, "ближайшая задача первой")
	assert.Equal(t, "2026-10-17 12:01:30\n2026-10-17 13:30:00", e.Fields[1].Value)
}

func TestList_Empty(t *testing.T) {
	_, env, sender := setup(t, nil)
	run(env, sender, "42", "reminder")

	e := sender.Last(t).Data.Embeds[0]
	for _, field := range e.Fields {
		assert.Equal(t, "-", field.Value)
	}
}

func TestTasks(t *testing.T) {
	_, env, sender := setup(t, nil)
	run(env, sender, "42", "recipes")
	assert.Equal(t, "A complete list of all recipes is available at https://example.org/recipes", sender.Last(t).Data.Content)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:01:30", FormatDuration(90*time.Second))
	assert.Equal(t, "01:30:00", FormatDuration(90*time.Minute))
	assert.Equal(t, "26:00:05", FormatDuration(26*time.Hour+5*time.Second))
}
