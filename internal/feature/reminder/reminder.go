// Package reminder lets users schedule a ping for when a crafting task
// finishes. Reminders live in the durable store so they survive restarts.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"

	"opportunity/internal/adapter/discord"
	"opportunity/internal/adapter/discord/handlers"
	"opportunity/internal/adapter/scheduler"
	"opportunity/internal/feature"
	"opportunity/internal/gamedata"
	"opportunity/pkg/retry"
)

// FuncRemind is the registered name of the reminder callable.
const FuncRemind = "reminder.remind"

// Feature implements reminder commands.
type Feature struct {
	recipes    gamedata.Recipes
	recipesURL string
	retry      retry.Config

	sched  *scheduler.Scheduler
	sender discord.Sender
	logger *slog.Logger
	now    func() time.Time
}

// New creates the feature. recipesURL is the public recipe list shown by
// the tasks command.
func New(recipes gamedata.Recipes, recipesURL string) *Feature {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 2
	cfg.InitialDelay = 500 * time.Millisecond
	return &Feature{recipes: recipes, recipesURL: recipesURL, retry: cfg}
}

// Name implements feature.Feature.
func (f *Feature) Name() string { return "reminder" }

// Register implements feature.Feature.
func (f *Feature) Register(_ context.Context, env *feature.Env) error {
	f.sched = env.Scheduler
	f.sender = env.Sender
	f.logger = env.FeatureLogger(f.Name())
	f.now = env.Clock

	if err := f.sched.Register(FuncRemind, f.remind); err != nil {
		return err
	}
	for _, c := range []handlers.Command{
		{Name: "start", Aliases: []string{"addreminder"}, Usage: "<task>", Description: "Remind me when a task is finished.", Handler: f.start},
		{Name: "delreminder", Aliases: []string{"stop"}, Usage: "<id>", Description: "Delete one of your reminders.", Handler: f.delete},
		{Name: "reminders", Aliases: []string{"reminder"}, Description: "List your pending reminders.", Handler: f.list},
		{Name: "tasks", Aliases: []string{"recipes"}, Description: "Where to find all recipe names.", Handler: f.tasks},
	} {
		if err := env.Router.Add(c); err != nil {
			return err
		}
	}
	return nil
}

// remind mentions the user in the channel the reminder was created in.
func (f *Feature) remind(ctx context.Context, kwargs scheduler.Kwargs) error {
	user, channel := kwargs[scheduler.KwargUser], kwargs[scheduler.KwargChannel]
	if user == "" || channel == "" {
		return fmt.Errorf("reminder without user or channel: %v", kwargs)
	}
	e := discord.NewEmbed("tasks ready", discord.ColorGreen)
	if name := kwargs[scheduler.KwargTaskName]; name != "" {
		e.Description(fmt.Sprintf("Your %s task(s) are finished.", name))
	}
	return discord.Send(ctx, f.sender, channel, &discordgo.MessageSend{
		Content:         discord.UserMention(user),
		Embeds:          []*discordgo.MessageEmbed{e.Build()},
		AllowedMentions: &discordgo.MessageAllowedMentions{Users: []string{user}},
	})
}

func (f *Feature) start(ctx context.Context, s discord.Sender, m *discord.Message) {
	if len(m.Args) == 0 {
		f.reply(ctx, s, m, "Usage: start <task>")
		return
	}
	key := m.Args[0]
	recipe, ok := f.recipes.Lookup(key)
	if !ok {
		f.logger.Info("Unknown recipe", "task", key, "user", m.AuthorID)
		f.reply(ctx, s, m, fmt.Sprintf("%s not found in recipes.", key))
		return
	}

	req := scheduler.Request{
		Func:    FuncRemind,
		Trigger: scheduler.At(f.now().Add(recipe.Duration())),
		Store:   scheduler.StoreDefault,
		Kwargs: scheduler.Kwargs{
			scheduler.KwargUser:     m.AuthorID,
			scheduler.KwargChannel:  m.ChannelID,
			scheduler.KwargTaskName: recipe.Name,
		},
	}
	var job *scheduler.Job
	err := retry.DoWithRetryable(ctx, f.retry, func(ctx context.Context) error {
		var err error
		job, err = f.sched.Schedule(ctx, req)
		return err
	}, scheduler.IsStoreUnavailable)
	if err != nil {
		handlers.ReplyError(ctx, s, m, f.logger, err)
		return
	}

	msg := fmt.Sprintf("I'll remind you in %s to finish your %s task(s)", FormatDuration(recipe.Duration()), recipe.Name)
	e := discord.NewEmbed("", discord.ColorDarkGray).
		Field("Recipes", msg, false).
		Footer("ID: " + job.ID)
	if err := discord.ReplyEmbed(ctx, s, m.ChannelID, e.Build()); err != nil {
		f.logger.Warn("Failed to confirm reminder", "job_id", job.ID, "error", err)
	}
}

func (f *Feature) delete(ctx context.Context, s discord.Sender, m *discord.Message) {
	if len(m.Args) == 0 {
		f.reply(ctx, s, m, "Usage: delreminder <id>")
		return
	}
	id := m.Args[0]
	err := f.sched.CancelForUser(ctx, id, m.AuthorID)
	switch {
	case err == nil:
		f.reply(ctx, s, m, fmt.Sprintf("Successfully removed job with id %s", id))
	case errors.Is(err, scheduler.ErrNotOwner):
		f.reply(ctx, s, m, "You cannot remove a reminder from another user")
	case errors.Is(err, scheduler.ErrJobNotFound):
		f.logger.Info("Reminder not found", "job_id", id, "user", m.AuthorID)
		f.reply(ctx, s, m, fmt.Sprintf("Could not find reminder with id %s", id))
	default:
		handlers.ReplyError(ctx, s, m, f.logger, err)
	}
}

func (f *Feature) list(ctx context.Context, s discord.Sender, m *discord.Message) {
	jobs, err := f.sched.JobsForUser(ctx, m.AuthorID)
	if err != nil {
		handlers.ReplyError(ctx, s, m, f.logger, err)
		return
	}
	scheduler.SortByRunTime(jobs)

	var names, due, ids []string
	for _, j := range jobs {
		names = append(names, j.Kwargs[scheduler.KwargTaskName])
		when := "-"
		if j.NextRunTime != nil {
			when = j.NextRunTime.UTC().Format("2006-01-02 15:04:05")
		}
		due = append(due, when)
		ids = append(ids, j.ID)
	}
	e := discord.NewEmbed("Reminders for "+m.AuthorName, discord.ColorDarkGray).
		Field("Task", strings.Join(names, "\n"), true).
		Field("Due time", strings.Join(due, "\n"), true).
		Field("ID", strings.Join(ids, "\n"), true)
	if err := discord.ReplyEmbed(ctx, s, m.ChannelID, e.Build()); err != nil {
		f.logger.Warn("Failed to send reminders", "error", err)
	}
}

func (f *Feature) tasks(ctx context.Context, s discord.Sender, m *discord.Message) {
	if f.recipesURL == "" {
		f.reply(ctx, s, m, "No recipe list is configured.")
		return
	}
	f.reply(ctx, s, m, "A complete list of all recipes is available at "+f.recipesURL)
}

func (f *Feature) reply(ctx context.Context, s discord.Sender, m *discord.Message, text string) {
	if err := discord.Reply(ctx, s, m.ChannelID, text); err != nil {
		f.logger.Warn("Failed to reply", "command", m.Command, "error", err)
	}
}

// FormatDuration renders d as HH:MM:SS. Hours are not wrapped at 24.
func FormatDuration(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	h, rem := secs/3600, secs%3600
	return fmt.Sprintf("%02d:%02d:%02d", h, rem/60, rem%60)
}
