// Package notifications posts recurring game event reminders (explorer
// missions, hauler slots, happy hour) to their channels.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"opportunity/internal/adapter/discord"
	"opportunity/internal/adapter/scheduler"
	"opportunity/internal/config"
	"opportunity/internal/feature"
)

// Targets holds the channels and roles notifications are sent to.
// It is built once at startup and never mutated.
type Targets struct {
	ExplorerChannel  string
	ExplorerRole     string
	Explorer2Role    string
	HaulerChannel    string
	HaulerRole       string
	HappyHourChannel string
	HappyHourRole    string
}

// TargetsFrom copies notification ids from configuration.
func TargetsFrom(n config.Notify) Targets {
	return Targets{
		ExplorerChannel:  n.ExplorerChannelID,
		ExplorerRole:     n.ExplorerRoleID,
		Explorer2Role:    n.Explorer2RoleID,
		HaulerChannel:    n.HaulerChannelID,
		HaulerRole:       n.HaulerRoleID,
		HappyHourChannel: n.HappyHourChannelID,
		HappyHourRole:    n.HappyHourRoleID,
	}
}

// notice is one recurring announcement. Its id is also the job id.
type notice struct {
	id      string
	trigger func(tz string) scheduler.Trigger
	channel func(Targets) string
	roles   func(Targets) []string
	text    func(now time.Time) string
}

func cron(minute, hour, dow string) func(string) scheduler.Trigger {
	return func(tz string) scheduler.Trigger { return scheduler.MustCron(minute, hour, dow, tz) }
}

func either(a, b func(string) scheduler.Trigger) func(string) scheduler.Trigger {
	return func(tz string) scheduler.Trigger { return scheduler.Or(a(tz), b(tz)) }
}

func relative(t time.Time) string { return fmt.Sprintf("<t:%d:R>", t.Unix()) }

var notices = []notice{
	{
		id:      "hauler",
		trigger: cron("40", "12", "sun,wed"),
		channel: func(t Targets) string { return t.HaulerChannel },
		roles:   func(t Targets) []string { return []string{t.HaulerRole} },
		text: func(time.Time) string {
			return "Do not start any hauler missions to leave slots for explorers open"
		},
	},
	{
		id:      "happyhour_start",
		trigger: either(cron("0", "1", "sat,sun"), cron("0", "13", "sat,sun")),
		channel: func(t Targets) string { return t.HappyHourChannel },
		roles:   func(t Targets) []string { return []string{t.HappyHourRole} },
		text: func(now time.Time) string {
			return "Happy hour is now available for 3 hours. Ending " + relative(now.Add(3*time.Hour))
		},
	},
	{
		id:      "happyhour_end",
		trigger: either(cron("50", "3", "sat,sun"), cron("50", "15", "sat,sun")),
		channel: func(t Targets) string { return t.HappyHourChannel },
		roles:   func(t Targets) []string { return []string{t.HappyHourRole} },
		text:    func(time.Time) string { return "Happy Hour ends in 10 minutes." },
	},
	{
		id:      "explorer_24h_before",
		trigger: cron("0", "1", "sun,wed"),
		channel: func(t Targets) string { return t.ExplorerChannel },
		roles:   func(t Targets) []string { return []string{t.Explorer2Role} },
		text: func(time.Time) string {
			return "Explorer Missions will be available in 24 hours. Make sure to plan accordingly."
		},
	},
	{
		id:      "explorer_start",
		trigger: cron("0", "1", "mon,thu"),
		channel: func(t Targets) string { return t.ExplorerChannel },
		roles:   func(t Targets) []string { return []string{t.ExplorerRole, t.Explorer2Role} },
		text: func(now time.Time) string {
			return "Explorer Missions are now available for 24 hours. Ending " + relative(now.Add(24*time.Hour))
		},
	},
	{
		id:      "explorer_end",
		trigger: cron("50", "0", "tue,fri"),
		channel: func(t Targets) string { return t.ExplorerChannel },
		roles:   func(t Targets) []string { return []string{t.ExplorerRole, t.Explorer2Role} },
		text: func(time.Time) string {
			return "Explorer Missions are only available for another 10 minutes."
		},
	},
}

// FuncName returns the registered callable name for a notice id.
func FuncName(id string) string { return "notifications." + id }

// Feature schedules all configured notices in the memory store.
type Feature struct {
	targets  Targets
	timezone string

	sender discord.Sender
	logger *slog.Logger
	now    func() time.Time
}

// New creates the feature. Cron fields are evaluated in timezone.
func New(targets Targets, timezone string) *Feature {
	return &Feature{targets: targets, timezone: timezone}
}

// Name implements feature.Feature.
func (f *Feature) Name() string { return "notifications" }

// Register implements feature.Feature. Notices whose channel or roles are
// not configured are skipped. Jobs are replaced on every start.
func (f *Feature) Register(ctx context.Context, env *feature.Env) error {
	f.sender = env.Sender
	f.logger = env.FeatureLogger(f.Name())
	f.now = env.Clock

	for _, n := range notices {
		if !f.configured(n) {
			f.logger.Info("Notification disabled", "notice", n.id)
			continue
		}
		if err := env.Scheduler.Register(FuncName(n.id), f.post(n)); err != nil {
			return err
		}
		_, err := env.Scheduler.Schedule(ctx, scheduler.Request{
			Func:            FuncName(n.id),
			Trigger:         n.trigger(f.timezone),
			Store:           scheduler.StoreMemory,
			ID:              n.id,
			ReplaceExisting: true,
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", n.id, err)
		}
	}
	return nil
}

func (f *Feature) configured(n notice) bool {
	if n.channel(f.targets) == "" {
		return false
	}
	for _, r := range n.roles(f.targets) {
		if r == "" {
			return false
		}
	}
	return true
}

func (f *Feature) post(n notice) scheduler.Func {
	return func(ctx context.Context, _ scheduler.Kwargs) error {
		roles := n.roles(f.targets)
		mentions := make([]string, len(roles))
		for i, r := range roles {
			mentions[i] = discord.RoleMention(r)
		}
		content := strings.Join(mentions, " ") + "\n" + n.text(f.now())
		return discord.Send(ctx, f.sender, n.channel(f.targets), &discordgo.MessageSend{
			Content:         content,
			AllowedMentions: &discordgo.MessageAllowedMentions{Roles: roles},
		})
	}
}
