// Package handlers routes Discord commands to their handlers.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"opportunity/internal/adapter/discord"
	"opportunity/internal/shared"
)

// Command describes one text command.
type Command struct {
	Name        string
	Aliases     []string
	Usage       string
	Description string
	Handler     discord.HandlerFunc
}

// Router maps command names and aliases to handlers. Commands are added
// at startup before the bot connects; Router is read-only afterwards.
type Router struct {
	prefix   string
	commands []*Command
	byName   map[string]*Command
	logger   *slog.Logger
}

// NewRouter creates a router with the built-in ping and help commands.
func NewRouter(prefix string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{prefix: prefix, byName: make(map[string]*Command), logger: logger.With("component", "router")}
	r.MustAdd(Command{Name: "ping", Description: "Check that the bot is alive.", Handler: Ping})
	r.MustAdd(Command{Name: "help", Description: "List available commands.", Handler: r.help})
	return r
}

// Add registers a command. Names and aliases must be unique.
func (r *Router) Add(c Command) error {
	if c.Name == "" || c.Handler == nil {
		return fmt.Errorf("command %q: name and handler are required", c.Name)
	}
	cmd := &c
	for _, key := range append([]string{c.Name}, c.Aliases...) {
		key = strings.ToLower(key)
		if _, dup := r.byName[key]; dup {
			return fmt.Errorf("command %q already registered", key)
		}
		r.byName[key] = cmd
	}
	r.commands = append(r.commands, cmd)
	return nil
}

// MustAdd is Add that panics on error.
func (r *Router) MustAdd(c Command) {
	if err := r.Add(c); err != nil {
		panic(err)
	}
}

// Lookup returns the command registered under name or alias.
func (r *Router) Lookup(name string) (*Command, bool) {
	c, ok := r.byName[strings.ToLower(name)]
	return c, ok
}

// Handle dispatches m to its command. Unknown commands are ignored.
func (r *Router) Handle(ctx context.Context, s discord.Sender, m *discord.Message) {
	c, ok := r.Lookup(m.Command)
	if !ok {
		r.logger.Debug("Unknown command", "command", m.Command)
		return
	}
	c.Handler(ctx, s, m)
}

func (r *Router) help(ctx context.Context, s discord.Sender, m *discord.Message) {
	cmds := append([]*Command(nil), r.commands...)
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

	e := discord.NewEmbed("Commands", discord.ColorBlue)
	for _, c := range cmds {
		name := r.prefix + c.Name
		if c.Usage != "" {
			name += " " + c.Usage
		}
		if len(c.Aliases) > 0 {
			name += " (" + strings.Join(c.Aliases, ", ") + ")"
		}
		e.Field(name, c.Description, false)
	}
	if err := discord.ReplyEmbed(ctx, s, m.ChannelID, e.Build()); err != nil {
		r.logger.Warn("Failed to send help", "error", err)
	}
}

// Ping handles the ping command.
func Ping(ctx context.Context, s discord.Sender, m *discord.Message) {
	if err := discord.Reply(ctx, s, m.ChannelID, "pong"); err != nil {
		slog.Warn("send ping", "error", err)
	}
}

// ReplyError logs err and answers with a single human-readable sentence.
func ReplyError(ctx context.Context, s discord.Sender, m *discord.Message, logger *slog.Logger, err error) {
	logger.Warn("Command failed",
		"command", m.Command,
		"user", m.AuthorID,
		"kind", shared.KindOf(err).String(),
		"error", err,
	)
	e := discord.NewEmbed("", discord.ColorRed).Description(shared.UserMessage(err)).Build()
	if sendErr := discord.ReplyEmbed(ctx, s, m.ChannelID, e); sendErr != nil {
		logger.Warn("Failed to send error reply", "error", sendErr)
	}
}
