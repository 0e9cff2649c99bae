package discord

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
)

// Options configures a Bot.
type Options struct {
	Token  string
	Prefix string
	// Workers is the number of dispatcher goroutines.
	Workers int
	Logger  *slog.Logger
}

// Bot owns the gateway session and feeds command messages to a handler.
type Bot struct {
	session    *discordgo.Session
	prefix     string
	workers    int
	logger     *slog.Logger
	dispatcher *Dispatcher
	ctx        context.Context
}

// New creates a session. It does not connect until Run.
func New(opts Options) (*Bot, error) {
	s, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, errors.Wrap(err, "create discord session")
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Bot{session: s, prefix: opts.Prefix, workers: workers, logger: logger.With("component", "discord")}, nil
}

// Session exposes the underlying session, which also implements Sender.
func (b *Bot) Session() *discordgo.Session { return b.session }

// Run connects to the gateway and dispatches commands to h until ctx is done.
func (b *Bot) Run(ctx context.Context, h HandlerFunc) error {
	b.ctx = ctx
	b.dispatcher = NewDispatcher(b.session, b.workers, h)
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)

	if err := b.session.Open(); err != nil {
		b.dispatcher.Close()
		return errors.Wrap(err, "open discord gateway")
	}
	b.logger.Info("Discord gateway connected")

	<-ctx.Done()

	err := b.session.Close()
	b.dispatcher.Close()
	b.logger.Info("Discord gateway closed")
	return err
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("Logged in", "user", r.User.Username, "guilds", len(r.Guilds))
}

func (b *Bot) onMessageCreate(s *discordgo.Session, mc *discordgo.MessageCreate) {
	if mc.Author == nil || mc.Author.Bot {
		return
	}
	var botID string
	if s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}
	cmd, args, ok := ParseCommand(mc.Content, b.prefix, botID)
	if !ok {
		return
	}
	msg := &Message{
		ID:         mc.ID,
		ChannelID:  mc.ChannelID,
		GuildID:    mc.GuildID,
		AuthorID:   mc.Author.ID,
		AuthorName: displayName(mc),
		Command:    cmd,
		Args:       args,
	}
	b.logger.Debug("Command received", "command", cmd, "user", msg.AuthorID, "channel", msg.ChannelID)
	b.dispatcher.Dispatch(b.ctx, msg)
}

func displayName(mc *discordgo.MessageCreate) string {
	if mc.Member != nil && mc.Member.Nick != "" {
		return mc.Member.Nick
	}
	if mc.Author.GlobalName != "" {
		return mc.Author.GlobalName
	}
	return mc.Author.Username
}
