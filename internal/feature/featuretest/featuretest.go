// Package featuretest provides fakes for testing features without Discord.
package featuretest

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"opportunity/internal/adapter/discord/handlers"
	"opportunity/internal/adapter/scheduler"
	"opportunity/internal/feature"
)

// Sent is one recorded message.
type Sent struct {
	ChannelID string
	Data      *discordgo.MessageSend
}

// Sender records messages instead of posting them.
type Sender struct {
	mu   sync.Mutex
	sent []Sent
	// Err is returned from every send when set.
	Err error
}

// ChannelMessageSendComplex implements discord.Sender.
func (s *Sender) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, Sent{ChannelID: channelID, Data: data})
	if s.Err != nil {
		return nil, s.Err
	}
	return &discordgo.Message{ChannelID: channelID, Content: data.Content}, nil
}

// Messages returns a copy of everything sent so far.
func (s *Sender) Messages() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sent(nil), s.sent...)
}

// Last returns the most recent message or fails the test.
func (s *Sender) Last(t *testing.T) Sent {
	t.Helper()
	msgs := s.Messages()
	if len(msgs) == 0 {
		t.Fatal("nothing was sent")
	}
	return msgs[len(msgs)-1]
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at now.
func NewClock(now time.Time) *Clock { return &Clock{now: now} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// NewEnv builds an Env around a scheduler that is never started, so jobs
// only run when a test invokes them. Missing stores default to memory.
func NewEnv(t *testing.T, clock *Clock, stores map[string]scheduler.JobStore) (*feature.Env, *Sender) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := scheduler.New(scheduler.Config{Logger: logger, Stores: stores, Now: clock.Now})
	t.Cleanup(sched.Stop)

	sender := &Sender{}
	return &feature.Env{
		Scheduler: sched,
		Router:    handlers.NewRouter("!", logger),
		Sender:    sender,
		Logger:    logger,
		Now:       clock.Now,
	}, sender
}
