package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Sender posts messages to a channel. *discordgo.Session satisfies it.
type Sender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Message is a command invocation stripped of the bot prefix.
type Message struct {
	ID         string
	ChannelID  string
	GuildID    string
	AuthorID   string
	AuthorName string
	// Command is the lower-cased first word after the prefix.
	Command string
	Args    []string
}

// Rest joins Args back into a single string.
func (m *Message) Rest() string { return strings.Join(m.Args, " ") }

// Mention formats the author as a user mention.
func (m *Message) Mention() string { return UserMention(m.AuthorID) }

// HandlerFunc processes a single command message.
type HandlerFunc func(ctx context.Context, s Sender, m *Message)

// UserMention formats a user id as <@id>.
func UserMention(id string) string { return "<@" + id + ">" }

// RoleMention formats a role id as <@&id>.
func RoleMention(id string) string { return "<@&" + id + ">" }

// ParseCommand strips a text prefix or a leading mention of botID from
// content and splits the remainder into command and args.
func ParseCommand(content, prefix, botID string) (cmd string, args []string, ok bool) {
	content = strings.TrimSpace(content)
	var rest string
	switch {
	case prefix != "" && strings.HasPrefix(content, prefix):
		rest = content[len(prefix):]
	case botID != "" && strings.HasPrefix(content, "<@"+botID+">"):
		rest = content[len(botID)+3:]
	case botID != "" && strings.HasPrefix(content, "<@!"+botID+">"):
		rest = content[len(botID)+4:]
	default:
		return "", nil, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// Send posts data to channelID, passing ctx to the REST call.
func Send(ctx context.Context, s Sender, channelID string, data *discordgo.MessageSend) error {
	_, err := s.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
	return err
}

// Reply posts plain text to channelID. Only user mentions are resolved.
func Reply(ctx context.Context, s Sender, channelID, text string) error {
	return Send(ctx, s, channelID, &discordgo.MessageSend{
		Content:         text,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers}},
	})
}

// ReplyEmbed posts a single embed to channelID.
func ReplyEmbed(ctx context.Context, s Sender, channelID string, e *discordgo.MessageEmbed) error {
	return Send(ctx, s, channelID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{e}})
}
