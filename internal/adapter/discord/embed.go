package discord

import "github.com/bwmarrin/discordgo"

// Embed colors.
const (
	ColorRed      = 0xff0000
	ColorGreen    = 0x00ff00
	ColorBlue     = 0x0000ff
	ColorDarkGray = 0x424949
)

// Embed builds a discordgo.MessageEmbed field by field.
type Embed struct{ e discordgo.MessageEmbed }

// NewEmbed starts an embed with title and color.
func NewEmbed(title string, color int) *Embed {
	return &Embed{e: discordgo.MessageEmbed{Title: title, Color: color}}
}

// Description sets the embed description.
func (b *Embed) Description(s string) *Embed {
	b.e.Description = s
	return b
}

// Field appends a field. Empty values are shown as "-" since Discord
// rejects empty field values.
func (b *Embed) Field(name, value string, inline bool) *Embed {
	if value == "" {
		value = "-"
	}
	b.e.Fields = append(b.e.Fields, &discordgo.MessageEmbedField{Name: name, Value: value, Inline: inline})
	return b
}

// Footer sets the footer text.
func (b *Embed) Footer(text string) *Embed {
	b.e.Footer = &discordgo.MessageEmbedFooter{Text: text}
	return b
}

// Build returns the embed.
func (b *Embed) Build() *discordgo.MessageEmbed {
	e := b.e
	return &e
}
