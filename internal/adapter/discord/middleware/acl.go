package middleware

import (
	"context"
	"strings"

	"opportunity/internal/adapter/discord"
)

// ACL пропускает команды только с разрешённых серверов.
// Пустой список разрешает все серверы; личные сообщения разрешены всегда.
type ACL struct{ allowed map[string]struct{} }

// NewACL создаёт ACL по списку id серверов.
func NewACL(guildIDs []string) *ACL {
	m := make(map[string]struct{}, len(guildIDs))
	for _, id := range guildIDs {
		m[id] = struct{}{}
	}
	return &ACL{allowed: m}
}

// IsAllowed сообщает, обслуживается ли сервер.
func (a *ACL) IsAllowed(guildID string) bool {
	if len(a.allowed) == 0 || guildID == "" {
		return true
	}
	_, ok := a.allowed[guildID]
	return ok
}

// Middleware молча отбрасывает команды с чужих серверов.
func (a *ACL) Middleware(next discord.HandlerFunc) discord.HandlerFunc {
	return func(ctx context.Context, s discord.Sender, m *discord.Message) {
		if !a.IsAllowed(m.GuildID) {
			return
		}
		next(ctx, s, m)
	}
}

// ParseAllowedIDs парсит список id из строки (разделители: запятая/переносы).
func ParseAllowedIDs(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' || r == '\t' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
