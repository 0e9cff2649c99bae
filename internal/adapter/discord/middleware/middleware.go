// Package middleware содержит middleware для команд Discord: лимит частоты
// и ACL по списку разрешённых серверов.
package middleware

import "opportunity/internal/adapter/discord"

// Middleware wraps discord.HandlerFunc.
type Middleware func(discord.HandlerFunc) discord.HandlerFunc

// Chain applies middlewares in order.
func Chain(h discord.HandlerFunc, mws ...Middleware) discord.HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
