package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"opportunity/internal/adapter/discord"
	"opportunity/internal/shared"
)

// RateLimiter ограничивает частоту команд на пользователя (token bucket).
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	every    time.Duration
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter создаёт лимитер: один токен раз в every, запас burst.
func NewRateLimiter(every time.Duration, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*entry),
		every:    every,
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

// Allow возвращает false, если пользователь превысил лимит.
func (r *RateLimiter) Allow(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.evict(now)
	e, ok := r.limiters[userID]
	if !ok {
		e = &entry{lim: rate.NewLimiter(rate.Every(r.every), r.burst)}
		r.limiters[userID] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// evict удаляет лимитеры пользователей, молчащих дольше idle.
func (r *RateLimiter) evict(now time.Time) {
	for id, e := range r.limiters {
		if now.Sub(e.seen) > r.idle {
			delete(r.limiters, id)
		}
	}
}

// Middleware проверяет лимит перед вызовом следующего хендлера.
func (r *RateLimiter) Middleware(next discord.HandlerFunc) discord.HandlerFunc {
	return func(ctx context.Context, s discord.Sender, m *discord.Message) {
		if m.AuthorID != "" && !r.Allow(m.AuthorID) {
			_ = discord.Reply(ctx, s, m.ChannelID, shared.UserMessage(shared.ErrRateLimited))
			return
		}
		next(ctx, s, m)
	}
}
