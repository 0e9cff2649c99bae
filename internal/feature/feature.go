// Package feature defines the contract between the bot and its features.
// The application builds a fixed list of features at startup and registers
// each one in order.
package feature

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"opportunity/internal/adapter/discord"
	"opportunity/internal/adapter/discord/handlers"
	"opportunity/internal/adapter/scheduler"
)

// Env carries the shared collaborators a feature registers against.
type Env struct {
	Scheduler *scheduler.Scheduler
	Router    *handlers.Router
	// Sender posts messages from scheduled jobs.
	Sender discord.Sender
	Logger *slog.Logger
	// Now is the clock used for user-facing times. Defaults to time.Now.
	Now func() time.Time
}

// Clock returns env.Now or time.Now.
func (e *Env) Clock() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Feature registers job funcs, commands and recurring jobs.
type Feature interface {
	Name() string
	Register(ctx context.Context, env *Env) error
}

// RegisterAll registers features in order and stops at the first error.
func RegisterAll(ctx context.Context, env *Env, features ...Feature) error {
	for _, f := range features {
		if err := f.Register(ctx, env); err != nil {
			return fmt.Errorf("register feature %s: %w", f.Name(), err)
		}
		env.Logger.Info("Feature registered", "feature", f.Name())
	}
	return nil
}

// FeatureLogger derives a per-feature logger.
func (e *Env) FeatureLogger(name string) *slog.Logger {
	return e.Logger.With("component", "feature."+name)
}
