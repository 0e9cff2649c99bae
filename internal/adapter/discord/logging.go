package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// RouteLibraryLogs sends discordgo's internal logging to logger.
// It replaces the package-level discordgo.Logger.
func RouteLibraryLogs(logger *slog.Logger) {
	logger = logger.With("component", "discordgo")
	discordgo.Logger = func(msgL, caller int, format string, a ...interface{}) {
		logger.Log(context.Background(), libraryLevel(msgL), fmt.Sprintf(format, a...))
	}
}

func libraryLevel(l int) slog.Level {
	switch l {
	case discordgo.LogError:
		return slog.LevelError
	case discordgo.LogWarning:
		return slog.LevelWarn
	case discordgo.LogInformational:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
