// Package app wires the bot's components and runs them until shutdown.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"

	"opportunity/internal/adapter/discord"
	"opportunity/internal/adapter/discord/handlers"
	"opportunity/internal/adapter/discord/middleware"
	"opportunity/internal/adapter/external/atomicmarket"
	"opportunity/internal/adapter/httpapi"
	"opportunity/internal/adapter/jobstore"
	"opportunity/internal/adapter/scheduler"
	"opportunity/internal/config"
	"opportunity/internal/feature"
	"opportunity/internal/feature/dtmalert"
	"opportunity/internal/feature/housekeeping"
	"opportunity/internal/feature/market"
	"opportunity/internal/feature/notifications"
	"opportunity/internal/feature/reminder"
	"opportunity/internal/gamedata"
	"opportunity/internal/platform/httpclient"
	"opportunity/internal/platform/logger"
)

const shutdownTimeout = 10 * time.Second

// App wires application components.
type App struct {
	cfg      config.Config
	log      *slog.Logger
	closeLog func() error
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, closeLog := NewLogger(cfg)
	return &App{cfg: cfg, log: log, closeLog: closeLog}, nil
}

// NewLogger builds the application logger from cfg.
func NewLogger(cfg config.Config) (*slog.Logger, func() error) {
	return logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "opportunity",
	})
}

// StoreOptions maps configuration to job store options.
func StoreOptions(cfg config.Config) jobstore.Options {
	return jobstore.Options{
		Driver:      cfg.JobStore.Driver,
		DatabaseURL: cfg.JobStore.DatabaseURL,
		SQLitePath:  cfg.JobStore.SQLitePath,
		RedisURL:    cfg.JobStore.RedisURL,
	}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	defer func() { _ = a.closeLog() }()
	a.log.Info("starting", "jobstore", a.cfg.JobStore.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	discord.RouteLibraryLogs(a.log)

	store, closeStore, err := jobstore.Open(ctx, StoreOptions(a.cfg), a.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			a.log.Warn("close job store", "error", err)
		}
	}()

	client := httpclient.New(httpclient.WithLogger(a.log))
	recipes, err := gamedata.Load(ctx, a.cfg.Recipes.File, client)
	if err != nil {
		a.log.Warn("recipes not loaded, reminders are disabled", "source", a.cfg.Recipes.File, "error", err)
		recipes = gamedata.Recipes{}
	}

	house := housekeeping.New(time.Hour)
	sched := scheduler.New(scheduler.Config{
		Logger:       a.log,
		JobHooks:     house.Hooks(),
		Stores:       map[string]scheduler.JobStore{scheduler.StoreDefault: store},
		MaxWait:      a.cfg.Scheduler.MaxWait,
		MisfireGrace: a.cfg.Scheduler.MisfireGrace,
		JobTimeout:   a.cfg.Scheduler.JobTimeout,
	})

	bot, err := discord.New(discord.Options{
		Token:   a.cfg.Discord.Token,
		Prefix:  a.cfg.Discord.Prefix,
		Workers: 8,
		Logger:  a.log,
	})
	if err != nil {
		return err
	}

	router := handlers.NewRouter(a.cfg.Discord.Prefix, a.log)
	env := &feature.Env{
		Scheduler: sched,
		Router:    router,
		Sender:    bot.Session(),
		Logger:    a.log,
	}
	err = feature.RegisterAll(ctx, env,
		reminder.New(recipes, a.cfg.Recipes.URL),
		notifications.New(notifications.TargetsFrom(a.cfg.Notify), a.cfg.Scheduler.Timezone),
		dtmalert.New(dtmalert.Options{
			SalesURL:  a.cfg.DTMAlert.URL,
			ChannelID: a.cfg.DTMAlert.ChannelID,
			Threshold: int64(a.cfg.DTMAlert.Threshold),
			Interval:  a.cfg.DTMAlert.Interval,
		}, atomicmarket.New(client)),
		market.New(market.Options{
			SalesURL:  a.cfg.Market.SalesURL,
			SchemaURL: a.cfg.Market.SchemaURL,
			DTMURL:    a.cfg.DTMAlert.URL,
			Library:   "discordgo " + discordgo.VERSION,
			Latency:   bot.Session().HeartbeatLatency,
		}, atomicmarket.New(client)),
		house,
	)
	if err != nil {
		return err
	}
	sched.Start()

	if a.cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(sched, a.log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server", slog.Any("err", err))
		}
	}()

	rate := middleware.NewRateLimiter(2*time.Second, 3)
	acl := middleware.NewACL(a.cfg.Discord.AllowedGuilds)
	runErr := bot.Run(ctx, middleware.Chain(router.Handle, acl.Middleware, rate.Middleware))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", "error", err)
	}
	if err := sched.StopContext(shutdownCtx); err != nil {
		a.log.Warn("scheduler shutdown", "error", err)
	}
	a.log.Info("stopped")
	return runErr
}
