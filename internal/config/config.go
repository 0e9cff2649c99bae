package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Job store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
)

// Config holds application configuration values.
type Config struct {
	Env     string `validate:"required,oneof=dev prod"`
	Discord struct {
		Token         string `validate:"required"`
		Prefix        string `validate:"required,max=3"`
		AllowedGuilds []string
	}
	HTTP struct {
		Addr string `validate:"required"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	JobStore struct {
		Driver      string `validate:"required,oneof=postgres sqlite redis"`
		DatabaseURL string `validate:"required_if=Driver postgres"`
		SQLitePath  string `validate:"required_if=Driver sqlite"`
		RedisURL    string `validate:"required_if=Driver redis"`
	}
	Scheduler struct {
		Timezone     string        `validate:"required,timezone"`
		MaxWait      time.Duration `validate:"gt=0"`
		MisfireGrace time.Duration `validate:"gte=0"`
		JobTimeout   time.Duration `validate:"gte=0"`
	}
	Recipes struct {
		File string
		URL  string `validate:"omitempty,url"`
	}
	DTMAlert struct {
		Enabled   bool
		Interval  time.Duration `validate:"gte=1m"`
		Threshold int           `validate:"gt=0"`
		ChannelID string        `validate:"required_if=Enabled true"`
		URL       string        `validate:"required,url"`
	}
	Market struct {
		SalesURL  string `validate:"required,url"`
		SchemaURL string `validate:"required,url"`
	}
	Notify Notify
}

// Notify holds channel and role ids for game event notifications.
// An empty channel id disables that notification.
type Notify struct {
	ExplorerChannelID  string
	ExplorerRoleID     string
	Explorer2RoleID    string
	HaulerChannelID    string
	HaulerRoleID       string
	HappyHourChannelID string
	HappyHourRoleID    string
}

var validate = validator.New()

// DefaultDTMAlertURL lists Coprates land plots on the marketplace, cheapest first.
const DefaultDTMAlertURL = "https://wax.api.atomicassets.io/atomicmarket/v2/sales" +
	"?state=1&collection_name=onmars&schema_name=land.plots" +
	"&immutable_data.quadrangle=Coprates&page=1&limit=100&order=asc&sort=price"

// Marketplace API defaults.
const (
	DefaultMarketSalesURL  = "https://wax.api.atomicassets.io/atomicmarket/v2/sales"
	DefaultMarketSchemaURL = "https://wax.api.atomicassets.io/atomicassets/v1/schemas/onmars/land.plots"
)

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var (
		c    Config
		errs []error
	)
	c.Env = getenv("ENV", "prod")
	c.Discord.Token = os.Getenv("DISCORD_TOKEN")
	c.Discord.Prefix = getenv("DISCORD_PREFIX", "!")
	c.Discord.AllowedGuilds = splitList(os.Getenv("DISCORD_ALLOWED_GUILDS"))
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/bot.log")

	c.JobStore.Driver = strings.ToLower(getenv("JOBSTORE_DRIVER", DriverSQLite))
	c.JobStore.DatabaseURL = os.Getenv("DATABASE_URL")
	c.JobStore.SQLitePath = getenv("SQLITE_PATH", "data/jobs.db")
	c.JobStore.RedisURL = os.Getenv("REDIS_URL")

	c.Scheduler.Timezone = getenv("SCHEDULER_TIMEZONE", "UTC")
	c.Scheduler.MaxWait = getDuration("SCHEDULER_MAX_WAIT", time.Minute, &errs)
	c.Scheduler.MisfireGrace = getDuration("SCHEDULER_MISFIRE_GRACE", 0, &errs)
	c.Scheduler.JobTimeout = getDuration("SCHEDULER_JOB_TIMEOUT", 2*time.Minute, &errs)

	c.Recipes.File = getenv("RECIPES_FILE", "data/recipes.json")
	c.Recipes.URL = os.Getenv("RECIPES_URL")

	c.DTMAlert.ChannelID = os.Getenv("DTMALERT_CHANNEL_ID")
	c.DTMAlert.Enabled = c.DTMAlert.ChannelID != ""
	c.DTMAlert.Interval = getDuration("DTMALERT_INTERVAL", 5*time.Minute, &errs)
	c.DTMAlert.Threshold = getInt("DTMALERT_THRESHOLD", 10000, &errs)
	c.DTMAlert.URL = getenv("DTMALERT_URL", DefaultDTMAlertURL)

	c.Market.SalesURL = getenv("MARKET_SALES_URL", DefaultMarketSalesURL)
	c.Market.SchemaURL = getenv("MARKET_SCHEMA_URL", DefaultMarketSchemaURL)

	c.Notify = Notify{
		ExplorerChannelID:  os.Getenv("NOTIFY_EXPLORER_CHANNEL_ID"),
		ExplorerRoleID:     os.Getenv("NOTIFY_EXPLORER_ROLE_ID"),
		Explorer2RoleID:    os.Getenv("NOTIFY_EXPLORER2_ROLE_ID"),
		HaulerChannelID:    os.Getenv("NOTIFY_HAULER_CHANNEL_ID"),
		HaulerRoleID:       os.Getenv("NOTIFY_HAULER_ROLE_ID"),
		HappyHourChannelID: os.Getenv("NOTIFY_HAPPYHOUR_CHANNEL_ID"),
		HappyHourRoleID:    os.Getenv("NOTIFY_HAPPYHOUR_ROLE_ID"),
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks struct tags and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for _, id := range append(c.Discord.AllowedGuilds, c.DTMAlert.ChannelID) {
		if id != "" && !isSnowflake(id) {
			return fmt.Errorf("invalid Discord id %q", id)
		}
	}
	return nil
}

// LoadDatabase reads only the job store settings. Used by CLI commands
// that do not connect to Discord.
func LoadDatabase() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.JobStore.Driver = strings.ToLower(getenv("JOBSTORE_DRIVER", DriverSQLite))
	c.JobStore.DatabaseURL = os.Getenv("DATABASE_URL")
	c.JobStore.SQLitePath = getenv("SQLITE_PATH", "data/jobs.db")
	c.JobStore.RedisURL = os.Getenv("REDIS_URL")
	if err := validate.Struct(c.JobStore); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getDuration(k string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}

func getInt(k string, def int, errs *[]error) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' || r == ' ' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isSnowflake(s string) bool {
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}
