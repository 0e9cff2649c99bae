// Package market answers land plot marketplace queries and reports bot
// statistics.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"opportunity/internal/adapter/discord"
	"opportunity/internal/adapter/discord/handlers"
	"opportunity/internal/adapter/external/atomicmarket"
	"opportunity/internal/feature"
	"opportunity/internal/gamedata"
)

// maxListings caps listing lines so fields stay within Discord limits.
const maxListings = 10

// Market reads listings and the land plot schema.
type Market interface {
	Sales(ctx context.Context, salesURL string) ([]atomicmarket.Sale, error)
	SchemaAttributes(ctx context.Context, schemaURL string) ([]string, error)
}

// Options configures the feature.
type Options struct {
	// SalesURL is the bare sales endpoint; queries are added per command.
	SalesURL  string
	SchemaURL string
	// DTMURL lists plots on the DTM settlement.
	DTMURL string
	// Library is shown by botinfo, for example "discordgo 0.28.1".
	Library string
	// Latency reports the gateway heartbeat latency.
	Latency func() time.Duration
}

// Feature registers the market and botinfo commands.
type Feature struct {
	opts    Options
	market  Market
	started time.Time

	now    func() time.Time
	logger *slog.Logger
}

// New creates the feature.
func New(opts Options, market Market) *Feature {
	return &Feature{opts: opts, market: market}
}

// Name implements feature.Feature.
func (f *Feature) Name() string { return "market" }

// Register implements feature.Feature. Uptime counts from registration.
func (f *Feature) Register(_ context.Context, env *feature.Env) error {
	f.logger = env.FeatureLogger(f.Name())
	f.now = env.Clock
	f.started = f.now()

	for _, c := range []handlers.Command{
		{Name: "dtm", Description: "List plots for sale on the DTM settlement.", Handler: f.dtm},
		{Name: "search", Usage: "<gen> <level> <rarity> <building> [amount]", Description: "Find plots holding a building.", Handler: f.search},
		{Name: "buildings", Description: "List all factories and artifacts.", Handler: f.buildings},
		{Name: "botinfo", Description: "Show uptime and latency.", Handler: f.botinfo},
	} {
		if err := env.Router.Add(c); err != nil {
			return err
		}
	}
	return nil
}

func (f *Feature) dtm(ctx context.Context, s discord.Sender, m *discord.Message) {
	sales, err := f.market.Sales(ctx, f.opts.DTMURL)
	if err != nil {
		handlers.ReplyError(ctx, s, m, f.logger, err)
		return
	}
	if len(sales) == 0 {
		e := discord.NewEmbed("Plots for sale", discord.ColorGreen).Description("No plots for sale")
		f.send(ctx, s, m, e)
		return
	}
	f.send(ctx, s, m, listings(discord.NewEmbed("Plots for sale on settlement DTM", discord.ColorGreen), sales))
}

// search <gen> <level> <rarity> <building words...> [amount]
func (f *Feature) search(ctx context.Context, s discord.Sender, m *discord.Message) {
	q, ok := parseSearch(m.Args)
	if !ok {
		f.reply(ctx, s, m, "Usage: search <gen 1-3> <level 1-10> <rarity> <building> [amount]")
		return
	}
	key, err := gamedata.BuildingKey(q.generation, q.level, q.rarity, q.building)
	if err != nil {
		handlers.ReplyError(ctx, s, m, f.logger, err)
		return
	}
	sales, err := f.market.Sales(ctx, atomicmarket.BuildingSalesURL(f.opts.SalesURL, key, q.amount, 1))
	if err != nil {
		handlers.ReplyError(ctx, s, m, f.logger, err)
		return
	}
	if len(sales) == 0 {
		f.logger.Info("No listings", "building_key", key, "amount", q.amount)
		e := discord.NewEmbed("", discord.ColorRed).Description("Could not find any listings matching the given parameters")
		f.send(ctx, s, m, e)
		return
	}
	building, _ := gamedata.LookupBuilding(q.building)
	e := discord.NewEmbed("Listings", discord.ColorGreen).
		Description(fmt.Sprintf("Listings containing %d %s (page 1)", q.amount, building))
	f.send(ctx, s, m, listings(e, sales))
}

type searchQuery struct {
	generation int
	level      int
	rarity     string
	building   string
	amount     int
}

func parseSearch(args []string) (searchQuery, bool) {
	if len(args) < 4 {
		return searchQuery{}, false
	}
	gen, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(args[0]), "gen"))
	if err != nil {
		return searchQuery{}, false
	}
	level, err := strconv.Atoi(args[1])
	if err != nil {
		return searchQuery{}, false
	}
	q := searchQuery{generation: gen, level: level, rarity: args[2], amount: 1}
	words := args[3:]
	if len(words) > 1 {
		if n, err := strconv.Atoi(words[len(words)-1]); err == nil {
			if n < 1 {
				return searchQuery{}, false
			}
			q.amount = n
			words = words[:len(words)-1]
		}
	}
	q.building = strings.Join(words, " ")
	return q, true
}

func (f *Feature) buildings(ctx context.Context, s discord.Sender, m *discord.Message) {
	attrs, err := f.market.SchemaAttributes(ctx, f.opts.SchemaURL)
	if err != nil {
		handlers.ReplyError(ctx, s, m, f.logger, err)
		return
	}
	factories, artifacts := gamedata.SplitBuildings(attrs)
	e := discord.NewEmbed("Buildings", discord.ColorGreen).
		Description("List of all buildings").
		Field("Factories", strings.Join(factories, "\n"), true).
		Field("Artifacts", strings.Join(artifacts, "\n"), true)
	f.send(ctx, s, m, e)
}

func (f *Feature) botinfo(ctx context.Context, s discord.Sender, m *discord.Message) {
	e := discord.NewEmbed("Opportunity information and statistics", discord.ColorGreen).
		Field("Uptime", FormatUptime(f.now().Sub(f.started)), true)
	if f.opts.Latency != nil {
		e.Field("Latency", fmt.Sprintf("%d ms", f.opts.Latency().Milliseconds()), true)
	}
	if f.opts.Library != "" {
		e.Field("Library", f.opts.Library, true)
	}
	f.send(ctx, s, m, e)
}

// FormatUptime renders d as "1d, 2h, 3m, 4s".
func FormatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	days, rem := secs/86400, secs%86400
	return fmt.Sprintf("%dd, %dh, %dm, %ds", days, rem/3600, rem%3600/60, rem%60)
}

// listings adds link, cost and land columns for the first sales.
func listings(e *discord.Embed, sales []atomicmarket.Sale) *discord.Embed {
	if len(sales) > maxListings {
		sales = sales[:maxListings]
	}
	var links, costs, lands []string
	for _, s := range sales {
		links = append(links, fmt.Sprintf("[Link](%s)", s.Link()))
		costs = append(costs, fmt.Sprintf("%d %s", s.Price, s.Symbol))
		lands = append(lands, s.Land())
	}
	return e.Field("Listings", strings.Join(links, "\n"), true).
		Field("Cost", strings.Join(costs, "\n"), true).
		Field("Land(s)", strings.Join(lands, "\n"), true)
}

func (f *Feature) send(ctx context.Context, s discord.Sender, m *discord.Message, e *discord.Embed) {
	if err := discord.ReplyEmbed(ctx, s, m.ChannelID, e.Build()); err != nil {
		f.logger.Warn("Failed to reply", "command", m.Command, "error", err)
	}
}

func (f *Feature) reply(ctx context.Context, s discord.Sender, m *discord.Message, text string) {
	if err := discord.Reply(ctx, s, m.ChannelID, text); err != nil {
		f.logger.Warn("Failed to reply", "command", m.Command, "error", err)
	}
}
