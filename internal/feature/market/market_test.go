package market

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity/internal/adapter/discord"
	"opportunity/internal/adapter/external/atomicmarket"
	"opportunity/internal/feature"
	"opportunity/internal/feature/featuretest"
	"opportunity/internal/shared"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type fakeMarket struct {
	mu    sync.Mutex
	urls  []string
	sales []atomicmarket.Sale
	attrs []string
	err   error
}

func (f *fakeMarket) Sales(_ context.Context, salesURL string) ([]atomicmarket.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, salesURL)
	return f.sales, f.err
}

func (f *fakeMarket) SchemaAttributes(context.Context, string) ([]string, error) {
	return f.attrs, f.err
}

func (f *fakeMarket) lastURL(t *testing.T) *url.URL {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.urls)
	u, err := url.Parse(f.urls[len(f.urls)-1])
	require.NoError(t, err)
	return u
}

func setup(t *testing.T, m *fakeMarket) (*featuretest.Clock, *feature.Env, *featuretest.Sender) {
	t.Helper()
	clock := featuretest.NewClock(now)
	env, sender := featuretest.NewEnv(t, clock, nil)
	f := New(Options{
		SalesURL:  "https://market.test/sales",
		SchemaURL: "https://market.test/schema",
		DTMURL:    "https://market.test/sales?immutable_data.quadrangle=Coprates",
		Library:   "discordgo 0.28.1",
		Latency:   func() time.Duration { return 42 * time.Millisecond },
	}, m)
	require.NoError(t, f.Register(context.Background(), env))
	return clock, env, sender
}

func run(env *feature.Env, sender discord.Sender, cmd string, args ...string) {
	env.Router.Handle(context.Background(), sender, &discord.Message{
		ChannelID: "7",
		AuthorID:  "42",
		Command:   cmd,
		Args:      args,
	})
}

func TestDTM_Listings(t *testing.T) {
	m := &fakeMarket{sales: []atomicmarket.Sale{
		{ID: "1", Rarity: "Rare", Price: 900, Symbol: "WAX"},
		{ID: "2", Rarity: "Common", Price: 1200, Symbol: "WAX", Bundle: true},
	}}
	_, env, sender := setup(t, m)

	run(env, sender, "dtm")

	assert.Equal(t, "immutable_data.quadrangle=Coprates", m.lastURL(t).RawQuery)
	e := sender.Last(t).Data.Embeds[0]
	assert.Equal(t, "Plots for sale on settlement DTM", e.Title)
	assert.Equal(t, discord.ColorGreen, e.Color)
	require.Len(t, e.Fields, 3)
	assert.Equal(t, "[Link](https://wax.atomichub.io/market/sale/1)\n[Link](https://wax.atomichub.io/market/sale/2)", e.Fields[0].Value)
	assert.Equal(t, "900 WAX\n1200 WAX", e.Fields[1].Value)
	assert.Equal(t, "Rare\nBundle", e.Fields[2].Value)
	assert.True(t, e.Fields[2].Inline)
}

func TestDTM_Empty(t *testing.T) {
	_, env, sender := setup(t, &fakeMarket{})

	run(env, sender, "dtm")

	e := sender.Last(t).Data.Embeds[0]
	assert.Equal(t, "Plots for sale", e.Title)
	assert.Equal(t, "No plots for sale", e.Description)
}

func TestDTM_MarketDown(t *testing.T) {
	m := &fakeMarket{err: shared.MarkKind(errors.New("502 from wax.api"), shared.KindDependencyFailure)}
	_, env, sender := setup(t, m)

	run(env, sender, "dtm")

	e := sender.Last(t).Data.Embeds[0]
	assert.Equal(t, discord.ColorRed, e.Color)
	assert.NotContains(t, e.Description, "wax.api", "внутренний текст ошибки не показывается")
}

func TestDTM_CapsListings(t *testing.T) {
	m := &fakeMarket{}
	for i := 0; i < 15; i++ {
		m.sales = append(m.sales, atomicmarket.Sale{ID: fmt.Sprint(i), Rarity: "Common", Price: int64(i), Symbol: "WAX"})
	}
	_, env, sender := setup(t, m)

	run(env, sender, "dtm")

	lands := sender.Last(t).Data.Embeds[0].Fields[2].Value
	assert.Len(t, strings.Split(lands, "\n"), maxListings)
}

func TestSearch(t *testing.T) {
	m := &fakeMarket{sales: []atomicmarket.Sale{{ID: "9", Rarity: "Epic", Price: 3000, Symbol: "WAX"}}}
	_, env, sender := setup(t, m)

	run(env, sender, "search", "gen2", "4", "rare", "mining", "rig", "2")

	q := m.lastURL(t).Query()
	assert.Equal(t, "2", q.Get("mutable_data.mining_rig-gen2_R4"))
	assert.Equal(t, "1", q.Get("page"))

	e := sender.Last(t).Data.Embeds[0]
	assert.Equal(t, "Listings", e.Title)
	assert.Equal(t, "Listings containing 2 Mining Rig (page 1)", e.Description)
	assert.Equal(t, "3000 WAX", e.Fields[1].Value)
}

func TestSearch_DefaultAmount(t *testing.T) {
	m := &fakeMarket{sales: []atomicmarket.Sale{{ID: "9", Price: 1, Symbol: "WAX"}}}
	_, env, sender := setup(t, m)

	run(env, sender, "search", "1", "1", "Common", "3D", "Print", "Shop")

	assert.Equal(t, "1", m.lastURL(t).Query().Get("mutable_data.3d_print_shop_C1"))
	assert.Equal(t, "Listings containing 1 3D Print Shop (page 1)", sender.Last(t).Data.Embeds[0].Description)
}

func TestSearch_NoListings(t *testing.T) {
	_, env, sender := setup(t, &fakeMarket{})

	run(env, sender, "search", "1", "2", "Uncommon", "Habitat")

	e := sender.Last(t).Data.Embeds[0]
	assert.Equal(t, "Could not find any listings matching the given parameters", e.Description)
}

func TestSearch_Invalid(t *testing.T) {
	m := &fakeMarket{}
	_, env, sender := setup(t, m)

	run(env, sender, "search", "1", "1", "Special", "Habitat")
	e := sender.Last(t).Data.Embeds[0]
	assert.Equal(t, "You must select a special building when using special rarity.", e.Description)

	run(env, sender, "search", "one", "1", "Common", "Habitat")
	assert.Contains(t, sender.Last(t).Data.Content, "Usage")

	run(env, sender, "search", "1", "1", "Common")
	assert.Contains(t, sender.Last(t).Data.Content, "Usage")

	assert.Empty(t, m.urls, "рынок не запрашивается при неверных параметрах")
}

func TestBuildings(t *testing.T) {
	m := &fakeMarket{attrs: []string{"total_space", "solar_panel_C1", "solar_panel_C2", "cantina_A"}}
	_, env, sender := setup(t, m)

	run(env, sender, "buildings")

	e := sender.Last(t).Data.Embeds[0]
	assert.Equal(t, "Buildings", e.Title)
	assert.Equal(t, "List of all buildings", e.Description)
	assert.Equal(t, "Factories", e.Fields[0].Name)
	assert.Equal(t, "Solar Panel", e.Fields[0].Value)
	assert.Equal(t, "Cantina", e.Fields[1].Value)
}

func TestBotinfo(t *testing.T) {
	clock, env, sender := setup(t, &fakeMarket{})
	clock.Advance(26*time.Hour + 3*time.Minute + 4*time.Second)

	run(env, sender, "botinfo")

	e := sender.Last(t).Data.Embeds[0]
	assert.Equal(t, "Opportunity information and statistics", e.Title)
	require.Len(t, e.Fields, 3)
	assert.Equal(t, "1d, 2h, 3m, 4s", e.Fields[0].Value)
	assert.Equal(t, "42 ms", e.Fields[1].Value)
	assert.Equal(t, "discordgo 0.28.1", e.Fields[2].Value)
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0d, 0h, 0m, 59s", FormatUptime(59*time.Second+900*time.Millisecond))
	assert.Equal(t, "3d, 0h, 1m, 0s", FormatUptime(72*time.Hour+time.Minute))
}
