package dtmalert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity/internal/adapter/external/atomicmarket"
	"opportunity/internal/adapter/scheduler"
	"opportunity/internal/feature/featuretest"
)

type fakeMarket struct {
	sales []atomicmarket.Sale
	err   error
	urls  []string
}

func (m *fakeMarket) Sales(_ context.Context, salesURL string) ([]atomicmarket.Sale, error) {
	m.urls = append(m.urls, salesURL)
	return m.sales, m.err
}

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func opts() Options {
	return Options{SalesURL: "https://market.test/sales", ChannelID: "55", Threshold: 1000, Interval: 5 * time.Minute}
}

func TestRegister_IntervalJobInMemory(t *testing.T) {
	env, _ := featuretest.NewEnv(t, featuretest.NewClock(now), nil)
	require.NoError(t, New(opts(), &fakeMarket{}).Register(context.Background(), env))

	job, err := env.Scheduler.Lookup(context.Background(), JobID)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StoreMemory, job.Store)
	assert.True(t, now.Add(5*time.Minute).Equal(*job.NextRunTime))
}

func TestRegister_DisabledWithoutChannel(t *testing.T) {
	env, _ := featuretest.NewEnv(t, featuretest.NewClock(now), nil)
	o := opts()
	o.ChannelID = ""
	require.NoError(t, New(o, &fakeMarket{}).Register(context.Background(), env))

	_, err := env.Scheduler.Lookup(context.Background(), JobID)
	assert.ErrorIs(t, err, scheduler.ErrJobNotFound)
}

func TestAlert_PostsCheapestOnce(t *testing.T) {
	env, sender := featuretest.NewEnv(t, featuretest.NewClock(now), nil)
	market := &fakeMarket{sales: []atomicmarket.Sale{
		{ID: "1", Name: "Coprates 1-1", Price: 800, Symbol: "WAX"},
		{ID: "2", Name: "Coprates 1-2", Price: 950, Symbol: "WAX"},
		{ID: "3", Name: "Coprates 1-3", Price: 5000, Symbol: "WAX"},
	}}
	f := New(opts(), market)
	require.NoError(t, f.Register(context.Background(), env))

	require.NoError(t, f.alert(context.Background(), nil))
	msg := sender.Last(t)
	assert.Equal(t, "55", msg.ChannelID)
	e := msg.Data.Embeds[0]
	assert.Equal(t, "DTM ALERT", e.Title)
	assert.Equal(t, "Coprates 1-1", e.Fields[0].Name)
	assert.Equal(t, "[Link](https://wax.atomichub.io/market/sale/1)\n800 WAX", e.Fields[0].Value)

	require.NoError(t, f.alert(context.Background(), nil))
	assert.Equal(t, "Coprates 1-2", sender.Last(t).Data.Embeds[0].Fields[0].Name, "объявление не повторяется")

	require.NoError(t, f.alert(context.Background(), nil))
	assert.Len(t, sender.Messages(), 2, "дороже порога ничего не публикуется")
	assert.Equal(t, []string{"https://market.test/sales"}, market.urls[:1])
}

func TestAlert_ForgetsDelistedSales(t *testing.T) {
	env, sender := featuretest.NewEnv(t, featuretest.NewClock(now), nil)
	market := &fakeMarket{sales: []atomicmarket.Sale{{ID: "1", Price: 10}}}
	f := New(opts(), market)
	require.NoError(t, f.Register(context.Background(), env))

	require.NoError(t, f.alert(context.Background(), nil))
	market.sales = nil
	require.NoError(t, f.alert(context.Background(), nil))
	market.sales = []atomicmarket.Sale{{ID: "1", Price: 10}}
	require.NoError(t, f.alert(context.Background(), nil))

	assert.Len(t, sender.Messages(), 2, "снятый и вновь выставленный лот объявляется снова")
}

func TestAlert_Errors(t *testing.T) {
	env, sender := featuretest.NewEnv(t, featuretest.NewClock(now), nil)
	market := &fakeMarket{err: errors.New("502 bad gateway")}
	f := New(opts(), market)
	require.NoError(t, f.Register(context.Background(), env))

	assert.Error(t, f.alert(context.Background(), nil))
	assert.Empty(t, sender.Messages())

	market.err = nil
	market.sales = []atomicmarket.Sale{{ID: "9", Price: 1}}
	sender.Err = errors.New("missing access")
	assert.Error(t, f.alert(context.Background(), nil))

	sender.Err = nil
	require.NoError(t, f.alert(context.Background(), nil), "неотправленный лот можно отправить снова")
	assert.Len(t, sender.Messages(), 2)
}
