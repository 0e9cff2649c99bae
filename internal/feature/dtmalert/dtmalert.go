// Package dtmalert watches the marketplace for cheap Coprates land plots
// and posts the cheapest new listing under a price threshold.
package dtmalert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"opportunity/internal/adapter/discord"
	"opportunity/internal/adapter/external/atomicmarket"
	"opportunity/internal/adapter/scheduler"
	"opportunity/internal/feature"
)

// JobID is the fixed id of the polling job.
const JobID = "dtmalert"

// FuncAlert is the registered name of the polling callable.
const FuncAlert = "dtmalert.alert"

// Market lists active sales.
type Market interface {
	Sales(ctx context.Context, salesURL string) ([]atomicmarket.Sale, error)
}

// Options configures the alert.
type Options struct {
	SalesURL  string
	ChannelID string
	Threshold int64
	Interval  time.Duration
}

// Feature polls the marketplace on an interval job in the memory store.
type Feature struct {
	opts   Options
	market Market

	sender discord.Sender
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// New creates the feature.
func New(opts Options, market Market) *Feature {
	return &Feature{opts: opts, market: market, seen: make(map[string]struct{})}
}

// Name implements feature.Feature.
func (f *Feature) Name() string { return "dtmalert" }

// Register implements feature.Feature.
func (f *Feature) Register(ctx context.Context, env *feature.Env) error {
	f.sender = env.Sender
	f.logger = env.FeatureLogger(f.Name())

	if f.opts.ChannelID == "" {
		f.logger.Info("DTM alert disabled, no channel configured")
		return nil
	}
	if err := env.Scheduler.Register(FuncAlert, f.alert); err != nil {
		return err
	}
	_, err := env.Scheduler.Schedule(ctx, scheduler.Request{
		Func:            FuncAlert,
		Trigger:         scheduler.Every(f.opts.Interval),
		Store:           scheduler.StoreMemory,
		ID:              JobID,
		ReplaceExisting: true,
	})
	return err
}

func (f *Feature) alert(ctx context.Context, _ scheduler.Kwargs) error {
	sales, err := f.market.Sales(ctx, f.opts.SalesURL)
	if err != nil {
		return fmt.Errorf("list sales: %w", err)
	}

	sale, ok := f.pick(sales)
	if !ok {
		return nil
	}
	f.logger.Info("Found listing below or equal to threshold",
		"sale_id", sale.ID,
		"price", sale.Price,
		"symbol", sale.Symbol,
	)
	e := discord.NewEmbed("DTM ALERT", discord.ColorGreen).
		Field(sale.Name, fmt.Sprintf("[Link](%s)\n%d %s", sale.Link(), sale.Price, sale.Symbol), false).
		Build()
	if err := discord.ReplyEmbed(ctx, f.sender, f.opts.ChannelID, e); err != nil {
		f.forget(sale.ID)
		return fmt.Errorf("post alert: %w", err)
	}
	return nil
}

// pick returns the first listing at or under the threshold that has not
// been announced yet. Ids no longer listed are forgotten.
func (f *Feature) pick(sales []atomicmarket.Sale) (atomicmarket.Sale, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	listed := make(map[string]struct{}, len(sales))
	for _, s := range sales {
		listed[s.ID] = struct{}{}
	}
	for id := range f.seen {
		if _, ok := listed[id]; !ok {
			delete(f.seen, id)
		}
	}

	var fresh []atomicmarket.Sale
	for _, s := range sales {
		if _, dup := f.seen[s.ID]; !dup {
			fresh = append(fresh, s)
		}
	}
	sale, ok := atomicmarket.Cheapest(fresh, f.opts.Threshold)
	if ok {
		f.seen[sale.ID] = struct{}{}
	}
	return sale, ok
}

func (f *Feature) forget(id string) {
	f.mu.Lock()
	delete(f.seen, id)
	f.mu.Unlock()
}
