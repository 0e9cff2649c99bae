package discord

import (
	"context"
	"hash/fnv"
	"sync"
)

type ctxMessage struct {
	ctx context.Context
	msg *Message
}

// Dispatcher routes messages to worker goroutines keeping channel order.
type Dispatcher struct {
	sender  Sender
	handler HandlerFunc
	workers int
	chans   []chan ctxMessage
	wg      sync.WaitGroup
	once    sync.Once
}

// NewDispatcher creates dispatcher with given worker count.
func NewDispatcher(s Sender, workers int, h HandlerFunc) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{sender: s, handler: h, workers: workers, chans: make([]chan ctxMessage, workers)}
	for i := 0; i < workers; i++ {
		d.chans[i] = make(chan ctxMessage, 100)
		d.wg.Add(1)
		go d.worker(d.chans[i])
	}
	return d
}

// Dispatch sends message to the worker owning its channel.
func (d *Dispatcher) Dispatch(ctx context.Context, m *Message) {
	d.chans[d.index(m.ChannelID)] <- ctxMessage{ctx: ctx, msg: m}
}

// Close stops accepting messages and waits for queued ones to be handled.
// Dispatch must not be called after Close.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		for _, ch := range d.chans {
			close(ch)
		}
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker(in <-chan ctxMessage) {
	defer d.wg.Done()
	for item := range in {
		d.handler(item.ctx, d.sender, item.msg)
	}
}

func (d *Dispatcher) index(channelID string) int {
	if channelID == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(channelID))
	return int(h.Sum32() % uint32(d.workers))
}
