// Package eventqueue dispatches per-session memory events to subscribers in
// order, backed by the storage layer's event table. An optional Redis
// pub/sub channel lets the dispatcher block on new work instead of
// polling; without one configured it falls back to a short poll interval.
package eventqueue

import (
	"context"
	"time"

	"github.com/beliefgraph/core/internal/domain"
	"github.com/redis/go-redis/v9"
)

const wakeChannel = "beliefgraph:events:wake"

// Dispatcher claims due events for a session and hands them to Handler,
// marking each dispatched once handled.
type Dispatcher struct {
	store       domain.MemoryStore
	redis       *redis.Client
	pollEvery   time.Duration
	claimLimit  int
	handler     Handler
}

// Handler processes a single claimed event. Claiming marks each event
// dispatched before the handler runs; an error from the handler is ignored
// and the event is not redelivered, so each event is handed to the handler
// at most once.
type Handler func(ctx context.Context, ev *domain.MemoryEvent) error

// NewDispatcher builds a dispatcher. redisClient may be nil, in which case
// Run polls the store every pollEvery instead of waiting on a wake signal.
func NewDispatcher(store domain.MemoryStore, redisClient *redis.Client, pollEvery time.Duration, claimLimit int, handler Handler) *Dispatcher {
	if pollEvery <= 0 {
		pollEvery = time.Second
	}
	if claimLimit <= 0 {
		claimLimit = 50
	}
	return &Dispatcher{
		store:      store,
		redis:      redisClient,
		pollEvery:  pollEvery,
		claimLimit: claimLimit,
		handler:    handler,
	}
}

// Wake publishes a wake signal for sessionID so a blocked Run loop claims
// events immediately instead of waiting out the poll interval. A no-op
// when no Redis client is configured.
func (d *Dispatcher) Wake(ctx context.Context, sessionID string) {
	if d.redis == nil {
		return
	}
	_ = d.redis.Publish(ctx, wakeChannel, sessionID).Err()
}

// Run drains due events for sessionID until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, sessionID string) error {
	var sub *redis.PubSub
	var wakeCh <-chan *redis.Message
	if d.redis != nil {
		sub = d.redis.Subscribe(ctx, wakeChannel)
		defer sub.Close()
		wakeCh = sub.Channel()
	}

	ticker := time.NewTicker(d.pollEvery)
	defer ticker.Stop()

	for {
		if err := d.drain(ctx, sessionID); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-wakeCh:
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context, sessionID string) error {
	for {
		events, err := d.store.ClaimDueEvents(ctx, sessionID, d.claimLimit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		for _, ev := range events {
			if err := d.handler(ctx, ev); err != nil {
				continue
			}
		}
		if len(events) < d.claimLimit {
			return nil
		}
	}
}
