package bus

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handler processes one delivery. Implementations own acknowledgement: a
// handler that returns without calling Ack or Defer leaves the entry pending
// for redelivery.
type Handler interface {
	Process(ctx context.Context, d *Delivery)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, d *Delivery)

func (f HandlerFunc) Process(ctx context.Context, d *Delivery) { f(ctx, d) }

// ConsumerConfig carries the per-queue consumer knobs.
type ConsumerConfig struct {
	Stream string
	Group  string
	// Name identifies this consumer within the group; distinct per instance.
	Name string
	// Visibility is how long a pending entry may sit idle before another
	// consumer reclaims it.
	Visibility time.Duration
	// RestartDelay is the pause before retrying after a setup or read
	// failure. The loop never gives up; it heals once the broker is back.
	RestartDelay time.Duration
}

// Consumer runs a single receive loop over one stream. Deliveries are handed
// to the handler one at a time; concurrency limits beyond that are the
// handler's business.
type Consumer struct {
	client       *redis.Client
	stream       string
	group        string
	name         string
	visibility   time.Duration
	restartDelay time.Duration
	blockTime    time.Duration
	logger       *slog.Logger
}

// NewConsumer builds a consumer for one stream.
func NewConsumer(client *redis.Client, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	visibility := cfg.Visibility
	if visibility <= 0 {
		visibility = time.Minute
	}
	restartDelay := cfg.RestartDelay
	if restartDelay <= 0 {
		restartDelay = 10 * time.Second
	}
	return &Consumer{
		client:       client,
		stream:       cfg.Stream,
		group:        cfg.Group,
		name:         cfg.Name,
		visibility:   visibility,
		restartDelay: restartDelay,
		blockTime:    5 * time.Second,
		logger:       logger.With("component", "bus.consumer", "stream", cfg.Stream),
	}
}

// Run consumes until ctx is cancelled. Startup failures (group creation,
// broker unreachable) are logged and retried after RestartDelay rather than
// surfaced, so the receiver self-heals.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	for {
		if err := c.ensureGroup(ctx); err != nil {
			c.logger.ErrorContext(ctx, "consumer startup failed, retrying",
				"error", err, "retry_in", c.restartDelay)
			if !sleepCtx(ctx, c.restartDelay) {
				return ctx.Err()
			}
			continue
		}

		c.logger.InfoContext(ctx, "consumer started", "group", c.group, "consumer", c.name)

		if err := c.consume(ctx, h); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "consumer loop failed, restarting",
				"error", err, "retry_in", c.restartDelay)
			if !sleepCtx(ctx, c.restartDelay) {
				return ctx.Err()
			}
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

func (c *Consumer) consume(ctx context.Context, h Handler) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Reclaim entries another consumer took but never acknowledged.
		// This is the redelivery path for deferred messages, handler
		// failures, and dead instances.
		if err := c.claimStale(ctx, h); err != nil {
			return err
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{c.stream, ">"},
			Block:    c.blockTime,
			Count:    1,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				h.Process(ctx, newDelivery(c, msg))
			}
		}
	}
}

func (c *Consumer) claimStale(ctx context.Context, h Handler) error {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  c.visibility,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err != nil && err != redis.Nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	for _, msg := range msgs {
		c.logger.DebugContext(ctx, "redelivering stale entry",
			"entry_id", msg.ID, "enqueued_at", entryTime(msg.ID))
		h.Process(ctx, newDelivery(c, msg))
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
