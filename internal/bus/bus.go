// Package bus is the broker layer: named queues on Redis Streams with
// at-least-once, competing-consumer delivery. Publishing is XADD; consumption
// runs through a consumer group so unacknowledged entries stay in the pending
// list and are reclaimed once their visibility window lapses, the stream
// analogue of a peek-lock expiring.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	fieldID      = "id"
	fieldBody    = "body"
	fieldReplyTo = "reply_to"
	fieldProps   = "props"
)

// Message is one outbound unit. ID doubles as the broker message id used for
// consumer-side deduplication; Props carry diagnostic application properties.
type Message struct {
	ID      string
	Body    []byte
	ReplyTo string
	Props   map[string]string
}

// Publisher appends messages to streams. It is safe for concurrent use.
type Publisher struct {
	client redis.Cmdable
	logger *slog.Logger
}

// NewPublisher wraps a Redis client for publishing.
func NewPublisher(client redis.Cmdable, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger.With("component", "bus.publisher")}
}

// Publish appends msg to the stream. The send is fire-and-forget from the
// caller's point of view: once XADD returns the publisher keeps no state.
func (p *Publisher) Publish(ctx context.Context, stream string, msg Message) error {
	values := map[string]interface{}{
		fieldID:   msg.ID,
		fieldBody: string(msg.Body),
	}
	if msg.ReplyTo != "" {
		values[fieldReplyTo] = msg.ReplyTo
	}
	if len(msg.Props) > 0 {
		props, err := json.Marshal(msg.Props)
		if err != nil {
			return fmt.Errorf("marshal message properties: %w", err)
		}
		values[fieldProps] = string(props)
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	p.logger.DebugContext(ctx, "message published", "stream", stream, "message_id", msg.ID)
	return nil
}
