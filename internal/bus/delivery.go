package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Delivery is one message handed to a consumer. The entry stays in the
// group's pending list until Ack; a delivery that is neither acked nor
// deferred is redelivered after the visibility window, which is how handler
// failures retry.
type Delivery struct {
	id      string
	body    []byte
	replyTo string
	props   map[string]string

	entryID  string
	stream   string
	group    string
	consumer string
	client   redis.Cmdable
}

// ID returns the broker message id used for deduplication.
func (d *Delivery) ID() string { return d.id }

// Body returns the raw message payload.
func (d *Delivery) Body() []byte { return d.body }

// ReplyTo returns the reply queue name, if the producer set one.
func (d *Delivery) ReplyTo() string { return d.replyTo }

// Props returns the application properties attached by the producer.
func (d *Delivery) Props() map[string]string { return d.props }

// EntryID returns the stream entry id, for logging.
func (d *Delivery) EntryID() string { return d.entryID }

// Ack removes the entry from the pending list so it is never redelivered.
func (d *Delivery) Ack(ctx context.Context) error {
	if err := d.client.XAck(ctx, d.stream, d.group, d.entryID).Err(); err != nil {
		return fmt.Errorf("ack %s on %s: %w", d.entryID, d.stream, err)
	}
	return nil
}

// Defer returns the entry to the queue for later redelivery. Claiming the
// entry back to this consumer resets its idle clock, so the full visibility
// window passes before any instance sees it again.
func (d *Delivery) Defer(ctx context.Context) error {
	err := d.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   d.stream,
		Group:    d.group,
		Consumer: d.consumer,
		MinIdle:  0,
		Messages: []string{d.entryID},
	}).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("defer %s on %s: %w", d.entryID, d.stream, err)
	}
	return nil
}

func newDelivery(c *Consumer, msg redis.XMessage) *Delivery {
	d := &Delivery{
		entryID:  msg.ID,
		stream:   c.stream,
		group:    c.group,
		consumer: c.name,
		client:   c.client,
	}
	if id, ok := msg.Values[fieldID].(string); ok {
		d.id = id
	}
	if body, ok := msg.Values[fieldBody].(string); ok {
		d.body = []byte(body)
	}
	if rt, ok := msg.Values[fieldReplyTo].(string); ok {
		d.replyTo = rt
	}
	if raw, ok := msg.Values[fieldProps].(string); ok {
		props := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &props); err == nil {
			d.props = props
		}
	}
	if d.id == "" {
		// Entries published by foreign producers may omit the id field;
		// fall back to the stream entry id so dedup still has a key.
		d.id = msg.ID
	}
	return d
}

// entryTime recovers the enqueue timestamp encoded in a stream entry id.
func entryTime(entryID string) time.Time {
	var ms int64
	if _, err := fmt.Sscanf(entryID, "%d-", &ms); err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
