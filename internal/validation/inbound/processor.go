// Package inbound implements the idempotent, single-flight processor shared
// by the two response queues. Per envelope:
//
//	received → duplicate? ack, stop
//	         → busy?      defer, stop
//	         → run handler
//	           success        → remember id, ack
//	           bad payload    → ack without side effects (drop corrupt input)
//	           handler error  → leave pending, broker redelivers
//
// The busy gate serializes handler execution per instance per queue; under
// competing consumers a deferred message may be picked up by another
// instance once its visibility window lapses.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"retinagate/internal/validation/metrics"
)

// processedCapacity bounds the dedup set. Ids past this horizon may be
// processed again; the broker's at-least-once window is far shorter in
// practice.
const processedCapacity = 1000

// ErrBadPayload marks an envelope whose body can never be processed
// (malformed JSON, missing required fields). The processor acknowledges such
// envelopes without side effects instead of letting them redeliver forever.
var ErrBadPayload = errors.New("bad payload")

// Envelope is one queue delivery as the processor sees it. bus.Delivery
// implements it; tests substitute fakes.
type Envelope interface {
	ID() string
	Body() []byte
	Ack(ctx context.Context) error
	Defer(ctx context.Context) error
}

// Handler is the business side of the processor: validate the payload and
// apply its effect. Return ErrBadPayload (wrapped) for input that can never
// succeed; any other error leaves the envelope pending for retry.
type Handler func(ctx context.Context, env Envelope) error

// Processor consumes one queue idempotently with at most one handler
// execution in flight.
type Processor struct {
	queue   string
	handler Handler
	logger  *slog.Logger
	metrics *metrics.Metrics

	processed *idCache

	mu   sync.Mutex
	busy bool
}

// NewProcessor builds a processor for one queue.
func NewProcessor(queue string, handler Handler, logger *slog.Logger, m *metrics.Metrics) *Processor {
	return &Processor{
		queue:     queue,
		handler:   handler,
		logger:    logger.With("component", "inbound", "queue", queue),
		metrics:   m,
		processed: newIDCache(processedCapacity),
	}
}

// Process handles one envelope to completion.
func (p *Processor) Process(ctx context.Context, env Envelope) {
	if p.processed.Contains(env.ID()) {
		p.logger.InfoContext(ctx, "duplicate message, acknowledging without processing",
			"message_id", env.ID())
		p.metrics.IncrementInbound(p.queue, "duplicate")
		if err := env.Ack(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to ack duplicate", "message_id", env.ID(), "error", err)
		}
		return
	}

	if !p.tryAcquire() {
		p.logger.InfoContext(ctx, "busy, deferring message", "message_id", env.ID())
		p.metrics.IncrementInbound(p.queue, "deferred")
		if err := env.Defer(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to defer message", "message_id", env.ID(), "error", err)
		}
		return
	}
	defer p.release()

	start := time.Now()
	err := p.runHandler(ctx, env)
	p.metrics.ObserveHandlerLatency(p.queue, time.Since(start))

	switch {
	case err == nil:
		p.processed.Add(env.ID())
		p.metrics.IncrementInbound(p.queue, "processed")
		if ackErr := env.Ack(ctx); ackErr != nil {
			p.logger.ErrorContext(ctx, "failed to ack processed message",
				"message_id", env.ID(), "error", ackErr)
			return
		}
		p.logger.InfoContext(ctx, "message processed", "message_id", env.ID())

	case errors.Is(err, ErrBadPayload):
		// Corrupt input cannot succeed on retry; drop it.
		p.metrics.IncrementInbound(p.queue, "dropped")
		p.logger.WarnContext(ctx, "dropping unprocessable message",
			"message_id", env.ID(), "error", err)
		if ackErr := env.Ack(ctx); ackErr != nil {
			p.logger.ErrorContext(ctx, "failed to ack dropped message",
				"message_id", env.ID(), "error", ackErr)
		}

	default:
		// Leave the entry pending: the broker redelivers after the
		// visibility window. Dead-lettering past a delivery count is
		// broker policy, not ours.
		p.metrics.IncrementInbound(p.queue, "failed")
		p.logger.ErrorContext(ctx, "handler failed, leaving message for redelivery",
			"message_id", env.ID(), "error", err)
	}
}

func (p *Processor) runHandler(ctx context.Context, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler(ctx, env)
}

func (p *Processor) tryAcquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy {
		return false
	}
	p.busy = true
	return true
}

func (p *Processor) release() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
}
