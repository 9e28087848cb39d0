// Package correlate matches inbound validation responses to waiting callers
// by correlation id. State is process-local: a response landing on an
// instance other than the one that sent the request only populates that
// instance's result cache and cannot wake the true caller, so correlated
// waits are reliable only in single-instance deployments.
package correlate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"retinagate/internal/validation/models"
)

// ErrTimeout is returned when no response arrives within the wait window.
// It is a business state, not a transport failure.
var ErrTimeout = errors.New("timed out waiting for validation response")

// DefaultTimeout is the wait window used when the caller passes zero.
const DefaultTimeout = 30 * time.Second

type cachedResult struct {
	payload  models.ValidationResponse
	storedAt time.Time
}

// Correlator is an in-process registry of pending waits and arrived results.
// Results are cached on arrival whether or not a waiter is registered, which
// covers the race where the response beats the Await call. Cached results
// are swept once they outlive the TTL.
type Correlator struct {
	mu      sync.Mutex
	waits   map[string]chan models.ValidationResponse
	results map[string]cachedResult

	ttl           time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
}

// New builds a correlator. waitTimeout sizes the result TTL: entries live
// for twice the wait window, long enough for a late Await, short enough to
// keep orphaned responses from accumulating.
func New(waitTimeout time.Duration, logger *slog.Logger) *Correlator {
	if waitTimeout <= 0 {
		waitTimeout = DefaultTimeout
	}
	return &Correlator{
		waits:         make(map[string]chan models.ValidationResponse),
		results:       make(map[string]cachedResult),
		ttl:           2 * waitTimeout,
		sweepInterval: waitTimeout,
		logger:        logger.With("component", "correlate"),
	}
}

// Await blocks until a response for correlationID arrives, the timeout
// fires, or ctx is cancelled. A result that arrived before the call
// resolves immediately. Each wait resolves exactly once.
func (c *Correlator) Await(ctx context.Context, correlationID string, timeout time.Duration) (models.ValidationResponse, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c.mu.Lock()
	if r, ok := c.results[correlationID]; ok {
		c.mu.Unlock()
		return r.payload, nil
	}
	ch := make(chan models.ValidationResponse, 1)
	c.waits[correlationID] = ch
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		if resp, resolved := c.abandon(correlationID, ch); resolved {
			return resp, nil
		}
		c.logger.WarnContext(ctx, "timed out waiting for validation response",
			"correlation_id", correlationID, "timeout", timeout)
		return models.ValidationResponse{}, ErrTimeout
	case <-ctx.Done():
		if resp, resolved := c.abandon(correlationID, ch); resolved {
			return resp, nil
		}
		return models.ValidationResponse{}, ctx.Err()
	}
}

// abandon removes the wait unless Resolve already claimed it. Removal under
// the lock makes resolution atomic: either this call wins and the wait ends
// in timeout/cancellation, or Resolve won and the buffered response is
// drained here. Never both.
func (c *Correlator) abandon(correlationID string, ch chan models.ValidationResponse) (models.ValidationResponse, bool) {
	c.mu.Lock()
	cur, ok := c.waits[correlationID]
	if ok && cur == ch {
		delete(c.waits, correlationID)
		c.mu.Unlock()
		return models.ValidationResponse{}, false
	}
	c.mu.Unlock()

	// Resolve removed the wait first; the response is already buffered.
	select {
	case resp := <-ch:
		return resp, true
	default:
		return models.ValidationResponse{}, false
	}
}

// Resolve records a response and wakes its waiter if one is registered.
// Invoked by the inbound processor for the validation response queue.
func (c *Correlator) Resolve(correlationID string, payload models.ValidationResponse) {
	c.mu.Lock()
	c.results[correlationID] = cachedResult{payload: payload, storedAt: time.Now()}
	ch, ok := c.waits[correlationID]
	if ok {
		delete(c.waits, correlationID)
		// Buffered send under the lock: removal and delivery are atomic,
		// so a concurrently firing timer always finds the response.
		ch <- payload
	}
	c.mu.Unlock()

	if ok {
		c.logger.Info("resolved pending wait", "correlation_id", correlationID)
	} else {
		c.logger.Info("cached response with no pending wait", "correlation_id", correlationID)
	}
}

// Run sweeps expired results until ctx is cancelled.
func (c *Correlator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := c.sweep(time.Now()); n > 0 {
				c.logger.Debug("swept expired results", "count", n)
			}
		}
	}
}

func (c *Correlator) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, r := range c.results {
		if now.Sub(r.storedAt) > c.ttl {
			delete(c.results, id)
			n++
		}
	}
	return n
}

// PendingWaits returns the number of registered waiters, for diagnostics.
func (c *Correlator) PendingWaits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waits)
}

// CachedResults returns the number of cached responses, for diagnostics.
func (c *Correlator) CachedResults() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}
