package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"retinagate/internal/validation/correlate"
	"retinagate/internal/validation/inbound"
	"retinagate/internal/validation/models"
)

// NewResponseHandler returns the inbound handler for the validation response
// queue: decode, pick the correlation id (body field wins over the broker
// message id), and hand the payload to the correlator.
func NewResponseHandler(c *correlate.Correlator, logger *slog.Logger) inbound.Handler {
	log := logger.With("component", "validation.response_handler")
	return func(ctx context.Context, env inbound.Envelope) error {
		var resp models.ValidationResponse
		if err := json.Unmarshal(env.Body(), &resp); err != nil {
			return fmt.Errorf("%w: decode validation response: %v", inbound.ErrBadPayload, err)
		}

		correlationID := resp.MessageID
		if correlationID == "" {
			correlationID = env.ID()
		}
		if correlationID == "" {
			return fmt.Errorf("%w: validation response has no correlation id", inbound.ErrBadPayload)
		}
		resp.MessageID = correlationID

		log.InfoContext(ctx, "validation response received",
			"correlation_id", correlationID,
			"status", resp.Status,
			"similarity", resp.Similarity)

		c.Resolve(correlationID, resp)
		return nil
	}
}
