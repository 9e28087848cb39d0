package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"retinagate/internal/validation/inbound"
	validationmodels "retinagate/internal/validation/models"
)

// NewIndexingResponseHandler returns the inbound handler for the indexing
// response queue. Payloads missing required fields are dropped; a non-success
// status is logged and dropped, matching the pipeline contract that failed
// indexing is not retried from this side.
func NewIndexingResponseHandler(svc *Service, logger *slog.Logger) inbound.Handler {
	log := logger.With("component", "retina.indexing_handler")
	return func(ctx context.Context, env inbound.Envelope) error {
		var resp validationmodels.IndexingResponse
		if err := json.Unmarshal(env.Body(), &resp); err != nil {
			return fmt.Errorf("%w: decode indexing response: %v", inbound.ErrBadPayload, err)
		}
		if resp.EmployeeID == "" || resp.ImgID == "" {
			return fmt.Errorf("%w: indexing response missing employeeId or imgId", inbound.ErrBadPayload)
		}

		if resp.Status != validationmodels.StatusSuccess || resp.ID == "" {
			log.WarnContext(ctx, "indexing did not succeed, nothing to record",
				"img_id", resp.ImgID, "employee_id", resp.EmployeeID, "status", resp.Status)
			return nil
		}

		return svc.ApplyIndexingResult(ctx, resp.ImgID, resp.ID)
	}
}
