// Package dispatch builds and sends outbound commands to the retina analysis
// pipeline. Sends are fire-and-forget: a transport failure is logged and
// reported as false, never raised, so callers can distinguish "could not
// dispatch" from "dispatched but no answer".
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"retinagate/internal/bus"
	"retinagate/internal/platform/instance"
	"retinagate/internal/validation/models"
)

// Publisher is the slice of the bus the dispatcher needs.
type Publisher interface {
	Publish(ctx context.Context, stream string, msg bus.Message) error
}

// Queues names the dispatcher's target streams.
type Queues struct {
	ValidationCommands  string
	ValidationResponses string
	IndexingCommands    string
}

// Dispatcher sends pipeline commands. A nil publisher means messaging is not
// configured; every send then returns false.
type Dispatcher struct {
	publisher Publisher
	queues    Queues
	inst      instance.Identity
	logger    *slog.Logger
}

// New constructs a dispatcher.
func New(publisher Publisher, queues Queues, inst instance.Identity, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		queues:    queues,
		inst:      inst,
		logger:    logger.With("component", "dispatch"),
	}
}

// SendValidationCommand publishes cmd on the validation command queue with a
// reply-to pointing at the validation response queue. Generates MessageID if
// the caller left it empty. Returns false on any failure.
func (d *Dispatcher) SendValidationCommand(ctx context.Context, cmd models.ValidationCommand) bool {
	if d.publisher == nil {
		d.logger.WarnContext(ctx, "publisher not initialized, validation command not sent")
		return false
	}

	if cmd.MessageID == "" {
		cmd.MessageID = uuid.NewString()
	}
	cmd.OriginatingInstance = d.inst.ID

	body, err := json.Marshal(cmd)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to marshal validation command", "error", err)
		return false
	}

	msg := bus.Message{
		ID:      cmd.MessageID,
		Body:    body,
		ReplyTo: d.queues.ValidationResponses,
		Props: map[string]string{
			"originatingInstance": d.inst.ID,
			"originatingPort":     d.inst.Port,
		},
	}

	if err := d.publisher.Publish(ctx, d.queues.ValidationCommands, msg); err != nil {
		d.logger.ErrorContext(ctx, "failed to send validation command",
			"message_id", cmd.MessageID, "error", err)
		return false
	}

	d.logger.InfoContext(ctx, "validation command sent",
		"message_id", cmd.MessageID,
		"image_path", cmd.ImagePath,
		"candidates", len(cmd.Employees),
		"reply_to", d.queues.ValidationResponses)
	return true
}

// SendIndexingCommand publishes cmd on the indexing command queue. No
// reply-to: the indexing response stream is fixed and consumed independently.
// Returns false on any failure.
func (d *Dispatcher) SendIndexingCommand(ctx context.Context, cmd models.IndexingCommand) bool {
	if d.publisher == nil {
		d.logger.WarnContext(ctx, "publisher not initialized, indexing command not sent")
		return false
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to marshal indexing command", "error", err)
		return false
	}

	msg := bus.Message{
		ID:   uuid.NewString(),
		Body: body,
		Props: map[string]string{
			"originatingInstance": d.inst.ID,
			"originatingPort":     d.inst.Port,
		},
	}

	if err := d.publisher.Publish(ctx, d.queues.IndexingCommands, msg); err != nil {
		d.logger.ErrorContext(ctx, "failed to send indexing command",
			"employee_id", cmd.EmployeeID, "img_id", cmd.ImgID, "error", err)
		return false
	}

	d.logger.InfoContext(ctx, "indexing command sent",
		"employee_id", cmd.EmployeeID, "img_id", cmd.ImgID)
	return true
}
