package store

import (
	"context"
	"errors"

	"retinagate/internal/retina/models"
)

// ErrNotFound is returned when no retina image matches the query.
var ErrNotFound = errors.New("retina image not found")

// Store persists retina image records.
type Store interface {
	// Create inserts a record for a stored photo.
	Create(ctx context.Context, orgID, employeeID, path string) (models.RetinaImage, error)
	// FindByID returns one record, or ErrNotFound.
	FindByID(ctx context.Context, id string) (models.RetinaImage, error)
	// FindByEmployee lists an employee's photos, newest first.
	FindByEmployee(ctx context.Context, employeeID string) ([]models.RetinaImage, error)
	// FindCandidatesByOrganization returns the organization's validation
	// candidate set: one entry per employee photo with its pipeline
	// document id. An empty slice is a valid answer, not an error.
	FindCandidatesByOrganization(ctx context.Context, orgID string) ([]models.Candidate, error)
	// UpdateProcessingResult records the pipeline-assigned document id for
	// an image. Returns ErrNotFound when the image id is unknown.
	UpdateProcessingResult(ctx context.Context, imgID, externalID string) (models.RetinaImage, error)
	// Delete removes a record. Returns ErrNotFound when absent.
	Delete(ctx context.Context, id string) error
}
