// Package service implements retina photo enrollment: store the blob, record
// it, and fire an indexing command at the pipeline. Indexing completion
// arrives later on the indexing response queue and is applied by the handler
// in this package.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"retinagate/internal/blob"
	"retinagate/internal/retina/models"
	"retinagate/internal/retina/store"
	validationmodels "retinagate/internal/validation/models"
)

// Dispatcher is the slice of the command dispatcher enrollment needs.
type Dispatcher interface {
	SendIndexingCommand(ctx context.Context, cmd validationmodels.IndexingCommand) bool
}

// Service manages enrolled retina photos.
type Service struct {
	blobs      blob.Store
	store      store.Store
	dispatcher Dispatcher
	logger     *slog.Logger
}

// New constructs the enrollment service.
func New(blobs blob.Store, st store.Store, dispatcher Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		blobs:      blobs,
		store:      st,
		dispatcher: dispatcher,
		logger:     logger.With("component", "retina.service"),
	}
}

// Upload stores a retina photo, records it, and asks the pipeline to index
// it. The indexing command is fire-and-forget: a dispatch failure leaves the
// record without an external id and is only logged, the pipeline can be
// nudged later by re-uploading.
func (s *Service) Upload(ctx context.Context, orgID, employeeID, filename string, data []byte, contentType string) (models.RetinaImage, error) {
	if len(data) == 0 {
		return models.RetinaImage{}, fmt.Errorf("empty file")
	}

	blobPath := retinaPhotoPath(orgID, employeeID, filename)
	storedPath, err := s.blobs.Upload(ctx, data, blobPath, contentType)
	if err != nil {
		return models.RetinaImage{}, fmt.Errorf("upload retina photo: %w", err)
	}

	img, err := s.store.Create(ctx, orgID, employeeID, storedPath)
	if err != nil {
		return models.RetinaImage{}, fmt.Errorf("record retina photo: %w", err)
	}

	if !s.dispatcher.SendIndexingCommand(ctx, validationmodels.IndexingCommand{
		ImagePath:  storedPath,
		EmployeeID: employeeID,
		ImgID:      img.ID,
	}) {
		s.logger.WarnContext(ctx, "indexing command not sent, photo stored without index",
			"img_id", img.ID, "employee_id", employeeID)
	}

	return img, nil
}

// List returns an employee's photos, newest first.
func (s *Service) List(ctx context.Context, employeeID string) ([]models.RetinaImage, error) {
	return s.store.FindByEmployee(ctx, employeeID)
}

// Download returns the photo bytes for one record.
func (s *Service) Download(ctx context.Context, id string) ([]byte, error) {
	img, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.blobs.Download(ctx, img.Path)
}

// Delete removes the record and its blob.
func (s *Service) Delete(ctx context.Context, id string) error {
	img, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if _, err := s.blobs.DeleteIfExists(ctx, img.Path); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete blob for removed record",
			"img_id", id, "path", img.Path, "error", err)
	}
	return nil
}

// ApplyIndexingResult stores the pipeline-assigned document id. An unknown
// image id is a warning, not an error: the record may have been deleted
// while the response was in flight.
func (s *Service) ApplyIndexingResult(ctx context.Context, imgID, externalID string) error {
	img, err := s.store.UpdateProcessingResult(ctx, imgID, externalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.WarnContext(ctx, "indexing result for unknown image",
				"img_id", imgID, "external_id", externalID)
			return nil
		}
		return fmt.Errorf("apply indexing result: %w", err)
	}
	s.logger.InfoContext(ctx, "indexing result applied",
		"img_id", img.ID, "employee_id", img.EmployeeID, "external_id", externalID)
	return nil
}

// retinaPhotoPath lays out blobs as
// organizations/<org>/employees/<emp>/retinas/<uuid><ext>.
func retinaPhotoPath(orgID, employeeID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join("organizations", orgID, "employees", employeeID, "retinas", uuid.NewString()+ext)
}
