package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"retinagate/internal/retina/models"
)

// MemoryStore implements Store in process memory. Used in tests and when no
// database is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	images map[string]models.RetinaImage
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{images: make(map[string]models.RetinaImage)}
}

func (s *MemoryStore) Create(_ context.Context, orgID, employeeID, path string) (models.RetinaImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := models.RetinaImage{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		EmployeeID:     employeeID,
		Path:           path,
		CreatedAt:      time.Now(),
	}
	s.images[img.ID] = img
	return img, nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (models.RetinaImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[id]
	if !ok {
		return models.RetinaImage{}, ErrNotFound
	}
	return img, nil
}

func (s *MemoryStore) FindByEmployee(_ context.Context, employeeID string) ([]models.RetinaImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.RetinaImage
	for _, img := range s.images {
		if img.EmployeeID == employeeID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) FindCandidatesByOrganization(_ context.Context, orgID string) ([]models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Candidate
	for _, img := range s.images {
		if img.OrganizationID == orgID {
			out = append(out, models.Candidate{
				EmployeeID: img.EmployeeID,
				DocumentID: img.ExternalID,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

func (s *MemoryStore) UpdateProcessingResult(_ context.Context, imgID, externalID string) (models.RetinaImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[imgID]
	if !ok {
		return models.RetinaImage{}, ErrNotFound
	}
	img.ExternalID = externalID
	s.images[imgID] = img
	return img, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[id]; !ok {
		return ErrNotFound
	}
	delete(s.images, id)
	return nil
}
