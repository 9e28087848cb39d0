package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"retinagate/internal/retina/models"
)

// PostgresStore persists retina image records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the retina_images table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS retina_images (
			id              UUID PRIMARY KEY,
			organization_id TEXT NOT NULL,
			employee_id     TEXT NOT NULL,
			path            TEXT NOT NULL,
			external_id     TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS retina_images_org_idx ON retina_images (organization_id);
		CREATE INDEX IF NOT EXISTS retina_images_employee_idx ON retina_images (employee_id);
	`)
	if err != nil {
		return fmt.Errorf("migrate retina_images: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, orgID, employeeID, path string) (models.RetinaImage, error) {
	id := uuid.NewString()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO retina_images (id, organization_id, employee_id, path)
		VALUES ($1, $2, $3, $4)
		RETURNING id, organization_id, employee_id, path, external_id, created_at`,
		id, orgID, employeeID, path)
	img, err := scanImage(row)
	if err != nil {
		return models.RetinaImage{}, fmt.Errorf("insert retina image: %w", err)
	}
	return img, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (models.RetinaImage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, employee_id, path, external_id, created_at
		FROM retina_images WHERE id = $1`, id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RetinaImage{}, ErrNotFound
	}
	if err != nil {
		return models.RetinaImage{}, fmt.Errorf("find retina image: %w", err)
	}
	return img, nil
}

func (s *PostgresStore) FindByEmployee(ctx context.Context, employeeID string) ([]models.RetinaImage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, employee_id, path, external_id, created_at
		FROM retina_images WHERE employee_id = $1
		ORDER BY created_at DESC`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("list retina images: %w", err)
	}
	defer rows.Close()

	var out []models.RetinaImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retina image: %w", err)
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindCandidatesByOrganization(ctx context.Context, orgID string) ([]models.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_id, external_id
		FROM retina_images WHERE organization_id = $1
		ORDER BY employee_id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		var c models.Candidate
		if err := rows.Scan(&c.EmployeeID, &c.DocumentID); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateProcessingResult(ctx context.Context, imgID, externalID string) (models.RetinaImage, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE retina_images SET external_id = $2
		WHERE id = $1
		RETURNING id, organization_id, employee_id, path, external_id, created_at`,
		imgID, externalID)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RetinaImage{}, ErrNotFound
	}
	if err != nil {
		return models.RetinaImage{}, fmt.Errorf("update processing result: %w", err)
	}
	return img, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM retina_images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete retina image: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete retina image: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(r rowScanner) (models.RetinaImage, error) {
	var img models.RetinaImage
	err := r.Scan(&img.ID, &img.OrganizationID, &img.EmployeeID, &img.Path, &img.ExternalID, &img.CreatedAt)
	return img, err
}
