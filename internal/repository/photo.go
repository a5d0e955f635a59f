package repository

import (
	"context"
	"fmt"

	"fotograf-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PhotoRepository handles database operations for photos
type PhotoRepository struct {
	db *pgxpool.Pool
}

// NewPhotoRepository creates a new photo repository
func NewPhotoRepository(db *pgxpool.Pool) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// Create creates a new photo
func (r *PhotoRepository) Create(ctx context.Context, photo *models.Photo) error {
	query := `
		INSERT INTO photos (id, submission_id, kind, url, preview_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		photo.ID, photo.SubmissionID, photo.Kind, photo.URL, photo.PreviewURL, photo.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create photo: %w", err)
	}
	return nil
}

// ListBySubmissions retrieves photos for a set of submissions, oldest first,
// grouped by submission ID
func (r *PhotoRepository) ListBySubmissions(ctx context.Context, submissionIDs []string) (map[string][]*models.Photo, error) {
	grouped := make(map[string][]*models.Photo, len(submissionIDs))
	if len(submissionIDs) == 0 {
		return grouped, nil
	}

	query := `
		SELECT id, submission_id, kind, url, preview_url, created_at
		FROM photos
		WHERE submission_id = ANY($1::uuid[])
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, submissionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get photos: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var photo models.Photo
		err := rows.Scan(
			&photo.ID, &photo.SubmissionID, &photo.Kind, &photo.URL,
			&photo.PreviewURL, &photo.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		grouped[photo.SubmissionID] = append(grouped[photo.SubmissionID], &photo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photos: %w", err)
	}

	return grouped, nil
}
