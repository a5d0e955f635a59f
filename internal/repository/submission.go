package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fotograf-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubmissionRepository handles database operations for submissions
type SubmissionRepository struct {
	db *pgxpool.Pool
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `
	id, owner_id, contact_email, display_name, phone, profession,
	specialty_detail, desired_elements, status, version, created_at, updated_at`

func scanSubmission(row pgx.Row) (*models.Submission, error) {
	var s models.Submission
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.ContactEmail, &s.DisplayName, &s.Phone, &s.Profession,
		&s.SpecialtyDetail, &s.DesiredElements, &s.Status, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new submission
func (r *SubmissionRepository) Create(ctx context.Context, s *models.Submission) error {
	query := `
		INSERT INTO submissions (
			id, owner_id, contact_email, display_name, phone, profession,
			specialty_detail, desired_elements, status, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		s.ID, s.OwnerID, s.ContactEmail, s.DisplayName, s.Phone, s.Profession,
		s.SpecialtyDetail, s.DesiredElements, s.Status, s.Version, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// Get retrieves a submission by ID. A non-empty ownerID restricts the lookup
// to rows owned by that user; rows owned by someone else are reported as not found.
func (r *SubmissionRepository) Get(ctx context.Context, id, ownerID string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + `
		FROM submissions
		WHERE id = $1 AND ($2 = '' OR owner_id::text = $2)
	`
	s, err := scanSubmission(r.db.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("submission not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return s, nil
}

// List retrieves every submission, newest first
func (r *SubmissionRepository) List(ctx context.Context) ([]*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var submissions []*models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		submissions = append(submissions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submissions: %w", err)
	}

	return submissions, nil
}

// StatusUpdate describes a status write
type StatusUpdate struct {
	ID string
	// OwnerID scopes the write to the owner; empty for administrative writes.
	OwnerID string
	Status  models.Status
	// ExpectedVersion makes the write conditional when non-zero.
	ExpectedVersion int
	At              time.Time
}

// UpdateStatus sets the status, bumps the version and returns the updated row
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, upd StatusUpdate) (*models.Submission, error) {
	query := `
		UPDATE submissions
		SET status = $3, version = version + 1, updated_at = $4
		WHERE id = $1
		  AND ($2 = '' OR owner_id::text = $2)
		  AND ($5::int = 0 OR version = $5::int)
		RETURNING ` + submissionColumns

	s, err := scanSubmission(r.db.QueryRow(ctx, query, upd.ID, upd.OwnerID, upd.Status, upd.At, upd.ExpectedVersion))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update submission status: %w", err)
	}

	// Nothing matched: either the row is gone or out of scope, or the version moved on.
	if upd.ExpectedVersion == 0 {
		return nil, fmt.Errorf("submission not found: %w", ErrNotFound)
	}
	current, getErr := r.Get(ctx, upd.ID, upd.OwnerID)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("submission at version %d, expected %d: %w", current.Version, upd.ExpectedVersion, ErrVersionConflict)
}
