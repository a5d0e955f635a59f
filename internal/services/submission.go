package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"fotograf-backend/internal/imaging"
	"fotograf-backend/internal/metrics"
	"fotograf-backend/internal/models"
	"fotograf-backend/internal/repository"
	"fotograf-backend/internal/storage"
	"fotograf-backend/internal/workflow"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SubmissionStore persists submission records
type SubmissionStore interface {
	Create(ctx context.Context, s *models.Submission) error
	Get(ctx context.Context, id, ownerID string) (*models.Submission, error)
	List(ctx context.Context) ([]*models.Submission, error)
	UpdateStatus(ctx context.Context, upd repository.StatusUpdate) (*models.Submission, error)
}

// PhotoStore persists photo records
type PhotoStore interface {
	Create(ctx context.Context, photo *models.Photo) error
	ListBySubmissions(ctx context.Context, submissionIDs []string) (map[string][]*models.Photo, error)
}

// UserReader looks up account details
type UserReader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Notifier is told about every successful status write
type Notifier interface {
	SubmissionUpdated(ctx context.Context, s *models.Submission)
}

// Notifiers fans a notification out to several notifiers
type Notifiers []Notifier

// SubmissionUpdated implements Notifier
func (n Notifiers) SubmissionUpdated(ctx context.Context, s *models.Submission) {
	for _, notifier := range n {
		if notifier != nil {
			notifier.SubmissionUpdated(ctx, s)
		}
	}
}

// Upload is one file part of a multipart request
type Upload struct {
	Field    string
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// CreateSubmissionRequest carries the details entered in the submission form
type CreateSubmissionRequest struct {
	Name            string `json:"name"`
	Profession      string `json:"profession"`
	Specialty       string `json:"specialty"`
	DesiredElements string `json:"desiredElements"`
}

// Validate trims every field and requires all of them
func (r *CreateSubmissionRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Profession = strings.TrimSpace(r.Profession)
	r.Specialty = strings.TrimSpace(r.Specialty)
	r.DesiredElements = strings.TrimSpace(r.DesiredElements)

	var missing []string
	if r.Name == "" {
		missing = append(missing, "name")
	}
	if r.Profession == "" {
		missing = append(missing, "profession")
	}
	if r.Specialty == "" {
		missing = append(missing, "specialty")
	}
	if r.DesiredElements == "" {
		missing = append(missing, "desiredElements")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// StatusRequest carries the optional status and version fields of an update
type StatusRequest struct {
	Status string
	// Version, when non-zero, must match the stored version.
	Version int
}

// SubmissionOptions tunes upload handling and the paywall
type SubmissionOptions struct {
	MaxFileBytes int64
	FreePreviews int
	CheckoutURL  string
	Preview      imaging.PreviewOptions
}

// SubmissionService implements submission creation, retrieval and the
// photo attachment flows for owners and administrators
type SubmissionService struct {
	submissions SubmissionStore
	photos      PhotoStore
	users       UserReader
	store       storage.ObjectStore
	policy      workflow.Policy
	opts        SubmissionOptions
	notifier    Notifier
	now         func() time.Time
}

// NewSubmissionService creates a new submission service
func NewSubmissionService(
	submissions SubmissionStore,
	photos PhotoStore,
	users UserReader,
	store storage.ObjectStore,
	policy workflow.Policy,
	opts SubmissionOptions,
	notifier Notifier,
) *SubmissionService {
	if notifier == nil {
		notifier = Notifiers(nil)
	}
	return &SubmissionService{
		submissions: submissions,
		photos:      photos,
		users:       users,
		store:       store,
		policy:      policy,
		opts:        opts,
		notifier:    notifier,
		now:         time.Now,
	}
}

// CheckoutURL returns the external checkout link handed to owners
func (s *SubmissionService) CheckoutURL() string {
	return s.opts.CheckoutURL
}

// Create registers a new submission in awaiting_photo for the caller
func (s *SubmissionService) Create(ctx context.Context, ownerID, email string, req CreateSubmissionRequest) (*models.Submission, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	submission := &models.Submission{
		ID:              uuid.New().String(),
		OwnerID:         ownerID,
		ContactEmail:    email,
		DisplayName:     req.Name,
		Profession:      req.Profession,
		SpecialtyDetail: req.Specialty,
		DesiredElements: req.DesiredElements,
		Status:          models.StatusAwaitingPhoto,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
		Photos:          []*models.Photo{},
	}

	if user, err := s.users.GetByID(ctx, ownerID); err == nil {
		submission.Phone = user.Phone
	} else {
		log.Warn().Err(err).Str("user_id", ownerID).Msg("Failed to load owner phone")
	}

	if err := s.submissions.Create(ctx, submission); err != nil {
		return nil, storeErr("failed to create submission", err)
	}

	metrics.RecordSubmissionCreated()
	log.Info().
		Str("submission_id", submission.ID).
		Str("user_id", ownerID).
		Msg("Submission created")

	return submission, nil
}

// GetForOwner returns a submission with its photos if ownerID owns it.
// Processed photos beyond the free allowance are locked.
func (s *SubmissionService) GetForOwner(ctx context.Context, id, ownerID string) (*models.Submission, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	submission, err := s.load(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.attachPhotos(ctx, submission); err != nil {
		return nil, err
	}
	applyPaywall(submission.Photos, s.opts.FreePreviews)
	return submission, nil
}

// ListAll returns every submission with its photos, newest first
func (s *SubmissionService) ListAll(ctx context.Context) ([]*models.Submission, error) {
	submissions, err := s.submissions.List(ctx)
	if err != nil {
		return nil, storeErr("failed to list submissions", err)
	}
	if err := s.attachPhotos(ctx, submissions...); err != nil {
		return nil, err
	}
	if submissions == nil {
		submissions = []*models.Submission{}
	}
	return submissions, nil
}

// AttachOriginals stores the owner's photos and then moves the submission to
// the requested status, pending by default. Ownership and the move itself are
// checked before any write; owners cannot leave processing or completed.
func (s *SubmissionService) AttachOriginals(ctx context.Context, id, ownerID string, uploads []Upload, req StatusRequest) (*UpdateResult, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: at least one photo is required", ErrValidation)
	}
	requested, err := parseRequestedStatus(req.Status)
	if err != nil {
		return nil, err
	}

	submission, err := s.load(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(submission, req.Version); err != nil {
		return nil, err
	}

	target := workflow.UserTarget(requested)
	if !target.IsWaiting() && target != models.StatusPending {
		return nil, fmt.Errorf("%w: status %s can only be set by an administrator", ErrForbidden, target)
	}
	if err := s.checkTransition(submission.Status, target, workflow.ActorUser); err != nil {
		return nil, err
	}

	result := &UpdateResult{SubmissionID: submission.ID, Status: submission.Status, Version: submission.Version}
	s.storePhotos(ctx, submission.ID, uploads, models.PhotoOriginal, result)
	s.writeStatus(ctx, submission, ownerID, target, req.Version, workflow.ActorUser, result)

	return result, nil
}

// AdminUpdate stores processed photos and applies the requested or inferred
// status. An explicit status always wins over inference.
func (s *SubmissionService) AdminUpdate(ctx context.Context, id string, uploads []Upload, req StatusRequest) (*UpdateResult, error) {
	requested, err := parseRequestedStatus(req.Status)
	if err != nil {
		return nil, err
	}
	if requested == "" && len(uploads) == 0 {
		return nil, fmt.Errorf("%w: no actionable data", ErrValidation)
	}

	submission, err := s.load(ctx, id, "")
	if err != nil {
		return nil, err
	}
	if err := checkVersion(submission, req.Version); err != nil {
		return nil, err
	}

	// Strict policies reject the move before anything is written.
	if target, ok := s.policy.AdminTarget(requested, len(uploads)); ok {
		if err := s.checkTransition(submission.Status, target, workflow.ActorAdmin); err != nil {
			return nil, err
		}
	}

	result := &UpdateResult{SubmissionID: submission.ID, Status: submission.Status, Version: submission.Version}
	s.storePhotos(ctx, submission.ID, uploads, models.PhotoProcessed, result)

	if target, ok := s.policy.AdminTarget(requested, result.StoredPhotos()); ok {
		s.writeStatus(ctx, submission, "", target, req.Version, workflow.ActorAdmin, result)
	}

	return result, nil
}

func (s *SubmissionService) load(ctx context.Context, id, ownerID string) (*models.Submission, error) {
	// Malformed IDs cannot name a submission.
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("submission %q: %w", id, ErrNotFound)
	}
	submission, err := s.submissions.Get(ctx, id, ownerID)
	if err != nil {
		return nil, storeErr("failed to get submission", err)
	}
	return submission, nil
}

func (s *SubmissionService) attachPhotos(ctx context.Context, submissions ...*models.Submission) error {
	if len(submissions) == 0 {
		return nil
	}
	ids := make([]string, len(submissions))
	for i, sub := range submissions {
		ids[i] = sub.ID
	}

	grouped, err := s.photos.ListBySubmissions(ctx, ids)
	if err != nil {
		return storeErr("failed to get photos", err)
	}
	for _, sub := range submissions {
		sub.Photos = grouped[sub.ID]
		if sub.Photos == nil {
			sub.Photos = []*models.Photo{}
		}
	}
	return nil
}

func (s *SubmissionService) checkTransition(from, to models.Status, actor workflow.Actor) error {
	if err := s.policy.Check(from, to, actor); err != nil {
		if errors.Is(err, workflow.ErrInvalidTransition) {
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

func (s *SubmissionService) storePhotos(ctx context.Context, submissionID string, uploads []Upload, kind models.PhotoKind, result *UpdateResult) {
	sortUploads(uploads)
	for _, up := range uploads {
		photoID, err := s.storePhoto(ctx, submissionID, up, kind)
		metrics.RecordPhotoUpload(string(kind), err == nil)
		if err != nil {
			log.Error().
				Err(err).
				Str("submission_id", submissionID).
				Str("field", up.Field).
				Str("filename", up.Filename).
				Msg("Failed to store photo")
		}
		result.record("photo:"+up.Field, photoID, err)
	}
}

func (s *SubmissionService) storePhoto(ctx context.Context, submissionID string, up Upload, kind models.PhotoKind) (string, error) {
	data, contentType, err := s.readUpload(up)
	if err != nil {
		return "", err
	}

	category := storage.CategoryOriginals
	if kind == models.PhotoProcessed {
		category = storage.CategoryProcessed
	}

	photoID := uuid.New().String()
	now := s.now()
	key := storage.ObjectKey(submissionID, category, photoID, up.Filename, now)
	url, err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return "", fmt.Errorf("failed to store object %s: %w", key, err)
	}

	photo := &models.Photo{
		ID:           photoID,
		SubmissionID: submissionID,
		Kind:         kind,
		URL:          url,
		CreatedAt:    now,
	}
	if kind == models.PhotoProcessed {
		photo.PreviewURL = s.storePreview(ctx, submissionID, photoID, up.Filename, data, now)
	}

	if err := s.photos.Create(ctx, photo); err != nil {
		return "", storeErr("failed to create photo", err)
	}

	log.Info().
		Str("submission_id", submissionID).
		Str("photo_id", photo.ID).
		Str("kind", string(kind)).
		Msg("Photo stored")

	return photo.ID, nil
}

// readUpload buffers a part, enforcing the size limit and requiring image content
func (s *SubmissionService) readUpload(up Upload) ([]byte, string, error) {
	if s.opts.MaxFileBytes > 0 && up.Size > s.opts.MaxFileBytes {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", ErrValidation, up.Filename, s.opts.MaxFileBytes)
	}

	f, err := up.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if s.opts.MaxFileBytes > 0 {
		r = io.LimitReader(f, s.opts.MaxFileBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}
	if s.opts.MaxFileBytes > 0 && int64(len(data)) > s.opts.MaxFileBytes {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", ErrValidation, up.Filename, s.opts.MaxFileBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: %s is empty", ErrValidation, up.Filename)
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, "", fmt.Errorf("%w: %s is not an image (%s)", ErrValidation, up.Filename, mtype.String())
	}

	return data, mtype.String(), nil
}

// storePreview renders and stores the blurred preview of a processed photo.
// Failures are logged and leave the photo without a preview.
func (s *SubmissionService) storePreview(ctx context.Context, submissionID, photoID, filename string, data []byte, at time.Time) *string {
	preview, err := imaging.BlurredPreview(data, s.opts.Preview)
	if err != nil {
		log.Warn().Err(err).Str("submission_id", submissionID).Msg("Failed to render preview")
		return nil
	}

	name := strings.TrimSuffix(filename, path.Ext(filename)) + ".jpg"
	key := storage.ObjectKey(submissionID, storage.CategoryPreviews, photoID, name, at)
	url, err := s.store.Put(ctx, key, bytes.NewReader(preview), int64(len(preview)), "image/jpeg")
	if err != nil {
		log.Warn().Err(err).Str("submission_id", submissionID).Str("key", key).Msg("Failed to store preview")
		return nil
	}
	return &url
}

func (s *SubmissionService) writeStatus(
	ctx context.Context,
	submission *models.Submission,
	ownerID string,
	target models.Status,
	expectedVersion int,
	actor workflow.Actor,
	result *UpdateResult,
) {
	updated, err := s.submissions.UpdateStatus(ctx, repository.StatusUpdate{
		ID:              submission.ID,
		OwnerID:         ownerID,
		Status:          target,
		ExpectedVersion: expectedVersion,
		At:              s.now(),
	})
	if err != nil {
		err = storeErr("failed to update status", err)
		log.Error().
			Err(err).
			Str("submission_id", submission.ID).
			Str("status", string(target)).
			Msg("Failed to update submission status")
		result.record("status", "", err)
		return
	}

	result.record("status", "", nil)
	result.Status = updated.Status
	result.Version = updated.Version

	metrics.RecordStatusTransition(string(actor), string(updated.Status))
	log.Info().
		Str("submission_id", updated.ID).
		Str("from", string(submission.Status)).
		Str("to", string(updated.Status)).
		Str("actor", string(actor)).
		Msg("Submission status updated")

	s.notifier.SubmissionUpdated(ctx, updated)
}

func parseRequestedStatus(raw string) (models.Status, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	status, err := models.ParseStatus(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return status, nil
}

func checkVersion(submission *models.Submission, expected int) error {
	if expected != 0 && submission.Version != expected {
		return fmt.Errorf("%w: submission at version %d, expected %d", ErrConflict, submission.Version, expected)
	}
	return nil
}

// applyPaywall unlocks the first free processed photos, oldest first, and
// locks the rest. Locked photos expose only their preview.
func applyPaywall(photos []*models.Photo, free int) {
	unlocked := 0
	for _, p := range photos {
		if p.Kind != models.PhotoProcessed {
			continue
		}
		if unlocked < free {
			unlocked++
			p.Locked = false
			continue
		}
		p.Locked = true
		p.URL = ""
	}
}

// sortUploads orders parts by the numeric suffix of their field name so that
// photo-2 precedes photo-10
func sortUploads(uploads []Upload) {
	slices.SortStableFunc(uploads, func(a, b Upload) int {
		pa, na := splitFieldIndex(a.Field)
		pb, nb := splitFieldIndex(b.Field)
		if c := strings.Compare(pa, pb); c != 0 {
			return c
		}
		return na - nb
	})
}

func splitFieldIndex(field string) (string, int) {
	i := strings.LastIndex(field, "-")
	if i < 0 {
		return field, 0
	}
	n, err := strconv.Atoi(field[i+1:])
	if err != nil {
		return field, 0
	}
	return field[:i], n
}
