package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"fotograf-backend/internal/imaging"
	"fotograf-backend/internal/models"
	"fotograf-backend/internal/repository"
	"fotograf-backend/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      *SubmissionService
	subs     *memSubmissions
	photos   *memPhotos
	objects  *memObjects
	users    *memUsers
	notifier *recordingNotifier
	clock    time.Time
}

func newFixture(t *testing.T, policy workflow.Policy) *fixture {
	t.Helper()
	f := &fixture{
		subs:     newMemSubmissions(),
		photos:   &memPhotos{},
		objects:  &memObjects{},
		users:    newMemUsers(),
		notifier: &recordingNotifier{},
		clock:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewSubmissionService(f.subs, f.photos, f.users, f.objects, policy, SubmissionOptions{
		MaxFileBytes: 1 << 20,
		FreePreviews: 1,
		CheckoutURL:  "https://pay.test/checkout",
		Preview:      imaging.PreviewOptions{Width: 16, Blur: 2},
	}, f.notifier)
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Millisecond)
		return f.clock
	}

	require.NoError(t, f.users.Create(context.Background(), &models.User{
		ID: "11111111-1111-1111-1111-111111111111", Email: "ana@example.com", Phone: "11999990000", Role: models.RoleUser,
	}))
	return f
}

const (
	anaID = "11111111-1111-1111-1111-111111111111"
	bobID = "22222222-2222-2222-2222-222222222222"
)

func (f *fixture) create(t *testing.T) *models.Submission {
	t.Helper()
	s, err := f.svc.Create(context.Background(), anaID, "ana@example.com", CreateSubmissionRequest{
		Name: "Ana", Profession: "medico", Specialty: "cardio", DesiredElements: "jaleco",
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) setStatus(id string, status models.Status) {
	f.subs.mu.Lock()
	defer f.subs.mu.Unlock()
	f.subs.rows[id].Status = status
}

func TestCreate_AwaitingPhotoOwnedByCaller(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	s := f.create(t)

	stored := f.subs.get(s.ID)
	assert.Equal(t, models.StatusAwaitingPhoto, stored.Status)
	assert.Equal(t, anaID, stored.OwnerID)
	assert.Equal(t, "ana@example.com", stored.ContactEmail)
	assert.Equal(t, "Ana", stored.DisplayName)
	assert.Equal(t, "medico", stored.Profession)
	assert.Equal(t, "11999990000", stored.Phone)
	assert.Equal(t, 1, stored.Version)
	assert.Empty(t, s.Photos)
	assert.Empty(t, f.objects.keys)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())

	_, err := f.svc.Create(context.Background(), anaID, "ana@example.com", CreateSubmissionRequest{
		Name: "   ", Profession: "medico", Specialty: "x", DesiredElements: "y",
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "name")

	_, err = f.svc.Create(context.Background(), "", "", CreateSubmissionRequest{
		Name: "Ana", Profession: "medico", Specialty: "x", DesiredElements: "y",
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, f.subs.rows)
}

func TestAttachOriginals_DefaultsToPending(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	s := f.create(t)

	res, err := f.svc.AttachOriginals(context.Background(), s.ID, anaID,
		[]Upload{upload("user-photo-0", "selfie 1.png", pngBytes(t))}, StatusRequest{})
	require.NoError(t, err)

	assert.False(t, res.PartialFailure())
	assert.Equal(t, models.StatusPending, res.Status)
	assert.Equal(t, 2, res.Version)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "photo:user-photo-0", res.Steps[0].Step)
	assert.Equal(t, "status", res.Steps[1].Step)

	originals := f.photos.byKind(s.ID, models.PhotoOriginal)
	require.Len(t, originals, 1)
	assert.True(t, strings.HasPrefix(originals[0].URL, "https://cdn.test/"+s.ID+"/user_originals/"))
	assert.True(t, strings.HasSuffix(originals[0].URL, "-selfie_1.png"))
	assert.Empty(t, f.photos.byKind(s.ID, models.PhotoProcessed))

	require.Len(t, f.notifier.updates, 1)
	assert.Equal(t, models.StatusPending, f.notifier.updates[0].Status)
}

func TestAttachOriginals_ExplicitWaitingStatus(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	s := f.create(t)

	res, err := f.svc.AttachOriginals(context.Background(), s.ID, anaID,
		[]Upload{upload("user-photo-0", "a.png", pngBytes(t))}, StatusRequest{Status: "pending_drive_link"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingDriveLink, res.Status)
}

func TestAttachOriginals_RejectsAdminStatuses(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	s := f.create(t)

	_, err := f.svc.AttachOriginals(context.Background(), s.ID, anaID,
		[]Upload{upload("user-photo-0", "a.png", pngBytes(t))}, StatusRequest{Status: "completed"})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, f.objects.keys)
}

func TestAttachOriginals_CannotLeaveAdminOwnedStatuses(t *testing.T) {
	for _, from := range []models.Status{models.StatusCompleted, models.StatusProcessing} {
		t.Run(string(from), func(t *testing.T) {
			f := newFixture(t, workflow.DefaultPolicy())
			s := f.create(t)
			f.setStatus(s.ID, from)

			_, err := f.svc.AttachOriginals(context.Background(), s.ID, anaID,
				[]Upload{upload("user-photo-0", "a.png", pngBytes(t))}, StatusRequest{})
			assert.ErrorIs(t, err, ErrConflict)
			assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
			assert.Empty(t, f.objects.keys)
			assert.Empty(t, f.photos.byKind(s.ID, models.PhotoOriginal))
			assert.Equal(t, from, f.subs.get(s.ID).Status)
			assert.Empty(t, f.notifier.updates)
		})
	}
}

func TestAttachOriginals_ReuploadWhilePending(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	s := f.create(t)
	f.setStatus(s.ID, models.StatusPending)

	res, err := f.svc.AttachOriginals(context.Background(), s.ID, anaID,
		[]Upload{upload("user-photo-0", "a.png", pngBytes(t))}, StatusRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, res.Status)
}

func TestAttachOriginals_NonOwnerIsNotFound(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	s := f.create(t)

	_, err := f.svc.AttachOriginals(context.Background(), s.ID, bobID,
		[]Upload{upload("user-photo-0", "a.png", pngBytes(t))}, StatusRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.objects.keys)
	assert.Equal(t, models.StatusAwaitingPhoto, f.subs.get(s.ID).Status)
}

func TestAttachOriginals_FailedPhotoStillMovesStatus(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	s := f.create(t)

	res, err := f.svc.AttachOriginals(context.Background(), s.ID, anaID, []Upload{
		upload("user-photo-0", "a.png", pngBytes(t)),
		upload("user-photo-1", "notes.txt", []byte("plain text, not an image")),
	}, StatusRequest{})
	require.NoError(t, err)

	assert.True(t, res.PartialFailure())
	assert.Equal(t, 1, res.StoredPhotos())
	assert.False(t, res.Steps[1].OK)
	assert.Contains(t, res.Steps[1].Error, "not an image")
	assert.Equal(t, models.StatusPending, res.Status)
}

func TestAttachOriginals_RejectsOversizedFiles(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	f.svc.opts.MaxFileBytes = 10
	s := f.create(t)

	res, err := f.svc.AttachOriginals(context.Background(), s.ID, anaID,
		[]Upload{upload("user-photo-0", "a.png", pngBytes(t))}, StatusRequest{})
	require.NoError(t, err)
	assert.True(t, res.PartialFailure())
	assert.Contains(t, res.Steps[0].Error, "exceeds")
	assert.Empty(t, f.objects.keys)
}

func TestAdminUpdate_ProcessedPhotosImplyCompletion(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	s := f.create(t)
	f.setStatus(s.ID, models.StatusPending)

	res, err := f.svc.AdminUpdate(context.Background(), s.ID, []Upload{
		upload("processed-1", "b.png", pngBytes(t)),
		upload("processed-0", "a.png", pngBytes(t)),
	}, StatusRequest{})
	require.NoError(t, err)

	assert.False(t, res.PartialFailure())
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, "photo:processed-0", res.Steps[0].Step)
	assert.Equal(t, "photo:processed-1", res.Steps[1].Step)

	processed := f.photos.byKind(s.ID, models.PhotoProcessed)
	require.Len(t, processed, 2)
	for _, p := range processed {
		assert.Contains(t, p.URL, s.ID+"/processed/")
		require.NotNil(t, p.PreviewURL)
		assert.Contains(t, *p.PreviewURL, s.ID+"/previews/")
	}
	assert.Len(t, f.objects.stored("/previews/"), 2)
	assert.Equal(t, s.ID, f.subs.get(s.ID).ID)
	assert.Equal(t, anaID, f.subs.get(s.ID).OwnerID)
}

func TestAdminUpdate_SameFilenamesGetDistinctObjects(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	frozen := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	f.svc.now = func() time.Time { return frozen }
	s := f.create(t)
	f.setStatus(s.ID, models.StatusPending)

	res, err := f.svc.AdminUpdate(context.Background(), s.ID, []Upload{
		upload("processed-0", "blob", pngBytes(t)),
		upload("processed-1", "blob", pngBytes(t)),
	}, StatusRequest{})
	require.NoError(t, err)
	assert.False(t, res.PartialFailure())

	processed := f.photos.byKind(s.ID, models.PhotoProcessed)
	require.Len(t, processed, 2)
	assert.NotEqual(t, processed[0].URL, processed[1].URL)
	require.NotNil(t, processed[0].PreviewURL)
	require.NotNil(t, processed[1].PreviewURL)
	assert.NotEqual(t, *processed[0].PreviewURL, *processed[1].PreviewURL)
	for _, p := range processed {
		assert.Contains(t, p.URL, fmt.Sprintf("/processed/%d-%s-blob", frozen.UnixMilli(), p.ID))
	}

	seen := make(map[string]bool)
	for _, key := range f.objects.keys {
		assert.False(t, seen[key], "object %s written twice", key)
		seen[key] = true
	}
	assert.Len(t, f.objects.keys, 4)
}

func TestAdminUpdate_PreviewFailureKeepsPhoto(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	f.objects.failOn = "/previews/"
	s := f.create(t)

	res, err := f.svc.AdminUpdate(context.Background(), s.ID,
		[]Upload{upload("processed-0", "a.png", pngBytes(t))}, StatusRequest{})
	require.NoError(t, err)
	assert.False(t, res.PartialFailure())

	processed := f.photos.byKind(s.ID, models.PhotoProcessed)
	require.Len(t, processed, 1)
	assert.Nil(t, processed[0].PreviewURL)
}

func TestAdminUpdate_WithoutImplicitCompletion(t *testing.T) {
	f := newFixture(t, workflow.Policy{})
	s := f.create(t)
	f.setStatus(s.ID, models.StatusPending)

	res, err := f.svc.AdminUpdate(context.Background(), s.ID,
		[]Upload{upload("processed-0", "a.png", pngBytes(t))}, StatusRequest{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, res.Status)
	require.Len(t, res.Steps, 1)
	assert.Empty(t, f.notifier.updates)
}

func TestAdminUpdate_ExplicitStatusWins(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	s := f.create(t)
	f.setStatus(s.ID, models.StatusPending)

	res, err := f.svc.AdminUpdate(context.Background(), s.ID,
		[]Upload{upload("processed-0", "a.png", pngBytes(t))}, StatusRequest{Status: "processing"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, res.Status)
}

func TestAdminUpdate_NoStoredPhotosNoCompletion(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	f.objects.failOn = "/processed/"
	s := f.create(t)
	f.setStatus(s.ID, models.StatusPending)

	res, err := f.svc.AdminUpdate(context.Background(), s.ID,
		[]Upload{upload("processed-0", "a.png", pngBytes(t))}, StatusRequest{})
	require.NoError(t, err)

	assert.True(t, res.PartialFailure())
	assert.Equal(t, "storage failure", res.Steps[0].Error)
	assert.Equal(t, models.StatusPending, res.Status)
	assert.Equal(t, models.StatusPending, f.subs.get(s.ID).Status)
}

func TestAdminUpdate_BackwardMoveAcceptedWhenLax(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	s := f.create(t)
	f.setStatus(s.ID, models.StatusCompleted)

	res, err := f.svc.AdminUpdate(context.Background(), s.ID, nil, StatusRequest{Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, res.Status)
	assert.Equal(t, models.StatusPending, f.subs.get(s.ID).Status)
}

func TestAdminUpdate_StrictRejectsBeforeWriting(t *testing.T) {
	f := newFixture(t, workflow.Policy{StrictTransitions: true, ImplicitCompletion: true})
	s := f.create(t)
	f.setStatus(s.ID, models.StatusCompleted)

	_, err := f.svc.AdminUpdate(context.Background(), s.ID,
		[]Upload{upload("processed-0", "a.png", pngBytes(t))}, StatusRequest{Status: "pending"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.Empty(t, f.objects.keys)

	// awaiting_photo cannot complete, so inferred completion is rejected too.
	f.setStatus(s.ID, models.StatusAwaitingPhoto)
	_, err = f.svc.AdminUpdate(context.Background(), s.ID,
		[]Upload{upload("processed-0", "a.png", pngBytes(t))}, StatusRequest{})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Empty(t, f.objects.keys)
}

func TestAdminUpdate_VersionPrecondition(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	s := f.create(t)

	_, err := f.svc.AdminUpdate(context.Background(), s.ID, nil, StatusRequest{Status: "processing", Version: 7})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, f.subs.get(s.ID).Version)

	res, err := f.svc.AdminUpdate(context.Background(), s.ID, nil, StatusRequest{Status: "processing", Version: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Version)
}

func TestAdminUpdate_ConflictAtWriteTimeIsReportedAsStep(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	s := f.create(t)
	f.subs.updateErr = fmt.Errorf("lost race: %w", repository.ErrVersionConflict)

	res, err := f.svc.AdminUpdate(context.Background(), s.ID, nil, StatusRequest{Status: "processing", Version: 1})
	require.NoError(t, err)
	assert.True(t, res.PartialFailure())
	assert.Equal(t, "version conflict", res.Steps[0].Error)
	assert.Equal(t, models.StatusAwaitingPhoto, res.Status)
}

func TestAdminUpdate_RejectsBadInput(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	s := f.create(t)

	_, err := f.svc.AdminUpdate(context.Background(), s.ID, nil, StatusRequest{Status: "archived"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.AdminUpdate(context.Background(), s.ID, nil, StatusRequest{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.AdminUpdate(context.Background(), "not-a-uuid", nil, StatusRequest{Status: "pending"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetForOwner_AppliesPaywall(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	s := f.create(t)
	_, err := f.svc.AttachOriginals(context.Background(), s.ID, anaID,
		[]Upload{upload("user-photo-0", "me.png", pngBytes(t))}, StatusRequest{})
	require.NoError(t, err)
	_, err = f.svc.AdminUpdate(context.Background(), s.ID, []Upload{
		upload("processed-0", "a.png", pngBytes(t)),
		upload("processed-1", "b.png", pngBytes(t)),
		upload("processed-2", "c.png", pngBytes(t)),
	}, StatusRequest{})
	require.NoError(t, err)

	got, err := f.svc.GetForOwner(context.Background(), s.ID, anaID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.Len(t, got.Photos, 4)

	var locked, unlocked int
	for _, p := range got.Photos {
		if p.Kind == models.PhotoOriginal {
			assert.False(t, p.Locked)
			continue
		}
		if p.Locked {
			locked++
			assert.Empty(t, p.URL)
			assert.NotNil(t, p.PreviewURL)
		} else {
			unlocked++
			assert.Contains(t, p.URL, "a.png")
		}
	}
	assert.Equal(t, 1, unlocked)
	assert.Equal(t, 2, locked)
}

func TestGetForOwner_NonOwnerIsNotFound(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	s := f.create(t)

	_, err := f.svc.GetForOwner(context.Background(), s.ID, bobID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.GetForOwner(context.Background(), "../etc", anaID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAll_NewestFirstWithPhotos(t *testing.T) {
	f := newFixture(t, workflow.DefaultPolicy())
	first := f.create(t)
	second := f.create(t)
	_, err := f.svc.AttachOriginals(context.Background(), first.ID, anaID,
		[]Upload{upload("user-photo-0", "a.png", pngBytes(t))}, StatusRequest{})
	require.NoError(t, err)

	all, err := f.svc.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Empty(t, all[0].Photos)
	assert.Len(t, all[1].Photos, 1)
}

func TestSortUploads_NaturalOrder(t *testing.T) {
	uploads := []Upload{{Field: "processed-10"}, {Field: "processed-2"}, {Field: "processed-0"}, {Field: "processed-1"}}
	sortUploads(uploads)

	var fields []string
	for _, u := range uploads {
		fields = append(fields, u.Field)
	}
	assert.Equal(t, []string{"processed-0", "processed-1", "processed-2", "processed-10"}, fields)
}
