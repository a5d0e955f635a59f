package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"fotograf-backend/internal/models"
	"fotograf-backend/internal/repository"

	"github.com/stretchr/testify/require"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*models.User)}
}

func (m *memUsers) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("user %s already exists: %w", user.Email, repository.ErrDuplicate)
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", repository.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user not found: %w", repository.ErrNotFound)
}

func (m *memUsers) UpdatePushToken(_ context.Context, userID string, pushToken *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("user not found: %w", repository.ErrNotFound)
	}
	u.PushToken = pushToken
	return nil
}

type memSubmissions struct {
	mu        sync.Mutex
	rows      map[string]*models.Submission
	updateErr error
}

func newMemSubmissions() *memSubmissions {
	return &memSubmissions{rows: make(map[string]*models.Submission)}
}

func (m *memSubmissions) Create(_ context.Context, s *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Photos = nil
	m.rows[s.ID] = &cp
	return nil
}

func (m *memSubmissions) Get(_ context.Context, id, ownerID string) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || (ownerID != "" && s.OwnerID != ownerID) {
		return nil, fmt.Errorf("submission not found: %w", repository.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *memSubmissions) List(_ context.Context) ([]*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Submission
	for _, s := range m.rows {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memSubmissions) UpdateStatus(_ context.Context, upd repository.StatusUpdate) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	s, ok := m.rows[upd.ID]
	if !ok || (upd.OwnerID != "" && s.OwnerID != upd.OwnerID) {
		return nil, fmt.Errorf("submission not found: %w", repository.ErrNotFound)
	}
	if upd.ExpectedVersion != 0 && s.Version != upd.ExpectedVersion {
		return nil, fmt.Errorf("stale: %w", repository.ErrVersionConflict)
	}
	s.Status = upd.Status
	s.Version++
	s.UpdatedAt = upd.At
	cp := *s
	return &cp, nil
}

func (m *memSubmissions) get(id string) *models.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.rows[id]
	return &cp
}

type memPhotos struct {
	mu     sync.Mutex
	photos []*models.Photo
}

func (m *memPhotos) Create(_ context.Context, photo *models.Photo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *photo
	m.photos = append(m.photos, &cp)
	return nil
}

func (m *memPhotos) ListBySubmissions(_ context.Context, ids []string) (map[string][]*models.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	grouped := make(map[string][]*models.Photo)
	for _, p := range m.photos {
		if want[p.SubmissionID] {
			cp := *p
			grouped[p.SubmissionID] = append(grouped[p.SubmissionID], &cp)
		}
	}
	return grouped, nil
}

func (m *memPhotos) byKind(submissionID string, kind models.PhotoKind) []*models.Photo {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Photo
	for _, p := range m.photos {
		if p.SubmissionID == submissionID && p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

type memObjects struct {
	mu     sync.Mutex
	keys   []string
	failOn string
}

func (m *memObjects) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	if m.failOn != "" && strings.Contains(key, m.failOn) {
		return "", errors.New("bucket unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return "https://cdn.test/" + key, nil
}

func (m *memObjects) stored(fragment string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, k := range m.keys {
		if strings.Contains(k, fragment) {
			out = append(out, k)
		}
	}
	return out
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []models.Submission
}

func (r *recordingNotifier) SubmissionUpdated(_ context.Context, s *models.Submission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, *s)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for x := 0; x < 32; x++ {
		for y := 0; y < 24; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func upload(field, filename string, data []byte) Upload {
	return Upload{
		Field:    field,
		Filename: filename,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
