package handlers

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"fotograf-backend/internal/models"
	"fotograf-backend/internal/repository"
)

// memDB backs every store interface the services need
type memDB struct {
	mu          sync.Mutex
	users       map[string]*models.User
	submissions map[string]*models.Submission
	photos      []*models.Photo
	objects     []string
}

func newMemDB() *memDB {
	return &memDB{
		users:       make(map[string]*models.User),
		submissions: make(map[string]*models.Submission),
	}
}

type memUserStore struct{ db *memDB }

func (s memUserStore) Create(_ context.Context, user *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("duplicate email: %w", repository.ErrDuplicate)
		}
	}
	cp := *user
	s.db.users[user.ID] = &cp
	return nil
}

func (s memUserStore) GetByID(_ context.Context, id string) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if u, ok := s.db.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, fmt.Errorf("user not found: %w", repository.ErrNotFound)
}

func (s memUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user not found: %w", repository.ErrNotFound)
}

func (s memUserStore) UpdatePushToken(_ context.Context, userID string, token *string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[userID]
	if !ok {
		return fmt.Errorf("user not found: %w", repository.ErrNotFound)
	}
	u.PushToken = token
	return nil
}

type memSubmissionStore struct{ db *memDB }

func (s memSubmissionStore) Create(_ context.Context, sub *models.Submission) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *sub
	cp.Photos = nil
	s.db.submissions[sub.ID] = &cp
	return nil
}

func (s memSubmissionStore) Get(_ context.Context, id, ownerID string) (*models.Submission, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	sub, ok := s.db.submissions[id]
	if !ok || (ownerID != "" && sub.OwnerID != ownerID) {
		return nil, fmt.Errorf("submission not found: %w", repository.ErrNotFound)
	}
	cp := *sub
	return &cp, nil
}

func (s memSubmissionStore) List(_ context.Context) ([]*models.Submission, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Submission
	for _, sub := range s.db.submissions {
		cp := *sub
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s memSubmissionStore) UpdateStatus(_ context.Context, upd repository.StatusUpdate) (*models.Submission, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	sub, ok := s.db.submissions[upd.ID]
	if !ok || (upd.OwnerID != "" && sub.OwnerID != upd.OwnerID) {
		return nil, fmt.Errorf("submission not found: %w", repository.ErrNotFound)
	}
	if upd.ExpectedVersion != 0 && upd.ExpectedVersion != sub.Version {
		return nil, fmt.Errorf("stale: %w", repository.ErrVersionConflict)
	}
	sub.Status = upd.Status
	sub.Version++
	sub.UpdatedAt = upd.At
	cp := *sub
	return &cp, nil
}

type memPhotoStore struct{ db *memDB }

func (s memPhotoStore) Create(_ context.Context, photo *models.Photo) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *photo
	s.db.photos = append(s.db.photos, &cp)
	return nil
}

func (s memPhotoStore) ListBySubmissions(_ context.Context, ids []string) (map[string][]*models.Photo, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	grouped := make(map[string][]*models.Photo)
	for _, id := range ids {
		for _, p := range s.db.photos {
			if p.SubmissionID == id {
				cp := *p
				grouped[id] = append(grouped[id], &cp)
			}
		}
	}
	return grouped, nil
}

type memObjectStore struct{ db *memDB }

func (s memObjectStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.objects = append(s.db.objects, key)
	return "https://cdn.test/" + key, nil
}

func (db *memDB) setStatus(id string, status models.Status) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.submissions[id].Status = status
}

func (db *memDB) objectCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.objects)
}

func (db *memDB) setRole(userID, role string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[userID].Role = role
}
