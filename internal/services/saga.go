package services

import (
	"errors"

	"fotograf-backend/internal/models"
)

// StepResult captures the outcome of one step of a multi-step update
type StepResult struct {
	Step    string `json:"step"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	PhotoID string `json:"photo_id,omitempty"`
}

// UpdateResult reports every step a photo attachment or admin update ran.
// Steps are independent: a failed step never prevents later ones.
type UpdateResult struct {
	SubmissionID string        `json:"submission_id"`
	Status       models.Status `json:"status"`
	Version      int           `json:"version"`
	Steps        []StepResult  `json:"steps"`
}

// PartialFailure reports whether any step failed
func (r *UpdateResult) PartialFailure() bool {
	for _, s := range r.Steps {
		if !s.OK {
			return true
		}
	}
	return false
}

// StoredPhotos counts successful photo steps
func (r *UpdateResult) StoredPhotos() int {
	n := 0
	for _, s := range r.Steps {
		if s.OK && s.PhotoID != "" {
			n++
		}
	}
	return n
}

func (r *UpdateResult) record(step, photoID string, err error) {
	res := StepResult{Step: step, OK: err == nil, PhotoID: photoID}
	if err != nil {
		res.Error = publicStepError(err)
		res.PhotoID = ""
	}
	r.Steps = append(r.Steps, res)
}

// publicStepError hides storage internals from callers
func publicStepError(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrConflict):
		return "version conflict"
	case errors.Is(err, ErrNotFound):
		return "submission not found"
	default:
		return "storage failure"
	}
}
