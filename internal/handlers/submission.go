package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"fotograf-backend/internal/config"
	"fotograf-backend/internal/middleware"
	"fotograf-backend/internal/models"
	"fotograf-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const (
	userPhotoPrefix = "user-photo-"
	processedPrefix = "processed-"
)

// SubmissionHandler handles submission HTTP requests
type SubmissionHandler struct {
	submissionService *services.SubmissionService
	admins            middleware.AdminAuthorizer
	upload            config.UploadConfig
}

// NewSubmissionHandler creates a new submission handler
func NewSubmissionHandler(
	submissionService *services.SubmissionService,
	admins middleware.AdminAuthorizer,
	upload config.UploadConfig,
) *SubmissionHandler {
	return &SubmissionHandler{
		submissionService: submissionService,
		admins:            admins,
		upload:            upload,
	}
}

// CreateSubmissionResponse is returned by POST /submissions
type CreateSubmissionResponse struct {
	Success      bool   `json:"success"`
	SubmissionID string `json:"submissionId"`
}

// SubmissionResponse is returned to the owner of a submission
type SubmissionResponse struct {
	Submission  *models.Submission `json:"submission"`
	CheckoutURL string             `json:"checkout_url,omitempty"`
}

// UpdateResponse reports a photo attachment or admin update
type UpdateResponse struct {
	Success        bool                   `json:"success"`
	Message        string                 `json:"message"`
	PartialFailure bool                   `json:"partial_failure"`
	Result         *services.UpdateResult `json:"result"`
}

// CreateSubmission handles POST /api/v1/submissions
func (h *SubmissionHandler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := middleware.GetClaims(ctx)
	if claims == nil {
		respondError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	if !h.parseRequest(w, r) {
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	// photo-N parts sent by older clients are ignored here.
	req := services.CreateSubmissionRequest{
		Name:            r.PostFormValue("name"),
		Profession:      r.PostFormValue("profession"),
		Specialty:       r.PostFormValue("specialty"),
		DesiredElements: r.PostFormValue("desiredElements"),
	}

	submission, err := h.submissionService.Create(ctx, claims.UserID, claims.Email, req)
	if err != nil {
		log.Error().Err(err).Str("user_id", claims.UserID).Msg("Failed to create submission")
		respondServiceError(w, err, "Failed to create submission")
		return
	}

	respondJSON(w, http.StatusCreated, CreateSubmissionResponse{Success: true, SubmissionID: submission.ID})
}

// GetSubmission handles GET /api/v1/submissions/{submission_id}
func (h *SubmissionHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	submissionID := chi.URLParam(r, "submission_id")

	submission, err := h.submissionService.GetForOwner(ctx, submissionID, userID)
	if err != nil {
		if !errors.Is(err, services.ErrNotFound) {
			log.Error().
				Err(err).
				Str("user_id", userID).
				Str("submission_id", submissionID).
				Msg("Failed to get submission")
		}
		respondServiceError(w, err, "Failed to get submission")
		return
	}

	respondJSON(w, http.StatusOK, SubmissionResponse{
		Submission:  submission,
		CheckoutURL: h.submissionService.CheckoutURL(),
	})
}

// ListSubmissions handles GET /api/v1/submissions
func (h *SubmissionHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	submissions, err := h.submissionService.ListAll(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list submissions")
		respondServiceError(w, err, "Failed to list submissions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"submissions": submissions,
	})
}

// UpdateSubmission handles PATCH /api/v1/submissions/{submission_id}.
// user-photo-* parts select the owner path; otherwise processed-* parts or a
// status field select the admin path.
func (h *SubmissionHandler) UpdateSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := middleware.GetClaims(ctx)
	if claims == nil {
		respondError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	submissionID := chi.URLParam(r, "submission_id")

	if !h.parseRequest(w, r) {
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	statusReq := services.StatusRequest{Status: r.PostFormValue("status")}
	if raw := strings.TrimSpace(r.PostFormValue("version")); raw != "" {
		version, err := strconv.Atoi(raw)
		if err != nil || version < 1 {
			respondError(w, "version must be a positive integer", http.StatusBadRequest)
			return
		}
		statusReq.Version = version
	}

	userUploads := collectUploads(r.MultipartForm, userPhotoPrefix)
	processedUploads := collectUploads(r.MultipartForm, processedPrefix)

	var (
		result  *services.UpdateResult
		err     error
		message string
	)
	switch {
	case len(userUploads) > 0:
		result, err = h.submissionService.AttachOriginals(ctx, submissionID, claims.UserID, userUploads, statusReq)
		message = "Photos uploaded"
	case len(processedUploads) > 0 || strings.TrimSpace(statusReq.Status) != "":
		if err := h.admins.AuthorizeAdmin(ctx, claims); err != nil {
			log.Warn().
				Err(err).
				Str("user_id", claims.UserID).
				Str("submission_id", submissionID).
				Msg("Admin update denied")
			message, code := middleware.AdminDenial(err)
			respondError(w, message, code)
			return
		}
		result, err = h.submissionService.AdminUpdate(ctx, submissionID, processedUploads, statusReq)
		message = "Submission updated"
	default:
		respondError(w, "No actionable data", http.StatusBadRequest)
		return
	}

	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			log.Error().
				Err(err).
				Str("user_id", claims.UserID).
				Str("submission_id", submissionID).
				Msg("Failed to update submission")
		}
		respondServiceError(w, err, "Failed to update submission")
		return
	}

	partial := result.PartialFailure()
	if partial {
		message += " with failures"
	}
	respondJSON(w, http.StatusOK, UpdateResponse{
		Success:        !partial,
		Message:        message,
		PartialFailure: partial,
		Result:         result,
	})
}

// parseRequest parses the form and writes the error response on failure
func (h *SubmissionHandler) parseRequest(w http.ResponseWriter, r *http.Request) bool {
	if h.upload.MaxRequestBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.upload.MaxRequestBytes)
	}
	err := parseForm(r, h.upload.MaxMemoryBytes)
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		respondError(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return false
	}
	respondError(w, "Invalid form data", http.StatusBadRequest)
	return false
}

// collectUploads returns the file parts whose field name starts with prefix
func collectUploads(form *multipart.Form, prefix string) []services.Upload {
	if form == nil {
		return nil
	}

	var uploads []services.Upload
	for field, headers := range form.File {
		if !strings.HasPrefix(field, prefix) {
			continue
		}
		for _, fh := range headers {
			fh := fh
			uploads = append(uploads, services.Upload{
				Field:    field,
				Filename: fh.Filename,
				Size:     fh.Size,
				Open: func() (io.ReadCloser, error) {
					return fh.Open()
				},
			})
		}
	}
	return uploads
}
