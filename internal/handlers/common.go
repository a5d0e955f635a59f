package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"fotograf-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError writes err with its mapped status. Internal failures
// are replaced by fallback so storage details never reach the client.
func respondServiceError(w http.ResponseWriter, err error, fallback string) {
	code := statusFor(err)
	message := fallback
	switch code {
	case http.StatusInternalServerError:
	case http.StatusNotFound:
		message = "Submission not found"
	default:
		message = publicMessage(err)
	}
	respondError(w, message, code)
}

// publicMessage drops the operation prefixes added while wrapping
func publicMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{
		services.ErrValidation, services.ErrConflict, services.ErrForbidden, services.ErrUnauthorized,
	} {
		if i := strings.Index(msg, sentinel.Error()+": "); i >= 0 {
			return msg[i+len(sentinel.Error())+2:]
		}
	}
	return msg
}

const smallFormMemory = 1 << 20

// parseForm parses urlencoded or multipart bodies
func parseForm(r *http.Request, maxMemory int64) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(maxMemory)
	}
	return r.ParseForm()
}
