package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"fotograf-backend/internal/middleware"
	"fotograf-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserHandler handles account and session HTTP requests
type UserHandler struct {
	authService *services.AuthService
}

// NewUserHandler creates a new user handler
func NewUserHandler(authService *services.AuthService) *UserHandler {
	return &UserHandler{
		authService: authService,
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PushTokenRequest represents a push token registration
type PushTokenRequest struct {
	PushToken string `json:"push_token"`
}

// Signup handles POST /api/v1/auth/signup
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req services.SignupRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		if err := parseForm(r, smallFormMemory); err != nil {
			respondError(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		req = services.SignupRequest{
			Email:           r.PostFormValue("email"),
			Password:        r.PostFormValue("password"),
			ConfirmPassword: r.PostFormValue("confirmPassword"),
			DDD:             r.PostFormValue("ddd"),
			Numero:          r.PostFormValue("numero"),
		}
	}

	result, err := h.authService.Signup(r.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrConflict) {
			respondError(w, "Email already registered", http.StatusConflict)
			return
		}
		log.Error().Err(err).Msg("Failed to sign up")
		respondServiceError(w, err, "Failed to create account")
		return
	}

	log.Info().Str("user_id", result.User.ID).Msg("User signed up")
	respondJSON(w, http.StatusCreated, result)
}

// Login handles POST /api/v1/auth/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		if err := parseForm(r, smallFormMemory); err != nil {
			respondError(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		req = LoginRequest{Email: r.PostFormValue("email"), Password: r.PostFormValue("password")}
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			respondError(w, "Invalid email or password", http.StatusUnauthorized)
			return
		}
		log.Error().Err(err).Msg("Failed to log in")
		respondServiceError(w, err, "Failed to log in")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.authService.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			respondError(w, "User not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user")
		respondError(w, "Failed to get user", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// UpdatePushToken handles PUT /api/v1/users/me/push-token
func (h *UserHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req PushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.authService.UpdatePushToken(r.Context(), userID, req.PushToken); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			respondError(w, "User not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to update push token")
		respondError(w, "Failed to update push token", http.StatusInternalServerError)
		return
	}

	log.Info().Str("user_id", userID).Msg("Push token updated")
	w.WriteHeader(http.StatusNoContent)
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
