package handlers

import (
	"context"
	"net/http"
	"time"

	"fotograf-backend/internal/config"
	"fotograf-backend/internal/metrics"
	"fotograf-backend/internal/middleware"
	"fotograf-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// RouterDeps are the services the HTTP layer is built from
type RouterDeps struct {
	Auth        *services.AuthService
	Submissions *services.SubmissionService
	Hub         *services.WSHub
	Upload      config.UploadConfig
	// RateLimiter is optional.
	RateLimiter *middleware.RateLimiter
	// Health reports whether dependencies are reachable.
	Health func(ctx context.Context) error
}

// NewRouter wires every route onto a chi router
func NewRouter(deps RouterDeps) http.Handler {
	userHandler := NewUserHandler(deps.Auth)
	submissionHandler := NewSubmissionHandler(deps.Submissions, deps.Auth, deps.Upload)
	wsHandler := NewWebSocketHandler(deps.Hub, deps.Auth)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	limit := func(next http.Handler) http.Handler { return next }
	if deps.RateLimiter != nil {
		limit = deps.RateLimiter.Handler
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Post("/auth/signup", userHandler.Signup)
			r.Post("/auth/login", userHandler.Login)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(deps.Auth))
			r.Use(limit)

			r.Get("/users/me", userHandler.GetMe)
			r.Put("/users/me/push-token", userHandler.UpdatePushToken)

			r.Post("/submissions", submissionHandler.CreateSubmission)
			r.Get("/submissions/{submission_id}", submissionHandler.GetSubmission)
			r.Patch("/submissions/{submission_id}", submissionHandler.UpdateSubmission)
			r.With(middleware.RequireAdmin(deps.Auth)).Get("/submissions", submissionHandler.ListSubmissions)
		})
	})

	r.Get("/ws", wsHandler.HandleWebSocket)
	r.Get("/healthz", healthHandler(deps.Health))
	r.Handle("/metrics", metrics.Handler())

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				log.Error().Err(err).Msg("Health check failed")
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
