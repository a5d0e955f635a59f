package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fotograf-backend/internal/config"
	"fotograf-backend/internal/database"
	"fotograf-backend/internal/handlers"
	"fotograf-backend/internal/imaging"
	"fotograf-backend/internal/middleware"
	"fotograf-backend/internal/notify"
	"fotograf-backend/internal/repository"
	"fotograf-backend/internal/services"
	"fotograf-backend/internal/storage"
	"fotograf-backend/internal/workflow"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx := context.Background()

	// Connect to database
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	if cfg.Database.Migrate {
		if err := database.Migrate(cfg.Database.MigrateURL()); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	photoRepo := repository.NewPhotoRepository(db)

	// Initialize object store
	store, closeStore, err := newObjectStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to create object store")
	}
	defer closeStore()

	// Initialize services
	authService := services.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.TTL)
	if cfg.Admin.Email != "" {
		if err := authService.SeedAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed admin account")
		}
	}

	wsHub := services.NewWSHub()
	notifiers := services.Notifiers{wsHub}
	if cfg.APNs.KeyFile != "" {
		apnsClient, err := notify.NewAPNsClient(cfg.APNs)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs client")
		}
		notifiers = append(notifiers, notify.NewAPNs(apnsClient, userRepo, cfg.APNs.Topic))
		log.Info().Bool("production", cfg.APNs.Production).Msg("APNs notifications enabled")
	}

	submissionService := services.NewSubmissionService(
		submissionRepo,
		photoRepo,
		userRepo,
		store,
		workflow.Policy{
			StrictTransitions:  cfg.Workflow.StrictTransitions,
			ImplicitCompletion: cfg.Workflow.ImplicitCompletion,
		},
		services.SubmissionOptions{
			MaxFileBytes: cfg.Upload.MaxFileBytes,
			FreePreviews: cfg.Paywall.FreePreviews,
			CheckoutURL:  cfg.Paywall.CheckoutURL,
			Preview: imaging.PreviewOptions{
				Width: cfg.Paywall.PreviewWidth,
				Blur:  cfg.Paywall.PreviewBlur,
			},
		},
		notifiers,
	)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	if err := rateLimiter.StartCleanup(cfg.RateLimit.CleanupSchedule); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule rate limiter cleanup")
	}
	defer rateLimiter.Stop()

	// Setup router
	router := handlers.NewRouter(handlers.RouterDeps{
		Auth:        authService,
		Submissions: submissionService,
		Hub:         wsHub,
		Upload:      cfg.Upload,
		RateLimiter: rateLimiter,
		Health:      db.Ping,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// newObjectStore builds the configured storage driver and its cleanup func
func newObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, func(), error) {
	switch cfg.Driver {
	case "gcs":
		gcs, err := storage.NewGCSStore(ctx, cfg.GCS)
		if err != nil {
			return nil, nil, err
		}
		return gcs, func() {
			if err := gcs.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close GCS client")
			}
		}, nil
	default:
		s3, err := storage.NewS3Store(ctx, cfg.AWS)
		if err != nil {
			return nil, nil, err
		}
		return s3, func() {}, nil
	}
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
