// Package notify delivers mobile push notifications for submission updates.
package notify

import (
	"context"
	"fmt"
	"time"

	"fotograf-backend/internal/config"
	"fotograf-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

const pushTimeout = 5 * time.Second

// Pusher sends a notification to APNs
type Pusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// UserReader looks up the owner's device token
type UserReader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// APNs pushes a notification to the owner's device when a submission completes
type APNs struct {
	client Pusher
	users  UserReader
	topic  string
}

// NewAPNsClient builds a token-based APNs client from a .p8 key
func NewAPNsClient(cfg config.APNsConfig) (*apns2.Client, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		return client.Production(), nil
	}
	return client.Development(), nil
}

// NewAPNs creates a completion notifier
func NewAPNs(client Pusher, users UserReader, topic string) *APNs {
	return &APNs{client: client, users: users, topic: topic}
}

// SubmissionUpdated sends the push when s has just completed. Failures are logged only.
func (a *APNs) SubmissionUpdated(ctx context.Context, s *models.Submission) {
	if s.Status != models.StatusCompleted {
		return
	}

	owner, err := a.users.GetByID(ctx, s.OwnerID)
	if err != nil {
		log.Error().Err(err).Str("user_id", s.OwnerID).Msg("Failed to load owner for push")
		return
	}
	if owner.PushToken == nil || *owner.PushToken == "" {
		return
	}

	notification := &apns2.Notification{
		DeviceToken: *owner.PushToken,
		Topic:       a.topic,
		Payload: payload.NewPayload().
			AlertTitle("Your photos are ready").
			AlertBody("Open the app to see your processed photos.").
			Sound("default").
			Custom("submission_id", s.ID),
	}

	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	res, err := a.client.PushWithContext(ctx, notification)
	if err != nil {
		log.Error().Err(err).Str("submission_id", s.ID).Msg("Failed to send push notification")
		return
	}
	if !res.Sent() {
		log.Warn().
			Int("status_code", res.StatusCode).
			Str("reason", res.Reason).
			Str("submission_id", s.ID).
			Msg("Push notification rejected")
		return
	}

	log.Info().Str("submission_id", s.ID).Str("apns_id", res.ApnsID).Msg("Push notification sent")
}
