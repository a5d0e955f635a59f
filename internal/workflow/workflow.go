// Package workflow holds the submission status state machine and the
// rules that pick a target status for user and admin updates.
package workflow

import (
	"errors"
	"fmt"

	"fotograf-backend/internal/models"
)

// Actor identifies who requests a transition
type Actor string

const (
	ActorUser  Actor = "user"
	ActorAdmin Actor = "admin"
)

// ErrInvalidTransition is returned for moves outside the table
var ErrInvalidTransition = errors.New("invalid status transition")

// transitions lists every forward move and the actor allowed to make it.
// Self-transitions are handled separately and always allowed.
var transitions = map[models.Status]map[models.Status]Actor{
	models.StatusAwaitingPhoto: {
		models.StatusPending:          ActorUser,
		models.StatusPendingDriveLink: ActorUser,
	},
	models.StatusPendingDriveLink: {
		models.StatusPending: ActorUser,
	},
	models.StatusPending: {
		models.StatusProcessing: ActorAdmin,
		models.StatusCompleted:  ActorAdmin,
	},
	models.StatusProcessing: {
		models.StatusCompleted: ActorAdmin,
	},
}

// Allowed reports whether actor may move a submission from one status to another.
// Nothing leaves a terminal status.
func Allowed(from, to models.Status, actor Actor) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	allowedActor, ok := transitions[from][to]
	return ok && allowedActor == actor
}

// Policy configures how permissive the workflow is
type Policy struct {
	// StrictTransitions validates every requested move against the transition table.
	StrictTransitions bool
	// ImplicitCompletion infers completed when processed photos arrive without a status.
	ImplicitCompletion bool
}

// DefaultPolicy matches the historical behaviour: any known status is accepted
// from an admin and processed uploads without a status complete the submission.
func DefaultPolicy() Policy {
	return Policy{ImplicitCompletion: true}
}

// Check validates a requested transition under the policy. User moves are
// always checked against the table; lax policies only relax admin moves.
func (p Policy) Check(from, to models.Status, actor Actor) error {
	if !to.Valid() {
		return fmt.Errorf("unknown status %q", to)
	}
	if !p.StrictTransitions && actor == ActorAdmin {
		return nil
	}
	if !Allowed(from, to, actor) {
		return fmt.Errorf("%w: %s -> %s by %s", ErrInvalidTransition, from, to, actor)
	}
	return nil
}

// UserTarget returns the status a user photo upload moves to
func UserTarget(requested models.Status) models.Status {
	if requested == "" {
		return models.StatusPending
	}
	return requested
}

// AdminTarget returns the status an admin update moves to, and false when the
// update should leave the status untouched. An explicit status always wins;
// otherwise completion is inferred only when at least one processed photo was stored.
func (p Policy) AdminTarget(requested models.Status, storedProcessed int) (models.Status, bool) {
	if requested != "" {
		return requested, true
	}
	if p.ImplicitCompletion && storedProcessed > 0 {
		return models.StatusCompleted, true
	}
	return "", false
}
