package models

import (
	"fmt"
	"strings"
)

// Status is the workflow state of a submission
type Status string

const (
	StatusAwaitingPhoto    Status = "awaiting_photo"
	StatusPendingDriveLink Status = "pending_drive_link"
	StatusPending          Status = "pending"
	StatusProcessing       Status = "processing"
	StatusCompleted        Status = "completed"
)

var knownStatuses = map[Status]bool{
	StatusAwaitingPhoto:    true,
	StatusPendingDriveLink: true,
	StatusPending:          true,
	StatusProcessing:       true,
	StatusCompleted:        true,
}

// ParseStatus converts a raw form value into a Status from the closed set
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !knownStatuses[s] {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Valid reports whether s belongs to the closed set
func (s Status) Valid() bool {
	return knownStatuses[s]
}

// IsTerminal reports whether no transition may leave s
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// IsWaiting reports whether the submission still waits on the user's photos
func (s Status) IsWaiting() bool {
	return s == StatusAwaitingPhoto || s == StatusPendingDriveLink
}
