package models

import "time"

// Roles carried in the session token
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account that can own submissions
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Phone        string    `json:"phone,omitempty"`
	Role         string    `json:"role"`
	PushToken    *string   `json:"push_token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin reports whether the user holds the administrative role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Submission represents one photo-processing request and its workflow status
type Submission struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	ContactEmail    string    `json:"contact_email"`
	DisplayName     string    `json:"display_name"`
	Phone           string    `json:"phone,omitempty"`
	Profession      string    `json:"profession"`
	SpecialtyDetail string    `json:"specialty_detail"`
	DesiredElements string    `json:"desired_elements"`
	Status          Status    `json:"status"`
	Version         int       `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Photos          []*Photo  `json:"photos"`
}

// PhotoKind distinguishes user input images from operator output images
type PhotoKind string

const (
	PhotoOriginal  PhotoKind = "original"
	PhotoProcessed PhotoKind = "processed"
)

// Photo represents one stored image attached to a submission
type Photo struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id"`
	Kind         PhotoKind `json:"kind"`
	URL          string    `json:"url"`
	PreviewURL   *string   `json:"preview_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	// Locked is computed on owner reads and never persisted.
	Locked bool `json:"locked"`
}
