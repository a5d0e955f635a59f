// Package storage puts submission photos into an object store and
// returns their public URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"time"
)

// Category is the folder a photo lands in under its submission prefix
type Category string

const (
	CategoryOriginals Category = "user_originals"
	CategoryProcessed Category = "processed"
	CategoryPreviews  Category = "previews"
)

// ObjectStore stores binary objects and returns a publicly resolvable URL
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)

// SanitizeFilename replaces every character outside [a-zA-Z0-9._-] with an underscore
func SanitizeFilename(name string) string {
	if name == "" {
		return "photo"
	}
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// ObjectKey builds {submissionID}/{category}/{unixMillis}-{photoID}-{sanitizedFilename}.
// The photo ID keeps same-named parts written in the same millisecond apart.
func ObjectKey(submissionID string, category Category, photoID, filename string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%d-%s-%s", submissionID, category, at.UnixMilli(), photoID, SanitizeFilename(filename))
}
