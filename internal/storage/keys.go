package storage

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// SanitizeFilename replaces every character outside [a-zA-Z0-9.-] with an
// underscore so the name is safe as an object-key segment.
func SanitizeFilename(name string) string {
	return unsafeKeyChars.ReplaceAllString(name, "_")
}

// DocumentKey builds the object key for an uploaded patient PDF, namespaced
// by the owning account and prefixed with a timestamp to avoid collisions.
func DocumentKey(ownerID uuid.UUID, filename string) string {
	return fmt.Sprintf("%s/%d-%s", ownerID, time.Now().UnixMilli(), SanitizeFilename(filename))
}

// PrefixedKey joins a configured prefix with a sanitized filename.
func PrefixedKey(prefix, filename string) string {
	return fmt.Sprintf("%s/%s", prefix, SanitizeFilename(filename))
}
