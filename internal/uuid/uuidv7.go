// Package uuid generates and validates the time-ordered identifiers used as
// primary keys throughout the service.
package uuid

import (
	googleuuid "github.com/google/uuid"
)

// New generates a new UUIDv7 based on the current timestamp.
// UUIDv7 is time-ordered, so rows inserted later sort after earlier ones,
// which keeps version and history listings stable under equal timestamps.
func New() string {
	id, err := googleuuid.NewV7()
	if err != nil {
		// Fallback to a random UUIDv4 if the clock or entropy source fails
		return googleuuid.New().String()
	}
	return id.String()
}

// Parse validates and normalizes a UUID string
func Parse(s string) (string, error) {
	parsed, err := googleuuid.Parse(s)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}

// IsValid checks if a string is a valid UUID
func IsValid(s string) bool {
	_, err := googleuuid.Parse(s)
	return err == nil
}
