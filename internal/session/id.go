package session

import "github.com/google/uuid"

// NewID generates a new random session/thread identifier.
func NewID() string {
	return uuid.NewString()
}
