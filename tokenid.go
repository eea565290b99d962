package joat

import "github.com/google/uuid"

// NewTokenID returns a random identifier suitable for the jti claim.
func NewTokenID() string {
	return uuid.NewString()
}
