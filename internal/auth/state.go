package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// StateTTL bounds how long an OAuth state may wait for its callback.
const StateTTL = 10 * time.Minute

// NewState returns 32 random bytes, hex-encoded, for the OAuth state parameter.
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
