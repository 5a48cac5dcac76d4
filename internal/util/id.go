package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random 96-bit hex id, used for request correlation and
// stored upload names. Conversation and tenant ids use uuids instead.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
