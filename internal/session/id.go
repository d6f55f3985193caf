package session

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// Session ids are 8 lowercase base32 characters: 40 bits of entropy, short
// enough to read out loud, collision-safe at any plausible session volume.
const (
	idAlphabet = "abcdefghijklmnopqrstuvwxyz234567"
	idLength   = 8
)

var (
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrInvalidUserID    = errors.New("invalid user id")
)

// NewID generates a fresh session identifier.
func NewID() string {
	b := make([]byte, idLength)
	_, _ = rand.Read(b)
	for i := range b {
		// 256 is a multiple of 32, so the modulo introduces no bias.
		b[i] = idAlphabet[int(b[i])%len(idAlphabet)]
	}
	return string(b)
}

// ValidateID rejects anything that could not have come out of NewID.
func ValidateID(id string) error {
	if len(id) != idLength {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'a' || c > 'z') && (c < '2' || c > '7') {
			return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
		}
	}
	return nil
}
