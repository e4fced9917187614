package room

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// newRoomToken returns 16 bytes of crypto-random entropy, hex encoded. The
// token doubles as the bearer capability for the room, so it must come from
// a CSPRNG.
func newRoomToken() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate room token: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
