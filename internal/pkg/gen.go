package pkg

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	RoomIDLength   = 6
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateRoomID - generates a 6-character room code from [A-Z0-9].
func GenerateRoomID() (string, error) {
	alphabetLen := big.NewInt(int64(len(roomIDAlphabet)))

	id := make([]byte, RoomIDLength)
	for i := range id {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to read random index: %w", err)
		}

		id[i] = roomIDAlphabet[n.Int64()]
	}

	return string(id), nil
}
