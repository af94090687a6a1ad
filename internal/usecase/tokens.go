package usecase

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
)

// GenerateRoomID generates an unguessable lowercase hex room id
func GenerateRoomID() (string, error) {
	return randomHex(domain.RoomIDBytes)
}

// GenerateCreatorToken generates the capability required to start matching
func GenerateCreatorToken() (string, error) {
	return randomHex(domain.CreatorTokenBytes)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
