package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// staffKeyByteLength gives 256 bits of entropy, 64 hex characters.
const staffKeyByteLength = 32

// GenerateStaffKey returns a fresh staff API key and its bcrypt hash. The
// plaintext key is handed to staff once; only the hash is stored.
func GenerateStaffKey(cost int) (key, hash string, err error) {
	buf := make([]byte, staffKeyByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating staff key: crypto/rand failed: %w", err)
	}
	key = hex.EncodeToString(buf)

	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", "", fmt.Errorf("hashing staff key: %w", err)
	}
	return key, string(hashed), nil
}
