// Package auth guards the MCP endpoint with bcrypt-hashed API keys.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyPrefix marks marginalio API keys.
	APIKeyPrefix = "mk_"

	// APIKeyMinLen is the prefix plus 32 hex characters.
	APIKeyMinLen = len(APIKeyPrefix) + 32

	apiKeyBytes = 32
)

// RandomHex generates a cryptographically random hex string of the given byte length.
func RandomHex(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	return hex.EncodeToString(b)
}

// GenerateAPIKey returns a new random key and its bcrypt hash. Only the
// hash is configured on the server.
func GenerateAPIKey() (key, hash string, err error) {
	key = APIKeyPrefix + RandomHex(apiKeyBytes)

	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hashing api key: %w", err)
	}

	return key, string(h), nil
}

// Keys validates presented API keys against configured hashes. bcrypt
// comparisons are slow, so keys that have matched once are remembered
// by their SHA-256 digest.
type Keys struct {
	hashes map[string]string // user id -> bcrypt hash

	mu       sync.Mutex
	verified map[[sha256.Size]byte]string
}

// NewKeys builds a validator from user id to bcrypt hash.
func NewKeys(hashes map[string]string) *Keys {
	copied := make(map[string]string, len(hashes))
	for user, h := range hashes {
		copied[user] = h
	}

	return &Keys{hashes: copied, verified: make(map[[sha256.Size]byte]string)}
}

// Len returns the number of configured users.
func (k *Keys) Len() int {
	return len(k.hashes)
}

// Validate returns the user owning key, or false.
func (k *Keys) Validate(key string) (string, bool) {
	if !strings.HasPrefix(key, APIKeyPrefix) || len(key) < APIKeyMinLen {
		return "", false
	}

	digest := sha256.Sum256([]byte(key))

	k.mu.Lock()
	user, ok := k.verified[digest]
	k.mu.Unlock()

	if ok {
		return user, true
	}

	for user, h := range k.hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(key)) == nil {
			k.mu.Lock()
			k.verified[digest] = user
			k.mu.Unlock()

			return user, true
		}
	}

	return "", false
}
