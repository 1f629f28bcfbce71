package engine

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	publicIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	PublicIDLength   = 8
	maxPublicIDLen   = 10
)

// NewPublicID draws PublicIDLength characters from A-Z0-9.
func NewPublicID() (string, error) {
	base := big.NewInt(int64(len(publicIDAlphabet)))
	b := make([]byte, PublicIDLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("public id: %w", err)
		}
		b[i] = publicIDAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NormalizePublicID upper-cases user input so ids match case-insensitively.
func NormalizePublicID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// ValidPublicID reports whether id has the shape of a public id.
func ValidPublicID(id string) bool {
	if len(id) < PublicIDLength || len(id) > maxPublicIDLen {
		return false
	}
	for _, r := range id {
		if !strings.ContainsRune(publicIDAlphabet, r) {
			return false
		}
	}
	return true
}
