package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// InvitationTokenLength is the length of ticket invitation tokens.
const InvitationTokenLength = 12

// GenerateToken returns n characters drawn uniformly from [a-zA-Z0-9]
// using crypto/rand.
func GenerateToken(n int) (string, error) {
	max := big.NewInt(int64(len(tokenAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		out[i] = tokenAlphabet[idx.Int64()]
	}
	return string(out), nil
}
