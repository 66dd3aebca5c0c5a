// Package otp generates short numeric one-time passcodes.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	DefaultLength = 6
	MaxLength     = 18
)

// Generate returns a zero-padded string of length digits drawn uniformly from
// [0, 10^length).
func Generate(length int) (string, error) {
	if length <= 0 || length > MaxLength {
		return "", fmt.Errorf("otp length must be between 1 and %d, got %d", MaxLength, length)
	}

	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to read random source: %w", err)
	}

	code := n.String()
	if pad := length - len(code); pad > 0 {
		code = strings.Repeat("0", pad) + code
	}
	return code, nil
}
