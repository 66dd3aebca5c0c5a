package hash

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// CodeCost is lower than bcrypt.DefaultCost: pending codes live for minutes
// and every verify attempt pays the comparison.
const CodeCost = 10

var ErrMismatch = errors.New("hash does not match")

func Hash(secret string) (string, error) {
	return HashWithCost(secret, CodeCost)
}

func HashWithCost(secret string, cost int) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("cannot hash an empty value")
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash value: %w", err)
	}

	return string(hashedBytes), nil
}

func Compare(hashed, secret string) error {
	if hashed == "" {
		return ErrMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret)); err != nil {
		return ErrMismatch
	}
	return nil
}
