package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinLength is the shortest password accepted for new accounts
const MinLength = 8

// Hash returns the bcrypt hash of plain
func Hash(plain string) (string, error) {
	if len(plain) < MinLength {
		return "", fmt.Errorf("password must be at least %d characters", MinLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Check returns nil when plain matches hash
func Check(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
