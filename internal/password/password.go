// Package password hashes user passwords before they are forwarded upstream.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"tuiter-bff/internal/config"
)

// Hasher turns a plaintext password into an opaque one-way hash.
type Hasher interface {
	Hash(plain string) (string, error)
}

// BcryptHasher hashes with bcrypt at a fixed cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher using password.bcrypt_cost.
func NewBcryptHasher(cfg *config.Config) *BcryptHasher {
	cost := cfg.Password.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns the bcrypt hash of plain.
func (h *BcryptHasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}
