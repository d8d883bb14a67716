package guest

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UnusablePasswordPrefix marks a credential no password can match.
const UnusablePasswordPrefix = "!"

// PasswordHasher hashes and verifies account credentials.
type PasswordHasher struct {
	Cost int
}

// NewPasswordHasher returns a hasher with the given bcrypt cost. Costs
// outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewPasswordHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return PasswordHasher{Cost: cost}
}

// HashPassword will generate a password hash
func (h PasswordHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(out), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func (h PasswordHasher) ComparePasswordAndHash(password, hash string) error {
	if !IsUsablePassword(hash) {
		return ErrMismatchedHashAndPassword
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// UnusablePassword returns a randomized credential that never verifies.
func UnusablePassword() string {
	return UnusablePasswordPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsUsablePassword reports whether hash can ever match a password.
func IsUsablePassword(hash string) bool {
	return hash != "" && !strings.HasPrefix(hash, UnusablePasswordPrefix)
}
