package guest_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/goliatone/go-guest"
	goerrors "github.com/goliatone/go-errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"postgres unique", &pgconn.PgError{Code: "23505"}, true},
		{"postgres wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"postgres other", &pgconn.PgError{Code: "23503"}, false},
		{"sqlite unique", errors.New("UNIQUE constraint failed: users.username"), true},
		{"unrelated", errors.New("disk I/O error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, guest.IsUniqueViolation(tt.err))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, guest.IsNotFound(nil))
	assert.True(t, guest.IsNotFound(sql.ErrNoRows))
	assert.True(t, guest.IsNotFound(fmt.Errorf("lookup: %w", sql.ErrNoRows)))
	assert.True(t, guest.IsNotFound(guest.ErrIdentityNotFound))
	assert.True(t, guest.IsNotFound(goerrors.New("missing", goerrors.CategoryNotFound)))
	assert.False(t, guest.IsNotFound(guest.ErrAccountNotGuest))
}

func TestHasTextCode(t *testing.T) {
	cloned := guest.ErrUsernameTaken.Clone().WithMetadata(map[string]any{"username": "alice"})

	assert.True(t, guest.HasTextCode(cloned, guest.TextCodeUsernameTaken))
	assert.False(t, guest.HasTextCode(cloned, guest.TextCodeAccountNotGuest))
	assert.False(t, guest.HasTextCode(errors.New("plain"), guest.TextCodeUsernameTaken))
	assert.False(t, guest.HasTextCode(nil, guest.TextCodeUsernameTaken))
}

func TestSentinelCategories(t *testing.T) {
	assert.Equal(t, goerrors.CategoryInternal, guest.ErrNameCollisionExhausted.Category)
	assert.Equal(t, goerrors.CategoryConflict, guest.ErrUsernameTaken.Category)
	assert.Equal(t, goerrors.CategoryBadInput, guest.ErrAccountNotGuest.Category)
	assert.Equal(t, goerrors.CategoryAuthz, guest.ErrAccessDenied.Category)
	assert.Equal(t, goerrors.CategoryValidation, guest.ErrFormNotValid.Category)
	assert.Equal(t, goerrors.CategoryNotFound, guest.ErrIdentityNotFound.Category)
	assert.Equal(t, goerrors.CategoryAuth, guest.ErrMismatchedHashAndPassword.Category)

	assert.Equal(t, guest.TextCodeUsernameTaken, guest.ErrUsernameTaken.TextCode)
	assert.Equal(t, guest.TextCodeAccessDenied, guest.ErrAccessDenied.TextCode)
	assert.Equal(t, guest.TextCodeIdentityNotFound, guest.ErrIdentityNotFound.TextCode)
}
