package guest

import (
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	TextCodeNameCollisionExhausted = "GUEST_NAME_COLLISION_EXHAUSTED"
	TextCodeUsernameTaken          = "USERNAME_TAKEN"
	TextCodeAccountNotGuest        = "ACCOUNT_NOT_GUEST"
	TextCodeAccessDenied           = "GUEST_ACCESS_DENIED"
	TextCodeFormNotValid           = "CONVERSION_FORM_INVALID"
	TextCodeIdentityNotFound       = "IDENTITY_NOT_FOUND"
	TextCodeMismatchedPassword     = "MISMATCHED_PASSWORD"
	TextCodeGuestModelMismatch     = "GUEST_MODEL_MISMATCH"
)

// ErrNameCollisionExhausted is returned when every generated username collided.
var ErrNameCollisionExhausted = errors.New("guest username retries exhausted", errors.CategoryInternal).
	WithTextCode(TextCodeNameCollisionExhausted).
	WithCode(errors.CodeInternal)

// ErrUsernameTaken is returned when conversion hits the username uniqueness constraint.
var ErrUsernameTaken = errors.New("a user with that username already exists", errors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(errors.CodeConflict)

// ErrAccountNotGuest is returned when a guest-only operation targets a regular account.
var ErrAccountNotGuest = errors.New("account is not a guest", errors.CategoryBadInput).
	WithTextCode(TextCodeAccountNotGuest).
	WithCode(errors.CodeBadRequest)

// ErrAccessDenied is returned by gates that reject the current principal.
var ErrAccessDenied = errors.New("access denied", errors.CategoryAuthz).
	WithTextCode(TextCodeAccessDenied).
	WithCode(errors.CodeForbidden)

// ErrFormNotValid is returned when Convert receives a form that did not validate.
var ErrFormNotValid = errors.New("conversion form is not valid", errors.CategoryValidation).
	WithTextCode(TextCodeFormNotValid).
	WithCode(errors.CodeBadRequest)

// ErrIdentityNotFound is returned by backends that cannot resolve the credentials.
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeNotFound)

// ErrMismatchedHashAndPassword is returned when a password does not match.
var ErrMismatchedHashAndPassword = errors.New("mismatched hash and password", errors.CategoryAuth).
	WithTextCode(TextCodeMismatchedPassword).
	WithCode(errors.CodeUnauthorized)

// ErrGuestModelMismatch is returned when the configured guest model does not
// match the registry's record type.
var ErrGuestModelMismatch = errors.New("guest model does not match configuration", errors.CategoryInternal).
	WithTextCode(TextCodeGuestModelMismatch).
	WithCode(errors.CodeInternal)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = stderrors.New("password must not be empty")

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a store uniqueness violation.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	// mattn/go-sqlite3 and modernc.org/sqlite share this message.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsNotFound reports whether err means "no such record".
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, sql.ErrNoRows) || stderrors.Is(err, ErrIdentityNotFound) {
		return true
	}
	if repository.IsRecordNotFound(err) {
		return true
	}
	return errors.IsNotFound(err)
}

// HasTextCode reports whether err carries the given go-errors text code.
func HasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}
