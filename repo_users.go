package guest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var UpdateUserCredentialsSQL = `UPDATE "users"
SET
	"username" = ?,
	"password_hash" = ?,
	"updated_at" = ?
WHERE
	"id" = ?
RETURNING *;`

var SetUserGuestFlagSQL = `UPDATE "users"
SET
	"is_guest" = ?,
	"updated_at" = ?
WHERE
	"id" = ?
RETURNING *;`

var DeleteUserSQL = `DELETE FROM "users"
WHERE
	"id" = ?
RETURNING *;`

// Users is the consumed interface of the host account store.
type Users interface {
	repository.Repository[*User]
	UserFinder

	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	UpdateCredentialsTx(ctx context.Context, tx bun.IDB, user *User) error
	SetGuestFlagTx(ctx context.Context, tx bun.IDB, id uuid.UUID, isGuest bool) error
	DeleteAccount(ctx context.Context, id uuid.UUID) error
	DeleteAccountTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type users struct {
	repository.Repository[*User]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// NewUsersRepository returns the bun backed account store.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

// CreateTx inserts record. A duplicate username surfaces as an error for
// which IsUniqueViolation reports true.
func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record, a.now())
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) GetByUserID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.GetByUserIDTx(ctx, a.db, id)
}

func (a *users) GetByUserIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.getBy(ctx, tx, "id", id.String())
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.GetByUsernameTx(ctx, a.db, username)
}

func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrIdentityNotFound
	}
	return a.getBy(ctx, tx, "username", username)
}

func (a *users) getBy(ctx context.Context, tx bun.IDB, column, value string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user").
			WithMetadata(map[string]any{column: value})
	}
	return record, nil
}

// UpdateCredentialsTx writes username and password hash of an existing
// account, keyed by id.
func (a *users) UpdateCredentialsTx(ctx context.Context, tx bun.IDB, user *User) error {
	now := a.now()
	res, err := a.Repository.RawTx(ctx, tx, UpdateUserCredentialsSQL, user.Username, user.PasswordHash, now, user.ID.String())
	if err != nil {
		return err
	}
	if len(res) == 0 {
		return ErrIdentityNotFound
	}
	user.UpdatedAt = &now
	return nil
}

func (a *users) SetGuestFlagTx(ctx context.Context, tx bun.IDB, id uuid.UUID, isGuest bool) error {
	res, err := a.Repository.RawTx(ctx, tx, SetUserGuestFlagSQL, isGuest, a.now(), id.String())
	if err != nil {
		return err
	}
	if len(res) == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

func (a *users) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	return a.DeleteAccountTx(ctx, a.db, id)
}

// DeleteAccountTx removes the account; a missing account is not an error.
func (a *users) DeleteAccountTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := a.Repository.RawTx(ctx, tx, DeleteUserSQL, id.String())
	return err
}

func prepareUserDefaults(record *User, now time.Time) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}

	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}
}
