package guest

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager groups the stores the registry writes through and
// owns the transactional boundary shared by them.
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	MustValidate()
	DB() *bun.DB
	Users() Users
}

var _ RepositoryManager = mngr{}

type mngr struct {
	db    *bun.DB
	users Users
}

// NewRepositoryManager builds the manager over db using the bun account
// store.
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:    db,
		users: NewUsersRepository(db),
	}
}

// NewRepositoryManagerWithUsers lets hosts plug their own account store.
func NewRepositoryManagerWithUsers(db *bun.DB, users Users) RepositoryManager {
	return &mngr{db: db, users: users}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) DB() *bun.DB {
	return m.db
}

func (m mngr) Users() Users {
	return m.users
}
