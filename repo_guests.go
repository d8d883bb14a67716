package guest

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var DeleteGuestRecordSQL = `DELETE FROM ?
WHERE
	"user_id" = ?
RETURNING *;`

var DeleteExpiredGuestRecordSQL = `DELETE FROM ?
WHERE
	"user_id" = ?
AND
	"created_at" <= ?
RETURNING *;`

// GuestRecords persists guest records of type G.
type GuestRecords[G GuestRecord] interface {
	repository.Repository[G]

	TableName() string
	GetByUserID(ctx context.Context, userID uuid.UUID) (G, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (G, error)
	DeleteByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error)
	DeleteExpiredTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, cutoff time.Time) (int, error)
	ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]G, error)
}

type guestRecords[G GuestRecord] struct {
	repository.Repository[G]
	db       *bun.DB
	handlers GuestModelHandlers[G]
	table    string
}

// NewGuestRecordsRepository returns the bun store for guest records.
// Handlers missing GetID, SetID or GetIdentifier get the user id defaults.
func NewGuestRecordsRepository[G GuestRecord](db *bun.DB, handlers GuestModelHandlers[G]) GuestRecords[G] {
	defaults := GuestModel(handlers.NewRecord)
	if handlers.GetID == nil {
		handlers.GetID = defaults.GetID
	}
	if handlers.SetID == nil {
		handlers.SetID = defaults.SetID
	}
	if handlers.GetIdentifier == nil {
		handlers.GetIdentifier = defaults.GetIdentifier
	}

	return &guestRecords[G]{
		Repository: repository.NewRepository[G](db, handlers.ModelHandlers),
		db:         db,
		handlers:   handlers,
		table:      db.Table(tableType(handlers.NewRecord())).Name,
	}
}

func (r *guestRecords[G]) TableName() string {
	return r.table
}

func (r *guestRecords[G]) GetByUserID(ctx context.Context, userID uuid.UUID) (G, error) {
	return r.GetByUserIDTx(ctx, r.db, userID)
}

func (r *guestRecords[G]) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (G, error) {
	record := r.handlers.NewRecord()
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		var zero G
		if repository.IsRecordNotFound(err) {
			return zero, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id": userID.String(),
				})
		}
		return zero, err
	}
	return record, nil
}

// DeleteByUserIDTx returns the number of records removed.
func (r *guestRecords[G]) DeleteByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error) {
	res, err := r.Repository.RawTx(ctx, tx, DeleteGuestRecordSQL, bun.Ident(r.table), userID.String())
	if err != nil {
		return 0, err
	}
	return len(res), nil
}

// DeleteExpiredTx removes the record only while it is still past cutoff,
// so a record converted or recreated in the meantime survives.
func (r *guestRecords[G]) DeleteExpiredTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, cutoff time.Time) (int, error) {
	res, err := r.Repository.RawTx(ctx, tx, DeleteExpiredGuestRecordSQL, bun.Ident(r.table), userID.String(), cutoff)
	if err != nil {
		return 0, err
	}
	return len(res), nil
}

func (r *guestRecords[G]) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]G, error) {
	records := make([]G, 0)
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.created_at <= ?", cutoff).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}
