package guest

import (
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MaxUsernameLength matches the users.username column.
const MaxUsernameLength = 150

// User is the account entity owned by the host store. The package only
// touches IsGuest, Username and PasswordHash.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID      `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Username      string         `bun:"username,notnull,unique" json:"username,omitempty"`
	PasswordHash  string         `bun:"password_hash" json:"-"`
	Email         string         `bun:"email" json:"email,omitempty"`
	FirstName     string         `bun:"first_name" json:"first_name,omitempty"`
	LastName      string         `bun:"last_name" json:"last_name,omitempty"`
	IsGuest       bool           `bun:"is_guest,notnull" json:"is_guest"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// GuestRecord is the shape every guest model must have. Implementations
// are bun models whose table holds a user_id primary key and a created_at
// column.
type GuestRecord interface {
	GetUserID() uuid.UUID
	SetUserID(id uuid.UUID)
	GetCreatedAt() time.Time
	SetCreatedAt(t time.Time)
}

// Guest is the default guest model.
type Guest struct {
	bun.BaseModel `bun:"table:guests,alias:gst"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid" json:"user_id"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

func (g *Guest) GetUserID() uuid.UUID     { return g.UserID }
func (g *Guest) SetUserID(id uuid.UUID)   { g.UserID = id }
func (g *Guest) GetCreatedAt() time.Time  { return g.CreatedAt }
func (g *Guest) SetCreatedAt(t time.Time) { g.CreatedAt = t }

var _ GuestRecord = (*Guest)(nil)

// GuestModelHandlers tells the registry how to build and identify records
// of type G.
type GuestModelHandlers[G GuestRecord] struct {
	repository.ModelHandlers[G]
	// Prepare runs before a new record is inserted, e.g. to fill extra columns.
	Prepare func(record G, user *User)
}

// GuestModel returns handlers for a custom guest model. Records are keyed
// by their user id.
func GuestModel[G GuestRecord](newRecord func() G) GuestModelHandlers[G] {
	return GuestModelHandlers[G]{
		ModelHandlers: repository.ModelHandlers[G]{
			NewRecord: newRecord,
			GetID: func(record G) uuid.UUID {
				return record.GetUserID()
			},
			SetID: func(record G, id uuid.UUID) {
				record.SetUserID(id)
			},
			GetIdentifier: func() string {
				return "user_id"
			},
		},
	}
}

// DefaultGuestModel returns the handlers for Guest.
func DefaultGuestModel() GuestModelHandlers[*Guest] {
	return GuestModel(func() *Guest { return &Guest{} })
}
