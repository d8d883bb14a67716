package guest

import (
	"context"
	stderrors "errors"
	"strings"
)

// GuestBackend authenticates guests by username alone. It never accepts a
// regular account, and it ignores credentials carrying a secret so the
// password backend handles those.
type GuestBackend struct {
	users  UserFinder
	guests guestChecker
	logger Logger
}

// guestChecker is the registry surface the backend depends on.
type guestChecker interface {
	GuestLookup
	IsLiveGuest(ctx context.Context, user *User) (bool, error)
}

// NewGuestBackend returns the guest backend over a registry.
func NewGuestBackend[G GuestRecord](registry *Registry[G], opts ...BackendOption) *GuestBackend {
	b := &GuestBackend{
		users:  registry.Users(),
		guests: registry,
		logger: registry.logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.logger = normalizeLogger(b.logger)
	return b
}

// BackendOption customizes a GuestBackend.
type BackendOption func(*GuestBackend)

// WithBackendLogger sets the logger.
func WithBackendLogger(logger Logger) BackendOption {
	return func(b *GuestBackend) {
		b.logger = logger
	}
}

// Authenticate returns the guest account named by creds.Identifier.
func (b *GuestBackend) Authenticate(ctx context.Context, creds Credentials) (*User, error) {
	if creds.Secret != "" {
		return nil, ErrIdentityNotFound
	}

	identifier := strings.TrimSpace(creds.Identifier)
	if identifier == "" {
		return nil, ErrIdentityNotFound
	}

	user, err := b.users.GetByUsername(ctx, identifier)
	if err != nil {
		return nil, err
	}

	live, err := b.guests.IsLiveGuest(ctx, user)
	if err != nil {
		return nil, err
	}
	if !live {
		b.logger.Debug("guest backend rejected account", "username", identifier)
		return nil, ErrIdentityNotFound
	}
	return user, nil
}

// IsLiveGuest reports whether user is flagged guest and has an unexpired
// guest record.
func (r *Registry[G]) IsLiveGuest(ctx context.Context, user *User) (bool, error) {
	if user == nil || !user.IsGuest {
		return false, nil
	}

	record, err := r.GetGuest(ctx, user.ID)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return !r.IsExpired(record, r.cfg.MaxAge), nil
}

// PasswordBackend authenticates a username and password against the stored
// bcrypt hash.
type PasswordBackend struct {
	users  UserFinder
	hasher PasswordHasher
}

// NewPasswordBackend returns the password backend.
func NewPasswordBackend(users UserFinder, hasher PasswordHasher) *PasswordBackend {
	return &PasswordBackend{users: users, hasher: hasher}
}

// Authenticate checks creds.Secret against the stored hash.
func (b *PasswordBackend) Authenticate(ctx context.Context, creds Credentials) (*User, error) {
	if creds.Identifier == "" || creds.Secret == "" {
		return nil, ErrIdentityNotFound
	}

	user, err := b.users.GetByUsername(ctx, creds.Identifier)
	if err != nil {
		return nil, err
	}

	if err := b.hasher.ComparePasswordAndHash(creds.Secret, user.PasswordHash); err != nil {
		return nil, err
	}
	return user, nil
}

// Backends tries each backend in order and returns the first account.
type Backends []Backend

// Authenticate implements Backend.
func (bs Backends) Authenticate(ctx context.Context, creds Credentials) (*User, error) {
	var lastErr error = ErrIdentityNotFound
	for _, b := range bs {
		if b == nil {
			continue
		}

		user, err := b.Authenticate(ctx, creds)
		if err == nil && user != nil {
			return user, nil
		}
		if err != nil && !skippable(err) {
			return nil, err
		}
		if err != nil && stderrors.Is(err, ErrMismatchedHashAndPassword) {
			lastErr = err
		}
	}
	return nil, lastErr
}

func skippable(err error) bool {
	return IsNotFound(err) || stderrors.Is(err, ErrMismatchedHashAndPassword)
}
