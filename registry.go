package guest

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

// ConvertedEvent is published after a conversion commits.
type ConvertedEvent struct {
	User             *User
	PreviousUsername string
}

// ConvertedHandler reacts to a committed conversion. Returned errors are
// logged; the conversion stays committed.
type ConvertedHandler func(ctx context.Context, event ConvertedEvent) error

// RegistryOption customizes registry construction.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	logger    Logger
	activity  ActivitySink
	now       func() time.Time
	generator NameGenerator
	hasher    PasswordHasher
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger Logger) RegistryOption {
	return func(o *registryOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegistryActivitySink wires an activity sink for lifecycle events.
func WithRegistryActivitySink(sink ActivitySink) RegistryOption {
	return func(o *registryOptions) {
		o.activity = sink
	}
}

// WithRegistryClock injects a custom clock (useful for tests).
func WithRegistryClock(clock func() time.Time) RegistryOption {
	return func(o *registryOptions) {
		if clock != nil {
			o.now = clock
		}
	}
}

// WithNameGenerator overrides the generator named by Config.NameGenerator.
func WithNameGenerator(fn NameGenerator) RegistryOption {
	return func(o *registryOptions) {
		o.generator = fn
	}
}

// WithRegistryHasher sets the hasher used when saving conversion forms.
func WithRegistryHasher(h PasswordHasher) RegistryOption {
	return func(o *registryOptions) {
		o.hasher = h
	}
}

// Registry is the sole writer of guest records of type G.
type Registry[G GuestRecord] struct {
	cfg       Config
	repos     RepositoryManager
	guests    GuestRecords[G]
	handlers  GuestModelHandlers[G]
	generator NameGenerator
	hasher    PasswordHasher
	logger    Logger
	activity  ActivitySink
	now       func() time.Time

	mu        sync.RWMutex
	observers []ConvertedHandler
}

// NewRegistry builds a registry over the guest model described by handlers.
func NewRegistry[G GuestRecord](cfg Config, repos RepositoryManager, handlers GuestModelHandlers[G], opts ...RegistryOption) (*Registry[G], error) {
	if repos == nil {
		return nil, errors.New("repository manager is required", errors.CategoryInternal)
	}
	if err := repos.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "invalid repository manager")
	}
	if handlers.NewRecord == nil {
		return nil, errors.New("guest model handlers require NewRecord", errors.CategoryInternal)
	}

	options := registryOptions{
		now:    time.Now,
		hasher: NewPasswordHasher(cfg.BcryptCost),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	generator := options.generator
	if generator == nil {
		fn, err := cfg.ResolveNameGenerator()
		if err != nil {
			return nil, err
		}
		generator = fn
	}

	if cfg.MaxNameRetries < 1 {
		cfg.MaxNameRetries = DefaultMaxNameRetries
	}

	guests := NewGuestRecordsRepository(repos.DB(), handlers)
	if cfg.GuestModel != "" && cfg.GuestModel != guests.TableName() {
		return nil, ErrGuestModelMismatch.Clone().WithMetadata(map[string]any{
			"configured": cfg.GuestModel,
			"model":      guests.TableName(),
		})
	}

	return &Registry[G]{
		cfg:       cfg,
		repos:     repos,
		guests:    guests,
		handlers:  handlers,
		generator: generator,
		hasher:    options.hasher,
		logger:    normalizeLogger(options.logger),
		activity:  normalizeActivitySink(options.activity),
		now:       options.now,
	}, nil
}

// Config returns the configuration the registry was built with.
func (r *Registry[G]) Config() Config {
	return r.cfg
}

// Users exposes the account store.
func (r *Registry[G]) Users() Users {
	return r.repos.Users()
}

// Hasher returns the password hasher used for conversions.
func (r *Registry[G]) Hasher() PasswordHasher {
	return r.hasher
}

// CreateGuest provisions a guest account and its record in one
// transaction. Uniqueness collisions are retried with a decorated name up
// to Config.MaxNameRetries times.
func (r *Registry[G]) CreateGuest(ctx context.Context, req RequestInfo) (*User, G, error) {
	var zero G

	base, fallback := guestBaseName(r.generator, req)
	if fallback {
		r.logger.Warn("name generator returned an empty username, using uuid name")
	}
	candidate := base

	for attempt := 1; attempt <= r.cfg.MaxNameRetries; attempt++ {
		if attempt > 1 {
			candidate = collisionSuffix(base)
		}

		user, record, err := r.createGuestTx(ctx, candidate)
		if err == nil {
			r.logger.Info("guest created", "user_id", user.ID, "username", user.Username, "attempt", attempt)
			recordActivity(ctx, r.activity, r.logger, ActivityEvent{
				EventType:  ActivityEventGuestCreated,
				UserID:     user.ID.String(),
				Username:   user.Username,
				OccurredAt: record.GetCreatedAt(),
			})
			return user, record, nil
		}

		if !IsUniqueViolation(err) {
			return nil, zero, errors.Wrap(err, errors.CategoryInternal, "failed to create guest").
				WithMetadata(map[string]any{"username": candidate})
		}

		r.logger.Debug("guest username collision", "username", candidate, "attempt", attempt)
	}

	return nil, zero, ErrNameCollisionExhausted.Clone().WithMetadata(map[string]any{
		"retries": r.cfg.MaxNameRetries,
	})
}

func (r *Registry[G]) createGuestTx(ctx context.Context, username string) (*User, G, error) {
	var record G
	user := &User{
		Username:     username,
		PasswordHash: UnusablePassword(),
		IsGuest:      true,
	}

	err := r.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := r.repos.Users().CreateTx(ctx, tx, user)
		if err != nil {
			return err
		}

		record = r.handlers.NewRecord()
		record.SetUserID(created.ID)
		record.SetCreatedAt(r.now().UTC())
		if r.handlers.Prepare != nil {
			r.handlers.Prepare(record, created)
		}

		_, err = r.guests.CreateTx(ctx, tx, record)
		return err
	})
	if err != nil {
		var zero G
		return nil, zero, err
	}
	return user, record, nil
}

// IsGuest reports whether a live guest record references userID.
func (r *Registry[G]) IsGuest(ctx context.Context, userID uuid.UUID) (bool, error) {
	if _, err := r.GetGuest(ctx, userID); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetGuest returns the guest record for userID.
func (r *Registry[G]) GetGuest(ctx context.Context, userID uuid.UUID) (G, error) {
	record, err := r.guests.GetByUserID(ctx, userID)
	if err != nil {
		var zero G
		if IsNotFound(err) {
			return zero, ErrIdentityNotFound
		}
		return zero, errors.Wrap(err, errors.CategoryInternal, "failed to load guest record")
	}
	return record, nil
}

// IsExpired reports whether record is past maxAge. A disabled maxAge
// never expires anything.
func (r *Registry[G]) IsExpired(record G, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return r.now().UTC().Sub(record.GetCreatedAt()) >= maxAge
}

// FilterExpired returns every record for which now - created_at >= maxAge.
func (r *Registry[G]) FilterExpired(ctx context.Context, maxAge time.Duration) ([]G, error) {
	if maxAge <= 0 {
		return []G{}, nil
	}

	records, err := r.guests.ListCreatedBefore(ctx, r.cutoff(maxAge))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to list expired guests")
	}
	return records, nil
}

// DeleteExpired removes expired records together with their accounts.
// Each record is deleted in its own transaction; a record that stopped
// being expired or is already gone is skipped.
func (r *Registry[G]) DeleteExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	records, err := r.FilterExpired(ctx, maxAge)
	if err != nil {
		return 0, err
	}

	cutoff := r.cutoff(maxAge)
	deleted := 0
	for _, record := range records {
		userID := record.GetUserID()
		removed, err := r.deleteGuestTx(ctx, userID, &cutoff)
		if err != nil {
			return deleted, errors.Wrap(err, errors.CategoryInternal, "failed to delete expired guest").
				WithMetadata(map[string]any{"user_id": userID.String(), "deleted": deleted})
		}
		if !removed {
			continue
		}

		deleted++
		recordActivity(ctx, r.activity, r.logger, ActivityEvent{
			EventType:  ActivityEventGuestExpired,
			UserID:     userID.String(),
			OccurredAt: r.now(),
			Metadata:   map[string]any{"created_at": record.GetCreatedAt()},
		})
	}

	if deleted > 0 {
		r.logger.Info("expired guests deleted", "count", deleted)
	}
	return deleted, nil
}

// DeleteGuest removes the guest record for userID and its account.
func (r *Registry[G]) DeleteGuest(ctx context.Context, userID uuid.UUID) error {
	removed, err := r.deleteGuestTx(ctx, userID, nil)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete guest")
	}
	if !removed {
		return ErrAccountNotGuest
	}
	return nil
}

func (r *Registry[G]) deleteGuestTx(ctx context.Context, userID uuid.UUID, cutoff *time.Time) (bool, error) {
	removed := false
	err := r.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var (
			n   int
			err error
		)
		if cutoff != nil {
			n, err = r.guests.DeleteExpiredTx(ctx, tx, userID, *cutoff)
		} else {
			n, err = r.guests.DeleteByUserIDTx(ctx, tx, userID)
		}
		if err != nil || n == 0 {
			return err
		}

		removed = true
		return r.repos.Users().DeleteAccountTx(ctx, tx, userID)
	})
	return removed, err
}

// Subscribe registers a handler for committed conversions.
func (r *Registry[G]) Subscribe(handler ConvertedHandler) {
	if handler == nil {
		return
	}
	r.mu.Lock()
	r.observers = append(r.observers, handler)
	r.mu.Unlock()
}

// Convert turns the guest account user into a regular account using the
// credentials of a validated form. The guest record deletion, the
// credential update and the discriminator flip share one transaction.
func (r *Registry[G]) Convert(ctx context.Context, form ConversionForm, user *User) (*User, error) {
	if form == nil || !form.Validated() {
		return nil, ErrFormNotValid
	}
	if user == nil {
		return nil, ErrIdentityNotFound
	}

	previous := user.Username
	target := *user

	err := r.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		n, err := r.guests.DeleteByUserIDTx(ctx, tx, target.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrAccountNotGuest
		}

		if err := form.Save(ctx, tx, r.repos.Users(), r.hasher, &target); err != nil {
			return err
		}

		if err := r.repos.Users().SetGuestFlagTx(ctx, tx, target.ID, false); err != nil {
			return err
		}
		target.IsGuest = false
		return nil
	})
	if err != nil {
		switch {
		case stderrors.Is(err, ErrAccountNotGuest):
			return nil, ErrAccountNotGuest
		case IsUniqueViolation(err):
			form.AddError(FieldUsername, MessageUsernameTaken)
			return nil, ErrUsernameTaken.Clone().WithMetadata(map[string]any{"username": target.Username})
		case stderrors.Is(err, bcrypt.ErrPasswordTooLong):
			form.AddError(FieldPassword2, fmt.Sprintf(MessagePasswordTooLong, MaxPasswordBytes))
			return nil, ErrFormNotValid
		case IsNotFound(err):
			return nil, ErrIdentityNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to convert guest").
			WithMetadata(map[string]any{"user_id": user.ID.String()})
	}

	r.logger.Info("guest converted", "user_id", target.ID, "username", target.Username, "previous", previous)
	recordActivity(ctx, r.activity, r.logger, ActivityEvent{
		EventType:  ActivityEventGuestConverted,
		UserID:     target.ID.String(),
		Username:   target.Username,
		OccurredAt: r.now(),
		Metadata:   map[string]any{"previous_username": previous},
	})

	r.publish(ctx, ConvertedEvent{User: &target, PreviousUsername: previous})
	return &target, nil
}

func (r *Registry[G]) publish(ctx context.Context, event ConvertedEvent) {
	r.mu.RLock()
	observers := append([]ConvertedHandler(nil), r.observers...)
	r.mu.RUnlock()

	for i, handler := range observers {
		if err := r.safeHandle(ctx, handler, event); err != nil {
			r.logger.Error("converted subscriber failed", "index", i, "user_id", event.User.ID, "error", err)
		}
	}
}

func (r *Registry[G]) safeHandle(ctx context.Context, handler ConvertedHandler, event ConvertedEvent) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return handler(ctx, event)
}

func (r *Registry[G]) cutoff(maxAge time.Duration) time.Time {
	return r.now().UTC().Add(-maxAge)
}

func tableType(record any) reflect.Type {
	t := reflect.TypeOf(record)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// Provisioner creates guest accounts without exposing the record type.
// DeleteGuest undoes a provisioning the caller could not bind to a session.
type Provisioner interface {
	GuestLookup
	ProvisionGuest(ctx context.Context, req RequestInfo) (*User, error)
	DeleteGuest(ctx context.Context, userID uuid.UUID) error
}

var _ Provisioner = (*Registry[*Guest])(nil)

// ProvisionGuest is CreateGuest without the record.
func (r *Registry[G]) ProvisionGuest(ctx context.Context, req RequestInfo) (*User, error) {
	user, _, err := r.CreateGuest(ctx, req)
	return user, err
}
