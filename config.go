package guest

import (
	"fmt"
	"time"

	"github.com/goliatone/go-errors"
)

const (
	// DefaultMaxAge is how long an unconverted guest lives.
	DefaultMaxAge = 14 * 24 * time.Hour
	// NoExpiry disables expiration when used as MaxAge.
	NoExpiry time.Duration = 0
	// DefaultMaxNameRetries bounds the collision retry loop.
	DefaultMaxNameRetries = 5
)

// Config is built once at startup and handed to every component.
type Config struct {
	// Enabled turns guest auto-provisioning on.
	Enabled bool
	// MaxAge is the expiration threshold. NoExpiry (or any value <= 0)
	// means guests never expire.
	MaxAge time.Duration
	// NameGenerator is the name of a registered generator.
	NameGenerator string
	// GuestModel is the table name of the guest entity. Empty accepts
	// whatever model the registry is built with.
	GuestModel     string
	MaxNameRetries int

	// RegularSatisfiesGuest lets RequireGuest pass regular users through
	// instead of rejecting them.
	RegularSatisfiesGuest bool
	// BlockedRedirect is where RequireGuest sends rejected regular users.
	// Empty answers 403.
	BlockedRedirect string
	// RequiredUserURL is where RequireRegular sends everyone else.
	RequiredUserURL        string
	ConvertURL             string
	ConvertRedirectURL     string
	ConvertPrefillUsername bool

	SessionCookie string
	SessionSecret string
	SessionTTL    time.Duration

	SweepSchedule  string
	DatabaseDriver string
	DatabaseDSN    string
	BcryptCost     int
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		MaxAge:             DefaultMaxAge,
		NameGenerator:      GeneratorUUID,
		MaxNameRetries:     DefaultMaxNameRetries,
		RequiredUserURL:    "/login",
		ConvertURL:         "/convert",
		ConvertRedirectURL: "/",
		SessionCookie:      "guest_session",
		SessionTTL:         DefaultMaxAge,
		SweepSchedule:      "@daily",
		DatabaseDriver:     "sqlite",
		BcryptCost:         10,
	}
}

// ExpiryEnabled reports whether MaxAge describes a real threshold.
func (c Config) ExpiryEnabled() bool {
	return c.MaxAge > 0
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.MaxNameRetries < 1 {
		return configError("max_name_retries must be at least 1", c.MaxNameRetries)
	}
	if _, ok := LookupNameGenerator(c.NameGenerator); !ok {
		return configError(fmt.Sprintf("unknown name generator %q", c.NameGenerator), NameGenerators())
	}
	if c.SessionSecret == "" {
		return configError("session_secret must be set", nil)
	}
	if c.SessionTTL < 0 {
		return configError("session_ttl must not be negative", c.SessionTTL.String())
	}
	return nil
}

// ResolveNameGenerator returns the generator named by the configuration.
func (c Config) ResolveNameGenerator() (NameGenerator, error) {
	fn, ok := LookupNameGenerator(c.NameGenerator)
	if !ok {
		return nil, configError(fmt.Sprintf("unknown name generator %q", c.NameGenerator), NameGenerators())
	}
	return fn, nil
}

func configError(msg string, value any) error {
	return errors.New(msg, errors.CategoryBadInput).
		WithTextCode("INVALID_GUEST_CONFIG").
		WithMetadata(map[string]any{"value": value})
}
