// Package config loads guest.Config from an optional file and GUEST_USER_*
// environment variables using Viper.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	guest "github.com/goliatone/go-guest"
)

// EnvPrefix is prepended to every key when reading the environment.
const EnvPrefix = "GUEST_USER"

const (
	KeyEnabled                = "ENABLED"
	KeyMaxAge                 = "MAX_AGE"
	KeyNameGenerator          = "NAME_GENERATOR"
	KeyGuestModel             = "GUEST_MODEL"
	KeyMaxNameRetries         = "MAX_NAME_RETRIES"
	KeyRegularSatisfiesGuest  = "REGULAR_SATISFIES_GUEST"
	KeyBlockedRedirect        = "BLOCKED_REDIRECT"
	KeyRequiredUserURL        = "REQUIRED_USER_URL"
	KeyConvertURL             = "CONVERT_URL"
	KeyConvertRedirectURL     = "CONVERT_REDIRECT_URL"
	KeyConvertPrefillUsername = "CONVERT_PREFILL_USERNAME"
	KeySessionCookie          = "SESSION_COOKIE"
	KeySessionSecret          = "SESSION_SECRET"
	KeySessionTTL             = "SESSION_TTL"
	KeySweepSchedule          = "SWEEP_SCHEDULE"
	KeyDatabaseDriver         = "DATABASE_DRIVER"
	KeyDatabaseDSN            = "DATABASE_DSN"
	KeyBcryptCost             = "BCRYPT_COST"
)

// Load reads path (when not empty), then overlays GUEST_USER_* environment
// variables. Keys in the file are the names above without the prefix, in
// any case. The result is not validated; call Validate before serving.
func Load(path string) (guest.Config, error) {
	v := New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return guest.Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// New returns a Viper instance carrying the defaults and env binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	def := guest.DefaultConfig()
	v.SetDefault(KeyEnabled, def.Enabled)
	v.SetDefault(KeyMaxAge, def.MaxAge.String())
	v.SetDefault(KeyNameGenerator, def.NameGenerator)
	v.SetDefault(KeyGuestModel, def.GuestModel)
	v.SetDefault(KeyMaxNameRetries, def.MaxNameRetries)
	v.SetDefault(KeyRegularSatisfiesGuest, def.RegularSatisfiesGuest)
	v.SetDefault(KeyBlockedRedirect, def.BlockedRedirect)
	v.SetDefault(KeyRequiredUserURL, def.RequiredUserURL)
	v.SetDefault(KeyConvertURL, def.ConvertURL)
	v.SetDefault(KeyConvertRedirectURL, def.ConvertRedirectURL)
	v.SetDefault(KeyConvertPrefillUsername, def.ConvertPrefillUsername)
	v.SetDefault(KeySessionCookie, def.SessionCookie)
	v.SetDefault(KeySessionSecret, def.SessionSecret)
	v.SetDefault(KeySessionTTL, def.SessionTTL.String())
	v.SetDefault(KeySweepSchedule, def.SweepSchedule)
	v.SetDefault(KeyDatabaseDriver, def.DatabaseDriver)
	v.SetDefault(KeyDatabaseDSN, def.DatabaseDSN)
	v.SetDefault(KeyBcryptCost, def.BcryptCost)
	return v
}

// FromViper builds the configuration from v.
func FromViper(v *viper.Viper) (guest.Config, error) {
	maxAge, err := ParseMaxAge(v.GetString(KeyMaxAge))
	if err != nil {
		return guest.Config{}, fmt.Errorf("config: %s: %w", KeyMaxAge, err)
	}

	ttl, err := parseDuration(v.GetString(KeySessionTTL))
	if err != nil {
		return guest.Config{}, fmt.Errorf("config: %s: %w", KeySessionTTL, err)
	}

	return guest.Config{
		Enabled:                v.GetBool(KeyEnabled),
		MaxAge:                 maxAge,
		NameGenerator:          v.GetString(KeyNameGenerator),
		GuestModel:             v.GetString(KeyGuestModel),
		MaxNameRetries:         v.GetInt(KeyMaxNameRetries),
		RegularSatisfiesGuest:  v.GetBool(KeyRegularSatisfiesGuest),
		BlockedRedirect:        v.GetString(KeyBlockedRedirect),
		RequiredUserURL:        v.GetString(KeyRequiredUserURL),
		ConvertURL:             v.GetString(KeyConvertURL),
		ConvertRedirectURL:     v.GetString(KeyConvertRedirectURL),
		ConvertPrefillUsername: v.GetBool(KeyConvertPrefillUsername),
		SessionCookie:          v.GetString(KeySessionCookie),
		SessionSecret:          v.GetString(KeySessionSecret),
		SessionTTL:             ttl,
		SweepSchedule:          v.GetString(KeySweepSchedule),
		DatabaseDriver:         v.GetString(KeyDatabaseDriver),
		DatabaseDSN:            v.GetString(KeyDatabaseDSN),
		BcryptCost:             v.GetInt(KeyBcryptCost),
	}, nil
}

// ParseMaxAge accepts a duration ("336h", "14d"), an integer number of
// seconds, or 0/none/off/null to disable expiry.
func ParseMaxAge(raw string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "0", "none", "off", "null", "false":
		return guest.NoExpiry, nil
	}

	d, err := parseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative max age %q", raw)
	}
	return d, nil
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}

	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}
