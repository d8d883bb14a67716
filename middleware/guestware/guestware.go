// Package guestware provides fiber middleware that resolves the caller into
// a guest.Principal and gates handlers on it.
package guestware

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	guest "github.com/goliatone/go-guest"
)

// DefaultContextKey is the fiber locals key holding the Principal.
const DefaultContextKey = "principal"

// Config wires the middleware to the guest registry and the session layer.
type Config struct {
	// Filter skips the middleware when it returns true.
	Filter      func(*fiber.Ctx) bool
	Sessions    guest.Sessions
	Users       guest.UserFinder
	Provisioner guest.Provisioner
	Settings    guest.Config
	Logger      guest.Logger
	// Activity receives a guest.access.denied event for every rejection.
	Activity guest.ActivitySink
	// ContextKey is the locals key for the Principal.
	ContextKey string
	// TemplateUserKey, when set, also stores the account for templates.
	TemplateUserKey string
	// ErrorHandler answers unexpected failures. Gate rejections do not go
	// through it.
	ErrorHandler func(c *fiber.Ctx, err error) error
}

func (cfg Config) withDefaults() Config {
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.Logger == nil {
		cfg.Logger = guest.NopLogger()
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
	if cfg.Settings.RequiredUserURL == "" {
		cfg.Settings.RequiredUserURL = guest.DefaultConfig().RequiredUserURL
	}
	return cfg
}

// New returns the loader that attaches the Principal to every request.
func New(config Config) fiber.Handler {
	cfg := config.withDefaults()
	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		p, err := load(c, cfg)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}
		attach(c, cfg, p)
		return c.Next()
	}
}

// PrincipalFrom returns the Principal stored by the loader or a gate.
func PrincipalFrom(c *fiber.Ctx, key ...string) (guest.Principal, bool) {
	k := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	p, ok := c.Locals(k).(guest.Principal)
	return p, ok
}

func principal(c *fiber.Ctx, cfg Config) (guest.Principal, error) {
	if p, ok := PrincipalFrom(c, cfg.ContextKey); ok {
		return p, nil
	}

	p, err := load(c, cfg)
	if err != nil {
		return guest.Anonymous(), err
	}
	attach(c, cfg, p)
	return p, nil
}

func load(c *fiber.Ctx, cfg Config) (guest.Principal, error) {
	if cfg.Sessions == nil || cfg.Users == nil {
		return guest.Anonymous(), nil
	}

	id, err := cfg.Sessions.UserID(c)
	if err != nil {
		if !errors.Is(err, guest.ErrSessionMissing) {
			cfg.Logger.Debug("dropping unusable session", "error", err)
			cfg.Sessions.Logout(c)
		}
		return guest.Anonymous(), nil
	}

	user, err := cfg.Users.GetByUserID(c.UserContext(), id)
	if err != nil {
		if guest.IsNotFound(err) {
			// the account is gone, for example swept
			cfg.Logger.Info("session account not found, clearing session", "user_id", id)
			cfg.Sessions.Logout(c)
			return guest.Anonymous(), nil
		}
		return guest.Anonymous(), err
	}

	var lookup guest.GuestLookup
	if cfg.Provisioner != nil {
		lookup = cfg.Provisioner
	}
	return guest.ResolvePrincipal(c.UserContext(), user, lookup)
}

func attach(c *fiber.Ctx, cfg Config, p guest.Principal) {
	c.Locals(cfg.ContextKey, p)
	if cfg.TemplateUserKey != "" && p.User != nil {
		c.Locals(cfg.TemplateUserKey, p.User)
	}
	c.SetUserContext(guest.WithPrincipal(c.UserContext(), p))
}

func defaultErrorHandler(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "an unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	code := richErr.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}
	return c.Status(code).JSON(fiber.Map{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}

// redirectStatus is 302 for GET and 303 otherwise.
func redirectStatus(c *fiber.Ctx) int {
	if c.Method() == fiber.MethodGet {
		return http.StatusFound
	}
	return http.StatusSeeOther
}

func loginURL(base, next string) string {
	if next == "" {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("next", next)
	u.RawQuery = q.Encode()
	return u.String()
}

func userID(p guest.Principal) string {
	if p.User == nil {
		return uuid.Nil.String()
	}
	return p.User.ID.String()
}
