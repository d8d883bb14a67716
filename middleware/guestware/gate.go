package guestware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	guest "github.com/goliatone/go-guest"
)

// Policy is the required principal state of a gate.
type Policy int

const (
	PolicyAllowGuest Policy = iota
	PolicyRequireGuest
	PolicyRequireRegular
)

func (p Policy) String() string {
	switch p {
	case PolicyRequireGuest:
		return "require_guest"
	case PolicyRequireRegular:
		return "require_regular"
	default:
		return "allow_guest"
	}
}

// Decision is what a gate does with a request.
type Decision int

const (
	Proceed Decision = iota
	Provision
	Reject
)

func (d Decision) String() string {
	switch d {
	case Provision:
		return "provision"
	case Reject:
		return "reject"
	default:
		return "proceed"
	}
}

// Decide maps a policy and a principal to a decision. It does no I/O.
func Decide(policy Policy, p guest.Principal, settings guest.Config) Decision {
	switch policy {
	case PolicyRequireGuest:
		switch {
		case p.IsGuest():
			return Proceed
		case p.IsRegular():
			if settings.RegularSatisfiesGuest {
				return Proceed
			}
			return Reject
		default:
			if settings.Enabled {
				return Provision
			}
			return Proceed
		}
	case PolicyRequireRegular:
		if p.IsRegular() {
			return Proceed
		}
		return Reject
	default:
		return Proceed
	}
}

// FailureHandler answers a rejected request.
type FailureHandler func(c *fiber.Ctx, policy Policy, p guest.Principal) error

// Gate builds guard middleware sharing one Config.
type Gate struct {
	cfg Config
}

// NewGate returns a Gate over cfg.
func NewGate(config Config) *Gate {
	return &Gate{cfg: config.withDefaults()}
}

// Require guards the next handler with policy. A nil onFail uses the
// default answer of the policy.
func (g *Gate) Require(policy Policy, onFail FailureHandler) fiber.Handler {
	if onFail == nil {
		onFail = g.defaultFailure
	}

	return func(c *fiber.Ctx) error {
		if g.cfg.Filter != nil && g.cfg.Filter(c) {
			return c.Next()
		}

		p, err := principal(c, g.cfg)
		if err != nil {
			return g.cfg.ErrorHandler(c, err)
		}

		switch Decide(policy, p, g.cfg.Settings) {
		case Provision:
			p, err = g.provision(c)
			if err != nil {
				return g.cfg.ErrorHandler(c, err)
			}
			attach(c, g.cfg, p)
			return c.Next()
		case Reject:
			g.cfg.Logger.Info("gate rejected request",
				"policy", policy.String(),
				"principal", p.Kind.String(),
				"user_id", userID(p),
				"path", c.OriginalURL(),
			)
			g.recordDenied(c, policy, p)
			return onFail(c, policy, p)
		default:
			return c.Next()
		}
	}
}

// AllowGuest never blocks.
func (g *Gate) AllowGuest() fiber.Handler {
	return g.Require(PolicyAllowGuest, nil)
}

// RequireGuest provisions a guest for anonymous callers.
func (g *Gate) RequireGuest() fiber.Handler {
	return g.Require(PolicyRequireGuest, nil)
}

// RequireRegular sends everyone but regular users to the login flow.
func (g *Gate) RequireRegular() fiber.Handler {
	return g.Require(PolicyRequireRegular, nil)
}

func (g *Gate) provision(c *fiber.Ctx) (guest.Principal, error) {
	if g.cfg.Provisioner == nil || g.cfg.Sessions == nil {
		return guest.Anonymous(), guest.ErrAccessDenied
	}

	user, err := g.cfg.Provisioner.ProvisionGuest(c.UserContext(), c)
	if err != nil {
		return guest.Anonymous(), err
	}

	if err := g.cfg.Sessions.Login(c, user); err != nil {
		if derr := g.cfg.Provisioner.DeleteGuest(c.UserContext(), user.ID); derr != nil {
			g.cfg.Logger.Error("failed to remove unbound guest", "user_id", user.ID, "error", derr)
		}
		return guest.Anonymous(), err
	}
	return guest.GuestPrincipal(user), nil
}

func (g *Gate) recordDenied(c *fiber.Ctx, policy Policy, p guest.Principal) {
	if g.cfg.Activity == nil {
		return
	}

	event := guest.ActivityEvent{
		EventType:  guest.ActivityEventGuestDenied,
		OccurredAt: time.Now().UTC(),
		Metadata: map[string]any{
			"policy":    policy.String(),
			"principal": p.Kind.String(),
			"path":      utils.CopyString(c.Path()),
		},
	}
	if p.User != nil {
		event.UserID = p.User.ID.String()
		event.Username = p.User.Username
	}

	if err := g.cfg.Activity.Record(c.UserContext(), event); err != nil {
		g.cfg.Logger.Warn("activity sink failed", "event", string(event.EventType), "error", err)
	}
}

func (g *Gate) defaultFailure(c *fiber.Ctx, policy Policy, p guest.Principal) error {
	if policy == PolicyRequireRegular {
		return c.Redirect(loginURL(g.cfg.Settings.RequiredUserURL, c.OriginalURL()), redirectStatus(c))
	}

	if g.cfg.Settings.BlockedRedirect != "" {
		return c.Redirect(g.cfg.Settings.BlockedRedirect, redirectStatus(c))
	}

	return c.Status(http.StatusForbidden).JSON(fiber.Map{
		"error":     guest.ErrAccessDenied.Message,
		"text_code": guest.ErrAccessDenied.TextCode,
	})
}
