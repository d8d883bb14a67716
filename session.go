package guest

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	TextCodeSessionMissing = "SESSION_MISSING"
	TextCodeSessionInvalid = "SESSION_INVALID"
	TextCodeSessionExpired = "SESSION_EXPIRED"
	TextCodeSessionNoKey   = "SESSION_KEY_MISSING"
)

// ErrSessionMissing is returned when the request carries no session cookie.
var ErrSessionMissing = errors.New("no session", errors.CategoryAuth).
	WithTextCode(TextCodeSessionMissing).
	WithCode(errors.CodeUnauthorized)

// ErrSessionInvalid is returned when the session token cannot be verified.
var ErrSessionInvalid = errors.New("invalid session", errors.CategoryAuth).
	WithTextCode(TextCodeSessionInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrSessionExpired is returned when the session token is past its expiry.
var ErrSessionExpired = errors.New("session expired", errors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrSessionKeyMissing is returned when sessions are built without a
// signing secret.
var ErrSessionKeyMissing = errors.New("session secret must be set", errors.CategoryBadInput).
	WithTextCode(TextCodeSessionNoKey).
	WithCode(errors.CodeInternal)

// Sessions binds requests to accounts. Sessions are keyed by account id so
// a conversion keeps the caller logged in.
type Sessions interface {
	Login(c *fiber.Ctx, user *User) error
	Logout(c *fiber.Ctx)
	UserID(c *fiber.Ctx) (uuid.UUID, error)
}

// SessionClaims is the payload of the session cookie.
type SessionClaims struct {
	jwt.RegisteredClaims
	Guest bool `json:"guest,omitempty"`
}

// CookieSessions stores an HS256 signed token in a cookie.
type CookieSessions struct {
	name   string
	key    []byte
	ttl    time.Duration
	secure bool
	issuer string
	now    func() time.Time
	logger Logger
}

var _ Sessions = (*CookieSessions)(nil)

// SessionOption customizes CookieSessions.
type SessionOption func(*CookieSessions)

// WithSecureCookie marks the cookie Secure.
func WithSecureCookie(secure bool) SessionOption {
	return func(s *CookieSessions) {
		s.secure = secure
	}
}

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(s *CookieSessions) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger Logger) SessionOption {
	return func(s *CookieSessions) {
		s.logger = logger
	}
}

// NewCookieSessions builds sessions from the cookie settings of cfg. An
// empty SessionSecret is rejected with ErrSessionKeyMissing.
func NewCookieSessions(cfg Config, opts ...SessionOption) (*CookieSessions, error) {
	if cfg.SessionSecret == "" {
		return nil, ErrSessionKeyMissing
	}

	s := &CookieSessions{
		name:   cfg.SessionCookie,
		key:    []byte(cfg.SessionSecret),
		ttl:    cfg.SessionTTL,
		issuer: "go-guest",
		now:    time.Now,
	}
	if s.name == "" {
		s.name = DefaultConfig().SessionCookie
	}
	if s.ttl <= 0 {
		s.ttl = DefaultConfig().SessionTTL
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = normalizeLogger(s.logger)
	return s, nil
}

// CookieName returns the name of the session cookie.
func (s *CookieSessions) CookieName() string {
	return s.name
}

// Issue returns a signed token for user.
func (s *CookieSessions) Issue(user *User) (string, time.Time, error) {
	if user == nil || user.ID == uuid.Nil {
		return "", time.Time{}, ErrIdentityNotFound
	}

	now := s.now()
	expires := now.Add(s.ttl)
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		Guest: user.IsGuest,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "failed to sign session")
	}
	return signed, expires, nil
}

// Login establishes a session for user on the response.
func (s *CookieSessions) Login(c *fiber.Ctx, user *User) error {
	token, expires, err := s.Issue(user)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     s.name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	// Later reads in this request see the new session.
	c.Request().Header.SetCookie(s.name, token)
	return nil
}

// Logout clears the session cookie.
func (s *CookieSessions) Logout(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Request().Header.DelCookie(s.name)
}

// UserID returns the account id of the current session.
func (s *CookieSessions) UserID(c *fiber.Ctx) (uuid.UUID, error) {
	raw := c.Cookies(s.name)
	if raw == "" {
		return uuid.Nil, ErrSessionMissing
	}
	return s.Parse(raw)
}

// Parse verifies token and returns its account id.
func (s *CookieSessions) Parse(token string) (uuid.UUID, error) {
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, ErrSessionExpired
		}
		s.logger.Debug("session token rejected", "error", err)
		return uuid.Nil, ErrSessionInvalid
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, ErrSessionInvalid
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrSessionInvalid
	}
	return id, nil
}
