package guest

import (
	"context"
)

// PrincipalKind is the variant of a Principal.
type PrincipalKind int

const (
	PrincipalAnonymous PrincipalKind = iota
	PrincipalGuest
	PrincipalRegular
)

func (k PrincipalKind) String() string {
	switch k {
	case PrincipalGuest:
		return "guest"
	case PrincipalRegular:
		return "regular"
	default:
		return "anonymous"
	}
}

// Principal is the identity attached to a request. User is nil for
// anonymous principals.
type Principal struct {
	Kind PrincipalKind
	User *User
}

// Anonymous returns the principal of a caller without a session.
func Anonymous() Principal {
	return Principal{Kind: PrincipalAnonymous}
}

// GuestPrincipal wraps a guest account.
func GuestPrincipal(user *User) Principal {
	return Principal{Kind: PrincipalGuest, User: user}
}

// RegularPrincipal wraps a permanent account.
func RegularPrincipal(user *User) Principal {
	return Principal{Kind: PrincipalRegular, User: user}
}

func (p Principal) IsAnonymous() bool { return p.Kind == PrincipalAnonymous || p.User == nil }
func (p Principal) IsGuest() bool     { return p.Kind == PrincipalGuest && p.User != nil }
func (p Principal) IsRegular() bool   { return p.Kind == PrincipalRegular && p.User != nil }

// IsAuthenticated is true for guests and regular users.
func (p Principal) IsAuthenticated() bool {
	return !p.IsAnonymous()
}

func (p Principal) String() string {
	if p.User == nil {
		return p.Kind.String()
	}
	return p.Kind.String() + ":" + p.User.Username
}

// ResolvePrincipal classifies user. The guest record decides, so an
// account whose record is gone is regular even if the flag lags behind.
func ResolvePrincipal(ctx context.Context, user *User, lookup GuestLookup) (Principal, error) {
	if user == nil {
		return Anonymous(), nil
	}

	if lookup == nil {
		if user.IsGuest {
			return GuestPrincipal(user), nil
		}
		return RegularPrincipal(user), nil
	}

	isGuest, err := lookup.IsGuest(ctx, user.ID)
	if err != nil {
		return Anonymous(), err
	}
	if isGuest {
		return GuestPrincipal(user), nil
	}
	return RegularPrincipal(user), nil
}
