package guest

import (
	"sync"

	"github.com/flosch/pongo2/v6"
)

var TemplateUserKey = "current_user"

// FilterIsGuestUser is the name of the template filter.
const FilterIsGuestUser = "is_guest_user"

// TemplateHelpers returns helper functions for global template data.
//
// Usage:
//
//	tpl.ExecuteWriter(pongo2.Context{
//	    "helpers": guest.TemplateHelpers(),
//	    "current_user": user,
//	}, w)
//
// In templates, with the filter registered:
//
//	{% if current_user|is_guest_user %}<a href="/convert">Save your account</a>{% endif %}
func TemplateHelpers() map[string]any {
	return map[string]any{
		FilterIsGuestUser:  IsGuestUser,
		"is_authenticated": isAuthenticated,
	}
}

// TemplateHelpersWithPrincipal sets p as current_user.
func TemplateHelpersWithPrincipal(p Principal) map[string]any {
	helpers := TemplateHelpers()
	if p.User != nil {
		helpers[TemplateUserKey] = p.User
	}
	helpers["principal"] = p
	return helpers
}

// IsGuestUser reports whether v is a guest account or guest principal.
// Anything else, nil included, is not a guest.
func IsGuestUser(v any) bool {
	switch u := v.(type) {
	case Principal:
		return u.IsGuest()
	case *Principal:
		return u != nil && u.IsGuest()
	case *User:
		return u != nil && u.IsGuest
	case User:
		return u.IsGuest
	default:
		return false
	}
}

func isAuthenticated(v any) bool {
	switch u := v.(type) {
	case Principal:
		return u.IsAuthenticated()
	case *Principal:
		return u != nil && u.IsAuthenticated()
	case *User:
		return u != nil
	default:
		return false
	}
}

var registerFiltersOnce sync.Once

// RegisterTemplateFilters registers is_guest_user with pongo2. It is safe
// to call more than once.
func RegisterTemplateFilters() error {
	var err error
	registerFiltersOnce.Do(func() {
		if pongo2.FilterExists(FilterIsGuestUser) {
			return
		}
		err = pongo2.RegisterFilter(FilterIsGuestUser, isGuestUserFilter)
	})
	return err
}

func isGuestUserFilter(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	if in == nil || in.IsNil() {
		return pongo2.AsValue(false), nil
	}
	return pongo2.AsValue(IsGuestUser(in.Interface())), nil
}
