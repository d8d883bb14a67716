package guest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type convertFixture struct {
	registry *Registry[*Guest]
	sessions *CookieSessions
	app      *fiber.App
}

func newConvertFixture(t *testing.T, cfg Config, principal func() Principal, opts ...ConvertControllerOption) *convertFixture {
	t.Helper()

	db := newTestDB(t)
	registry := newTestRegistry(t, db, cfg)
	sessions := newTestSessions(t, cfg)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(WithPrincipal(c.UserContext(), principal()))
		return c.Next()
	})

	base := []ConvertControllerOption{
		WithConverter(registry),
		WithConvertSessions(sessions),
		WithConvertSettings(cfg),
		WithConvertLogger(NopLogger()),
	}
	RegisterConvertRoutes(app, append(base, opts...)...)

	return &convertFixture{registry: registry, sessions: sessions, app: app}
}

func postForm(t *testing.T, app *fiber.App, target string, values url.Values) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func credentialsForm(username, p1, p2 string) url.Values {
	return url.Values{
		FieldUsername:  {username},
		FieldPassword1: {p1},
		FieldPassword2: {p2},
	}
}

func TestConvertPostConvertsAndLogsIn(t *testing.T) {
	var current *User
	f := newConvertFixture(t, testConfig(), func() Principal { return GuestPrincipal(current) })
	ctx := context.Background()

	guestUser, _, err := f.registry.CreateGuest(ctx, nil)
	require.NoError(t, err)
	current = guestUser

	resp := postForm(t, f.app, "/convert", credentialsForm("alice", "Str0ngPW!", "Str0ngPW!"))
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))

	cookie := sessionCookie(t, resp, f.sessions.CookieName())
	id, err := f.sessions.Parse(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, guestUser.ID, id)

	stored, err := f.registry.Users().GetByUserID(ctx, guestUser.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Username)
	assert.False(t, stored.IsGuest)

	isGuest, err := f.registry.IsGuest(ctx, guestUser.ID)
	require.NoError(t, err)
	assert.False(t, isGuest)
}

func TestConvertPostRejectsInvalidForm(t *testing.T) {
	var current *User
	f := newConvertFixture(t, testConfig(), func() Principal { return GuestPrincipal(current) })
	ctx := context.Background()

	guestUser, _, err := f.registry.CreateGuest(ctx, nil)
	require.NoError(t, err)
	current = guestUser
	createRegularUser(t, f.registry, "taken", "")

	tests := []struct {
		name  string
		form  url.Values
		field string
		msg   string
	}{
		{"mismatch", credentialsForm("alice", "Str0ngPW!", "Str0ngPW?"), FieldPassword2, MessagePasswordMismatch},
		{"taken", credentialsForm("taken", "Str0ngPW!", "Str0ngPW!"), FieldUsername, MessageUsernameTaken},
		{"missing", credentialsForm("", "Str0ngPW!", "Str0ngPW!"), FieldUsername, MessageRequired},
		{"too long", credentialsForm("alice", longPassword, longPassword), FieldPassword2, fmt.Sprintf(MessagePasswordTooLong, MaxPasswordBytes)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postForm(t, f.app, "/convert", tt.form)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

			var view ConvertFormView
			require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &view))
			assert.Contains(t, view.Errors[tt.field], tt.msg)
			assert.Equal(t, "/convert", view.Action)
		})
	}

	stillGuest, err := f.registry.IsGuest(ctx, guestUser.ID)
	require.NoError(t, err)
	assert.True(t, stillGuest)
}

func TestConvertPostCustomFormValidator(t *testing.T) {
	var current *User
	noAdmins := WithFormValidator(func(_ context.Context, form *UserCreationForm) {
		if strings.HasPrefix(form.Username, "admin") {
			form.AddError(FieldUsername, "Username cannot start with 'admin'.")
		}
	})
	f := newConvertFixture(t, testConfig(), func() Principal { return GuestPrincipal(current) },
		WithConvertFormOptions(noAdmins))

	guestUser, _, err := f.registry.CreateGuest(context.Background(), nil)
	require.NoError(t, err)
	current = guestUser

	resp := postForm(t, f.app, "/convert", credentialsForm("admin1", "Str0ngPW!", "Str0ngPW!"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "cannot start with")
}

func TestConvertRedirectsNonGuests(t *testing.T) {
	regular := &User{Username: "bob"}
	f := newConvertFixture(t, testConfig(), func() Principal { return RegularPrincipal(regular) })

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/convert", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))

	resp = postForm(t, f.app, "/convert", credentialsForm("bob2", "Str0ngPW!", "Str0ngPW!"))
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestConvertShowPrefill(t *testing.T) {
	guestUser := &User{Username: "guest_abc", IsGuest: true}

	cfg := testConfig()
	f := newConvertFixture(t, cfg, func() Principal { return GuestPrincipal(guestUser) })
	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/convert", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var view ConvertFormView
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &view))
	assert.Empty(t, view.Username)

	cfg.ConvertPrefillUsername = true
	f = newConvertFixture(t, cfg, func() Principal { return GuestPrincipal(guestUser) })
	resp, err = f.app.Test(httptest.NewRequest(http.MethodGet, "/convert", nil), -1)
	require.NoError(t, err)

	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &view))
	assert.Equal(t, "guest_abc", view.Username)
}

func TestNewConvertControllerPanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() { NewConvertController() })
	assert.Panics(t, func() {
		NewConvertController(WithConverter(&Registry[*Guest]{}))
	})
}
