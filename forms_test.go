package guest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newForm(users UserFinder, username, p1, p2 string, opts ...FormOption) *UserCreationForm {
	form := NewUserCreationForm(users, opts...)
	form.Username = username
	form.Password1 = p1
	form.Password2 = p2
	return form
}

func TestUserCreationFormValid(t *testing.T) {
	form := newForm(nil, "alice", "Str0ngPW!", "Str0ngPW!")
	assert.True(t, form.IsValid(context.Background()))
	assert.Empty(t, form.Errors())
	assert.True(t, form.Validated())
}

func TestUserCreationFormEmpty(t *testing.T) {
	form := newForm(nil, "", "", "")
	require.False(t, form.IsValid(context.Background()))

	errs := form.Errors()
	assert.Equal(t, []string{FieldPassword1, FieldPassword2, FieldUsername}, errs.Fields())
	for _, field := range errs.Fields() {
		assert.Equal(t, []string{MessageRequired}, errs[field], field)
	}
}

func TestUserCreationFormPasswordMismatch(t *testing.T) {
	form := newForm(nil, "alice", "Str0ngPW!", "Str0ngPW?")
	require.False(t, form.IsValid(context.Background()))
	assert.Equal(t, []string{MessagePasswordMismatch}, form.Errors()[FieldPassword2])
	assert.False(t, form.Errors().Has(FieldUsername))
}

func TestUserCreationFormWeakPasswords(t *testing.T) {
	cases := []struct {
		name     string
		username string
		password string
		message  string
	}{
		{"short", "alice", "aB3!", "too short"},
		{"numeric", "alice", "80613572", MessagePasswordNumeric},
		{"common", "alice", "password123", MessagePasswordCommon},
		{"similar", "alice", "alice2024!", "too similar to the username"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := newForm(nil, tc.username, tc.password, tc.password)
			require.False(t, form.IsValid(context.Background()))

			msgs := form.Errors()[FieldPassword2]
			require.NotEmpty(t, msgs)
			assert.Contains(t, strings.Join(msgs, " "), tc.message)
			assert.False(t, form.Errors().Has(FieldUsername))
		})
	}
}

// longPassword is 84 bytes, past what bcrypt hashes.
var longPassword = strings.Repeat("Zq7!", 21)

func TestUserCreationFormRejectsPasswordsBcryptCannotHash(t *testing.T) {
	want := fmt.Sprintf(MessagePasswordTooLong, MaxPasswordBytes)

	form := newForm(nil, "alice", longPassword, longPassword)
	require.False(t, form.IsValid(context.Background()))
	assert.Contains(t, form.Errors()[FieldPassword2], want)

	form = newForm(nil, "alice", longPassword, longPassword, WithPasswordValidators())
	require.False(t, form.IsValid(context.Background()))
	assert.Equal(t, []string{want}, form.Errors()[FieldPassword2])

	exact := strings.Repeat("Zq7!", MaxPasswordBytes/4)
	form = newForm(nil, "alice", exact, exact)
	assert.True(t, form.IsValid(context.Background()), form.Errors())
}

func TestUserCreationFormUsernameRules(t *testing.T) {
	form := newForm(nil, "bad name!", "Str0ngPW!", "Str0ngPW!")
	require.False(t, form.IsValid(context.Background()))
	assert.Equal(t, []string{MessageUsernameInvalid}, form.Errors()[FieldUsername])

	form = newForm(nil, strings.Repeat("a", MaxUsernameLength+1), "Str0ngPW!", "Str0ngPW!")
	require.False(t, form.IsValid(context.Background()))
	assert.Equal(t, []string{MessageUsernameTooLong}, form.Errors()[FieldUsername])

	form = newForm(nil, "first.last+tag@host-1", "Str0ngPW!", "Str0ngPW!")
	assert.True(t, form.IsValid(context.Background()), form.Errors())
}

func TestUserCreationFormRejectsTakenUsername(t *testing.T) {
	db := newTestDB(t)
	registry := newTestRegistry(t, db, testConfig())
	ctx := context.Background()

	createRegularUser(t, registry, "judy", "")

	form := newForm(registry.Users(), "judy", "Str0ngPW!", "Str0ngPW!")
	require.False(t, form.IsValid(ctx))
	assert.Equal(t, []string{MessageUsernameTaken}, form.Errors()[FieldUsername])

	guestUser, _, err := registry.CreateGuest(ctx, nil)
	require.NoError(t, err)

	// keeping the guest name is allowed
	form = newForm(registry.Users(), guestUser.Username, "Str0ngPW!", "Str0ngPW!", WithFormInstance(guestUser))
	assert.True(t, form.IsValid(ctx), form.Errors())
}

func TestUserCreationFormCredentials(t *testing.T) {
	form := newForm(nil, "alice", "Str0ngPW!", "Str0ngPW!")

	_, err := form.Credentials()
	assert.ErrorIs(t, err, ErrFormNotValid)

	require.True(t, form.IsValid(context.Background()))
	creds, err := form.Credentials()
	require.NoError(t, err)
	assert.Equal(t, Credentials{Identifier: "alice", Secret: "Str0ngPW!"}, creds)
}

func TestUserCreationFormCustomValidator(t *testing.T) {
	noAdmins := WithFormValidator(func(_ context.Context, form *UserCreationForm) {
		if strings.HasPrefix(strings.ToLower(form.Username), "admin") {
			form.AddError(FieldUsername, "Username cannot start with 'admin'.")
		}
	})

	form := newForm(nil, "administrator", "Str0ngPW!", "Str0ngPW!", noAdmins)
	require.False(t, form.IsValid(context.Background()))
	assert.Equal(t, []string{"Username cannot start with 'admin'."}, form.Errors()[FieldUsername])

	form = newForm(nil, "kate", "Str0ngPW!", "Str0ngPW!", noAdmins)
	assert.True(t, form.IsValid(context.Background()))
}

func TestUserCreationFormCustomPasswordValidators(t *testing.T) {
	form := newForm(nil, "leo", "1234", "1234", WithPasswordValidators())
	assert.True(t, form.IsValid(context.Background()), form.Errors())
}

func TestUserCreationFormSimilarityUsesProfile(t *testing.T) {
	profile := &User{FirstName: "Montgomery", Email: "mont@example.com"}
	form := newForm(nil, "mike", "montgomery7", "montgomery7", WithFormInstance(profile))
	require.False(t, form.IsValid(context.Background()))
	assert.Contains(t, strings.Join(form.Errors()[FieldPassword2], " "), "first name")
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, similarity("alice", "alice"), 0.0001)
	assert.InDelta(t, 0.0, similarity("xyz", "abc"), 0.0001)
	assert.InDelta(t, 0.8, similarity("alice", "alicexyzab")*1.2, 0.0001)
	assert.Equal(t, 1.0, similarity("", ""))
}
