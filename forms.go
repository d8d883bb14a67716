package guest

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	FieldUsername  = "username"
	FieldPassword1 = "password1"
	FieldPassword2 = "password2"
)

const (
	MessageRequired         = "This field is required."
	MessageUsernameTaken    = "A user with that username already exists."
	MessageUsernameInvalid  = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	MessageUsernameTooLong  = "Ensure this value has at most 150 characters."
	MessagePasswordMismatch = "The two password fields didn't match."
	MessagePasswordShort    = "This password is too short. It must contain at least %d characters."
	MessagePasswordNumeric  = "This password is entirely numeric."
	MessagePasswordCommon   = "This password is too common."
	MessagePasswordSimilar  = "The password is too similar to the %s."
	MessagePasswordTooLong  = "This password is too long. It must contain at most %d bytes."
)

// MinPasswordLength is enforced by MinimumLengthValidator.
const MinPasswordLength = 8

// MaxPasswordBytes is the longest password bcrypt accepts. It is checked
// even when the password validators are replaced.
const MaxPasswordBytes = 72

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// ConversionForm is the credential form Convert consumes.
type ConversionForm interface {
	// Validated reports whether the last IsValid call succeeded.
	Validated() bool
	Save(ctx context.Context, tx bun.IDB, users Users, hasher PasswordHasher, user *User) error
	Credentials() (Credentials, error)
	AddError(field, message string)
}

// FormErrors maps a field name to its messages.
type FormErrors map[string][]string

// Has reports whether field has an error.
func (e FormErrors) Has(field string) bool {
	return len(e[field]) > 0
}

// Fields returns the names of fields with errors, sorted.
func (e FormErrors) Fields() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FormValidator is a custom hook run after the built-in checks. It reports
// problems through form.AddError.
type FormValidator func(ctx context.Context, form *UserCreationForm)

// PasswordValidator rejects weak passwords. user is the account the
// password is for and may be nil.
type PasswordValidator func(password string, user *User) error

// FormOption customizes a UserCreationForm.
type FormOption func(*UserCreationForm)

// WithFormValidator appends a custom validation hook.
func WithFormValidator(v FormValidator) FormOption {
	return func(f *UserCreationForm) {
		if v != nil {
			f.validators = append(f.validators, v)
		}
	}
}

// WithPasswordValidators replaces the default password validators.
func WithPasswordValidators(validators ...PasswordValidator) FormOption {
	return func(f *UserCreationForm) {
		f.passwords = validators
	}
}

// WithFormInstance binds the account being converted. Its own username is
// not reported as taken.
func WithFormInstance(user *User) FormOption {
	return func(f *UserCreationForm) {
		f.instance = user
	}
}

// UserCreationForm collects the permanent username and password of a
// conversion.
type UserCreationForm struct {
	Username  string `form:"username" json:"username"`
	Password1 string `form:"password1" json:"password1"`
	Password2 string `form:"password2" json:"password2"`

	users      UserFinder
	instance   *User
	validators []FormValidator
	passwords  []PasswordValidator
	errs       FormErrors
	validated  bool
}

var _ ConversionForm = (*UserCreationForm)(nil)

// NewUserCreationForm returns an empty form. users is used to reject
// usernames already taken and may be nil.
func NewUserCreationForm(users UserFinder, opts ...FormOption) *UserCreationForm {
	f := &UserCreationForm{
		users:     users,
		passwords: DefaultPasswordValidators(),
		errs:      FormErrors{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// IsValid runs every check and records field errors.
func (f *UserCreationForm) IsValid(ctx context.Context) bool {
	f.errs = FormErrors{}
	f.validated = false
	f.Username = strings.TrimSpace(f.Username)

	err := validation.ValidateStruct(f,
		validation.Field(&f.Username,
			validation.Required.Error(MessageRequired),
			validation.Length(0, MaxUsernameLength).Error(MessageUsernameTooLong),
			validation.Match(usernamePattern).Error(MessageUsernameInvalid),
		),
		validation.Field(&f.Password1, validation.Required.Error(MessageRequired)),
		validation.Field(&f.Password2, validation.Required.Error(MessageRequired)),
	)

	var fieldErrs validation.Errors
	if stderrors.As(err, &fieldErrs) {
		for field, ferr := range fieldErrs {
			f.AddError(field, ferr.Error())
		}
	} else if err != nil {
		f.AddError(FieldUsername, err.Error())
	}

	if !f.errs.Has(FieldUsername) {
		f.checkUsernameAvailable(ctx)
	}

	if !f.errs.Has(FieldPassword1) && !f.errs.Has(FieldPassword2) {
		if f.Password1 != f.Password2 {
			f.AddError(FieldPassword2, MessagePasswordMismatch)
		} else {
			f.checkPassword()
		}
	}

	for _, v := range f.validators {
		v(ctx, f)
	}

	f.validated = len(f.errs) == 0
	return f.validated
}

func (f *UserCreationForm) checkUsernameAvailable(ctx context.Context) {
	if f.users == nil {
		return
	}

	existing, err := f.users.GetByUsername(ctx, f.Username)
	if err != nil {
		if !IsNotFound(err) {
			f.AddError(FieldUsername, "Unable to verify username.")
		}
		return
	}

	if f.instance != nil && existing.ID == f.instance.ID {
		return
	}
	f.AddError(FieldUsername, MessageUsernameTaken)
}

func (f *UserCreationForm) checkPassword() {
	subject := &User{Username: f.Username}
	if f.instance != nil {
		copied := *f.instance
		copied.Username = f.Username
		subject = &copied
	}

	for _, v := range f.passwords {
		if err := v(f.Password2, subject); err != nil {
			f.AddError(FieldPassword2, err.Error())
		}
	}

	if len(f.Password2) > MaxPasswordBytes {
		f.AddError(FieldPassword2, fmt.Sprintf(MessagePasswordTooLong, MaxPasswordBytes))
	}
}

// Validated reports whether the last IsValid call succeeded.
func (f *UserCreationForm) Validated() bool {
	return f.validated
}

// Errors returns the field errors of the last validation.
func (f *UserCreationForm) Errors() FormErrors {
	return f.errs
}

// AddError records message against field and invalidates the form.
func (f *UserCreationForm) AddError(field, message string) {
	if f.errs == nil {
		f.errs = FormErrors{}
	}
	f.errs[field] = append(f.errs[field], message)
	f.validated = false
}

// Credentials returns the identifier and secret used to log in after
// conversion. It fails until the form validated.
func (f *UserCreationForm) Credentials() (Credentials, error) {
	if !f.validated {
		return Credentials{}, ErrFormNotValid
	}
	return Credentials{Identifier: f.Username, Secret: f.Password1}, nil
}

// Save writes the new username and password onto user, keeping its id and
// every other field.
func (f *UserCreationForm) Save(ctx context.Context, tx bun.IDB, users Users, hasher PasswordHasher, user *User) error {
	if !f.validated {
		return ErrFormNotValid
	}
	if user == nil || user.ID == uuid.Nil {
		return ErrIdentityNotFound
	}

	hash, err := hasher.HashPassword(f.Password1)
	if err != nil {
		return err
	}

	user.Username = f.Username
	user.PasswordHash = hash
	return users.UpdateCredentialsTx(ctx, tx, user)
}

// DefaultPasswordValidators returns the stock password checks.
func DefaultPasswordValidators() []PasswordValidator {
	return []PasswordValidator{
		UserAttributeSimilarityValidator(0.7),
		MinimumLengthValidator(MinPasswordLength),
		CommonPasswordValidator(),
		NumericPasswordValidator(),
	}
}

// MinimumLengthValidator rejects passwords shorter than n characters.
func MinimumLengthValidator(n int) PasswordValidator {
	return func(password string, _ *User) error {
		if len([]rune(password)) < n {
			return fmt.Errorf(MessagePasswordShort, n)
		}
		return nil
	}
}

// NumericPasswordValidator rejects passwords made only of digits.
func NumericPasswordValidator() PasswordValidator {
	return func(password string, _ *User) error {
		if password != "" && is.Digit.Validate(password) == nil {
			return stderrors.New(MessagePasswordNumeric)
		}
		return nil
	}
}

var commonPasswords = map[string]struct{}{}

func init() {
	for _, p := range strings.Fields(commonPasswordList) {
		commonPasswords[p] = struct{}{}
	}
}

// CommonPasswordValidator rejects well known passwords, case insensitively.
func CommonPasswordValidator() PasswordValidator {
	return func(password string, _ *User) error {
		if _, ok := commonPasswords[strings.ToLower(strings.TrimSpace(password))]; ok {
			return stderrors.New(MessagePasswordCommon)
		}
		return nil
	}
}

// UserAttributeSimilarityValidator rejects passwords too close to the
// username, names or email of user.
func UserAttributeSimilarityValidator(maxSimilarity float64) PasswordValidator {
	return func(password string, user *User) error {
		if user == nil {
			return nil
		}

		attrs := []struct {
			label string
			value string
		}{
			{"username", user.Username},
			{"first name", user.FirstName},
			{"last name", user.LastName},
			{"email address", user.Email},
		}

		pw := strings.ToLower(password)
		for _, attr := range attrs {
			value := strings.ToLower(attr.value)
			if value == "" {
				continue
			}

			parts := append(strings.FieldsFunc(value, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
			}), value)
			for _, part := range parts {
				if len(part) < 3 {
					continue
				}
				if strings.Contains(pw, part) || similarity(pw, part) >= maxSimilarity {
					return fmt.Errorf(MessagePasswordSimilar, attr.label)
				}
			}
		}
		return nil
	}
}

// similarity is 2*LCS/(len(a)+len(b)) over runes.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra)+len(rb) == 0 {
		return 1
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return 2 * float64(prev[len(rb)]) / float64(len(ra)+len(rb))
}

const commonPasswordList = `
123456 123456789 12345678 12345 1234567 1234567890 111111 000000 123123
password password1 password123 passw0rd qwerty qwerty123 qwertyuiop abc123
iloveyou admin admin123 welcome welcome1 letmein monkey dragon sunshine
princess football baseball master shadow superman michael charlie
trustno1 whatever freedom zaq12wsx 1q2w3e4r 1qaz2wsx asdfghjk asdfgh
starwars hello123 login secret changeme guest guest123 computer internet
`
