package guest

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
)

// Converter performs the guest to regular transition.
type Converter interface {
	Convert(ctx context.Context, form ConversionForm, user *User) (*User, error)
	Users() Users
	Hasher() PasswordHasher
}

var _ Converter = (*Registry[*Guest])(nil)

// RegisterConvertRoutes mounts the conversion endpoints on app.
func RegisterConvertRoutes(app fiber.Router, opts ...ConvertControllerOption) *ConvertController {
	controller := NewConvertController(opts...)

	app.Get(controller.Settings.ConvertURL, controller.ConvertShow).Name("guest-convert.get")
	app.Post(controller.Settings.ConvertURL, controller.ConvertPost).Name("guest-convert.post")

	return controller
}

// ConvertController serves the conversion form.
type ConvertController struct {
	Logger       Logger
	Settings     Config
	Converter    Converter
	Backend      Backend
	Sessions     Sessions
	FormOptions  []FormOption
	ErrorHandler func(c *fiber.Ctx, err error) error
}

type ConvertControllerOption func(*ConvertController) *ConvertController

// WithConverter sets the registry used to convert.
func WithConverter(conv Converter) ConvertControllerOption {
	return func(c *ConvertController) *ConvertController {
		c.Converter = conv
		return c
	}
}

// WithConvertSettings sets the URLs and prefill behavior.
func WithConvertSettings(cfg Config) ConvertControllerOption {
	return func(c *ConvertController) *ConvertController {
		c.Settings = cfg
		return c
	}
}

// WithConvertBackend sets the backend chain used to log in after conversion.
func WithConvertBackend(b Backend) ConvertControllerOption {
	return func(c *ConvertController) *ConvertController {
		c.Backend = b
		return c
	}
}

// WithConvertSessions sets the session layer.
func WithConvertSessions(s Sessions) ConvertControllerOption {
	return func(c *ConvertController) *ConvertController {
		c.Sessions = s
		return c
	}
}

// WithConvertFormOptions passes options to every conversion form.
func WithConvertFormOptions(opts ...FormOption) ConvertControllerOption {
	return func(c *ConvertController) *ConvertController {
		c.FormOptions = append(c.FormOptions, opts...)
		return c
	}
}

// WithConvertLogger sets the logger.
func WithConvertLogger(l Logger) ConvertControllerOption {
	return func(c *ConvertController) *ConvertController {
		c.Logger = l
		return c
	}
}

// NewConvertController builds the controller. It panics without a
// Converter or Sessions.
func NewConvertController(opts ...ConvertControllerOption) *ConvertController {
	c := &ConvertController{
		Logger:       defLogger{},
		Settings:     DefaultConfig(),
		ErrorHandler: defaultErrHandler,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Converter == nil {
		panic("Missing Converter in convert controller...")
	}

	if c.Sessions == nil {
		panic("Missing Sessions in convert controller...")
	}

	if c.Backend == nil {
		c.Backend = NewPasswordBackend(c.Converter.Users(), c.Converter.Hasher())
	}

	if c.Settings.ConvertURL == "" {
		c.Settings.ConvertURL = DefaultConfig().ConvertURL
	}

	if c.Settings.ConvertRedirectURL == "" {
		c.Settings.ConvertRedirectURL = DefaultConfig().ConvertRedirectURL
	}

	c.Logger = normalizeLogger(c.Logger)

	return c
}

// ConvertFormView is the payload of the form endpoint.
type ConvertFormView struct {
	Username string     `json:"username"`
	Errors   FormErrors `json:"errors,omitempty"`
	Action   string     `json:"action"`
}

// ConvertShow returns the empty form, prefilled with the guest name when
// configured.
func (a *ConvertController) ConvertShow(c *fiber.Ctx) error {
	p := PrincipalFromContext(c.UserContext())
	if !p.IsGuest() {
		return c.Redirect(a.Settings.ConvertRedirectURL, redirectStatus(c))
	}

	view := ConvertFormView{Action: a.Settings.ConvertURL}
	if a.Settings.ConvertPrefillUsername {
		view.Username = p.User.Username
	}
	return c.JSON(view)
}

// ConvertPost validates the submitted credentials, converts the guest and
// logs the caller in under the new credentials.
func (a *ConvertController) ConvertPost(c *fiber.Ctx) error {
	p := PrincipalFromContext(c.UserContext())
	if !p.IsGuest() {
		return c.Redirect(a.Settings.ConvertRedirectURL, http.StatusSeeOther)
	}

	opts := append([]FormOption{WithFormInstance(p.User)}, a.FormOptions...)
	form := NewUserCreationForm(a.Converter.Users(), opts...)
	if err := c.BodyParser(form); err != nil {
		a.Logger.Error("convert parse payload", "error", err)
		form.AddError("form", "Failed to parse form")
		return a.invalid(c, form)
	}

	ctx := c.UserContext()
	if !form.IsValid(ctx) {
		return a.invalid(c, form)
	}

	user, err := a.Converter.Convert(ctx, form, p.User)
	if err != nil {
		if HasTextCode(err, TextCodeUsernameTaken) || HasTextCode(err, TextCodeFormNotValid) {
			return a.invalid(c, form)
		}
		return a.ErrorHandler(c, err)
	}

	creds, err := form.Credentials()
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	authed, err := a.Backend.Authenticate(ctx, creds)
	if err != nil {
		a.Logger.Error("convert re-authenticate", "user_id", user.ID, "error", err)
		return a.ErrorHandler(c, err)
	}

	if err := a.Sessions.Login(c, authed); err != nil {
		return a.ErrorHandler(c, err)
	}

	c.SetUserContext(WithPrincipal(ctx, RegularPrincipal(authed)))
	return c.Redirect(a.Settings.ConvertRedirectURL, http.StatusSeeOther)
}

func (a *ConvertController) invalid(c *fiber.Ctx, form *UserCreationForm) error {
	return c.Status(http.StatusUnprocessableEntity).JSON(ConvertFormView{
		Username: form.Username,
		Errors:   form.Errors(),
		Action:   a.Settings.ConvertURL,
	})
}

func redirectStatus(c *fiber.Ctx) int {
	if c.Method() == fiber.MethodGet {
		return http.StatusFound
	}
	return http.StatusSeeOther
}

func defaultErrHandler(c *fiber.Ctx, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
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
