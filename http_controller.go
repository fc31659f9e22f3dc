package identity

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

// SessionContextKey is where the gatekeeper middleware stores the validated
// session claims on the request
const SessionContextKey = "identity_session"

// HTTPController exposes the identity operations as a JSON API
type HTTPController struct {
	Debug   bool
	Logger  Logger
	Service *Service
}

// NewHTTPController builds a controller over the service
func NewHTTPController(service *Service, opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Service: service,
		Logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// HTTPControllerOption configures the controller
type HTTPControllerOption func(*HTTPController)

// WithControllerLogger replaces the default logger
func WithControllerLogger(l Logger) HTTPControllerOption {
	return func(c *HTTPController) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithControllerDebug enables request payload dumps
func WithControllerDebug(debug bool) HTTPControllerOption {
	return func(c *HTTPController) {
		c.Debug = debug
	}
}

// RegisterRoutes mounts the public and authenticated endpoints
func (a *HTTPController) RegisterRoutes(app *fiber.App) {
	auth := app.Group("/auth")
	auth.Post("/register", a.Register)
	auth.Post("/verify-email", a.VerifyEmail)
	auth.Post("/resend-otp", a.ResendVerification)
	auth.Post("/login", a.Login)

	users := app.Group("/users", a.ProtectedRoute())
	users.Get("/me", a.GetProfile)
	users.Patch("/me", a.UpdateProfile)
	users.Post("/me/email", a.ChangeEmail)
	users.Post("/me/email/verify", a.VerifyNewEmail)
	users.Post("/me/password", a.ChangePassword)
	users.Delete("/me", a.Deactivate)
}

// ProtectedRoute validates the bearer credential and exposes the session
// claims to downstream handlers
func (a *HTTPController) ProtectedRoute() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return a.renderError(c, ErrUnableToFindSession)
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" || token == header {
			return a.renderError(c, ErrUnableToFindSession)
		}

		claims, err := a.Service.TokenService().Validate(token)
		if err != nil {
			return a.renderError(c, ErrUnableToDecodeSession)
		}

		c.Locals(SessionContextKey, claims)
		c.SetUserContext(WithClaimsContext(c.UserContext(), claims))

		return c.Next()
	}
}

// RequireRole guards a route mounted behind ProtectedRoute: the session
// must carry a role at or above minRole
func (a *HTTPController) RequireRole(minRole RoleTag) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals(SessionContextKey).(*SessionClaims)
		if !ok || claims == nil {
			return a.renderError(c, ErrUnableToFindSession)
		}

		for _, role := range claims.Roles {
			if RoleAtLeast(role, minRole) {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "insufficient role"})
	}
}

type RegisterPayload struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Validate will validate the payload
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
	)
}

func (a *HTTPController) Register(c *fiber.Ctx) error {
	payload := RegisterPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return a.renderBadRequest(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidation(c, err)
	}

	if a.Debug {
		fmt.Println("======= IDENTITY REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(payload))
	}

	projection, err := a.Service.Register(c.Context(), payload.Email, payload.Password, payload.FirstName, payload.LastName)
	if err != nil {
		// the account committed but the code never left: report it so the
		// caller knows to use the resend endpoint
		if IsDeliveryFailure(err) {
			a.Logger.Warn("verification code delivery failed for %s: %v", payload.Email, err)
			return c.Status(fiber.StatusCreated).JSON(fiber.Map{
				"user":    projection,
				"warning": "verification code could not be delivered, request a resend",
			})
		}
		return a.renderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(projection)
}

type VerifyEmailPayload struct {
	Code string `json:"code"`
}

// Validate will validate the payload
func (r VerifyEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, is.Digit),
	)
}

func (a *HTTPController) VerifyEmail(c *fiber.Ctx) error {
	payload := VerifyEmailPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return a.renderBadRequest(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidation(c, err)
	}

	projection, err := a.Service.VerifyEmail(c.Context(), payload.Code)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(projection)
}

type ResendPayload struct {
	Email string `json:"email"`
}

// Validate will validate the payload
func (r ResendPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *HTTPController) ResendVerification(c *fiber.Ctx) error {
	payload := ResendPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return a.renderBadRequest(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidation(c, err)
	}

	if err := a.Service.ResendVerification(c.Context(), payload.Email); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Verification code sent to your email"})
}

type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will validate the payload
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *HTTPController) Login(c *fiber.Ctx) error {
	payload := LoginPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return a.renderBadRequest(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidation(c, err)
	}

	projection, token, expiresIn, err := a.Service.Login(c.Context(), payload.Email, payload.Password)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{
		"access_token": token,
		"expires_in":   expiresIn,
		"user":         projection,
	})
}

func (a *HTTPController) GetProfile(c *fiber.Ctx) error {
	accountID, err := a.sessionAccountID(c)
	if err != nil {
		return a.renderError(c, err)
	}

	projection, err := a.Service.GetProfile(c.Context(), accountID)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(projection)
}

type UpdateProfilePayload struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// Validate will validate the payload
func (r UpdateProfilePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.NilOrNotEmpty, validation.Length(1, 200)),
	)
}

func (a *HTTPController) UpdateProfile(c *fiber.Ctx) error {
	accountID, err := a.sessionAccountID(c)
	if err != nil {
		return a.renderError(c, err)
	}

	payload := UpdateProfilePayload{}
	if err := c.BodyParser(&payload); err != nil {
		return a.renderBadRequest(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidation(c, err)
	}

	projection, err := a.Service.UpdateProfile(c.Context(), accountID, payload.FirstName, payload.LastName)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(projection)
}

type ChangeEmailPayload struct {
	NewEmail string `json:"new_email"`
}

// Validate will validate the payload
func (r ChangeEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewEmail, validation.Required, is.Email),
	)
}

func (a *HTTPController) ChangeEmail(c *fiber.Ctx) error {
	accountID, err := a.sessionAccountID(c)
	if err != nil {
		return a.renderError(c, err)
	}

	payload := ChangeEmailPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return a.renderBadRequest(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidation(c, err)
	}

	if err := a.Service.ChangeEmail(c.Context(), accountID, payload.NewEmail); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Verification code sent to your new email"})
}

type VerifyNewEmailPayload struct {
	Code string `json:"code"`
}

// Validate will validate the payload
func (r VerifyNewEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, is.Digit),
	)
}

func (a *HTTPController) VerifyNewEmail(c *fiber.Ctx) error {
	accountID, err := a.sessionAccountID(c)
	if err != nil {
		return a.renderError(c, err)
	}

	payload := VerifyNewEmailPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return a.renderBadRequest(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidation(c, err)
	}

	projection, err := a.Service.VerifyNewEmail(c.Context(), accountID, payload.Code)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(projection)
}

type ChangePasswordPayload struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Validate will validate the payload
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(6, 100)),
	)
}

func (a *HTTPController) ChangePassword(c *fiber.Ctx) error {
	accountID, err := a.sessionAccountID(c)
	if err != nil {
		return a.renderError(c, err)
	}

	payload := ChangePasswordPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return a.renderBadRequest(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidation(c, err)
	}

	if err := a.Service.ChangePassword(c.Context(), accountID, payload.CurrentPassword, payload.NewPassword); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Password updated successfully"})
}

func (a *HTTPController) Deactivate(c *fiber.Ctx) error {
	accountID, err := a.sessionAccountID(c)
	if err != nil {
		return a.renderError(c, err)
	}

	if err := a.Service.Deactivate(c.Context(), accountID); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Account deactivated"})
}

func (a *HTTPController) sessionAccountID(c *fiber.Ctx) (uuid.UUID, error) {
	claims, ok := c.Locals(SessionContextKey).(*SessionClaims)
	if !ok || claims == nil {
		return uuid.Nil, ErrUnableToFindSession
	}

	return claims.AccountID()
}

// StatusForError maps a typed failure to its HTTP status
func StatusForError(err error) int {
	switch {
	case IsAccountNotFound(err):
		return fiber.StatusNotFound
	case IsEmailTaken(err):
		return fiber.StatusConflict
	case IsCodeInvalidOrExpired(err):
		return fiber.StatusBadRequest
	case IsInvalidCredential(err):
		return fiber.StatusUnauthorized
	case hasTextCode(err, TextCodeSessionNotFound), hasTextCode(err, TextCodeSessionDecodeError):
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

func (a *HTTPController) renderError(c *fiber.Ctx, err error) error {
	status := StatusForError(err)
	if status == fiber.StatusInternalServerError {
		a.Logger.Error("identity request failed: %v", err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}

	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func (a *HTTPController) renderBadRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}

func (a *HTTPController) renderValidation(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
}
