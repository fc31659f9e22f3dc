package identity

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Service is the Identity Service: the single entry point hosts wire into
// their transport. Every method delegates to a command handler; the
// handlers own the transactional rules.
type Service struct {
	repo   RepositoryManager
	codes  *CodeGenerator
	mailer Mailer
	issuer *ChallengeIssuer
	tokens *TokenService
	auth   *AccountProvider
	logger Logger
	config Config

	register       *RegisterAccountHandler
	verifyEmail    *VerifyEmailHandler
	resend         *ResendVerificationHandler
	updateProfile  *UpdateProfileHandler
	changeEmail    *ChangeEmailHandler
	verifyNewEmail *VerifyNewEmailHandler
	changePassword *ChangePasswordHandler
	deactivate     *DeactivateAccountHandler
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithLogger replaces the default logger on the service and every handler
// built after it
func WithLogger(l Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMailer replaces the Notification Gateway used for code delivery
func WithMailer(m Mailer) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

// WithCodeGenerator replaces the OTP generator, for deterministic tests
func WithCodeGenerator(g *CodeGenerator) ServiceOption {
	return func(s *Service) {
		if g != nil {
			s.codes = g
		}
	}
}

// NewService wires the identity service from the repository manager and the
// host configuration
func NewService(repo RepositoryManager, cfg Config, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		config: cfg,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.codes == nil {
		s.codes = NewCodeGenerator(cfg.GetOTPLength())
	}
	if s.mailer == nil {
		s.mailer = NewLogMailer(s.logger)
	}

	s.issuer = NewChallengeIssuer(repo, s.codes, s.mailer, cfg.GetOTPExpiryMinutes(), WithIssuerLogger(s.logger))
	s.tokens = NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetTokenExpiration(), cfg.GetIssuer(), cfg.GetAudience(), s.logger)
	s.auth = NewAccountProvider(repo).WithLogger(s.logger)

	s.register = NewRegisterAccountHandler(repo, s.issuer, s.logger)
	s.verifyEmail = NewVerifyEmailHandler(repo, s.logger)
	s.resend = NewResendVerificationHandler(repo, s.issuer, s.logger)
	s.updateProfile = NewUpdateProfileHandler(repo, s.logger)
	s.changeEmail = NewChangeEmailHandler(repo, s.issuer, s.logger)
	s.verifyNewEmail = NewVerifyNewEmailHandler(repo, s.logger)
	s.changePassword = NewChangePasswordHandler(repo, s.logger)
	s.deactivate = NewDeactivateAccountHandler(repo, s.logger)

	return s
}

// Validate reports deployment defects. Hosts should call it at startup and
// treat any error as fatal rather than serving requests.
func (s *Service) Validate() error {
	if err := s.repo.Validate(); err != nil {
		return errors.Wrap(err, ErrConfiguration.Category, ErrConfiguration.Message).
			WithTextCode(ErrConfiguration.TextCode)
	}

	if s.config.GetSigningKey() == "" {
		return configurationDefect("signing key is empty")
	}
	if s.config.GetTokenExpiration() <= 0 {
		return configurationDefect("token expiration must be positive")
	}
	if s.config.GetOTPLength() <= 0 {
		return configurationDefect("otp length must be positive")
	}
	if s.config.GetOTPExpiryMinutes() <= 0 {
		return configurationDefect("otp expiry must be positive")
	}

	return nil
}

func configurationDefect(msg string) error {
	return errors.New(msg, ErrConfiguration.Category).
		WithTextCode(ErrConfiguration.TextCode)
}

// TokenService exposes the session issuer for gatekeeper middleware
func (s *Service) TokenService() *TokenService {
	return s.tokens
}

// Repo exposes the repository manager, mainly for host maintenance tasks
// such as the expired-challenge sweep
func (s *Service) Repo() RepositoryManager {
	return s.repo
}

// Register creates or reactivates an account and sends the verification code
func (s *Service) Register(ctx context.Context, email, password, firstName, lastName string) (*AccountProjection, error) {
	var projection *AccountProjection

	err := s.register.Execute(ctx, RegisterAccountMessage{
		Email:     email,
		Password:  password,
		FirstName: firstName,
		LastName:  lastName,
		OnResponse: func(p *AccountProjection) {
			projection = p
		},
	})

	// A delivery failure still carries a committed account.
	if err != nil && !IsDeliveryFailure(err) {
		return nil, err
	}

	return projection, err
}

// VerifyEmail consumes an EMAIL_VERIFICATION code
func (s *Service) VerifyEmail(ctx context.Context, code string) (*AccountProjection, error) {
	var projection *AccountProjection

	err := s.verifyEmail.Execute(ctx, VerifyEmailMessage{
		Code: code,
		OnResponse: func(p *AccountProjection) {
			projection = p
		},
	})
	if err != nil {
		return nil, err
	}

	return projection, nil
}

// ResendVerification issues a superseding EMAIL_VERIFICATION code
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	return s.resend.Execute(ctx, ResendVerificationMessage{Email: email})
}

// Login verifies credentials and mints a bearer token
func (s *Service) Login(ctx context.Context, email, password string) (*AccountProjection, string, int64, error) {
	id, err := s.auth.VerifyIdentity(ctx, email, password)
	if err != nil {
		return nil, "", 0, err
	}

	token, expiresIn, err := s.tokens.Mint(id)
	if err != nil {
		return nil, "", 0, err
	}

	accountID, err := uuid.Parse(id.ID())
	if err != nil {
		return nil, "", 0, errors.Wrap(err, errors.CategoryInternal, "minted identity has malformed id")
	}

	projection, err := s.GetProfile(ctx, accountID)
	if err != nil {
		return nil, "", 0, err
	}

	return projection, token, expiresIn, nil
}

// GetProfile returns the projection for an enabled account
func (s *Service) GetProfile(ctx context.Context, accountID uuid.UUID) (*AccountProjection, error) {
	account, err := s.repo.Accounts().GetActiveByID(ctx, accountID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	return account.Projection(), nil
}

// UpdateProfile applies a partial profile update
func (s *Service) UpdateProfile(ctx context.Context, accountID uuid.UUID, firstName, lastName *string) (*AccountProjection, error) {
	var projection *AccountProjection

	err := s.updateProfile.Execute(ctx, UpdateProfileMessage{
		AccountID: accountID,
		FirstName: firstName,
		LastName:  lastName,
		OnResponse: func(p *AccountProjection) {
			projection = p
		},
	})
	if err != nil {
		return nil, err
	}

	return projection, nil
}

// ChangeEmail starts the two-phase email change
func (s *Service) ChangeEmail(ctx context.Context, accountID uuid.UUID, newEmail string) error {
	return s.changeEmail.Execute(ctx, ChangeEmailMessage{
		AccountID: accountID,
		NewEmail:  newEmail,
	})
}

// VerifyNewEmail finishes the two-phase email change
func (s *Service) VerifyNewEmail(ctx context.Context, accountID uuid.UUID, code string) (*AccountProjection, error) {
	var projection *AccountProjection

	err := s.verifyNewEmail.Execute(ctx, VerifyNewEmailMessage{
		AccountID: accountID,
		Code:      code,
		OnResponse: func(p *AccountProjection) {
			projection = p
		},
	})
	if err != nil {
		return nil, err
	}

	return projection, nil
}

// ChangePassword replaces the credential hash
func (s *Service) ChangePassword(ctx context.Context, accountID uuid.UUID, currentPassword, newPassword string) error {
	return s.changePassword.Execute(ctx, ChangePasswordMessage{
		AccountID:       accountID,
		CurrentPassword: currentPassword,
		NewPassword:     newPassword,
	})
}

// Deactivate soft-deletes the account and purges its challenges
func (s *Service) Deactivate(ctx context.Context, accountID uuid.UUID) error {
	return s.deactivate.Execute(ctx, DeactivateAccountMessage{AccountID: accountID})
}
