package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type RegisterAccountMessage struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	OnResponse func(*AccountProjection)
}

func (e RegisterAccountMessage) Type() string { return "identity.register" }

// RegisterAccountHandler creates a new account or reactivates a disabled
// one holding the same email, then issues the EMAIL_VERIFICATION challenge.
type RegisterAccountHandler struct {
	repo   RepositoryManager
	issuer *ChallengeIssuer
	logger Logger
}

func NewRegisterAccountHandler(repo RepositoryManager, issuer *ChallengeIssuer, logger Logger) *RegisterAccountHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &RegisterAccountHandler{repo: repo, issuer: issuer, logger: logger}
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	var account *Account
	var delivery *Delivery

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	h.logger.Info("attempting to register account with email: %s", event.Email)

	// find-or-create is one transaction: two concurrent registrations of
	// the same new email serialize here, the loser gets AlreadyExists.
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return richErr
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		existing, err := h.repo.Accounts().GetByEmailTx(ctx, tx, event.Email)
		if err != nil && !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up email during registration")
		}

		switch {
		case existing != nil && existing.Enabled:
			h.logger.Warn("registration blocked, email already exists and is active: %s", event.Email)
			return ErrEmailTaken

		case existing != nil:
			// Disabled row holds the email: reactivate in place, keeping
			// the original id so no dangling duplicate is created.
			h.logger.Info("reactivating disabled account for email: %s", event.Email)
			existing.PasswordHash = hash
			existing.FirstName = event.FirstName
			existing.LastName = event.LastName
			existing.Verified = false
			existing.Enabled = true
			existing.EnsureRole(RoleUser)
			touch(existing)

			account, err = h.repo.Accounts().UpdateTx(ctx, tx, existing, repository.UpdateByID(existing.ID.String()))
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reactivate account")
			}

		default:
			record := &Account{
				Email:        event.Email,
				PasswordHash: hash,
				FirstName:    event.FirstName,
				LastName:     event.LastName,
				Verified:     false,
				Enabled:      true,
			}

			account, err = h.repo.Accounts().CreateTx(ctx, tx, record)
			if err != nil {
				// insert race loser: a concurrent registration claimed the
				// email between our lookup and the insert
				if IsUniqueViolation(err) {
					return ErrEmailTaken
				}
				return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
			}
		}

		_, delivery, err = h.issuer.IssueTx(ctx, tx, account, PurposeEmailVerification)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	h.logger.Info("account persisted with id: %s, sending verification email", account.ID)

	if event.OnResponse != nil {
		event.OnResponse(account.Projection())
	}

	// The account row is committed; a gateway failure is surfaced but the
	// unverified account survives and resend can recover it.
	return h.issuer.Deliver(ctx, delivery)
}

func touch(record *Account) {
	now := time.Now()
	record.UpdatedAt = &now
}
