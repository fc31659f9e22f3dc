package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type ResendVerificationMessage struct {
	Email string `json:"email"`
}

func (e ResendVerificationMessage) Type() string { return "identity.resend_verification" }

// ResendVerificationHandler issues a fresh EMAIL_VERIFICATION challenge,
// superseding whatever code is outstanding. Recovery path for registrations
// whose first delivery failed.
type ResendVerificationHandler struct {
	repo   RepositoryManager
	issuer *ChallengeIssuer
	logger Logger
}

func NewResendVerificationHandler(repo RepositoryManager, issuer *ChallengeIssuer, logger Logger) *ResendVerificationHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &ResendVerificationHandler{repo: repo, issuer: issuer, logger: logger}
}

func (h *ResendVerificationHandler) Execute(ctx context.Context, event ResendVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification resend",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendVerificationHandler) execute(ctx context.Context, event ResendVerificationMessage) error {
	var delivery *Delivery

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	h.logger.Info("resending verification email for: %s", event.Email)

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := h.repo.Accounts().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				h.logger.Warn("resend OTP requested for non-existent email: %s", event.Email)
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve account for resend")
		}

		// A disabled identity must not receive actionable codes.
		if !account.Enabled {
			return ErrAccountNotFound
		}

		if account.Verified {
			h.logger.Warn("resend OTP requested for already verified account id: %s", account.ID)
			return ErrCodeInvalidOrExpired
		}

		_, delivery, err = h.issuer.IssueTx(ctx, tx, account, PurposeEmailVerification)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "verification resend transaction failed")
	}

	return h.issuer.Deliver(ctx, delivery)
}
