package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type VerifyEmailMessage struct {
	Code       string `json:"code"`
	OnResponse func(*AccountProjection)
}

func (e VerifyEmailMessage) Type() string { return "identity.verify_email" }

// VerifyEmailHandler consumes an EMAIL_VERIFICATION challenge. The code is
// the only input; it alone resolves the owner.
type VerifyEmailHandler struct {
	repo   RepositoryManager
	logger Logger
	now    func() time.Time
}

func NewVerifyEmailHandler(repo RepositoryManager, logger Logger) *VerifyEmailHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &VerifyEmailHandler{repo: repo, logger: logger, now: time.Now}
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	var account *Account

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		challenge, err := h.repo.Challenges().GetLiveByCodeTx(ctx, tx, event.Code, PurposeEmailVerification, h.now())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				h.logger.Warn("invalid or expired OTP during verification")
				return ErrCodeInvalidOrExpired
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up verification challenge")
		}

		account, err = h.repo.Accounts().GetByIDTx(ctx, tx, challenge.AccountID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load challenge owner")
		}

		// A code for an already verified account is stale by definition.
		if account.Verified {
			h.logger.Warn("email verification requested for already verified account id: %s", account.ID)
			return ErrCodeInvalidOrExpired
		}

		// Consume before mutating: the conditional delete decides which of
		// two racing verifications wins; the loser must not flip anything.
		consumed, err := h.repo.Challenges().ConsumeTx(ctx, tx, challenge.ID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume verification challenge")
		}
		if !consumed {
			return ErrCodeInvalidOrExpired
		}

		account.Verified = true
		touch(account)

		account, err = h.repo.Accounts().UpdateTx(ctx, tx, account, repository.UpdateByID(account.ID.String()))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark account verified")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email verification transaction failed")
	}

	h.logger.Info("email verified successfully for account id: %s", account.ID)

	if event.OnResponse != nil {
		event.OnResponse(account.Projection())
	}

	return nil
}
