package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type VerifyNewEmailMessage struct {
	AccountID  uuid.UUID `json:"account_id"`
	Code       string    `json:"code"`
	OnResponse func(*AccountProjection)
}

func (e VerifyNewEmailMessage) Type() string { return "identity.verify_new_email" }

// VerifyNewEmailHandler finishes the email change: it consumes the
// EMAIL_CHANGE challenge and applies the pending address carried on the
// challenge row to the account. The lookup is owner-scoped so a code issued
// to one account can never be consumed by another.
type VerifyNewEmailHandler struct {
	repo   RepositoryManager
	logger Logger
	now    func() time.Time
}

func NewVerifyNewEmailHandler(repo RepositoryManager, logger Logger) *VerifyNewEmailHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &VerifyNewEmailHandler{repo: repo, logger: logger, now: time.Now}
}

func (h *VerifyNewEmailHandler) Execute(ctx context.Context, event VerifyNewEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during new email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyNewEmailHandler) execute(ctx context.Context, event VerifyNewEmailMessage) error {
	var account *Account

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := h.repo.Accounts().GetActiveByIDTx(ctx, tx, event.AccountID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				h.logger.Warn("verify new email failed because account not found: %s", event.AccountID)
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve account for new email verification")
		}

		challenge, err := h.repo.Challenges().GetLiveByCodeTx(ctx, tx, event.Code, PurposeEmailChange, h.now())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				h.logger.Warn("invalid or expired OTP during email change for account id: %s", event.AccountID)
				return ErrCodeInvalidOrExpired
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up email change challenge")
		}

		if challenge.AccountID != record.ID {
			h.logger.Warn("OTP does not belong to account id: %s", event.AccountID)
			return ErrCodeInvalidOrExpired
		}

		// The pending address may have been claimed between the two
		// phases; re-check uniqueness at apply time.
		if challenge.PendingEmail != "" && challenge.PendingEmail != record.Email {
			taken, err := h.repo.Accounts().ActiveEmailExistsTx(ctx, tx, challenge.PendingEmail)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to re-check email availability")
			}
			if taken {
				return ErrEmailTaken
			}
		}

		consumed, err := h.repo.Challenges().ConsumeTx(ctx, tx, challenge.ID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume email change challenge")
		}
		if !consumed {
			return ErrCodeInvalidOrExpired
		}

		if challenge.PendingEmail != "" {
			record.Email = challenge.PendingEmail
		}
		touch(record)

		account, err = h.repo.Accounts().UpdateTx(ctx, tx, record, repository.UpdateByID(record.ID.String()))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply new email")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "new email verification transaction failed")
	}

	h.logger.Info("new email verified for account id: %s", event.AccountID)

	if event.OnResponse != nil {
		event.OnResponse(account.Projection())
	}

	return nil
}
