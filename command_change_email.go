package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ChangeEmailMessage struct {
	AccountID uuid.UUID `json:"account_id"`
	NewEmail  string    `json:"new_email"`
}

func (e ChangeEmailMessage) Type() string { return "identity.change_email" }

// ChangeEmailHandler starts the two-phase email change: it checks the new
// address is free among enabled accounts and sends an EMAIL_CHANGE code to
// that address. The account's email is untouched until the code is consumed;
// the pending address rides on the challenge row.
type ChangeEmailHandler struct {
	repo   RepositoryManager
	issuer *ChallengeIssuer
	logger Logger
}

func NewChangeEmailHandler(repo RepositoryManager, issuer *ChallengeIssuer, logger Logger) *ChangeEmailHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &ChangeEmailHandler{repo: repo, issuer: issuer, logger: logger}
}

func (h *ChangeEmailHandler) Execute(ctx context.Context, event ChangeEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangeEmailHandler) execute(ctx context.Context, event ChangeEmailMessage) error {
	var delivery *Delivery

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := h.repo.Accounts().GetActiveByIDTx(ctx, tx, event.AccountID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				h.logger.Warn("change email failed because account not found: %s", event.AccountID)
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve account for email change")
		}

		taken, err := h.repo.Accounts().ActiveEmailExistsTx(ctx, tx, event.NewEmail)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
		}
		if taken {
			h.logger.Warn("change email rejected because new email already exists: %s", event.NewEmail)
			return ErrEmailTaken
		}

		_, delivery, err = h.issuer.IssueEmailChangeTx(ctx, tx, account, event.NewEmail)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email change transaction failed")
	}

	h.logger.Info("email change verification sent for account id: %s", event.AccountID)

	return h.issuer.Deliver(ctx, delivery)
}
