package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type DeactivateAccountMessage struct {
	AccountID uuid.UUID `json:"account_id"`
}

func (e DeactivateAccountMessage) Type() string { return "identity.deactivate" }

// DeactivateAccountHandler soft-deletes the account and purges every
// outstanding challenge of every purpose, so no code stays actionable
// against a disabled identity. Calling it on an already-disabled account
// fails NotFound: disabled rows are not resolvable through the normal
// lookup path.
type DeactivateAccountHandler struct {
	repo   RepositoryManager
	logger Logger
}

func NewDeactivateAccountHandler(repo RepositoryManager, logger Logger) *DeactivateAccountHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &DeactivateAccountHandler{repo: repo, logger: logger}
}

func (h *DeactivateAccountHandler) Execute(ctx context.Context, event DeactivateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account deactivation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeactivateAccountHandler) execute(ctx context.Context, event DeactivateAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := h.repo.Accounts().GetActiveByIDTx(ctx, tx, event.AccountID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				h.logger.Warn("deactivate failed because account not found: %s", event.AccountID)
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve account for deactivation")
		}

		record.Enabled = false
		touch(record)

		if _, err := h.repo.Accounts().UpdateTx(ctx, tx, record, repository.UpdateByID(record.ID.String())); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to disable account")
		}

		if err := h.repo.Challenges().PurgeAllTx(ctx, tx, record.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to purge challenges on deactivation")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account deactivation transaction failed")
	}

	h.logger.Info("account soft-deleted and challenges cleared for account id: %s", event.AccountID)

	return nil
}
