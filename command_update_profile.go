package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type UpdateProfileMessage struct {
	AccountID uuid.UUID `json:"account_id"`
	// Nil means leave the field untouched; pointer-present means apply,
	// including an explicit empty string.
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
	OnResponse func(*AccountProjection)
}

func (e UpdateProfileMessage) Type() string { return "identity.update_profile" }

// UpdateProfileHandler applies a partial update to the profile fields
type UpdateProfileHandler struct {
	repo   RepositoryManager
	logger Logger
}

func NewUpdateProfileHandler(repo RepositoryManager, logger Logger) *UpdateProfileHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &UpdateProfileHandler{repo: repo, logger: logger}
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) error {
	var account *Account

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := h.repo.Accounts().GetActiveByIDTx(ctx, tx, event.AccountID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				h.logger.Warn("update profile failed because account not found: %s", event.AccountID)
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve account for profile update")
		}

		if event.FirstName != nil {
			record.FirstName = *event.FirstName
		}
		if event.LastName != nil {
			record.LastName = *event.LastName
		}
		touch(record)

		account, err = h.repo.Accounts().UpdateTx(ctx, tx, record, repository.UpdateByID(record.ID.String()))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist profile update")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "profile update transaction failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(account.Projection())
	}

	return nil
}
