package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Challenges is the Verification Ledger contract. Two rules are enforced
// here rather than in the callers:
//
//   - ReplaceTx deletes every live or dead row for (account, purpose)
//     before inserting the new one, inside the caller's transaction, so at
//     most one challenge per pair is ever matchable.
//   - ConsumeTx is a conditional delete reporting whether a row was
//     actually removed. Two racing consumers of the same code observe one
//     true and one false; the loser maps to InvalidOrExpired.
type Challenges interface {
	repository.Repository[*Challenge]

	// GetLiveByCodeTx resolves a non-expired challenge by code and purpose.
	GetLiveByCodeTx(ctx context.Context, tx bun.IDB, code string, purpose ChallengePurpose, now time.Time) (*Challenge, error)

	// GetLiveByOwnerTx resolves the single live challenge for (owner, purpose).
	GetLiveByOwnerTx(ctx context.Context, tx bun.IDB, owner uuid.UUID, purpose ChallengePurpose, now time.Time) (*Challenge, error)

	// ReplaceTx supersedes any prior challenge for (record.AccountID,
	// record.Purpose) and persists record.
	ReplaceTx(ctx context.Context, tx bun.IDB, record *Challenge) (*Challenge, error)

	// ConsumeTx deletes the challenge by id and reports whether this caller
	// won the delete.
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error)

	// PurgeTx removes every challenge of one purpose for an owner.
	PurgeTx(ctx context.Context, tx bun.IDB, owner uuid.UUID, purpose ChallengePurpose) error

	// PurgeAllTx removes every challenge of every purpose for an owner.
	PurgeAllTx(ctx context.Context, tx bun.IDB, owner uuid.UUID) error

	// DeleteExpired removes rows whose expiry is at or before now. Meant
	// for the host's periodic sweep; matching already excludes expired rows.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type challenges struct {
	repository.Repository[*Challenge]
	db *bun.DB
}

var (
	_ Challenges                        = (*challenges)(nil)
	_ repository.Repository[*Challenge] = (*challenges)(nil)
)

// NewChallengesRepository builds the bun-backed Verification Ledger
func NewChallengesRepository(db *bun.DB) Challenges {
	repo := repository.NewRepository[*Challenge](db, repository.ModelHandlers[*Challenge]{
		NewRecord: func() *Challenge { return &Challenge{} },
		GetID: func(c *Challenge) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Challenge, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "code"
		},
	})

	return &challenges{
		Repository: repo,
		db:         db,
	}
}

func (c *challenges) GetLiveByCodeTx(ctx context.Context, tx bun.IDB, code string, purpose ChallengePurpose, now time.Time) (*Challenge, error) {
	record := &Challenge{}

	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.code = ?", code).
		Where("?TableAlias.purpose = ?", purpose).
		Where("?TableAlias.expires_at > ?", now).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"purpose": purpose})
		}
		return nil, err
	}

	return record, nil
}

func (c *challenges) GetLiveByOwnerTx(ctx context.Context, tx bun.IDB, owner uuid.UUID, purpose ChallengePurpose, now time.Time) (*Challenge, error) {
	record := &Challenge{}

	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.account_id = ?", owner.String()).
		Where("?TableAlias.purpose = ?", purpose).
		Where("?TableAlias.expires_at > ?", now).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"account_id": owner.String(),
					"purpose":    purpose,
				})
		}
		return nil, err
	}

	return record, nil
}

func (c *challenges) ReplaceTx(ctx context.Context, tx bun.IDB, record *Challenge) (*Challenge, error) {
	prepareChallengeDefaults(record)

	// Invalidate any prior code for this (owner, purpose) before the new
	// row becomes matchable. Same transaction, so the pair never has two
	// live rows at any observable instant.
	if err := c.PurgeTx(ctx, tx, record.AccountID, record.Purpose); err != nil {
		return nil, err
	}

	return c.Repository.CreateTx(ctx, tx, record)
}

func (c *challenges) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error) {
	res, err := tx.NewDelete().
		Model((*Challenge)(nil)).
		Where("?TableAlias.id = ?", id.String()).
		Exec(ctx)

	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (c *challenges) PurgeTx(ctx context.Context, tx bun.IDB, owner uuid.UUID, purpose ChallengePurpose) error {
	_, err := tx.NewDelete().
		Model((*Challenge)(nil)).
		Where("?TableAlias.account_id = ?", owner.String()).
		Where("?TableAlias.purpose = ?", purpose).
		Exec(ctx)

	return err
}

func (c *challenges) PurgeAllTx(ctx context.Context, tx bun.IDB, owner uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Challenge)(nil)).
		Where("?TableAlias.account_id = ?", owner.String()).
		Exec(ctx)

	return err
}

func (c *challenges) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := c.db.NewDelete().
		Model((*Challenge)(nil)).
		Where("?TableAlias.expires_at <= ?", now).
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func prepareChallengeDefaults(record *Challenge) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}
}
