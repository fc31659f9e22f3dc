package identity

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts is the Credential Store contract. Every identity operation
// resolves accounts through it; the enabled-only methods are the normal
// lookup path, the exact-email method is the one place disabled rows stay
// visible so reactivation and the uniqueness rule can see them.
type Accounts interface {
	repository.Repository[*Account]

	GetActiveByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetActiveByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)

	// GetByEmail resolves by exact email regardless of enabled state.
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)

	// ActiveEmailExistsTx reports whether an enabled account holds the email.
	ActiveEmailExistsTx(ctx context.Context, tx bun.IDB, email string) (bool, error)

	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)

	CountActive(ctx context.Context) (int, error)
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

// NewAccountsRepository builds the bun-backed Credential Store
func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) GetActiveByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.GetActiveByIDTx(ctx, a.db, id)
}

func (a *accounts) GetActiveByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record := &Account{}

	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id.String()).
		Where("?TableAlias.is_enabled = ?", true).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	record := &Account{}

	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) ActiveEmailExistsTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	count, err := tx.NewSelect().
		Model((*Account)(nil)).
		Where("?TableAlias.email = ?", strings.TrimSpace(email)).
		Where("?TableAlias.is_enabled = ?", true).
		Count(ctx)

	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (a *accounts) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *accounts) CountActive(ctx context.Context) (int, error) {
	return a.db.NewSelect().
		Model((*Account)(nil)).
		Where("?TableAlias.is_enabled = ?", true).
		Count(ctx)
}

// IsUniqueViolation reports whether err came from a unique-constraint
// failure on insert. Matched on the driver message because the module does
// not bind to a single database engine.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "Duplicate entry")
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record.EnsureRole(RoleUser)

	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
		record.UpdatedAt = &now
	}
}
