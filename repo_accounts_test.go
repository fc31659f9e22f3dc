package identity_test

import (
	"context"
	"testing"

	"github.com/euem/go-identity"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestAccountsCreateAppliesDefaults(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	repo := identity.NewAccountsRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, &identity.Account{
		Email:        "ada@example.com",
		PasswordHash: "hash",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Enabled:      true,
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.True(t, created.HasRole(identity.RoleUser))
	require.NotNil(t, created.CreatedAt)
	require.NotNil(t, created.UpdatedAt)

	found, err := repo.GetActiveByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", found.Email)
	assert.Equal(t, []identity.RoleTag{identity.RoleUser}, found.Roles)
}

func TestAccountsGetByEmailSeesDisabledRows(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	repo := identity.NewAccountsRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, &identity.Account{
		Email:        "ghost@example.com",
		PasswordHash: "hash",
		Enabled:      false,
	})
	require.NoError(t, err)

	// exact-email lookup keeps disabled rows visible
	found, err := repo.GetByEmail(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.False(t, found.Enabled)

	// the active lookup does not
	_, err = repo.GetActiveByID(ctx, created.ID)
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestAccountsGetByEmailTrimsWhitespace(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	repo := identity.NewAccountsRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &identity.Account{
		Email:        "ada@example.com",
		PasswordHash: "hash",
		Enabled:      true,
	})
	require.NoError(t, err)

	found, err := repo.GetByEmail(ctx, "  ada@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", found.Email)
}

func TestAccountsGetByEmailNotFound(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	repo := identity.NewAccountsRepository(db)

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestAccountsActiveEmailExists(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	repo := identity.NewAccountsRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &identity.Account{
		Email:        "active@example.com",
		PasswordHash: "hash",
		Enabled:      true,
	})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &identity.Account{
		Email:        "parked@example.com",
		PasswordHash: "hash",
		Enabled:      false,
	})
	require.NoError(t, err)

	exists, err := repo.ActiveEmailExistsTx(ctx, db, "active@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	// a disabled row does not hold the email against new claimants
	exists, err = repo.ActiveEmailExistsTx(ctx, db, "parked@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ActiveEmailExistsTx(ctx, db, "free@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAccountsDuplicateInsertIsUniqueViolation(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	repo := identity.NewAccountsRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &identity.Account{
		Email:        "ada@example.com",
		PasswordHash: "hash",
		Enabled:      true,
	})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &identity.Account{
		Email:        "ada@example.com",
		PasswordHash: "otherhash",
		Enabled:      true,
	})
	require.Error(t, err)
	assert.True(t, identity.IsUniqueViolation(err))

	assert.False(t, identity.IsUniqueViolation(nil))
	assert.False(t, identity.IsUniqueViolation(context.Canceled))
}

func TestAccountsCountActive(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	repo := identity.NewAccountsRepository(db)
	ctx := context.Background()

	count, err := repo.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = repo.Create(ctx, &identity.Account{Email: "a@example.com", PasswordHash: "h", Enabled: true})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &identity.Account{Email: "b@example.com", PasswordHash: "h", Enabled: true})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &identity.Account{Email: "c@example.com", PasswordHash: "h", Enabled: false})
	require.NoError(t, err)

	count, err = repo.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAccountsUpdatePersistsRoleChanges(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	manager := identity.NewRepositoryManager(db)
	repo := manager.Accounts()
	ctx := context.Background()

	created, err := repo.Create(ctx, &identity.Account{
		Email:        "ada@example.com",
		PasswordHash: "hash",
		Enabled:      true,
	})
	require.NoError(t, err)

	created.EnsureRole(identity.RoleAdmin)

	err = manager.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		updated, err := repo.UpdateTx(ctx, tx, created, repository.UpdateByID(created.ID.String()))
		if err != nil {
			return err
		}
		assert.True(t, updated.HasRole(identity.RoleAdmin))
		return nil
	})
	require.NoError(t, err)

	found, err := repo.GetActiveByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, found.HasRole(identity.RoleAdmin))
	assert.True(t, found.HasRole(identity.RoleUser))
}
