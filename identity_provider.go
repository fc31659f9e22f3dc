package identity

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// AccountProvider resolves and verifies identities for the session layer.
// Unknown email and wrong password are indistinguishable to the caller, so
// the login surface cannot be used to enumerate accounts. The two cases are
// still logged distinctly.
type AccountProvider struct {
	repo   RepositoryManager
	logger Logger
}

// NewAccountProvider will create a new AccountProvider
func NewAccountProvider(repo RepositoryManager) *AccountProvider {
	return &AccountProvider{
		repo:   repo,
		logger: defLogger{},
	}
}

func (p *AccountProvider) WithLogger(l Logger) *AccountProvider {
	if l != nil {
		p.logger = l
	}
	return p
}

// VerifyIdentity will find the account, compare the password, and return
// the identity
func (p *AccountProvider) VerifyIdentity(ctx context.Context, email, password string) (Identity, error) {
	account, err := p.resolveEnabled(ctx, email)
	if err != nil {
		if IsAccountNotFound(err) {
			p.logger.Warn("login attempt for unknown email: %s", email)
			return nil, ErrInvalidCredential
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve account during verification")
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		p.logger.Warn("login attempt with wrong password for account id: %s", account.ID)
		return nil, ErrInvalidCredential
	}

	return IdentityFromAccount(account), nil
}

// FindIdentityByEmail resolves an enabled account without checking any
// credential
func (p *AccountProvider) FindIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	account, err := p.resolveEnabled(ctx, email)
	if err != nil {
		return nil, err
	}

	return IdentityFromAccount(account), nil
}

func (p *AccountProvider) resolveEnabled(ctx context.Context, email string) (*Account, error) {
	account, err := p.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if !account.Enabled {
		return nil, ErrAccountNotFound
	}

	return account, nil
}
