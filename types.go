package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Logger is the minimal logging surface this package needs. Hosts plug in
// whatever they use; defLogger prints to stdout otherwise.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the knobs the identity service reads from its host
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
	GetOTPLength() int
	GetOTPExpiryMinutes() int
}

// Identity is what the session layer sees of a verified account
type Identity interface {
	ID() string
	Email() string
	Roles() []RoleTag
}

// Mailer is the Notification Gateway contract: deliver a message to an
// address. Implementations must not mutate identity state; a failure here
// never rolls back a committed account row.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SessionIssuer mints opaque bearer credentials for verified identities
type SessionIssuer interface {
	Mint(identity Identity) (token string, expiresIn int64, err error)
}

type defLogger struct{}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

type accountIdentity struct {
	id    uuid.UUID
	email string
	roles []RoleTag
}

func (a accountIdentity) ID() string { return a.id.String() }

func (a accountIdentity) Email() string { return a.email }

func (a accountIdentity) Roles() []RoleTag {
	roles := make([]RoleTag, len(a.roles))
	copy(roles, a.roles)
	return roles
}

var _ Identity = accountIdentity{}

// IdentityFromAccount projects an account into the session layer's view
func IdentityFromAccount(a *Account) Identity {
	roles := make([]RoleTag, len(a.Roles))
	copy(roles, a.Roles)
	return accountIdentity{
		id:    a.ID,
		email: a.Email,
		roles: roles,
	}
}
