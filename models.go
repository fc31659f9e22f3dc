package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RoleTag is a capability tag assigned to an account
type RoleTag = string

const (
	// RoleUser is the baseline capability every registrant receives
	RoleUser RoleTag = "USER"
	// RoleAdmin marks administrative accounts
	RoleAdmin RoleTag = "ADMIN"
)

// ChallengePurpose qualifies what a verification code authorizes
type ChallengePurpose = string

const (
	// PurposeEmailVerification proves control of the registration address
	PurposeEmailVerification ChallengePurpose = "EMAIL_VERIFICATION"
	// PurposePasswordReset authorizes replacing a forgotten password
	PurposePasswordReset ChallengePurpose = "PASSWORD_RESET"
	// PurposeEmailChange proves control of a new address before it is applied
	PurposeEmailChange ChallengePurpose = "EMAIL_CHANGE"
)

// KnownPurposes lists every purpose the ledger accepts
var KnownPurposes = []ChallengePurpose{
	PurposeEmailVerification,
	PurposePasswordReset,
	PurposeEmailChange,
}

// Account is the account model
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"password_hash,omitempty"`
	FirstName     string     `bun:"first_name" json:"first_name,omitempty"`
	LastName      string     `bun:"last_name" json:"last_name,omitempty"`
	Verified      bool       `bun:"is_verified,notnull" json:"is_verified"`
	Enabled       bool       `bun:"is_enabled,notnull" json:"is_enabled"`
	Roles         []RoleTag  `bun:"roles" json:"roles,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasRole reports whether the account carries the given capability tag
func (a *Account) HasRole(role RoleTag) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// EnsureRole adds role to the account if absent. The slice is replaced
// with a freshly built one rather than appended in place, so readers
// holding the old slice never observe a mutation.
func (a *Account) EnsureRole(role RoleTag) {
	roles := make([]RoleTag, 0, len(a.Roles)+1)
	roles = append(roles, a.Roles...)
	if !a.HasRole(role) {
		roles = append(roles, role)
	}
	a.Roles = roles
}

// Projection returns the public-safe view of the account. The credential
// secret never leaves this package through a projection.
func (a *Account) Projection() *AccountProjection {
	roles := make([]RoleTag, len(a.Roles))
	copy(roles, a.Roles)

	return &AccountProjection{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Verified:  a.Verified,
		Enabled:   a.Enabled,
		Roles:     roles,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// AccountProjection is what callers outside this package see of an account
type AccountProjection struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	Verified  bool       `json:"is_verified"`
	Enabled   bool       `json:"is_enabled"`
	Roles     []RoleTag  `json:"roles"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Challenge is one outstanding OTP. At most one live challenge exists per
// (account, purpose) pair; issuing a new one deletes the previous row in the
// same transaction.
type Challenge struct {
	bun.BaseModel `bun:"table:verification_challenges,alias:vch"`
	ID            uuid.UUID        `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID        `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Account       *Account         `bun:"rel:belongs-to,join:account_id=id" json:"account,omitempty"`
	Code          string           `bun:"code,notnull" json:"code,omitempty"`
	Purpose       ChallengePurpose `bun:"purpose,notnull" json:"purpose,omitempty"`
	// PendingEmail carries the address an EMAIL_CHANGE challenge will apply
	// to the account when consumed. Empty for every other purpose.
	PendingEmail string     `bun:"pending_email" json:"pending_email,omitempty"`
	ExpiresAt    time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt    *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Live reports whether the challenge is still matchable at the given instant
func (c *Challenge) Live(now time.Time) bool {
	return c.ExpiresAt.After(now)
}
