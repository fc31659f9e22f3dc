// Package identity provides account lifecycle management: registration with
// email verification, credential login with JWT issuance, and the
// self-service profile operations an authenticated account performs on
// itself.
//
// Account lifecycle:
//   - Accounts are created unverified and enabled. An EMAIL_VERIFICATION
//     challenge is issued at registration; consuming it marks the account
//     verified. Deactivation disables the account in place, parking the row
//     so a later registration with the same email reactivates it under its
//     original id.
//   - Challenges are single-use numeric codes scoped to a purpose. Issuing
//     a new code supersedes the previous one for the same (account, purpose)
//     pair inside one transaction, and consumption is a conditional delete,
//     so a code can never be redeemed twice.
//
// Email changes run in two phases: the code is delivered to the address
// being claimed and carries it as pending state; only consuming the code
// applies the new address, after re-checking that no enabled account took
// it in the meantime.
//
// Hosts wire a RepositoryManager over a bun.DB, a Config, and optionally a
// Mailer into NewService, then mount HTTPController on a fiber app or call
// the Service methods from their own transport.
package identity
