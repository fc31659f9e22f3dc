package identity

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeAccountNotFound    = "identity_account_not_found"
	TextCodeEmailTaken         = "identity_email_taken"
	TextCodeCodeInvalid        = "identity_code_invalid_or_expired"
	TextCodeInvalidCredential  = "identity_invalid_credential"
	TextCodeConfiguration      = "identity_configuration"
	TextCodeDeliveryFailed     = "identity_delivery_failed"
	TextCodeEmptyPassword      = "identity_empty_password"
	TextCodeSessionNotFound    = "identity_session_not_found"
	TextCodeSessionDecodeError = "identity_session_decode_error"
)

// ErrAccountNotFound is returned when no account matches an identifying query.
var ErrAccountNotFound = errors.New("account not found", errors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(errors.CodeNotFound)

// ErrEmailTaken is returned when the email belongs to an enabled account.
var ErrEmailTaken = errors.New("email already in use", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrCodeInvalidOrExpired covers every unusable OTP: absent, expired,
// already consumed, owned by someone else, or semantically stale.
var ErrCodeInvalidOrExpired = errors.New("invalid or expired verification code", errors.CategoryBadInput).
	WithTextCode(TextCodeCodeInvalid).
	WithCode(errors.CodeBadRequest)

// ErrInvalidCredential is returned on a password mismatch. Login surfaces
// it for unknown emails too, so callers cannot enumerate accounts.
var ErrInvalidCredential = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredential).
	WithCode(errors.CodeUnauthorized)

// ErrConfiguration marks a deployment defect such as a missing required
// role. It should be caught by Service.Validate at startup, not per request.
var ErrConfiguration = errors.New("identity service misconfigured", errors.CategoryInternal).
	WithTextCode(TextCodeConfiguration).
	WithCode(errors.CodeInternal)

// ErrDeliveryFailed reports a Notification Gateway failure after the account
// state was already committed. The account exists; resend can recover.
var ErrDeliveryFailed = errors.New("verification code delivery failed", errors.CategoryOperation).
	WithTextCode(TextCodeDeliveryFailed).
	WithCode(errors.CodeInternal)

// ErrNoEmptyString rejects empty plaintext passwords before hashing.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrUnableToFindSession is returned when a request carries no session.
var ErrUnableToFindSession = errors.New("unable to find session", errors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToDecodeSession is returned when the bearer token cannot be decoded.
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithTextCode(TextCodeSessionDecodeError).
	WithCode(errors.CodeUnauthorized)

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}

// IsAccountNotFound checks for the NotFound failure kind
func IsAccountNotFound(err error) bool {
	return hasTextCode(err, TextCodeAccountNotFound)
}

// IsEmailTaken checks for the AlreadyExists failure kind
func IsEmailTaken(err error) bool {
	return hasTextCode(err, TextCodeEmailTaken)
}

// IsCodeInvalidOrExpired checks for the InvalidOrExpired failure kind
func IsCodeInvalidOrExpired(err error) bool {
	return hasTextCode(err, TextCodeCodeInvalid)
}

// IsInvalidCredential checks for the InvalidCredential failure kind
func IsInvalidCredential(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredential)
}

// IsConfiguration checks for the Configuration failure kind
func IsConfiguration(err error) bool {
	return hasTextCode(err, TextCodeConfiguration)
}

// IsDeliveryFailure checks whether the account mutation committed but the
// notification could not be sent
func IsDeliveryFailure(err error) bool {
	return hasTextCode(err, TextCodeDeliveryFailed)
}
