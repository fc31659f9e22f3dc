package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// DefaultOTPExpiryMinutes is the challenge lifetime when the host does not
// configure one
const DefaultOTPExpiryMinutes = 15

// ChallengeIssuer creates verification challenges and prepares their
// notifications. Persistence happens inside the caller's transaction;
// delivery happens after commit so a slow or failing gateway can never roll
// back committed account state.
type ChallengeIssuer struct {
	repo          RepositoryManager
	codes         *CodeGenerator
	mailer        Mailer
	expiryMinutes int
	logger        Logger
	now           func() time.Time
}

// ChallengeIssuerOption configures a ChallengeIssuer
type ChallengeIssuerOption func(*ChallengeIssuer)

// WithIssuerLogger replaces the default logger
func WithIssuerLogger(l Logger) ChallengeIssuerOption {
	return func(i *ChallengeIssuer) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithIssuerClock replaces the time source, for tests
func WithIssuerClock(now func() time.Time) ChallengeIssuerOption {
	return func(i *ChallengeIssuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewChallengeIssuer wires code generation, the ledger, and the gateway
func NewChallengeIssuer(repo RepositoryManager, codes *CodeGenerator, mailer Mailer, expiryMinutes int, opts ...ChallengeIssuerOption) *ChallengeIssuer {
	if expiryMinutes <= 0 {
		expiryMinutes = DefaultOTPExpiryMinutes
	}
	if mailer == nil {
		mailer = NewLogMailer(nil)
	}

	issuer := &ChallengeIssuer{
		repo:          repo,
		codes:         codes,
		mailer:        mailer,
		expiryMinutes: expiryMinutes,
		logger:        defLogger{},
		now:           time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(issuer)
		}
	}

	return issuer
}

// Delivery is a prepared notification, sent only after the transaction that
// created its challenge has committed
type Delivery struct {
	To      string
	Subject string
	Body    string
}

// IssueTx supersedes any live challenge for (account, purpose), persists a
// fresh one inside tx, and returns the delivery to send after commit. The
// code travels to the account's own address.
func (i *ChallengeIssuer) IssueTx(ctx context.Context, tx bun.IDB, account *Account, purpose ChallengePurpose) (*Challenge, *Delivery, error) {
	challenge, err := i.createTx(ctx, tx, account, purpose, "")
	if err != nil {
		return nil, nil, err
	}

	delivery := &Delivery{
		To:      account.Email,
		Subject: MailSubject(purpose),
		Body:    MailBody(purpose, challenge.Code, i.expiryMinutes),
	}

	return challenge, delivery, nil
}

// IssueEmailChangeTx persists an EMAIL_CHANGE challenge carrying the
// pending address and prepares delivery to that address, not the current one.
func (i *ChallengeIssuer) IssueEmailChangeTx(ctx context.Context, tx bun.IDB, account *Account, newEmail string) (*Challenge, *Delivery, error) {
	challenge, err := i.createTx(ctx, tx, account, PurposeEmailChange, newEmail)
	if err != nil {
		return nil, nil, err
	}

	delivery := &Delivery{
		To:      newEmail,
		Subject: MailSubject(PurposeEmailChange),
		Body:    MailBodyEmailChange(challenge.Code, account.Email, i.expiryMinutes),
	}

	return challenge, delivery, nil
}

// Deliver hands the prepared notification to the gateway. A failure is
// reported as a delivery failure; the committed challenge stays valid and
// resend can recover.
func (i *ChallengeIssuer) Deliver(ctx context.Context, d *Delivery) error {
	if d == nil {
		return nil
	}

	if err := i.mailer.Send(ctx, d.To, d.Subject, d.Body); err != nil {
		i.logger.Error("failed to deliver verification code to %s: %v", d.To, err)
		return goerrors.Wrap(err, ErrDeliveryFailed.Category, ErrDeliveryFailed.Message).
			WithTextCode(ErrDeliveryFailed.TextCode).
			WithMetadata(map[string]any{"to": d.To})
	}

	return nil
}

// ExpiryMinutes returns the configured challenge lifetime
func (i *ChallengeIssuer) ExpiryMinutes() int {
	return i.expiryMinutes
}

func (i *ChallengeIssuer) createTx(ctx context.Context, tx bun.IDB, account *Account, purpose ChallengePurpose, pendingEmail string) (*Challenge, error) {
	code, err := i.codes.Generate()
	if err != nil {
		return nil, err
	}

	record := &Challenge{
		AccountID:    account.ID,
		Code:         code,
		Purpose:      purpose,
		PendingEmail: pendingEmail,
		ExpiresAt:    i.now().Add(time.Duration(i.expiryMinutes) * time.Minute),
	}

	created, err := i.repo.Challenges().ReplaceTx(ctx, tx, record)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist verification challenge")
	}

	return created, nil
}
