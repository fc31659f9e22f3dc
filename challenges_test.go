package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/euem/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestChallengeIssuerIssue(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	repo := identity.NewRepositoryManager(db)
	account := seedAccount(t, db, "ada@example.com")

	frozen := time.Now()
	issuer := identity.NewChallengeIssuer(
		repo,
		identity.NewCodeGenerator(6),
		&recorderMailer{},
		30,
		identity.WithIssuerClock(func() time.Time { return frozen }),
	)

	challenge, delivery, err := issuer.IssueTx(context.Background(), db, account, identity.PurposeEmailVerification)
	require.NoError(t, err)

	assert.Equal(t, account.ID, challenge.AccountID)
	assert.Len(t, challenge.Code, 6)
	assert.Empty(t, challenge.PendingEmail)
	// sqlite round-trips timestamps at microsecond precision
	assert.WithinDuration(t, frozen.Add(30*time.Minute), challenge.ExpiresAt, time.Millisecond)

	require.NotNil(t, delivery)
	assert.Equal(t, "ada@example.com", delivery.To)
	assert.Equal(t, identity.MailSubject(identity.PurposeEmailVerification), delivery.Subject)
	assert.Contains(t, delivery.Body, challenge.Code)
	assert.Contains(t, delivery.Body, "30 minutes")
}

func TestChallengeIssuerIssueEmailChange(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	repo := identity.NewRepositoryManager(db)
	account := seedAccount(t, db, "ada@example.com")

	issuer := identity.NewChallengeIssuer(repo, identity.NewCodeGenerator(6), &recorderMailer{}, 15)

	challenge, delivery, err := issuer.IssueEmailChangeTx(context.Background(), db, account, "ada.king@example.com")
	require.NoError(t, err)

	// the pending address rides on the challenge until confirmation
	assert.Equal(t, "ada.king@example.com", challenge.PendingEmail)
	assert.Equal(t, identity.PurposeEmailChange, challenge.Purpose)

	// delivery goes to the address being proven, referencing the old one
	require.NotNil(t, delivery)
	assert.Equal(t, "ada.king@example.com", delivery.To)
	assert.Contains(t, delivery.Body, "ada@example.com")
	assert.Contains(t, delivery.Body, challenge.Code)
}

func TestChallengeIssuerDefaultExpiry(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	repo := identity.NewRepositoryManager(db)
	issuer := identity.NewChallengeIssuer(repo, identity.NewCodeGenerator(6), nil, 0)

	assert.Equal(t, identity.DefaultOTPExpiryMinutes, issuer.ExpiryMinutes())
}

func TestChallengeIssuerDeliverReportsGatewayFailure(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	repo := identity.NewRepositoryManager(db)

	mailer := &MockMailer{}
	mailer.On("Send", mock.Anything, "ada@example.com", "subject", "body").
		Return(errors.New("smtp connection refused"))

	issuer := identity.NewChallengeIssuer(repo, identity.NewCodeGenerator(6), mailer, 15)

	err := issuer.Deliver(context.Background(), &identity.Delivery{
		To:      "ada@example.com",
		Subject: "subject",
		Body:    "body",
	})

	require.Error(t, err)
	assert.True(t, identity.IsDeliveryFailure(err))
	mailer.AssertExpectations(t)
}

func TestChallengeIssuerDeliverNil(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	issuer := identity.NewChallengeIssuer(identity.NewRepositoryManager(db), identity.NewCodeGenerator(6), &recorderMailer{}, 15)

	assert.NoError(t, issuer.Deliver(context.Background(), nil))
}

func TestRegisterSurvivesDeliveryFailure(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	repo := identity.NewRepositoryManager(db)

	mailer := &MockMailer{}
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("gateway down"))

	svc := identity.NewService(repo, defaultTestConfig(), identity.WithMailer(mailer))

	projection, err := svc.Register(context.Background(), "ada@example.com", "password123", "Ada", "Lovelace")

	// the account committed even though the notification did not go out
	require.Error(t, err)
	assert.True(t, identity.IsDeliveryFailure(err))
	require.NotNil(t, projection)

	found, lookupErr := repo.Accounts().GetActiveByID(context.Background(), projection.ID)
	require.NoError(t, lookupErr)
	assert.Equal(t, "ada@example.com", found.Email)

	// and resend can recover once the gateway is back
	challenge, lookupErr := repo.Challenges().GetLiveByOwnerTx(context.Background(), db, projection.ID, identity.PurposeEmailVerification, time.Now())
	require.NoError(t, lookupErr)
	assert.NotEmpty(t, challenge.Code)
}

func TestMailSubjects(t *testing.T) {
	assert.Equal(t, "Verify Your Email Address", identity.MailSubject(identity.PurposeEmailVerification))
	assert.Equal(t, "Reset Your Password", identity.MailSubject(identity.PurposePasswordReset))
	assert.Equal(t, "Verify Your New Email Address", identity.MailSubject(identity.PurposeEmailChange))
	assert.Equal(t, "Verification Code", identity.MailSubject("SOMETHING_ELSE"))
}

func TestMailBodyInterpolation(t *testing.T) {
	body := identity.MailBody(identity.PurposeEmailVerification, "123456", 15)
	assert.Contains(t, body, "123456")
	assert.Contains(t, body, "15 minutes")

	body = identity.MailBody(identity.PurposePasswordReset, "654321", 10)
	assert.Contains(t, body, "654321")
	assert.Contains(t, body, "10 minutes")

	body = identity.MailBodyEmailChange("111222", "old@example.com", 15)
	assert.Contains(t, body, "111222")
	assert.Contains(t, body, "old@example.com")
}
