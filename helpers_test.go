package identity_test

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/euem/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteCreateAccounts = `CREATE TABLE accounts (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    first_name TEXT,
    last_name TEXT,
    is_verified BOOLEAN NOT NULL DEFAULT 0,
    is_enabled BOOLEAN NOT NULL DEFAULT 1,
    roles TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP
);`
	sqliteCreateChallenges = `CREATE TABLE verification_challenges (
    id TEXT NOT NULL PRIMARY KEY,
    account_id TEXT NOT NULL,
    code TEXT NOT NULL,
    purpose TEXT NOT NULL,
    pending_email TEXT,
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (account_id) REFERENCES accounts (id) ON DELETE CASCADE
);`
)

func TestMain(m *testing.M) {
	// min bcrypt cost keeps the suite fast
	identity.BcryptCost = 4
	os.Exit(m.Run())
}

func setupDB(t *testing.T) (*bun.DB, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	_, err = bunDB.Exec(sqliteCreateAccounts)
	require.NoError(t, err)
	_, err = bunDB.Exec(sqliteCreateChallenges)
	require.NoError(t, err)

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return bunDB, cleanup
}

type testConfig struct {
	signingKey       string
	tokenExpiration  int
	issuer           string
	audience         []string
	otpLength        int
	otpExpiryMinutes int
}

func (c testConfig) GetSigningKey() string    { return c.signingKey }
func (c testConfig) GetTokenExpiration() int  { return c.tokenExpiration }
func (c testConfig) GetIssuer() string        { return c.issuer }
func (c testConfig) GetAudience() []string    { return c.audience }
func (c testConfig) GetOTPLength() int        { return c.otpLength }
func (c testConfig) GetOTPExpiryMinutes() int { return c.otpExpiryMinutes }

func defaultTestConfig() testConfig {
	return testConfig{
		signingKey:       "test-signing-key",
		tokenExpiration:  3600,
		issuer:           "identity-test",
		audience:         []string{"identity-test"},
		otpLength:        6,
		otpExpiryMinutes: 15,
	}
}

type recordedMail struct {
	To      string
	Subject string
	Body    string
}

// recorderMailer captures outgoing notifications instead of delivering them
type recorderMailer struct {
	mu   sync.Mutex
	sent []recordedMail
}

func (m *recorderMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, recordedMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recorderMailer) last(t *testing.T) recordedMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

func (m *recorderMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testEnv struct {
	svc    *identity.Service
	repo   identity.RepositoryManager
	db     *bun.DB
	mailer *recorderMailer
}

func setupService(t *testing.T) (*testEnv, func()) {
	t.Helper()

	db, cleanup := setupDB(t)
	repo := identity.NewRepositoryManager(db)
	mailer := &recorderMailer{}

	svc := identity.NewService(repo, defaultTestConfig(), identity.WithMailer(mailer))
	require.NoError(t, svc.Validate())

	return &testEnv{svc: svc, repo: repo, db: db, mailer: mailer}, cleanup
}

// liveCode reads the outstanding challenge code straight from the ledger
func (e *testEnv) liveCode(t *testing.T, owner uuid.UUID, purpose identity.ChallengePurpose) string {
	t.Helper()

	challenge, err := e.repo.Challenges().GetLiveByOwnerTx(context.Background(), e.db, owner, purpose, time.Now())
	require.NoError(t, err)
	return challenge.Code
}
