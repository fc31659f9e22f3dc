package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SessionClaims is the payload minted for a logged-in identity
type SessionClaims struct {
	jwt.RegisteredClaims
	UID   string    `json:"uid,omitempty"`
	Roles []RoleTag `json:"roles,omitempty"`
}

// AccountID returns the subject as a uuid
func (c *SessionClaims) AccountID() (uuid.UUID, error) {
	return uuid.Parse(c.RegisteredClaims.Subject)
}

// HasRole reports whether the session carries a capability tag
func (c *SessionClaims) HasRole(role RoleTag) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// TokenService mints and validates bearer credentials. Validation happens
// in the gatekeeper middleware on every authenticated request.
type TokenService struct {
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        jwt.ClaimStrings
	logger          Logger
}

// NewTokenService creates a new TokenService instance. tokenExpiration is
// in seconds.
func NewTokenService(signingKey []byte, tokenExpiration int, issuer string, audience jwt.ClaimStrings, logger Logger) *TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenService{
		signingKey:      signingKey,
		tokenExpiration: tokenExpiration,
		issuer:          issuer,
		audience:        audience,
		logger:          logger,
	}
}

// Mint creates a signed bearer token for the identity and reports its
// lifetime in seconds
func (ts *TokenService) Mint(identity Identity) (string, int64, error) {
	if identity == nil {
		return "", 0, errors.New("identity must not be nil", errors.CategoryInternal)
	}

	now := time.Now()
	ttl := time.Duration(ts.tokenExpiration) * time.Second

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:   identity.ID(),
		Roles: identity.Roles(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", 0, errors.Wrap(err, errors.CategoryInternal, "failed to sign session token")
	}

	return signed, int64(ttl.Seconds()), nil
}

// Validate parses and validates a token string, returning the session claims
func (ts *TokenService) Validate(tokenString string) (*SessionClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token validation encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		return nil, errors.Wrap(err, ErrUnableToDecodeSession.Category, ErrUnableToDecodeSession.Message).
			WithTextCode(ErrUnableToDecodeSession.TextCode)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		ts.logger.Error("token validation could not decode or validate claims")
		return nil, ErrUnableToDecodeSession
	}

	return claims, nil
}

var _ SessionIssuer = (*TokenService)(nil)
