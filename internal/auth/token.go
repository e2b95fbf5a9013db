package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"hookrelay.io/internal/apierr"
	"hookrelay.io/internal/ids"
)

// Validity windows for minted tokens. Existing tokens depend on these values.
const (
	OrgTokenTTL        = 24 * time.Hour * 365 * 10
	ManagementTokenTTL = 10 * time.Minute
	AppTokenTTL        = 24 * time.Hour * 28
)

const clockSkew = 5 * time.Second

// Claims is the verified token payload. Org is set only on application tokens.
type Claims struct {
	Org *string `json:"org,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 bearer tokens for one issuer. It holds no
// mutable state and is safe for concurrent use.
type Tokens struct {
	keys   Keys
	issuer string
	now    func() time.Time
}

// Option configures Tokens.
type Option func(*Tokens) error

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(t *Tokens) error {
		if fn != nil {
			t.now = fn
		}
		return nil
	}
}

// NewTokens binds keys to the configured issuer.
func NewTokens(keys Keys, issuer string, opts ...Option) (*Tokens, error) {
	issuer = strings.TrimSpace(issuer)
	if keys.empty() {
		return nil, errors.New("auth: signing secret is empty")
	}
	if issuer == "" {
		return nil, errors.New("auth: issuer is empty")
	}
	t := &Tokens{keys: keys, issuer: issuer, now: time.Now}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tokens) Issuer() string { return t.issuer }

func invalidToken() error {
	return apierr.Unauthorized("Invalid token")
}

// Verify checks signature, algorithm, expiry, not-before and issuer and
// returns the decoded claims. Every failure is reported as the same
// Unauthorized error.
func (t *Tokens) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, invalidToken()
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.keys.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return nil, invalidToken()
	}
	return claims, nil
}

// Authenticate verifies token and resolves it into Permissions.
func (t *Tokens) Authenticate(token string) (Permissions, error) {
	claims, err := t.Verify(token)
	if err != nil {
		return Permissions{}, err
	}
	return ResolvePermissions(claims)
}

// GenerateOrgToken mints a long-lived organization token for tooling and tests.
func (t *Tokens) GenerateOrgToken(orgID ids.OrganizationID) (string, error) {
	if err := orgID.Validate(); err != nil {
		return "", fmt.Errorf("auth: organization id: %w", err)
	}
	return t.sign(string(orgID), nil, OrgTokenTTL)
}

// GenerateManagementToken mints a short-lived token for the management organization.
func (t *Tokens) GenerateManagementToken() (string, error) {
	return t.sign(string(ids.ManagementOrgID), nil, ManagementTokenTTL)
}

// GenerateAppToken mints a token that acts as appID on behalf of orgID.
func (t *Tokens) GenerateAppToken(orgID ids.OrganizationID, appID ids.ApplicationID) (string, error) {
	if err := orgID.Validate(); err != nil {
		return "", fmt.Errorf("auth: organization id: %w", err)
	}
	if err := appID.Validate(); err != nil {
		return "", fmt.Errorf("auth: application id: %w", err)
	}
	org := string(orgID)
	return t.sign(string(appID), &org, AppTokenTTL)
}

func (t *Tokens) sign(subject string, org *string, ttl time.Duration) (string, error) {
	now := t.now().UTC()
	claims := Claims{
		Org: org,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.keys.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
