// Package auth guards operator-only endpoints with short-lived HS256 tokens.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/sponsor-api/internal/common"
)

// Admin token errors.
var (
	ErrUnauthorized = common.NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, nil)
	ErrForbidden    = common.NewAppError("FORBIDDEN", "admin role required", http.StatusForbidden, nil)
)

// Tokens mints and parses admin tokens signed with a shared secret.
type Tokens struct {
	secret    []byte
	issuer    string
	validator TokenValidator
	now       func() time.Time
}

// NewTokens builds a token helper. An empty secret yields a helper whose
// Enabled reports false.
func NewTokens(secret, issuer string) *Tokens {
	return &Tokens{
		secret: []byte(secret),
		issuer: issuer,
		validator: TokenValidator{
			Issuer:    issuer,
			ClockSkew: 30 * time.Second,
			Algorithm: jwa.HS256,
			Role:      RoleAdmin,
		},
		now: time.Now,
	}
}

// WithClock overrides the time source.
func (t *Tokens) WithClock(now func() time.Time) *Tokens {
	t.now = now
	return t
}

// Enabled reports whether a signing secret is configured.
func (t *Tokens) Enabled() bool {
	return t != nil && len(t.secret) > 0
}

// Mint signs an admin token for subject valid for ttl.
func (t *Tokens) Mint(subject string, ttl time.Duration) (string, error) {
	if !t.Enabled() {
		return "", common.Errorf(common.ErrMissingConfig, "ADMIN_JWT_SECRET is not configured")
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("auth: subject required")
	}
	now := t.now()
	tok, err := jwt.NewBuilder().
		Subject(subject).
		Issuer(t.issuer).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl)).
		Claim(RoleClaim, RoleAdmin).
		Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, t.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// Parse validates raw and returns its subject. A token that verifies but lacks
// the admin role is reported as ErrForbidden.
func (t *Tokens) Parse(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrUnauthorized
	}
	alg, err := tokenAlgorithm(raw)
	if err != nil {
		return "", common.Wrap(ErrUnauthorized, err)
	}
	if alg != t.validator.Algorithm {
		return "", common.Wrap(ErrUnauthorized, fmt.Errorf("unexpected token algorithm %s", alg))
	}
	parsed, err := jwt.ParseString(raw, jwt.WithKey(alg, t.secret), jwt.WithValidate(false))
	if err != nil {
		return "", common.Wrap(ErrUnauthorized, err)
	}
	if err := t.validator.Validate(parsed, alg, t.now()); err != nil {
		if errors.Is(err, errRole) {
			return "", common.Wrap(ErrForbidden, err)
		}
		return "", common.Wrap(ErrUnauthorized, err)
	}
	return parsed.Subject(), nil
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	sigs := message.Signatures()
	if len(sigs) != 1 {
		return "", errors.New("auth: expected exactly one signature")
	}
	headers := sigs[0].ProtectedHeaders()
	if headers == nil || headers.Algorithm() == "" {
		return "", errors.New("auth: token missing algorithm")
	}
	if headers.Algorithm() == jwa.NoSignature {
		return "", errors.New("auth: token uses none algorithm")
	}
	return headers.Algorithm(), nil
}
