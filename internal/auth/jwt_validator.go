package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// RoleClaim carries the operator role inside admin tokens.
const RoleClaim = "role"

// RoleAdmin is the only role allowed to finalize orders.
const RoleAdmin = "admin"

// TokenValidator checks issuer, expiry, algorithm and role of admin tokens.
type TokenValidator struct {
	Issuer    string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
	Role      string
}

var errRole = errors.New("auth: token lacks required role")

// Validate ensures the token satisfies the configured requirements at now.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if algorithm == "" {
		return errors.New("auth: token missing algorithm")
	}
	if v.Algorithm != "" && algorithm != v.Algorithm {
		return fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}

	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if err := jwt.Validate(tok, options...); err != nil {
		return err
	}

	if v.Role == "" {
		return nil
	}
	raw, ok := tok.Get(RoleClaim)
	if !ok {
		return errRole
	}
	if role, _ := raw.(string); role != v.Role {
		return errRole
	}
	return nil
}
