package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the bearer token failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

const defaultRoleClaim = "role"

// JWTVerifier checks HS256 tokens issued by an external identity service.
type JWTVerifier struct {
	secret    []byte
	issuer    string
	roleClaim string
	leeway    time.Duration
	now       func() time.Time
}

// JWTOption customises JWTVerifier.
type JWTOption func(*JWTVerifier)

// WithJWTIssuer requires the iss claim to match issuer.
func WithJWTIssuer(issuer string) JWTOption {
	return func(v *JWTVerifier) {
		v.issuer = strings.TrimSpace(issuer)
	}
}

// WithJWTRoleClaim overrides the claim used for role extraction.
func WithJWTRoleClaim(claim string) JWTOption {
	return func(v *JWTVerifier) {
		if claim = strings.TrimSpace(claim); claim != "" {
			v.roleClaim = claim
		}
	}
}

// WithJWTClock overrides the clock used for expiry checks.
func WithJWTClock(now func() time.Time) JWTOption {
	return func(v *JWTVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewJWTVerifier constructs a verifier for the shared secret.
func NewJWTVerifier(secret string, opts ...JWTOption) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	v := &JWTVerifier{
		secret:    []byte(secret),
		roleClaim: defaultRoleClaim,
		leeway:    30 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Verify parses the token, checks signature, expiry and issuer, and returns the identity.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := v.now()
	if !claims.VerifyExpiresAt(now.Add(-v.leeway).Unix(), true) {
		return nil, ErrTokenExpired
	}
	if !claims.VerifyNotBefore(now.Add(v.leeway).Unix(), false) {
		return nil, fmt.Errorf("%w: token not yet valid", ErrTokenInvalid)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}

	subject := claimAsString(claims, "sub")
	if subject == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}
	return &Identity{
		UID:   subject,
		Email: claimAsString(claims, "email"),
		Roles: rolesFromClaims(claims, v.roleClaim),
	}, nil
}
