package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret-for-tests"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestJWTVerifier_AcceptsValidToken(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier, err := NewJWTVerifier(testSecret, WithJWTIssuer("rumbos"), WithJWTClock(func() time.Time { return now }))
	require.NoError(t, err)

	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub":   "admin-1",
		"email": "owner@example.com",
		"role":  []any{"Admin", "staff", "admin"},
		"iss":   "rumbos",
		"exp":   now.Add(time.Hour).Unix(),
	})

	identity, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", identity.UID)
	assert.Equal(t, "owner@example.com", identity.Email)
	assert.Equal(t, []string{"admin", "staff"}, identity.Roles)
	assert.True(t, identity.HasRole(RoleAdmin))
}

func TestJWTVerifier_RejectsBadTokens(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier, err := NewJWTVerifier(testSecret, WithJWTIssuer("rumbos"), WithJWTClock(func() time.Time { return now }))
	require.NoError(t, err)

	cases := []struct {
		name   string
		token  string
		target error
	}{
		{
			name: "expired",
			token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
				"sub": "a", "iss": "rumbos", "exp": now.Add(-time.Hour).Unix(),
			}),
			target: ErrTokenExpired,
		},
		{
			name: "missing expiry",
			token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
				"sub": "a", "iss": "rumbos",
			}),
			target: ErrTokenExpired,
		},
		{
			name: "wrong secret",
			token: signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{
				"sub": "a", "iss": "rumbos", "exp": now.Add(time.Hour).Unix(),
			}),
			target: ErrTokenInvalid,
		},
		{
			name: "wrong issuer",
			token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
				"sub": "a", "iss": "someone-else", "exp": now.Add(time.Hour).Unix(),
			}),
			target: ErrTokenInvalid,
		},
		{
			name: "wrong algorithm",
			token: signToken(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{
				"sub": "a", "iss": "rumbos", "exp": now.Add(time.Hour).Unix(),
			}),
			target: ErrTokenInvalid,
		},
		{
			name: "missing subject",
			token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
				"iss": "rumbos", "exp": now.Add(time.Hour).Unix(),
			}),
			target: ErrTokenInvalid,
		},
		{name: "garbage", token: "not-a-jwt", target: ErrTokenInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), tc.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.target), "got %v", err)
		})
	}
}

func TestNewJWTVerifier_RequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier("  ")
	require.Error(t, err)
}
