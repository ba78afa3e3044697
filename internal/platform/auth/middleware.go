package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/santiscally/grafica-los-rumbos/internal/platform/httpx"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/requestctx"
)

const defaultVerifyTimeout = 5 * time.Second

// Verifier turns a bearer token into an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(context.Context, string) (*Identity, error)

// Verify implements Verifier.
func (f VerifierFunc) Verify(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}

// Authenticator wires token verification into HTTP middleware.
type Authenticator struct {
	verifier Verifier
	timeout  time.Duration
}

// NewAuthenticator constructs middleware around verifier.
func NewAuthenticator(verifier Verifier) *Authenticator {
	return &Authenticator{verifier: verifier, timeout: defaultVerifyTimeout}
}

// RequireRole verifies the Authorization bearer token and requires one of the allowed roles.
// Missing or invalid tokens answer 401; a valid token without the role answers 403.
func (a *Authenticator) RequireRole(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized))
				return
			}
			if a == nil || a.verifier == nil {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization service unavailable", http.StatusUnauthorized))
				return
			}

			verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
			identity, err := a.verifier.Verify(verifyCtx, token)
			cancel()
			if err != nil {
				code, message := "invalid_token", "token verification failed"
				if errors.Is(err, ErrTokenExpired) {
					code, message = "token_expired", "token expired"
				}
				requestctx.Logger(ctx).Debug("token rejected")
				httpx.WriteError(ctx, w, httpx.NewError(code, message, http.StatusUnauthorized))
				return
			}
			if len(allowedRoles) > 0 && !identity.HasAnyRole(allowedRoles...) {
				httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "identity does not have required role", http.StatusForbidden))
				return
			}

			ctx = WithIdentity(ctx, identity)
			ctx = requestctx.WithActor(ctx, identity.UID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AllowAll stamps a fixed admin identity on every request. Only used with auth mode "disabled" in
// local development.
func AllowAll(actor string) func(http.Handler) http.Handler {
	identity := &Identity{UID: actor, Roles: []string{RoleAdmin}}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(requestctx.WithActor(ctx, actor)))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
