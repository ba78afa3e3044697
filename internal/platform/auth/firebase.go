package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/santiscally/grafica-los-rumbos/internal/platform/config"
)

// IDTokenVerifier verifies Firebase ID tokens. Satisfied by *firebaseauth.Client.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier adapts Firebase ID token verification to the Verifier interface.
type FirebaseVerifier struct {
	client    IDTokenVerifier
	roleClaim string
	timeout   time.Duration
}

// NewFirebaseVerifier initialises the Admin SDK for the configured project.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return NewFirebaseVerifierWithClient(client), nil
}

// NewFirebaseVerifierWithClient wraps an existing token verifier.
func NewFirebaseVerifierWithClient(client IDTokenVerifier) *FirebaseVerifier {
	return &FirebaseVerifier{client: client, roleClaim: defaultRoleClaim, timeout: defaultVerifyTimeout}
}

// Verify checks the ID token and maps its custom claims to an identity. An {"admin": true} claim
// grants the admin role.
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("firebase verifier not initialised")
	}
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	decoded, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		switch {
		case firebaseauth.IsIDTokenExpired(err):
			return nil, ErrTokenExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	roles := rolesFromClaims(decoded.Claims, v.roleClaim)
	if admin, ok := decoded.Claims[RoleAdmin].(bool); ok && admin {
		roles = append(roles, RoleAdmin)
	}
	return &Identity{
		UID:   decoded.UID,
		Email: claimAsString(decoded.Claims, "email"),
		Roles: roles,
	}, nil
}
