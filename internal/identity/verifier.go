// Package identity verifies ID tokens issued by Firebase Authentication.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// ErrInvalidToken is returned for malformed, expired or revoked tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the identity carried by a verified token.
type Claims struct {
	UID     string
	Email   string
	Name    string
	Picture string
}

// Verifier checks an ID token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (*Claims, error)
}

// tokenVerifier is the part of *auth.Client the verifier uses.
type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseVerifier verifies tokens with the Firebase Admin SDK.
type FirebaseVerifier struct {
	client tokenVerifier
}

// Credentials identify the service account. With an empty ClientEmail the
// SDK falls back to application default credentials.
type Credentials struct {
	ProjectID   string
	ClientEmail string
	PrivateKey  string
}

// NewFirebaseVerifier initialises the Admin SDK once for the process.
func NewFirebaseVerifier(ctx context.Context, creds Credentials) (*FirebaseVerifier, error) {
	var opts []option.ClientOption
	if creds.ClientEmail != "" {
		b, err := json.Marshal(map[string]string{
			"type":         "service_account",
			"project_id":   creds.ProjectID,
			"client_email": creds.ClientEmail,
			"private_key":  creds.PrivateKey,
			"token_uri":    "https://oauth2.googleapis.com/token",
		})
		if err != nil {
			return nil, fmt.Errorf("encode service account: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(b))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: creds.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// Verify checks idToken's signature, audience and expiry.
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*Claims, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, ErrInvalidToken
	}
	tok, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		if auth.IsIDTokenExpired(err) || auth.IsIDTokenInvalid(err) || auth.IsIDTokenRevoked(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	return claimsFrom(tok), nil
}

func claimsFrom(tok *auth.Token) *Claims {
	c := &Claims{UID: tok.UID}
	c.Email, _ = tok.Claims["email"].(string)
	c.Name, _ = tok.Claims["name"].(string)
	c.Picture, _ = tok.Claims["picture"].(string)
	return c
}

// DisplayName is the token's name, or the local part of its email.
func (c Claims) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	local, _, _ := strings.Cut(c.Email, "@")
	return local
}
