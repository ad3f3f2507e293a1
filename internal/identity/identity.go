// Package identity holds the credential checks used by the data service:
// bcrypt password hashes and Google ID token verification.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/idtoken"

	"gastos/internal/core"
)

const minPasswordLength = 6

var ErrGoogleDisabled = errors.New("google sign-in is not configured")

// HashPassword returns a bcrypt hash for a new account password.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", core.ErrWeakPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NormalizeEmail trims and lowercases an email and checks its basic shape.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return "", core.ErrInvalidEmail
	}
	return email, nil
}

// GoogleClaims is the subset of a verified Google ID token the service keeps.
type GoogleClaims struct {
	Subject string
	Email   string
	Name    string
}

// GoogleVerifier validates Google ID tokens.
type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (GoogleClaims, error)
}

// IDTokenVerifier checks tokens against Google's published keys for one
// OAuth client id.
type IDTokenVerifier struct {
	validator *idtoken.Validator
	audience  string
}

func NewIDTokenVerifier(ctx context.Context, clientID string) (*IDTokenVerifier, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, ErrGoogleDisabled
	}
	v, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("create id token validator: %w", err)
	}
	return &IDTokenVerifier{validator: v, audience: clientID}, nil
}

func (v *IDTokenVerifier) Verify(ctx context.Context, token string) (GoogleClaims, error) {
	payload, err := v.validator.Validate(ctx, token, v.audience)
	if err != nil {
		return GoogleClaims{}, fmt.Errorf("validate id token: %w", err)
	}
	claims := GoogleClaims{Subject: payload.Subject}
	if email, ok := payload.Claims["email"].(string); ok {
		claims.Email = strings.ToLower(email)
	}
	if name, ok := payload.Claims["name"].(string); ok {
		claims.Name = name
	}
	if claims.Subject == "" {
		return GoogleClaims{}, errors.New("id token has no subject")
	}
	return claims, nil
}

// DisabledVerifier rejects every token; used when no client id is configured.
type DisabledVerifier struct{}

func (DisabledVerifier) Verify(context.Context, string) (GoogleClaims, error) {
	return GoogleClaims{}, ErrGoogleDisabled
}
