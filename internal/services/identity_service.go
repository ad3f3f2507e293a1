package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"gastos/internal/core"
	"gastos/internal/identity"
)

func (s *DataService) SignInWithPassword(ctx context.Context, email, password string) (core.Account, error) {
	email, err := identity.NormalizeEmail(email)
	if err != nil {
		return core.Account{}, fmt.Errorf("%w: %w", core.ErrAuthentication, err)
	}

	stored, err := s.repo.FindAccount(ctx, core.ProviderPassword, email)
	if errors.Is(err, core.ErrAccountNotFound) {
		return core.Account{}, fmt.Errorf("%w: %w", core.ErrAuthentication, core.ErrInvalidLogin)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("%w: find account: %w", core.ErrAuthentication, err)
	}
	if !identity.CheckPassword(stored.PasswordHash, password) {
		slog.WarnContext(ctx, "Password sign-in rejected", "component", "auth", "account_id", stored.ID)
		return core.Account{}, fmt.Errorf("%w: %w", core.ErrAuthentication, core.ErrInvalidLogin)
	}
	return stored.Account, nil
}

func (s *DataService) SignUpWithPassword(ctx context.Context, email, password, displayName string) (core.Account, error) {
	email, err := identity.NormalizeEmail(email)
	if err != nil {
		return core.Account{}, fmt.Errorf("%w: %w", core.ErrAuthentication, err)
	}
	hash, err := identity.HashPassword(password)
	if err != nil {
		return core.Account{}, fmt.Errorf("%w: %w", core.ErrAuthentication, err)
	}

	stored := StoredAccount{
		Account: core.Account{
			ID:          uuid.NewString(),
			Email:       email,
			DisplayName: strings.TrimSpace(displayName),
			Provider:    core.ProviderPassword,
		},
		Subject:      email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.repo.CreateAccount(ctx, stored); err != nil {
		return core.Account{}, fmt.Errorf("%w: create account: %w", core.ErrAuthentication, err)
	}

	slog.InfoContext(ctx, "Account created", "component", "auth", "account_id", stored.ID, "provider", stored.Provider)
	return stored.Account, nil
}

// SignInWithGoogle verifies the token and returns the account bound to its
// subject, creating it on first use.
func (s *DataService) SignInWithGoogle(ctx context.Context, idToken string) (core.Account, error) {
	if strings.TrimSpace(idToken) == "" {
		return core.Account{}, fmt.Errorf("%w: empty id token", core.ErrAuthentication)
	}
	claims, err := s.google.Verify(ctx, idToken)
	if err != nil {
		return core.Account{}, fmt.Errorf("%w: %w", core.ErrAuthentication, err)
	}

	stored, err := s.repo.FindAccount(ctx, core.ProviderGoogle, claims.Subject)
	if err == nil {
		return stored.Account, nil
	}
	if !errors.Is(err, core.ErrAccountNotFound) {
		return core.Account{}, fmt.Errorf("%w: find account: %w", core.ErrAuthentication, err)
	}

	stored = StoredAccount{
		Account: core.Account{
			ID:          uuid.NewString(),
			Email:       claims.Email,
			DisplayName: claims.Name,
			Provider:    core.ProviderGoogle,
		},
		Subject:   claims.Subject,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateAccount(ctx, stored); err != nil {
		return core.Account{}, fmt.Errorf("%w: create account: %w", core.ErrAuthentication, err)
	}

	slog.InfoContext(ctx, "Account created", "component", "auth", "account_id", stored.ID, "provider", stored.Provider)
	return stored.Account, nil
}

// UpsertProfile merges the supplied profile fields into users/{accountId}.
func (s *DataService) UpsertProfile(ctx context.Context, p core.Profile) error {
	if strings.TrimSpace(p.AccountID) == "" {
		return fmt.Errorf("%w: missing account id", core.ErrWrite)
	}
	if err := s.repo.UpsertProfile(ctx, p); err != nil {
		return fmt.Errorf("%w: upsert profile: %w", core.ErrWrite, err)
	}
	return nil
}

func (s *DataService) Profile(ctx context.Context, accountID string) (core.Profile, error) {
	return s.repo.Profile(ctx, accountID)
}
