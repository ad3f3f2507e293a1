// Package gateway adapts the data service to the view-states: a Sessions
// gateway owning the single active account, and an Expenses gateway scoped to
// it. Failures are classified into the core error taxonomy.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gastos/internal/core"
	applog "gastos/internal/log"
	"gastos/internal/remote"
)

// Sessions holds at most one authenticated account.
type Sessions struct {
	identity remote.IdentityProvider
	profiles remote.ProfileWriter
	now      func() time.Time

	mu      sync.Mutex
	account *core.Account
	subs    map[*monthSubscription]struct{}
}

func NewSessions(identity remote.IdentityProvider, profiles remote.ProfileWriter) *Sessions {
	return &Sessions{
		identity: identity,
		profiles: profiles,
		now:      time.Now,
		subs:     make(map[*monthSubscription]struct{}),
	}
}

func (s *Sessions) SignInWithPassword(ctx context.Context, email, password string) error {
	acc, err := s.identity.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return classify(err, core.ErrAuthentication)
	}
	s.activate(acc)
	s.writeProfile(ctx, acc, false)
	return nil
}

// SignUpWithPassword creates the account, signs it in and records its profile
// with a creation time.
func (s *Sessions) SignUpWithPassword(ctx context.Context, email, password, displayName string) error {
	acc, err := s.identity.SignUpWithPassword(ctx, strings.TrimSpace(email), password, strings.TrimSpace(displayName))
	if err != nil {
		return classify(err, core.ErrAuthentication)
	}
	s.activate(acc)
	s.writeProfile(ctx, acc, true)
	return nil
}

func (s *Sessions) SignInWithGoogleIDToken(ctx context.Context, idToken string) error {
	acc, err := s.identity.SignInWithGoogle(ctx, idToken)
	if err != nil {
		return classify(err, core.ErrAuthentication)
	}
	acc.Provider = core.ProviderGoogle
	s.activate(acc)
	s.writeProfile(ctx, acc, false)
	return nil
}

// SignOut ends the session and closes every subscription opened under it
// before returning. Each closed subscription receives a Closed event.
func (s *Sessions) SignOut() {
	s.mu.Lock()
	prev := s.account
	s.account = nil
	subs := s.takeSubsLocked()
	s.mu.Unlock()

	for _, sub := range subs {
		sub.revoke()
	}
	if prev != nil {
		slog.Info("Signed out",
			applog.FieldComponent, applog.ComponentAuth,
			applog.FieldAccountID, prev.ID,
			"revoked_subscriptions", len(subs))
	}
}

func (s *Sessions) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account != nil
}

// Account returns the active account, if any.
func (s *Sessions) Account() (core.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return core.Account{}, false
	}
	return *s.account, true
}

func (s *Sessions) activate(acc core.Account) {
	s.mu.Lock()
	var stale []*monthSubscription
	if s.account != nil && s.account.ID != acc.ID {
		stale = s.takeSubsLocked()
	}
	s.account = &acc
	s.mu.Unlock()

	for _, sub := range stale {
		sub.revoke()
	}
}

func (s *Sessions) takeSubsLocked() []*monthSubscription {
	out := make([]*monthSubscription, 0, len(s.subs))
	for sub := range s.subs {
		out = append(out, sub)
	}
	clear(s.subs)
	return out
}

// track binds sub to the current account. It reports false when accountID is
// no longer the active one.
func (s *Sessions) track(sub *monthSubscription, accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil || s.account.ID != accountID {
		return false
	}
	s.subs[sub] = struct{}{}
	return true
}

func (s *Sessions) untrack(sub *monthSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

func (s *Sessions) writeProfile(ctx context.Context, acc core.Account, created bool) {
	if s.profiles == nil {
		return
	}
	now := s.now()
	p := core.Profile{
		AccountID:   acc.ID,
		DisplayName: acc.DisplayName,
		Email:       acc.Email,
		Provider:    acc.Provider,
		UpdatedAt:   now,
	}
	if created {
		p.CreatedAt = now
	}
	if err := s.profiles.UpsertProfile(ctx, p); err != nil {
		slog.WarnContext(ctx, "Failed to write profile after sign-in",
			applog.FieldComponent, applog.ComponentAuth,
			applog.FieldAccountID, acc.ID,
			applog.FieldError, err)
	}
}

// classify keeps err when it already belongs to kind and tags it otherwise.
func classify(err, kind error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
