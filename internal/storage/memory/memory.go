// Package memory keeps accounts, profiles and expenses in process memory.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gastos/internal/core"
	"gastos/internal/services"
)

var ErrForeignExpense = errors.New("expense belongs to another owner")

type accountKey struct {
	provider string
	subject  string
}

type Store struct {
	mu       sync.Mutex
	accounts map[accountKey]services.StoredAccount
	profiles map[string]core.Profile
	items    map[string]core.Expense
}

var _ services.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts: make(map[accountKey]services.StoredAccount),
		profiles: make(map[string]core.Profile),
		items:    make(map[string]core.Expense),
	}
}

// NewFromFile seeds the store with expenses read from a JSON array. A missing
// file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed []core.Expense
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	for _, e := range seed {
		if e.ID == "" || e.OwnerID == "" {
			return nil, fmt.Errorf("seed expense %q: missing id or owner", e.Name)
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("seed expense %s: %w", e.ID, err)
		}
		s.items[e.ID] = e.Normalize()
	}
	return s, nil
}

func (s *Store) CreateAccount(_ context.Context, a services.StoredAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accountKey{a.Provider, a.Subject}
	if _, ok := s.accounts[key]; ok {
		return core.ErrAccountExists
	}
	s.accounts[key] = a
	return nil
}

func (s *Store) FindAccount(_ context.Context, provider, subject string) (services.StoredAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountKey{provider, subject}]
	if !ok {
		return services.StoredAccount{}, core.ErrAccountNotFound
	}
	return a, nil
}

// UpsertProfile merges the non-zero fields of p into the stored profile.
func (s *Store) UpsertProfile(_ context.Context, p core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.profiles[p.AccountID]
	cur.AccountID = p.AccountID
	if p.DisplayName != "" {
		cur.DisplayName = p.DisplayName
	}
	if p.Email != "" {
		cur.Email = p.Email
	}
	if p.Provider != "" {
		cur.Provider = p.Provider
	}
	if !p.CreatedAt.IsZero() {
		cur.CreatedAt = p.CreatedAt
	}
	if !p.UpdatedAt.IsZero() {
		cur.UpdatedAt = p.UpdatedAt
	}
	s.profiles[p.AccountID] = cur
	return nil
}

func (s *Store) Profile(_ context.Context, accountID string) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[accountID]
	if !ok {
		return core.Profile{}, core.ErrAccountNotFound
	}
	return p, nil
}

func (s *Store) PutExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.items[e.ID]; ok && cur.OwnerID != e.OwnerID {
		return ErrForeignExpense
	}
	s.items[e.ID] = e
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.items[id]; ok && cur.OwnerID == ownerID {
		delete(s.items, id)
	}
	return nil
}

// QueryExpenses returns the matching expenses newest first.
func (s *Store) QueryExpenses(ctx context.Context, q core.ExpenseQuery) ([]core.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := []core.Expense{}
	for _, e := range s.items {
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Close() error { return nil }
